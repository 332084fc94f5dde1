package routing

import (
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/handoff/internal/queue"
	"github.com/ent0n29/handoff/internal/reaper"
	"github.com/ent0n29/handoff/internal/session"
)

const (
	replyAlreadyConnected = "You are already in a conversation with an operator."
	replyNoSession        = "You have no active request or conversation."
	replyQueueCancelled   = "Your queue request has been cancelled."
	replyConversationOver = "The conversation has ended. You are back with the bot."
	replyAcceptDenied     = "Permission denied: only operators can accept conversations."
	replyListDenied       = "Permission denied: only operators can list sessions."
	replyAlreadyTalking   = "You are already talking to this user."
	replyNothingToEnd     = "There is no conversation to end."
	replyEndedByOperator  = "The operator has ended the conversation."
	replyNoSessions       = "No active sessions."
	replyTeardown         = "The support service is shutting down and your session has been closed."
)

func displayName(n, fallback string) string {
	if n = strings.TrimSpace(n); n != "" {
		return n
	}
	return fallback
}

func replyAlreadyWaiting(rank, total int) string {
	return fmt.Sprintf("You are already waiting for an operator: rank %d, queue length %d.", rank, total)
}

func replyQueued(rank, total int, timeout time.Duration) string {
	return fmt.Sprintf("Waiting for an operator to join: rank %d, queue length %d. The request expires if nobody joins within %s.\n(Note: abusive requests may get you blocked.)",
		rank, total, reaper.FormatDuration(timeout))
}

func operatorAlert(userName, userID string, total int, acceptKeyword string) string {
	return fmt.Sprintf("%s(%s) requested a human operator. Queue length: %d. Send \"%s %s\" or reply to this message with \"%s\" to accept.",
		displayName(userName, "user"), userID, total, acceptKeyword, userID, acceptKeyword)
}

func positionUpdate(rank, total int) string {
	return fmt.Sprintf("Queue update: you are now rank %d, queue length %d.", rank, total)
}

func cancelledByUser(userName, userID string) string {
	return fmt.Sprintf("%s(%s) cancelled and left the conversation.", displayName(userName, "user"), userID)
}

func replySpecifyTarget(acceptKeyword string) string {
	return fmt.Sprintf("Please specify the user to accept, e.g. \"%s 12345\", or reply to a request notice.", acceptKeyword)
}

func replyNotWaiting(userID string) string {
	return fmt.Sprintf("User(%s) is not waiting or in a conversation.", userID)
}

func replyClaimedByOther(userID string) string {
	return fmt.Sprintf("User(%s) is already being served by another operator.", userID)
}

func replyOperatorBusy(userID string) string {
	return fmt.Sprintf("Finish your current conversation with user(%s) first.", userID)
}

func claimNotice(operatorName string, timeout time.Duration) string {
	return fmt.Sprintf("Operator %s has joined the conversation. It stays open for up to %s.\n(Please describe your problem briefly.)",
		displayName(operatorName, "operator"), reaper.FormatDuration(timeout))
}

func replyClaimFailed(userID string) string {
	return fmt.Sprintf("Could not reach user(%s), so they remain in the queue. Try again later.", userID)
}

func replyClaimed(userName, userID, endKeyword string) string {
	return fmt.Sprintf("Connected to %s(%s). Your private messages are now forwarded; send \"%s\" to finish.",
		displayName(userName, "user"), userID, endKeyword)
}

func replyEnded(userName, userID string) string {
	return fmt.Sprintf("Ended the conversation with %s(%s).", displayName(userName, "user"), userID)
}

func replyRelayFailed(userID string) string {
	return fmt.Sprintf("Message could not be delivered to user(%s).", userID)
}

// renderSessions lists waiting users first (by rank), then connected ones.
func renderSessions(waiting []queue.Entry, connected []session.Session, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Waiting (%d):", len(waiting))
	for _, e := range waiting {
		fmt.Fprintf(&b, "\n%d. %s - %d min", e.Rank, e.Session.UserID, elapsedMinutes(e.Session, now))
	}
	fmt.Fprintf(&b, "\nConnected (%d):", len(connected))
	for _, s := range connected {
		fmt.Fprintf(&b, "\n%s <-> %s - %d min", s.UserID, s.OperatorID, elapsedMinutes(s, now))
	}
	return b.String()
}

func elapsedMinutes(s session.Session, now time.Time) int {
	secs := int64(s.Elapsed(now) / time.Second)
	if secs < 0 {
		return 0
	}
	return int(secs / 60)
}
