package platform

import (
	"context"
	"strings"
)

// NoGroup is the group context used for events that did not come from a group.
const NoGroup = "0"

// SegmentType identifies message segment variants.
type SegmentType string

const (
	SegmentText  SegmentType = "text"
	SegmentImage SegmentType = "image"
	SegmentReply SegmentType = "reply"
)

// Segment is one piece of a chat message. Reply segments carry the quoted
// message's id and text.
type Segment struct {
	Type SegmentType `json:"type"`
	Text string      `json:"text,omitempty"`
	URL  string      `json:"url,omitempty"`

	QuotedID   string `json:"quoted_id,omitempty"`
	QuotedText string `json:"quoted_text,omitempty"`
}

// Message is an ordered chain of segments as delivered by the platform.
type Message struct {
	Segments []Segment `json:"segments"`
}

// TextMessage builds a message with a single text segment.
func TextMessage(text string) Message {
	return Message{Segments: []Segment{{Type: SegmentText, Text: text}}}
}

// Empty reports whether the message carries nothing but blank text.
func (m Message) Empty() bool {
	for _, seg := range m.Segments {
		if seg.Type != SegmentText {
			return false
		}
	}
	return m.Text() == ""
}

// Text concatenates the text segments, trimmed.
func (m Message) Text() string {
	var b strings.Builder
	for _, seg := range m.Segments {
		if seg.Type == SegmentText {
			b.WriteString(seg.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// Quote returns the first reply segment, if any.
func (m Message) Quote() (Segment, bool) {
	for _, seg := range m.Segments {
		if seg.Type == SegmentReply {
			return seg, true
		}
	}
	return Segment{}, false
}

// Address is a reverse-routing target. A non-empty group other than NoGroup
// takes precedence over the user.
type Address struct {
	GroupID string `json:"group_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

// To builds an address for a user, optionally inside a group.
func To(groupID, userID string) Address {
	groupID = strings.TrimSpace(groupID)
	if groupID == NoGroup {
		groupID = ""
	}
	return Address{GroupID: groupID, UserID: strings.TrimSpace(userID)}
}

// Direct builds a private-message address.
func Direct(userID string) Address {
	return Address{UserID: strings.TrimSpace(userID)}
}

// IsGroup reports whether delivery goes to a group.
func (a Address) IsGroup() bool {
	return a.GroupID != "" && a.GroupID != NoGroup
}

// Valid reports whether the address has somewhere to deliver to.
func (a Address) Valid() bool {
	return a.IsGroup() || a.UserID != ""
}

func (a Address) String() string {
	if a.IsGroup() {
		return "group:" + a.GroupID
	}
	return "user:" + a.UserID
}

// Event is one inbound platform message.
type Event struct {
	ID         string  `json:"event_id"`
	SenderID   string  `json:"sender_id"`
	SenderName string  `json:"sender_name"`
	Private    bool    `json:"private"`
	GroupID    string  `json:"group_id,omitempty"`
	Message    Message `json:"message"`
	Origin     Address `json:"origin"`
}

// Group returns the event's group context, NoGroup for private messages.
func (e Event) Group() string {
	g := strings.TrimSpace(e.GroupID)
	if e.Private || g == "" {
		return NoGroup
	}
	return g
}

// ReplyAddress is where a reply to this event goes.
func (e Event) ReplyAddress() Address {
	if e.Origin.Valid() {
		return e.Origin
	}
	return To(e.Group(), e.SenderID)
}

// Result tells the host whether the event was fully handled. Handled events
// must not reach any further default processing.
type Result struct {
	Handled bool `json:"handled"`
}

// Transport delivers outbound messages to the platform.
type Transport interface {
	SendText(ctx context.Context, to Address, text string) error
	Forward(ctx context.Context, to Address, msg Message) error
}
