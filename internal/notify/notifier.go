// Package notify delivers outbound text through the platform transport.
//
// Two paths exist. BestEffort never fails the caller: errors are logged and
// counted. Critical and Forward return the error so the caller can react,
// which the claim flow uses to roll a session back.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ent0n29/handoff/internal/observability"
	"github.com/ent0n29/handoff/internal/platform"
)

// ErrDelivery wraps every transport failure.
var ErrDelivery = errors.New("delivery failed")

// Kind labels a notification for logs and metrics.
type Kind string

const (
	KindReply          Kind = "reply"
	KindOperatorAlert  Kind = "operator_alert"
	KindQueuePosition  Kind = "queue_position"
	KindClaimNotice    Kind = "claim_notice"
	KindCancelNotice   Kind = "cancel_notice"
	KindEndNotice      Kind = "end_notice"
	KindTimeoutNotice  Kind = "timeout_notice"
	KindTeardownNotice Kind = "teardown_notice"
	KindRelay          Kind = "relay"
)

const (
	resultOK     = "ok"
	resultFailed = "failed"
)

type Notifier struct {
	transport platform.Transport
	log       logrus.FieldLogger
	metrics   *observability.Metrics
}

func New(transport platform.Transport, log logrus.FieldLogger, metrics *observability.Metrics) *Notifier {
	return &Notifier{transport: transport, log: log, metrics: metrics}
}

// BestEffort sends text and swallows any failure after logging it.
func (n *Notifier) BestEffort(ctx context.Context, to platform.Address, text string, kind Kind) {
	_ = n.Critical(ctx, to, text, kind)
}

// Critical sends text and reports failure to the caller.
func (n *Notifier) Critical(ctx context.Context, to platform.Address, text string, kind Kind) error {
	var err error
	if !to.Valid() {
		err = errors.New("empty address")
	} else {
		err = n.transport.SendText(ctx, to, text)
	}
	return n.finish(to, kind, err)
}

// Forward relays an inbound message unchanged.
func (n *Notifier) Forward(ctx context.Context, to platform.Address, msg platform.Message) error {
	var err error
	if !to.Valid() {
		err = errors.New("empty address")
	} else {
		err = n.transport.Forward(ctx, to, msg)
	}
	return n.finish(to, KindRelay, err)
}

func (n *Notifier) finish(to platform.Address, kind Kind, err error) error {
	if err == nil {
		n.metrics.ObserveDelivery(string(kind), resultOK)
		return nil
	}
	n.metrics.ObserveDelivery(string(kind), resultFailed)
	n.log.WithFields(logrus.Fields{
		"kind": string(kind),
		"to":   to.String(),
	}).WithError(err).Warn("notify: delivery failed")
	return fmt.Errorf("%w: %s to %s: %v", ErrDelivery, kind, to, err)
}
