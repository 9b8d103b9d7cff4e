package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/tank-monitor/internal/detect"
)

// Alert is what a sink delivers.
type Alert struct {
	Kind      detect.Kind
	Anchor    time.Time
	Magnitude float64
	Message   string
}

// Sink delivers alerts. A nil error means the alert was accepted.
type Sink interface {
	Send(ctx context.Context, alert Alert) error
}

// Outcome describes what Report did with an event.
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeSuppressed  Outcome = "suppressed"
	OutcomeFailed      Outcome = "failed"
	OutcomeUnconfirmed Outcome = "unconfirmed" // sent, but the dedup write failed
)

// Notifier dispatches detector events through a sink, once per anchor.
type Notifier struct {
	dedup   *Dedup
	sink    Sink
	timeout time.Duration
}

// NewNotifier constructs a Notifier. timeout bounds each Send.
func NewNotifier(dedup *Dedup, sink Sink, timeout time.Duration) (*Notifier, error) {
	if dedup == nil {
		return nil, errors.New("notifier: nil dedup")
	}
	if sink == nil {
		return nil, errors.New("notifier: nil sink")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{dedup: dedup, sink: sink, timeout: timeout}, nil
}

// Report sends ev unless its anchor was already reported. A failed send
// leaves the anchor unreported so the next tick retries it.
func (n *Notifier) Report(ctx context.Context, ev detect.Event) Outcome {
	if !n.dedup.ShouldReport(ev.Kind, ev.Anchor) {
		return OutcomeSuppressed
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	alert := Alert{Kind: ev.Kind, Anchor: ev.Anchor, Magnitude: ev.Magnitude, Message: FormatMessage(ev)}
	if err := n.sink.Send(ctx, alert); err != nil {
		log.Printf("alert %s send error: %v", ev.Kind, err)
		return OutcomeFailed
	}
	log.Printf("alert: %s", alert.Message)

	if err := n.dedup.MarkReported(ev.Kind, ev.Anchor); err != nil {
		log.Printf("alert %s: %v", ev.Kind, err)
		return OutcomeUnconfirmed
	}
	return OutcomeSent
}

// Flush retries any outstanding dedup write.
func (n *Notifier) Flush() error {
	return n.dedup.Flush()
}

// FormatMessage renders a one-line human message for an event.
func FormatMessage(ev detect.Event) string {
	at := ev.Anchor.Format("Jan 2 15:04")
	switch ev.Kind {
	case detect.KindStagnationRecovery:
		return fmt.Sprintf("Well recovering: tank gained %.0f gal since %s", ev.Magnitude, at)
	case detect.KindHighFlow:
		return fmt.Sprintf("High flow: tank filling at %.0f GPH (from %s)", ev.Magnitude, at)
	case detect.KindBackflush:
		return fmt.Sprintf("Backflush: tank dropped %.0f gal starting %s", ev.Magnitude, at)
	case detect.KindStoppedFilling:
		return fmt.Sprintf("Tank stopped filling at %s", at)
	}
	return fmt.Sprintf("%s at %s (%.1f)", ev.Kind, at, ev.Magnitude)
}
