package notify

import (
	"context"
	"errors"
)

// MultiSink fans an alert out to several sinks. It succeeds if any sink
// accepted the alert, so one dead channel does not cause repeats on the others.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink constructs a MultiSink; nil sinks are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Send forwards the alert to every sink.
func (m *MultiSink) Send(ctx context.Context, alert Alert) error {
	if m == nil || len(m.sinks) == 0 {
		return errors.New("multi sink: no sinks")
	}
	var errs []error
	delivered := false
	for _, s := range m.sinks {
		if err := s.Send(ctx, alert); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	return errors.Join(errs...)
}
