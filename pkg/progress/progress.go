// Package progress reports long running operations as ordered, named steps
// bounded to 0..100. Reports are advisory: a failing sink never fails the
// operation.
package progress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ritzau/bazel-sync/pkg/logging"
	"github.com/ritzau/bazel-sync/pkg/pubsub"
)

// States of an Update, shared with the sync_progress topic
const (
	StateStep     = pubsub.StateStep
	StateFinished = pubsub.StateFinished
	StateFailed   = pubsub.StateFailed
)

// ErrStepOrder is returned for steps that do not move progress forward
var ErrStepOrder = errors.New("progress steps must be ordered and end within 0..100")

// Update is one report sent to a Sink
type Update struct {
	Operation string
	State     string
	Message   string
	Fraction  int
}

// Sink receives progress updates
type Sink interface {
	Report(u Update) error
}

// Reporter runs an operation as a sequence of steps
type Reporter interface {
	NextStep(endFraction int, text string, fn func() error) error
}

// SequentialReporter enforces that each step ends further than the last
type SequentialReporter struct {
	operation string
	sink      Sink

	mu      sync.Mutex
	current int
}

// NewSequentialReporter creates a reporter for operation. sink may be nil.
func NewSequentialReporter(operation string, sink Sink) *SequentialReporter {
	if sink == nil {
		sink = NopSink{}
	}
	return &SequentialReporter{operation: operation, sink: sink}
}

// NextStep runs fn as the step ending at endFraction
func (r *SequentialReporter) NextStep(endFraction int, text string, fn func() error) error {
	r.mu.Lock()
	start := r.current
	if endFraction <= start || endFraction > 100 {
		r.mu.Unlock()
		return fmt.Errorf("%w: step %q ends at %d after %d", ErrStepOrder, text, endFraction, start)
	}
	r.current = endFraction
	r.mu.Unlock()

	r.report(StateStep, text, start)
	if err := fn(); err != nil {
		r.report(StateFailed, err.Error(), start)
		return err
	}
	r.report(StateStep, text, endFraction)
	return nil
}

// Finish reports the operation as complete
func (r *SequentialReporter) Finish(text string) {
	r.mu.Lock()
	r.current = 100
	r.mu.Unlock()
	r.report(StateFinished, text, 100)
}

// Fraction returns where the last started step ends
func (r *SequentialReporter) Fraction() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *SequentialReporter) report(state, message string, fraction int) {
	u := Update{Operation: r.operation, State: state, Message: message, Fraction: fraction}
	if err := r.sink.Report(u); err != nil {
		logging.Debug("progress sink failed", "operation", r.operation, "error", err)
	}
}

// NopSink drops every update
type NopSink struct{}

func (NopSink) Report(Update) error { return nil }

// LogSink writes updates to the debug log
type LogSink struct{}

func (LogSink) Report(u Update) error {
	logging.Debug("progress", "operation", u.Operation, "state", u.State, "fraction", u.Fraction, "message", u.Message)
	return nil
}

// PubSubSink publishes updates on the sync_progress topic
type PubSubSink struct {
	Publisher pubsub.Publisher
}

func (s PubSubSink) Report(u Update) error {
	return s.Publisher.PublishProgress(pubsub.SyncProgress{
		Operation: u.Operation,
		State:     u.State,
		Message:   u.Message,
		Fraction:  u.Fraction,
	})
}

// MultiSink forwards updates to several sinks and reports the first error
type MultiSink []Sink

func (m MultiSink) Report(u Update) error {
	var first error
	for _, s := range m {
		if err := s.Report(u); err != nil && first == nil {
			first = err
		}
	}
	return first
}
