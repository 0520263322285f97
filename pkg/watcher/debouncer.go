package watcher

import (
	"context"
	"time"

	"github.com/ritzau/bazel-sync/pkg/logging"
)

// Debouncer batches rapid file system events to avoid excessive syncs
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer. Events are flushed after
// quietPeriod without new input, or maxWait after the first held event.
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		quiet       <-chan time.Time
		deadline    <-chan time.Time
		accumulated = make(map[ChangeType][]string)
		eventCount  int
	)

	flush := func() {
		quiet, deadline = nil, nil
		if eventCount == 0 {
			return
		}
		logging.Debug("flushing accumulated events", "count", eventCount)

		// BUILD files first, they need a full sync
		for _, t := range []ChangeType{ChangeTypeBuildFile, ChangeTypeSourceFile} {
			if paths := accumulated[t]; len(paths) > 0 {
				d.output <- ChangeEvent{Type: t, Paths: paths, Timestamp: time.Now()}
			}
		}
		accumulated = make(map[ChangeType][]string)
		eventCount = 0
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}
			accumulated[event.Type] = append(accumulated[event.Type], event.Paths...)
			eventCount++

			quiet = time.After(d.quietPeriod)
			if deadline == nil {
				deadline = time.After(d.maxWait)
			}

		case <-quiet:
			flush()

		case <-deadline:
			flush()
		}
	}
}
