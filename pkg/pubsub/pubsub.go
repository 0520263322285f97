// Package pubsub fans sync events out to subscribers, such as the SSE
// endpoint of the web server.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
)

// Topics published by the sync pipeline
const (
	TopicSyncProgress = "sync_progress" // SyncProgress events of full and incremental sync
	TopicProjectModel = "project_model" // ModelUpdate events after each applied transaction
)

// Progress states carried by SyncProgress.State
const (
	StateStep     = "step"
	StateFinished = "finished"
	StateFailed   = "failed"
)

// EventModelUpdated is the type of every project_model event
const EventModelUpdated = "updated"

var (
	// ErrUnknownTopic is returned when subscribing to a topic nothing publishes on
	ErrUnknownTopic = errors.New("unknown topic")
	// ErrClosed is returned after the publisher has shut down
	ErrClosed = errors.New("publisher is closed")
)

// IsTopic reports whether name is one of the published topics
func IsTopic(name string) bool {
	return name == TopicSyncProgress || name == TopicProjectModel
}

// Event is one message on a topic
type Event struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"` // progress state or EventModelUpdated
	Data  json.RawMessage `json:"data"`
	Seq   uint64          `json:"seq"` // per-topic sequence number, starting at 1
}

// Subscription receives the events of one topic
type Subscription interface {
	Topic() string
	// Events is closed when the subscription or the publisher closes
	Events() <-chan Event
	Close() error
}

// Publisher distributes sync progress and model updates. Subscriptions end
// when their context is done.
type Publisher interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	PublishProgress(p SyncProgress) error
	PublishModel(u ModelUpdate) error
	Close() error
}

// SyncProgress is the payload of sync_progress events
type SyncProgress struct {
	Operation string `json:"operation"` // e.g. "Sync project", "Add file to module"
	State     string `json:"state"`     // step, finished, failed
	Message   string `json:"message"`   // Human-readable step text
	Fraction  int    `json:"fraction"`  // 0..100
}

// Done reports whether p ends its operation
func (p SyncProgress) Done() bool {
	return p.State == StateFinished || p.State == StateFailed
}

// ModelUpdate is the payload of project_model events
type ModelUpdate struct {
	Transaction string `json:"transaction"`
	Version     uint64 `json:"version"`
	Modules     int    `json:"modules"`
}
