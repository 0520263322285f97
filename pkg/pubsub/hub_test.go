package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func subscribe(t *testing.T, h *Hub, topic string) Subscription {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	sub, err := h.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("Subscribe(%s) error = %v", topic, err)
	}
	t.Cleanup(func() { sub.Close() })
	return sub
}

func receive(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case event, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return event
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
		return Event{}
	}
}

func expectNone(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case event := <-sub.Events():
		t.Errorf("Received unexpected event %s #%d", event.Type, event.Seq)
	case <-time.After(50 * time.Millisecond):
	}
}

func decode[T any](t *testing.T, e Event) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	return v
}

func TestHub_ReplaysLatestModelUpdate(t *testing.T) {
	h := NewHub()
	defer h.Close()

	for v := uint64(1); v <= 3; v++ {
		if err := h.PublishModel(ModelUpdate{Transaction: "Sync project (Bazel)", Version: v}); err != nil {
			t.Fatalf("PublishModel() error = %v", err)
		}
	}

	sub := subscribe(t, h, TopicProjectModel)
	event := receive(t, sub)
	if event.Type != EventModelUpdated || event.Seq != 3 {
		t.Errorf("got %s #%d, want updated #3", event.Type, event.Seq)
	}
	if u := decode[ModelUpdate](t, event); u.Version != 3 {
		t.Errorf("replayed version %d, want 3", u.Version)
	}
	expectNone(t, sub)
}

func TestHub_ReplaysOnlyRunningOperations(t *testing.T) {
	h := NewHub()
	defer h.Close()

	steps := []SyncProgress{
		{Operation: "Sync project", State: StateStep, Fraction: 0},
		{Operation: "Add file to module", State: StateStep, Fraction: 0},
		{Operation: "Sync project", State: StateStep, Fraction: 40},
		{Operation: "Add file to module", State: StateFinished, Fraction: 100},
	}
	for _, p := range steps {
		if err := h.PublishProgress(p); err != nil {
			t.Fatalf("PublishProgress() error = %v", err)
		}
	}

	sub := subscribe(t, h, TopicSyncProgress)
	p := decode[SyncProgress](t, receive(t, sub))
	if p.Operation != "Sync project" || p.Fraction != 40 {
		t.Errorf("replayed %+v, want latest step of the running sync", p)
	}
	expectNone(t, sub)

	if err := h.PublishProgress(SyncProgress{Operation: "Sync project", State: StateFinished, Fraction: 100}); err != nil {
		t.Fatal(err)
	}
	if event := receive(t, sub); event.Type != StateFinished || event.Seq != 5 {
		t.Errorf("got %s #%d, want finished #5", event.Type, event.Seq)
	}

	late := subscribe(t, h, TopicSyncProgress)
	expectNone(t, late)
}

func TestHub_TopicsAreIndependent(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sub := subscribe(t, h, TopicProjectModel)
	if err := h.PublishProgress(SyncProgress{Operation: "Sync project", State: StateStep}); err != nil {
		t.Fatal(err)
	}
	expectNone(t, sub)
}

func TestHub_UnknownTopic(t *testing.T) {
	h := NewHub()
	defer h.Close()

	if _, err := h.Subscribe(context.Background(), "graph"); !errors.Is(err, ErrUnknownTopic) {
		t.Errorf("Subscribe(graph) error = %v, want ErrUnknownTopic", err)
	}
}

func TestHub_ContextEndsSubscription(t *testing.T) {
	h := NewHub()
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := h.Subscribe(ctx, TopicProjectModel)
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("expected the events channel to close")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	sub := subscribe(t, h, TopicSyncProgress)

	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("expected the events channel to close")
	}
	if err := h.PublishModel(ModelUpdate{Version: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("PublishModel() after Close error = %v", err)
	}
	if _, err := h.Subscribe(context.Background(), TopicProjectModel); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe() after Close error = %v", err)
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	event := Event{Topic: TopicProjectModel, Type: EventModelUpdated, Data: json.RawMessage(`{"version":2}`), Seq: 7}

	if err := WriteSSE(&buf, event); err != nil {
		t.Fatalf("WriteSSE() error = %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "id: 7\nevent: updated\ndata: ") || !strings.HasSuffix(out, "\n\n") {
		t.Errorf("WriteSSE() = %q, want SSE frame", out)
	}
	if !strings.Contains(out, `"topic":"project_model"`) {
		t.Errorf("WriteSSE() = %q, missing topic", out)
	}
}
