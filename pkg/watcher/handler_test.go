package watcher

import (
	"context"
	"errors"
	"testing"

	"github.com/ritzau/bazel-sync/pkg/filesync"
	"github.com/ritzau/bazel-sync/pkg/projectsync"
)

type countingSyncer struct{ calls int }

func (s *countingSyncer) Sync(ctx context.Context) (*projectsync.Result, error) {
	s.calls++
	return &projectsync.Result{}, nil
}

type recordingAdder struct {
	paths []string
	err   error
}

func (a *recordingAdder) AddFile(ctx context.Context, path string) (*filesync.Result, error) {
	a.paths = append(a.paths, path)
	if a.err != nil {
		return nil, a.err
	}
	return &filesync.Result{Path: path}, nil
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name      string
		events    []ChangeEvent
		wantSyncs int
		wantAdds  []string
	}{
		{
			name:     "new sources are added",
			events:   []ChangeEvent{{Type: ChangeTypeSourceFile, Paths: []string{"/ws/A.java", "/ws/B.java"}}},
			wantAdds: []string{"/ws/A.java", "/ws/B.java"},
		},
		{
			name: "build change runs one full sync",
			events: []ChangeEvent{
				{Type: ChangeTypeBuildFile, Paths: []string{"/ws/BUILD"}},
				{Type: ChangeTypeSourceFile, Paths: []string{"/ws/A.java"}},
			},
			wantSyncs: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := make(chan ChangeEvent, len(tt.events))
			for _, e := range tt.events {
				events <- e
			}
			close(events)

			syncer := &countingSyncer{}
			adder := &recordingAdder{}
			Handle(context.Background(), events, syncer, adder)

			if syncer.calls != tt.wantSyncs {
				t.Errorf("syncs = %d, want %d", syncer.calls, tt.wantSyncs)
			}
			if len(adder.paths) != len(tt.wantAdds) {
				t.Fatalf("adds = %v, want %v", adder.paths, tt.wantAdds)
			}
			for i := range tt.wantAdds {
				if adder.paths[i] != tt.wantAdds[i] {
					t.Errorf("adds[%d] = %s, want %s", i, adder.paths[i], tt.wantAdds[i])
				}
			}
		})
	}
}

func TestHandle_DeclinedAddsAreNotFatal(t *testing.T) {
	events := make(chan ChangeEvent, 1)
	events <- ChangeEvent{Type: ChangeTypeSourceFile, Paths: []string{"/ws/A.java", "/ws/B.java"}}
	close(events)

	adder := &recordingAdder{err: errors.Join(projectsync.ErrSyncInProgress)}
	Handle(context.Background(), events, &countingSyncer{}, adder)

	if len(adder.paths) != 2 {
		t.Errorf("every file should be attempted, got %v", adder.paths)
	}
}
