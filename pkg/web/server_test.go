package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/bazel-sync/pkg/filesync"
	"github.com/ritzau/bazel-sync/pkg/model"
	"github.com/ritzau/bazel-sync/pkg/projectsync"
	"github.com/ritzau/bazel-sync/pkg/pubsub"
	"github.com/ritzau/bazel-sync/pkg/workspacemodel"
)

type fakeSyncer struct {
	mu     sync.Mutex
	status projectsync.SyncStatus
	calls  int
}

func (s *fakeSyncer) Sync(ctx context.Context) (*projectsync.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &projectsync.Result{PassID: "pass-1", Modules: 2}, nil
}

func (s *fakeSyncer) Current() *projectsync.SyncContext { return nil }

func (s *fakeSyncer) Status() *projectsync.SyncStatus { return &s.status }

type fakeAdder struct {
	err   error
	paths []string
}

func (a *fakeAdder) AddFile(ctx context.Context, path string) (*filesync.Result, error) {
	a.paths = append(a.paths, path)
	if a.err != nil {
		return nil, a.err
	}
	return &filesync.Result{Path: path, Added: []string{"lib.x"}, Targets: []model.Label{"//lib:x"}}, nil
}

func (a *fakeAdder) IsVisible(path string) bool { return strings.HasSuffix(path, ".java") }

func (a *fakeAdder) IsEnabled() bool { return true }

func newTestServer(t *testing.T) (*Server, *fakeSyncer, *fakeAdder, *pubsub.Hub) {
	t.Helper()
	store := workspacemodel.NewStore(nil)
	m := &workspacemodel.ModuleEntity{
		Name:         "lib.x",
		TargetID:     "//lib:x",
		Kind:         model.TargetKindJavaLibrary,
		Source:       workspacemodel.BazelEntitySource,
		ContentRoots: []workspacemodel.ContentRoot{{Path: "lib/X.java", Kind: workspacemodel.ContentSource}},
	}
	require.NoError(t, store.ReplaceAll(context.Background(), projectsync.SyncTransaction,
		[]model.Label{"//lib:x"}, []*workspacemodel.ModuleEntity{m},
		map[string][]model.Label{"lib/X.java": {"//lib:x"}}))

	publisher := pubsub.NewHub()
	syncer, adder := &fakeSyncer{}, &fakeAdder{}
	return NewServer(store, syncer, adder, publisher), syncer, adder, publisher
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestModules(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/modules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var modules []workspacemodel.ModuleEntity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &modules))
	require.Len(t, modules, 1)
	assert.Equal(t, "lib.x", modules[0].Name)

	rec = do(t, s, http.MethodGet, "/api/modules/lib.x", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/modules/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOwnership(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/ownership?file=lib/X.java", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp OwnershipResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []model.Label{"//lib:x"}, resp.Owners)
	assert.Equal(t, []string{"lib.x"}, resp.Modules)
	assert.True(t, resp.CanAdd)

	rec = do(t, s, http.MethodGet, "/api/ownership?file=README.md", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Owners)
	assert.False(t, resp.CanAdd)

	rec = do(t, s, http.MethodGet, "/api/ownership", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddFile(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"added", `{"path": "lib/New.java"}`, nil, http.StatusOK},
		{"bad body", `{`, nil, http.StatusBadRequest},
		{"missing path", `{}`, nil, http.StatusBadRequest},
		{"sync running", `{"path": "lib/New.java"}`, projectsync.ErrSyncInProgress, http.StatusConflict},
		{"not a source", `{"path": "lib"}`, fmt.Errorf("%w: lib", filesync.ErrNotSourceFile), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, adder, _ := newTestServer(t)
			adder.err = tt.err

			rec := do(t, s, http.MethodPost, "/api/files/add", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestSync(t *testing.T) {
	s, syncer, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/sync?wait=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var result projectsync.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "pass-1", result.PassID)

	require.True(t, syncer.status.TryStart())
	rec = do(t, s, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	syncer.status.Finish()

	rec = do(t, s, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool {
		syncer.mu.Lock()
		defer syncer.mu.Unlock()
		return syncer.calls == 2
	}, time.Second, 10*time.Millisecond)
}

func TestStatusAndGraph(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Syncing)
	assert.Equal(t, uint64(1), status.Version)
	require.Len(t, status.Transactions, 1)
	assert.Equal(t, projectsync.SyncTransaction, status.Transactions[0].Name)

	rec = do(t, s, http.MethodGet, "/api/graph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"nodes": {}, "edges": []}`, rec.Body.String())
}

func TestSubscribe(t *testing.T) {
	s, _, _, publisher := newTestServer(t)
	require.NoError(t, publisher.PublishProgress(pubsub.SyncProgress{
		Operation: "Sync project", State: pubsub.StateStep, Message: "Resolve modules", Fraction: 85,
	}))

	rec := do(t, s, http.MethodGet, "/api/subscribe/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/subscribe/"+pubsub.TopicSyncProgress, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// the running sync's latest step is replayed to the new subscriber
	buf := make([]byte, 0, 1024)
	chunk := make([]byte, 256)
	for !strings.Contains(string(buf), `"fraction":85`) {
		n, err := resp.Body.Read(chunk)
		require.NoError(t, err)
		buf = append(buf, chunk[:n]...)
	}
}
