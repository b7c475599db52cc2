package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"bidline/api/internal/archive"
	"bidline/api/internal/cache"
	"bidline/api/internal/history"
	"bidline/api/internal/proposal"
	"bidline/api/internal/search"
	"bidline/api/internal/store"
	"bidline/api/internal/syncer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRemote stands in for the Postgres store: remote summaries, search and
// ping in one place.
type fakeRemote struct {
	mu        sync.Mutex
	records   map[string]proposal.Summary
	writes    int
	updateErr error
	pingErr   error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{records: make(map[string]proposal.Summary)}
}

func (f *fakeRemote) FetchProposal(_ context.Context, id string) (proposal.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return proposal.Summary{}, store.ErrNotFound
	}
	return record, nil
}

func (f *fakeRemote) UpdateProposal(_ context.Context, id string, summary proposal.Summary) (proposal.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return proposal.Summary{}, f.updateErr
	}
	summary.ID = id
	f.records[id] = summary
	f.writes++
	return summary, nil
}

func (f *fakeRemote) SearchProposals(_ context.Context, query string, limit int) ([]proposal.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]proposal.Summary, 0)
	for _, record := range f.records {
		if strings.Contains(strings.ToLower(record.Title), strings.ToLower(query)) {
			out = append(out, record)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRemote) ListProposals(_ context.Context, limit int) ([]proposal.Summary, error) {
	return f.SearchProposals(context.Background(), "", limit)
}

func (f *fakeRemote) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeRemote) record(id string) (proposal.Summary, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	return record, ok
}

func (f *fakeRemote) setUpdateErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateErr = err
}

type memoryBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *memoryBucket) Put(_ context.Context, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[name] = append([]byte(nil), data...)
	return nil
}

func (b *memoryBucket) Get(_ context.Context, name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[name]
	if !ok {
		return nil, archive.ErrNotArchived
	}
	return data, nil
}

func (b *memoryBucket) Ping(context.Context) error { return nil }

type testEnv struct {
	remote  *fakeRemote
	service *Service
	server  *HTTPServer
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	remote := newFakeRemote()
	memory := cache.NewMemoryCache()
	engine := syncer.NewEngine(remote, cache.NewSnapshots(memory, zerolog.Nop()), syncer.Options{
		Debounce: time.Hour,
		Logger:   zerolog.Nop(),
	})
	searchService := search.NewService(nil, search.NewStoreSearcher(remote), zerolog.Nop())
	historyService := history.New(t.TempDir())
	bucket := &memoryBucket{objects: make(map[string][]byte)}
	archiveService := archive.New(bucket, zerolog.Nop())
	engine.OnSynced(searchService.IndexSynced)
	engine.OnSynced(historyService.RecordSynced)
	engine.OnSynced(archiveService.ArchiveSynced)

	service := New(Dependencies{
		Engine:      engine,
		Store:       remote,
		Cache:       memory,
		Search:      searchService,
		History:     historyService,
		Archive:     archiveService,
		ObjectStore: bucket,
	})
	server := NewHTTPServer(service, "*", zerolog.Nop())
	return &testEnv{remote: remote, service: service, server: server, handler: server.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

// create posts a new proposal and returns its id.
func (e *testEnv) create(t *testing.T) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/proposals", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	return decodeView(t, rr).Proposal.ID
}

func decodeView(t *testing.T, rr *httptest.ResponseRecorder) ProposalView {
	t.Helper()
	var view ProposalView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("parse view: %v body=%s", err, rr.Body.String())
	}
	return view
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	payload := decodeMap(t, rr)
	if payload["code"] != code {
		t.Fatalf("expected code %s, got %v", code, payload["code"])
	}
	return payload
}
