package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"calmdsl/internal/api"
	"calmdsl/internal/config"
)

const testAPIPath = "/api/nutanix/v3/"

// fakeCalm is an in-memory server for the collections the apply workflow
// touches.
type fakeCalm struct {
	t *testing.T

	mu       sync.Mutex
	version  string
	docs     map[string]map[string]map[string]any
	next     int
	requests int
	deleted  []string
	// failImport makes the next import_json call fail.
	failImport bool
}

func newFakeCalm(t *testing.T) (*fakeCalm, *httptest.Server) {
	t.Helper()
	f := &fakeCalm{t: t, version: "3.7.0", docs: make(map[string]map[string]map[string]any)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+testAPIPath+"services/nucalm/version", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++
		f.write(w, http.StatusOK, map[string]any{"version": f.version})
	})
	mux.HandleFunc("POST "+testAPIPath+"{collection}/list", f.list)
	mux.HandleFunc("POST "+testAPIPath+"{collection}/import_json", f.create)
	mux.HandleFunc("POST "+testAPIPath+"{collection}", f.create)
	mux.HandleFunc("GET "+testAPIPath+"{collection}/{uuid}", f.read)
	mux.HandleFunc("PUT "+testAPIPath+"{collection}/{uuid}", f.update)
	mux.HandleFunc("DELETE "+testAPIPath+"{collection}/{uuid}", f.remove)
	mux.HandleFunc("POST "+testAPIPath+"blueprints/{uuid}/simple_launch", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++
		f.write(w, http.StatusOK, map[string]any{"status": map[string]any{"request_id": "req-1"}})
	})
	mux.HandleFunc("GET "+testAPIPath+"blueprints/{uuid}/pending_launches/{request}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++
		f.write(w, http.StatusOK, map[string]any{
			"status": map[string]any{"state": "success", "application_uuid": "app-1", "request_id": r.PathValue("request")},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeCalm) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(f.t, json.NewEncoder(w).Encode(v))
}

func (f *fakeCalm) list(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	var params api.ListParams
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&params))
	name := strings.TrimPrefix(params.Filter, "name==")

	entities := []map[string]any{}
	for _, doc := range f.docs[r.PathValue("collection")] {
		md := doc["metadata"].(map[string]any)
		if name == "" || md["name"] == name {
			entities = append(entities, doc)
		}
	}
	f.write(w, http.StatusOK, map[string]any{
		"metadata": map[string]any{"total_matches": len(entities)},
		"entities": entities,
	})
}

func (f *fakeCalm) create(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	if f.failImport {
		f.failImport = false
		http.Error(w, `{"message_list": [{"message": "import rejected", "reason": "INVALID"}]}`, http.StatusUnprocessableEntity)
		return
	}

	var body map[string]any
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
	collection := r.PathValue("collection")
	spec, _ := body["spec"].(map[string]any)
	md, _ := body["metadata"].(map[string]any)
	name, _ := spec["name"].(string)

	f.next++
	id := fmt.Sprintf("%s-%d", strings.TrimSuffix(collection, "s"), f.next)
	doc := map[string]any{
		"api_version": "3.0",
		"metadata":    map[string]any{"kind": md["kind"], "name": name, "uuid": id, "spec_version": 0},
		"spec":        spec,
		"status":      map[string]any{"state": "ACTIVE", "name": name},
	}
	if f.docs[collection] == nil {
		f.docs[collection] = make(map[string]map[string]any)
	}
	f.docs[collection][id] = doc
	f.write(w, http.StatusOK, doc)
}

func (f *fakeCalm) read(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	doc, ok := f.docs[r.PathValue("collection")][r.PathValue("uuid")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	f.write(w, http.StatusOK, doc)
}

func (f *fakeCalm) update(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	doc, ok := f.docs[r.PathValue("collection")][r.PathValue("uuid")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	var body map[string]any
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
	doc["spec"] = body["spec"]
	md := doc["metadata"].(map[string]any)
	md["spec_version"] = md["spec_version"].(int) + 1
	f.write(w, http.StatusOK, doc)
}

func (f *fakeCalm) remove(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	collection, id := r.PathValue("collection"), r.PathValue("uuid")
	if _, ok := f.docs[collection][id]; !ok {
		http.NotFound(w, r)
		return
	}
	delete(f.docs[collection], id)
	f.deleted = append(f.deleted, id)
	f.write(w, http.StatusAccepted, map[string]any{})
}

// add stores an existing entity and returns its UUID.
func (f *fakeCalm) add(collection, kind, name string, resources map[string]any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := fmt.Sprintf("%s-%d", kind, f.next)
	if f.docs[collection] == nil {
		f.docs[collection] = make(map[string]map[string]any)
	}
	f.docs[collection][id] = map[string]any{
		"api_version": "3.0",
		"metadata":    map[string]any{"kind": kind, "name": name, "uuid": id, "spec_version": 3},
		"spec":        map[string]any{"name": name, "resources": resources},
		"status":      map[string]any{"state": "ACTIVE", "name": name},
	}
	return id
}

// byName returns the stored entity of collection named name.
func (f *fakeCalm) byName(collection, name string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.docs[collection] {
		if doc["metadata"].(map[string]any)["name"] == name {
			return doc
		}
	}
	return nil
}

func (f *fakeCalm) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

// testFactory returns a factory talking to srv and archiving under dir.
func testFactory(srv *httptest.Server, archiveDir string) *ProviderFactory {
	return &ProviderFactory{
		API: api.Config{
			BaseURL:      srv.URL + testAPIPath,
			Username:     "admin",
			Password:     "secret",
			RetryMax:     1,
			RetryWaitMin: time.Millisecond,
			RetryWaitMax: 2 * time.Millisecond,
		},
		SCM:          config.SCM{ArchiveDir: archiveDir, Visibility: "private"},
		PollInterval: time.Millisecond,
		PollTimeout:  5 * time.Second,
	}
}
