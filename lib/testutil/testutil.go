package testutil

import (
	"bytes"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"gorsi/lib/rsi/session"
	"gorsi/lib/telemetry"

	_ "modernc.org/sqlite"
)

// Site is a fake of the website, it serves fixed responses per path and records
// every request it receives.
type Site struct {
	Server *httptest.Server

	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []*http.Request
	bodies   []string
}

func NewSite(t testing.TB) *Site {
	site := &Site{routes: map[string]http.HandlerFunc{}}
	site.Server = httptest.NewServer(http.HandlerFunc(site.serve))
	t.Cleanup(site.Server.Close)
	return site
}

func (s *Site) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, r)
	s.bodies = append(s.bodies, string(body))
	handler, ok := s.routes[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	handler(w, r)
}

// Handle registers a handler for an exact path.
func (s *Site) Handle(path string, handler http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = handler
}

// Serve registers a fixed response for an exact path.
func (s *Site) Serve(path, contentType, body string) {
	s.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", contentType)
		w.Write([]byte(body))
	})
}

// Requests returns how many requests were received for a path.
func (s *Site) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.requests {
		if r.URL.Path == path {
			count++
		}
	}
	return count
}

// Bodies returns the request bodies received for a path in order.
func (s *Site) Bodies(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for i, r := range s.requests {
		if r.URL.Path == path {
			out = append(out, s.bodies[i])
		}
	}
	return out
}

// URL returns the absolute url of a path on the fake site.
func (s *Site) URL(path string) string {
	return s.Server.URL + path
}

// Session returns an unpersisted session pointed at the fake site with a
// telemetry recorder attached.
func (s *Site) Session(t testing.TB) (*session.Session, *telemetry.Recorder) {
	recorder := telemetry.NewRecorder()
	sess, err := session.New(session.Config{
		BaseUrl:   s.Server.URL,
		Telemetry: recorder,
	})
	if err != nil {
		t.Fatal(err)
	}
	return sess, recorder
}

// OpenSqlite opens an in-memory sqlite database closed at the end of the test.
func OpenSqlite(t testing.TB) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
