package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func init() {
	Register(SchemeDrive, func() Adapter { return &DriveDriver{} })
	Register(SchemeS3, func() Adapter { return &S3Driver{} })
}

const driveLink = "https://drive.google.com/file/d/1AbCdEf-gh_9/view?usp=sharing"

func newFetcher(t *testing.T, srv *httptest.Server, retries int) *Fetcher {
	t.Helper()
	f, err := NewFetcher(Config{
		Dir:          filepath.Join(t.TempDir(), "downloads"),
		MaxRetries:   retries,
		DriveBaseURL: srv.URL,
		HTTPClient:   srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return f
}

func TestFetch_RetryBoundExhausted(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newFetcher(t, srv, 3)
	_, err := f.Fetch(context.Background(), driveLink)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("want FetchError, got %v", err)
	}
	if fe.Attempts != 3 || atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("want exactly 3 attempts, got err=%d server=%d", fe.Attempts, hits)
	}
	entries, err := os.ReadDir(f.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed fetch left files behind: %v", entries)
	}
}

func TestFetch_SucceedsOnLastAttempt(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "1AbCdEf-gh_9" {
			t.Errorf("unexpected id %q", r.URL.Query().Get("id"))
		}
		if atomic.AddInt32(&hits, 1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("Amount\n1.5\n"))
	}))
	defer srv.Close()

	f := newFetcher(t, srv, 3)
	ds, err := f.Fetch(context.Background(), driveLink)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if hits != 3 {
		t.Fatalf("want 3 attempts, got %d", hits)
	}
	if filepath.Base(ds.Path) != "data_1AbCdEf-gh_9.csv" || ds.ID != "1AbCdEf-gh_9" {
		t.Fatalf("unexpected dataset %+v", ds)
	}
	raw, err := os.ReadFile(ds.Path)
	if err != nil || string(raw) != "Amount\n1.5\n" {
		t.Fatalf("unexpected content %q, %v", raw, err)
	}
}

func TestFetch_HTMLPageIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>sign in</html>"))
	}))
	defer srv.Close()

	_, err := newFetcher(t, srv, 1).Fetch(context.Background(), driveLink)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Attempts != 1 {
		t.Fatalf("want FetchError after 1 attempt, got %v", err)
	}
}

func TestFetch_InvalidLinkNeverDownloads(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	_, err := newFetcher(t, srv, 3).Fetch(context.Background(), "https://example.com/report.csv")
	var ie *InvalidLinkError
	if !errors.As(err, &ie) {
		t.Fatalf("want InvalidLinkError, got %v", err)
	}
	if hits != 0 {
		t.Fatalf("invalid link reached the server %d times", hits)
	}
}

func TestFetch_CancelledContextStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newFetcher(t, srv, 3).Fetch(ctx, driveLink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestFetch_S3WithoutEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newFetcher(t, srv, 2).Fetch(context.Background(), "s3://datasets/cards/amounts.csv")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Attempts != 2 {
		t.Fatalf("want FetchError after 2 attempts, got %v", err)
	}
}
