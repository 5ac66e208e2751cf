package exclusion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/LuckySoftware/Aletheia/internal/model"
)

const sheetCSV = "channel,start,end,value\n" +
	"col_1,2024-05-01 00:00:00,2024-05-02 00:00:00,maintenance\n"

func TestFetch_DownloadsAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(sheetCSV))
	}))
	defer srv.Close()

	f := NewFetcher(model.ExclusionsConfig{
		URL:               srv.URL,
		Timeout:           5 * time.Second,
		CacheTTL:          time.Minute,
		RequestsPerSecond: 100,
		Burst:             2,
	})

	rows, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Channel != "col_1" || rows[0].Value != "maintenance" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	// Second fetch inside the TTL must be served from cache.
	if _, err := f.Fetch(context.Background()); err != nil {
		t.Fatalf("cached Fetch failed: %v", err)
	}
	if hits != 1 {
		t.Errorf("expected 1 upstream hit, got %d", hits)
	}
}

func TestFetch_EmptyURLDisablesExclusions(t *testing.T) {
	f := NewFetcher(model.ExclusionsConfig{Timeout: time.Second})
	rows, err := f.Fetch(context.Background())
	if err != nil || rows != nil {
		t.Fatalf("unconfigured source must yield no rows and no error, got %v, %v", rows, err)
	}
}

func TestFetch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := NewFetcher(model.ExclusionsConfig{
		URL: srv.URL, Timeout: 5 * time.Second,
		CacheTTL: time.Minute, RequestsPerSecond: 100, Burst: 2,
	})
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}
