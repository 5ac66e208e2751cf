package exclusion

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/LuckySoftware/Aletheia/internal/cache"
	"github.com/LuckySoftware/Aletheia/internal/logger"
	"github.com/LuckySoftware/Aletheia/internal/model"
	"github.com/LuckySoftware/Aletheia/internal/worker"
)

// maxBodyBytes bounds the exclusion sheet download.
const maxBodyBytes = 16 << 20

// Fetcher downloads the published exclusion worksheet as CSV. Responses are
// cached so repeated runs inside the TTL do not hit the sheet service, and
// requests are rate-limited per host.
type Fetcher struct {
	client  *http.Client
	cache   cache.Cache
	limiter *worker.Limiter
	cfg     model.ExclusionsConfig
}

// NewFetcher creates a Fetcher from the exclusion source configuration.
func NewFetcher(cfg model.ExclusionsConfig) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		cache:   cache.NewLayeredCache(cfg.CacheTTL, cfg.CacheDir, cfg.CacheTTL),
		limiter: worker.NewLimiter(cfg.RequestsPerSecond, cfg.Burst),
		cfg:     cfg,
	}
}

// Fetch returns the normalized exclusion rows from the configured URL.
func (f *Fetcher) Fetch(ctx context.Context) ([]Row, error) {
	if f.cfg.URL == "" {
		return nil, nil
	}

	key := cache.Key(f.cfg.URL)
	if body, ok := f.cache.Get(key); ok {
		return ParseCSV(bytes.NewReader(body))
	}

	if err := f.limiter.Wait(ctx, f.cfg.URL); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Aletheia/1.0")
	req.Header.Set("Accept", "text/csv,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch exclusion sheet: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("exclusion sheet: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read exclusion sheet: %w", err)
	}

	if err := f.cache.Set(key, body, f.cfg.CacheTTL); err != nil {
		// Cache failure is not a run failure, but it should be visible.
		logger.Warn("exclusion cache write failed", "error", err)
	}

	return ParseCSV(bytes.NewReader(body))
}

// ParseCSV reads exclusion rows from a CSV document whose header names the
// channel, start, end and value columns in any order.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read exclusion header: %w", err)
	}

	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"channel", "start", "end"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("exclusion header missing %q column", required)
		}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read exclusion row: %w", err)
		}

		row := Row{
			Channel: field(rec, col["channel"]),
			Start:   field(rec, col["start"]),
			End:     field(rec, col["end"]),
		}
		if i, ok := col["value"]; ok {
			row.Value = field(rec, i)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
