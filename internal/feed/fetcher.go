package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "newsbot/pkg/logx"
)

// FetchError signals a network failure, timeout, or non-success status while
// retrieving the listing page. Always fatal to the current run.
type FetchError struct {
	URL    string
	Status int // 0 when the request never produced a response
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetcherConfig configures the listing fetcher.
type FetcherConfig struct {
	URL       string
	Timeout   time.Duration // 0 means defaultFetchTimeout
	UserAgent string
}

const (
	defaultFetchTimeout = 30 * time.Second
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// maxBodyBytes caps the listing payload; a listing page larger than this
	// indicates something other than the expected HTML.
	maxBodyBytes = 4 << 20
)

// Fetcher retrieves the current listing page. Pure I/O boundary: no retries,
// no caching, no state mutation.
type Fetcher struct {
	cfg    FetcherConfig
	client *http.Client
	log    logx.Logger
}

func NewFetcher(cfg FetcherConfig, log logx.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// Fetch performs one GET of the configured listing URL.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return nil, &FetchError{URL: f.cfg.URL, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "bg,en;q=0.9")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: f.cfg.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: f.cfg.URL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: f.cfg.URL, Err: err}
	}

	f.log.Debug("listing fetched",
		logx.String("url", f.cfg.URL),
		logx.Int("bytes", len(body)),
		logx.Duration("took", time.Since(start)),
	)
	return body, nil
}
