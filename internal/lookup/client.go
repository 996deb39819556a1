package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/franz/earshelf/internal/util"
)

const (
	// DefaultBaseURL is the catalog-info endpoint; {code} is substituted
	// with the work's external catalog code
	DefaultBaseURL = "https://catalog.example.com/api/product/{code}"

	// UserAgent identifies this application to the catalog service
	UserAgent = "earshelf/1.0 (https://github.com/franz/earshelf)"

	// MinInterval is the minimum delay between requests; the catalog
	// service throttles aggressive clients
	MinInterval = 1 * time.Second
)

// Metadata is the fixed record the catalog service returns for a work
type Metadata struct {
	Title       string   `json:"title"`
	Circle      string   `json:"circle,omitempty"`
	VoiceActors []string `json:"voice_actors"`
	Tags        []string `json:"tags"`
}

// Client fetches work metadata from the external catalog service with
// request pacing
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a catalog lookup client. An empty baseURL selects the
// default endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:     baseURL,
		userAgent:   UserAgent,
		lastRequest: time.Now().Add(-MinInterval), // Allow first request immediately
	}
}

// Fetch retrieves the metadata record for an external catalog code
func (c *Client) Fetch(ctx context.Context, code string) (*Metadata, error) {
	if code == "" {
		return nil, fmt.Errorf("catalog code cannot be empty")
	}

	c.waitForRateLimit(ctx)

	urlStr := strings.ReplaceAll(c.baseURL, "{code}", code)

	util.DebugLog("Catalog lookup: %s", code)

	req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("catalog entry not found for %s: %w", code, util.ErrNotFound)
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, fmt.Errorf("catalog service unavailable (503)")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if meta.Title == "" {
		return nil, fmt.Errorf("catalog record for %s has no title", code)
	}

	util.DebugLog("Catalog lookup: %s -> %q (%d tags, %d voice actors)",
		code, meta.Title, len(meta.Tags), len(meta.VoiceActors))

	return &meta, nil
}

// waitForRateLimit spaces requests at least MinInterval apart. The lock is
// held through the sleep so concurrent callers queue up behind the pacing
// rather than racing past it.
func (c *Client) waitForRateLimit(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wait := MinInterval - time.Since(c.lastRequest)
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}
	c.lastRequest = time.Now()
}
