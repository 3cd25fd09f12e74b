// Package markets consumes the snapshot REST API: paginated instrument
// listings with descriptive metadata and the outcome-token mapping that
// keys streaming subscriptions.
package markets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wirapratamaz/terminal-polyburg/internal/book"
)

// Config holds the snapshot client settings.
type Config struct {
	// BaseURL is the instrument listing API root.
	BaseURL string
	// ClobURL is the CLOB REST root used for single-book fetches.
	ClobURL string
	// APIKey, when set, is sent as X-API-Key on listing requests.
	APIKey  string
	Timeout time.Duration
}

// Client fetches and cleans instrument records.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

// NewClient creates a snapshot client with a shared timeout-bound transport.
func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// Query parameterizes a Markets listing.
type Query struct {
	Limit  int
	Offset int
	Active bool
	Closed bool
}

// Markets fetches one page of instrument records. Malformed records (missing
// identifier or outcome data) are filtered out, not propagated.
func (c *Client) Markets(ctx context.Context, q Query) ([]Instrument, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	params.Set("active", strconv.FormatBool(q.Active))
	params.Set("closed", strconv.FormatBool(q.Closed))

	endpoint := fmt.Sprintf("%s/markets?%s", strings.TrimRight(c.cfg.BaseURL, "/"), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("markets: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("markets: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("markets: fetch: unexpected status %s", resp.Status)
	}

	var raw []rawMarket
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("markets: decode response: %w", err)
	}

	out := make([]Instrument, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		inst, ok := r.instrument()
		if !ok {
			dropped++
			continue
		}
		out = append(out, inst)
	}
	if dropped > 0 {
		c.log.Debug("markets: filtered malformed records", zap.Int("dropped", dropped))
	}
	return out, nil
}

// Search fetches a page and filters it client-side against query, matching
// question, description, and slug case-insensitively.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Instrument, error) {
	if limit <= 0 {
		limit = 50
	}
	all, err := c.Markets(ctx, Query{Limit: limit, Active: true})
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	out := make([]Instrument, 0, len(all))
	for _, inst := range all {
		if strings.Contains(strings.ToLower(inst.Question), needle) ||
			strings.Contains(strings.ToLower(inst.Description), needle) ||
			strings.Contains(strings.ToLower(inst.Slug), needle) {
			out = append(out, inst)
		}
	}
	return out, nil
}

// BookSnapshot is a REST-fetched order book, used to prime a ladder before
// the first streamed snapshot arrives.
type BookSnapshot struct {
	Market    string       `json:"market"`
	AssetID   string       `json:"asset_id"`
	Bids      []book.Level `json:"bids"`
	Asks      []book.Level `json:"asks"`
	Timestamp string       `json:"timestamp"`
	Hash      string       `json:"hash"`
}

// OrderBook fetches the current book for one outcome token over REST.
func (c *Client) OrderBook(ctx context.Context, tokenID string) (*BookSnapshot, error) {
	endpoint := fmt.Sprintf("%s/book?token_id=%s",
		strings.TrimRight(c.cfg.ClobURL, "/"), url.QueryEscape(tokenID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("markets: build book request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("markets: fetch book: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("markets: fetch book: unexpected status %s", resp.Status)
	}

	var snap BookSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("markets: decode book: %w", err)
	}
	return &snap, nil
}
