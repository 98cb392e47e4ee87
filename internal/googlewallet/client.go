package googlewallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"github.com/stampably/walletpass/internal/walleterr"
)

// DefaultAPIBase is the production wallet objects endpoint; tests point
// the client at an httptest server instead.
const DefaultAPIBase = "https://walletobjects.googleapis.com/walletobjects/v1"

// Client performs idempotent upserts against the remote wallet API.
// No retries here; callers wanting resilience wrap calls in their own
// bounded-retry policy.
type Client struct {
	base   string
	token  string
	hc     *http.Client
	logger *slog.Logger
}

func NewClient(base, token string, hc *http.Client, logger *slog.Logger) *Client {
	if base == "" {
		base = DefaultAPIBase
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		hc:     hc,
		logger: logger,
	}
}

// UpsertClass reads the class by id, then updates it if present or
// inserts it if absent. Safe to call on every stamp change.
func (c *Client) UpsertClass(ctx context.Context, class *LoyaltyClass) error {
	return c.upsert(ctx, "loyaltyClass", class.ID, class)
}

// UpsertObject applies the same read-then-write state machine to the
// per-customer object.
func (c *Client) UpsertObject(ctx context.Context, obj *LoyaltyObject) error {
	return c.upsert(ctx, "loyaltyObject", obj.ID, obj)
}

func (c *Client) upsert(ctx context.Context, resource, id string, body any) error {
	readURL := fmt.Sprintf("%s/%s/%s", c.base, resource, url.PathEscape(id))

	status, _, err := c.do(ctx, http.MethodGet, readURL, nil)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK:
		// PRESENT: replace with the freshly built record.
		return c.write(ctx, http.MethodPut, readURL, resource, body)
	case http.StatusNotFound:
		// ABSENT: insert.
		return c.write(ctx, http.MethodPost, fmt.Sprintf("%s/%s", c.base, resource), resource, body)
	default:
		return &walleterr.NetworkError{
			Operation:  "read " + resource,
			StatusCode: status,
		}
	}
}

func (c *Client) write(ctx context.Context, method, target, resource string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", resource, err)
	}
	status, respBody, err := c.do(ctx, method, target, payload)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return &walleterr.NetworkError{
			Operation:  method + " " + resource,
			StatusCode: status,
			Body:       string(respBody),
		}
	}
	if c.logger != nil {
		c.logger.Info("wallet resource upserted",
			slog.String("resource", resource),
			slog.String("method", method),
		)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (int, []byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, &walleterr.NetworkError{Operation: method + " " + target, StatusCode: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, b, nil
}
