package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mediapipe/internal/config"
	"mediapipe/internal/daemon"
	"mediapipe/internal/pipeline"
)

// ErrAPIDisabled is returned when api.bind is empty.
var ErrAPIDisabled = errors.New("daemon API disabled (set api.bind)")

// Client reads the daemon's HTTP status API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient targets the API configured in cfg. Wildcard bind hosts are
// dialled on loopback.
func NewClient(cfg *config.Config) (*Client, error) {
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil, ErrAPIDisabled
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return nil, fmt.Errorf("api.bind %q: %w", bind, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return &Client{
		base:  "http://" + net.JoinHostPort(host, port),
		token: cfg.API.Token,
		http:  &http.Client{Timeout: 5 * time.Second},
	}, nil
}

// Status fetches GET /api/status.
func (c *Client) Status(ctx context.Context) (*daemon.StatusPayload, error) {
	var payload daemon.StatusPayload
	if err := c.get(ctx, "/api/status", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// AssetStatus fetches the status projection of one asset.
func (c *Client) AssetStatus(ctx context.Context, id int64) (pipeline.StatusView, error) {
	var view pipeline.StatusView
	err := c.get(ctx, "/api/assets/"+strconv.FormatInt(id, 10)+"/status", nil, &view)
	return view, err
}

// Queue lists jobs, optionally filtered by status.
func (c *Client) Queue(ctx context.Context, statuses ...string) ([]daemon.JobPayload, error) {
	query := url.Values{}
	for _, status := range statuses {
		query.Add("status", status)
	}
	var payload daemon.QueuePayload
	if err := c.get(ctx, "/api/queue", query, &payload); err != nil {
		return nil, err
	}
	return payload.Jobs, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("daemon api %s: %d %s", path, resp.StatusCode, apiErr.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
