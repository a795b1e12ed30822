package memctl

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

	"memwatchd/pkg/types"
)

// Client is a thin HTTP client for the memwatchd daemon API.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a client for the daemon at base, e.g. "http://127.0.0.1:8090".
func NewClient(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// apiError carries the daemon's structured error payload.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var er types.ErrorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error != "" {
			return &apiError{Status: resp.StatusCode, Code: er.Code, Message: er.Error}
		}
		return &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}

// Status fetches the watchdog status snapshot.
func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var out types.StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}

// Memory fetches the latest memory sample.
func (c *Client) Memory(ctx context.Context) (types.SystemMemoryInfo, error) {
	var out types.SystemMemoryInfo
	err := c.do(ctx, http.MethodGet, "/memory", nil, &out)
	return out, err
}

// Models fetches the model registry with its summary.
func (c *Client) Models(ctx context.Context) (types.ModelMemoryStatus, error) {
	var out types.ModelMemoryStatus
	err := c.do(ctx, http.MethodGet, "/models", nil, &out)
	return out, err
}

// RegisterModel announces a model to the watchdog.
func (c *Client) RegisterModel(ctx context.Context, info types.ModelMemoryInfo) error {
	return c.do(ctx, http.MethodPost, "/models", info, nil)
}

// RemoveModel unregisters a model.
func (c *Client) RemoveModel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/models/"+url.PathEscape(id), nil, nil)
}

// TouchModel refreshes a model's last-access time.
func (c *Client) TouchModel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/models/"+url.PathEscape(id)+"/touch", nil, nil)
}

// Alerts lists the active alerts.
func (c *Client) Alerts(ctx context.Context) ([]types.MemoryAlert, error) {
	var out struct {
		Alerts []types.MemoryAlert `json:"alerts"`
	}
	err := c.do(ctx, http.MethodGet, "/alerts", nil, &out)
	return out.Alerts, err
}

// CreateAlert raises a custom alert on the daemon.
func (c *Client) CreateAlert(ctx context.Context, req types.CreateAlertRequest) (types.MemoryAlert, error) {
	var out types.MemoryAlert
	err := c.do(ctx, http.MethodPost, "/alerts", req, &out)
	return out, err
}

// AckAlert acknowledges an alert; false means the id was not active.
func (c *Client) AckAlert(ctx context.Context, id string) (bool, error) {
	var out struct {
		Acknowledged bool `json:"acknowledged"`
	}
	err := c.do(ctx, http.MethodPost, "/alerts/"+url.PathEscape(id)+"/ack", nil, &out)
	return out.Acknowledged, err
}

// DismissAlert removes an alert.
func (c *Client) DismissAlert(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/alerts/"+url.PathEscape(id), nil, nil)
}

// EventsURL converts the base URL into the WebSocket event stream address.
func (c *Client) EventsURL() string {
	ws := c.base
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return ws + "/events"
}
