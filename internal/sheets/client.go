package sheets

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

	logx "orderbot/pkg/logx"
)

type Config struct {
	URL     string
	Timeout time.Duration
}

// Client talks to the spreadsheet web-app endpoint. Call never returns an
// error: failures come back as Response{Success:false}.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg: cfg,
		// Apps Script answers POSTs with a 302 to the rendered result; the
		// default redirect policy follows it with a GET.
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// Configured reports whether an endpoint URL is set.
func (c *Client) Configured() bool { return strings.TrimSpace(c.cfg.URL) != "" }

// Call sends action with payload. getBroadcast is always a GET and ignores payload.
func (c *Client) Call(ctx context.Context, action Action, payload map[string]any) Response {
	start := time.Now()
	var (
		resp Response
		err  error
	)
	if action == ActionGetBroadcast {
		resp, err = c.get(ctx, action)
	} else {
		resp, err = c.post(ctx, action, payload)
	}
	if err != nil {
		c.log.Error("store call failed", logx.String("action", string(action)), logx.Err(err))
		return failure("Gagal menghubungi Google Sheets: " + err.Error())
	}
	c.log.Debug("store call done",
		logx.String("action", string(action)),
		logx.Bool("success", resp.Success),
		logx.Duration("took", time.Since(start)),
	)
	return resp
}

func (c *Client) Add(ctx context.Context, payload map[string]any) Response {
	return c.Call(ctx, ActionAdd, payload)
}

func (c *Client) Update(ctx context.Context, payload map[string]any) Response {
	return c.Call(ctx, ActionUpdate, payload)
}

func (c *Client) Cancel(ctx context.Context, payload map[string]any) Response {
	return c.Call(ctx, ActionCancel, payload)
}

func (c *Client) Search(ctx context.Context, payload map[string]any) Response {
	return c.Call(ctx, ActionSearch, payload)
}

func (c *Client) GetBroadcast(ctx context.Context) Response {
	return c.Call(ctx, ActionGetBroadcast, nil)
}

func (c *Client) post(ctx context.Context, action Action, payload map[string]any) (Response, error) {
	if !c.Configured() {
		return Response{}, fmt.Errorf("store url not configured")
	}
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["action"] = string(action)

	b, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(b))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, action Action) (Response, error) {
	if !c.Configured() {
		return Response{}, fmt.Errorf("store url not configured")
	}
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return Response{}, fmt.Errorf("parse store url: %w", err)
	}
	q := u.Query()
	q.Set("action", string(action))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return Response{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var out Response
	if err := json.Unmarshal(b, &out); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	out.Raw = json.RawMessage(b)
	return out, nil
}
