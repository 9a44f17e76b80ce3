package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	logx "orderbot/pkg/logx"
)

const (
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	DefaultModel    = "gpt-4o-mini"
)

// SystemPrompt is sent with every classification request.
const SystemPrompt = `Kamu adalah asisten yang menganalisis pesan order dari customer.
Tugasmu adalah mengidentifikasi jenis pesan:
- "new_order" = pesan berisi pesanan baru
- "update" = pesan berisi permintaan update/perubahan order
- "cancel" = pesan berisi pembatalan order
- "inquiry" = pesan berisi pertanyaan atau informasi umum

Analisis pesan dan berikan response dalam format JSON:
{
  "orderType": "new_order|update|cancel|inquiry",
  "confidence": 0.0-1.0,
  "extractedInfo": "informasi penting dari pesan",
  "suggestedReply": "balasan yang sesuai untuk user"
}`

// jsonObject is greedy: first '{' through last '}'.
var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

type Config struct {
	APIKey      string
	Endpoint    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        logx.Logger
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return strings.TrimSpace(c.cfg.APIKey) != "" }

// Classify never fails: request errors and unparseable answers become fallback results.
func (c *Client) Classify(ctx context.Context, message string, userID int64, username string) Result {
	start := time.Now()
	content, err := c.complete(ctx, message, userID, username)
	if err != nil {
		c.log.Error("classification request failed", logx.Int64("user_id", userID), logx.Err(err))
		return fallbackResult(message, FallbackRequest)
	}

	res, reason := Extract(content)
	if reason != FallbackNone {
		c.log.Warn("classification answer not usable", logx.String("reason", string(reason)), logx.String("content", truncate(content, 300)))
		return fallbackResult(message, reason)
	}
	res = res.normalize(message)
	c.log.Debug("message classified",
		logx.Int64("user_id", userID),
		logx.String("order_type", string(res.OrderType)),
		logx.Float64("confidence", res.Confidence),
		logx.Duration("took", time.Since(start)),
	)
	return res
}

// Extract pulls the JSON object out of a free-form model answer.
func Extract(content string) (Result, Fallback) {
	raw := jsonObject.FindString(content)
	if raw == "" {
		return Result{}, FallbackNoJSON
	}
	var w wireResult
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return Result{}, FallbackParse
	}
	return Result{
		OrderType:      OrderType(w.OrderType),
		Confidence:     float64(w.Confidence),
		ExtractedInfo:  w.ExtractedInfo,
		SuggestedReply: w.SuggestedReply,
	}, FallbackNone
}

func (c *Client) complete(ctx context.Context, message string, userID int64, username string) (string, error) {
	if !c.Configured() {
		return "", errors.New("classifier api key not configured")
	}
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: fmt.Sprintf("User: %s (ID: %d)\nPesan: %s", username, userID, message)},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("classification request: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("classification api returned status %d: %s", resp.StatusCode, truncate(string(b), 300))
	}

	var out chatResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("classification api error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no choices in classification response")
	}
	return out.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
