// Package imagegen wraps a single multimodal generateContent call: one
// prompt plus up to three reference images in, one inline image out.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/gemkit/server/internal/shared/config"
	apperrors "github.com/gemkit/server/internal/shared/errors"
	"github.com/gemkit/server/internal/shared/logger"
)

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com"
	defaultModel     = "gemini-2.5-flash-image"
	apiVersion       = "v1beta"
	defaultMaxImages = 3
	mib              = 1 << 20
)

// allowedImageTypes are the reference content types forwarded to the model.
// Anything else is skipped.
var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// Client calls the generation model. One request, one response; no retries
// and no streaming. A circuit breaker sheds calls while the upstream API is
// failing; callers treat a rejected call like any other failed call.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	maxImages    int
	maxFetchSize int64
	httpClient   *http.Client
	breaker      *gobreaker.CircuitBreaker[string]
	log          *logger.Logger
}

// New creates a generation client. The API key is required.
func New(cfg *config.GeminiConfig, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.Config("generation API key is not configured")
	}
	if log == nil {
		log = logger.New(nil)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxImages := cfg.MaxImages
	if maxImages <= 0 {
		maxImages = defaultMaxImages
	}
	maxFetchSize := int64(cfg.MaxFetchMB) * mib
	if maxFetchSize <= 0 {
		maxFetchSize = 7 * mib
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "imagegen",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		model:        model,
		maxImages:    maxImages,
		maxFetchSize: maxFetchSize,
		httpClient:   &http.Client{Timeout: timeout},
		breaker:      breaker,
		log:          log,
	}, nil
}

// Generate sends the prompt and up to maxImages reference images to the
// model and returns the first generated image as a data URI.
func (c *Client) Generate(ctx context.Context, prompt string, imageURLs []string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", apperrors.Config("prompt is empty")
	}

	return c.breaker.Execute(func() (string, error) {
		return c.generate(ctx, prompt, imageURLs)
	})
}

func (c *Client) generate(ctx context.Context, prompt string, imageURLs []string) (string, error) {
	if len(imageURLs) > c.maxImages {
		imageURLs = imageURLs[:c.maxImages]
	}

	// Image parts first, prompt text always last.
	var parts []part
	for _, url := range imageURLs {
		data, contentType, ok := c.fetchReference(ctx, url)
		if !ok {
			continue
		}
		parts = append(parts, part{
			InlineData: &blob{
				MIMEType: contentType,
				Data:     base64.StdEncoding.EncodeToString(data),
			},
		})
	}
	parts = append(parts, part{Text: prompt})

	req := generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	}

	resp, err := c.generateContent(ctx, req)
	if err != nil {
		return "", err
	}

	return extractImage(resp)
}

// fetchReference downloads one reference image. Unusable references are
// skipped, not fatal: the call proceeds with whatever references survive.
func (c *Client) fetchReference(ctx context.Context, url string) ([]byte, string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.log.Debug("skip reference image", "url", url, "reason", err.Error())
		return nil, "", false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("skip reference image", "url", url, "reason", err.Error())
		return nil, "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug("skip reference image", "url", url, "status", resp.StatusCode)
		return nil, "", false
	}

	contentType, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	contentType = strings.TrimSpace(contentType)
	if !allowedImageTypes[contentType] {
		c.log.Debug("skip reference image", "url", url, "content_type", contentType)
		return nil, "", false
	}

	if resp.ContentLength > c.maxFetchSize {
		c.log.Debug("skip reference image", "url", url, "size", resp.ContentLength)
		return nil, "", false
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxFetchSize+1))
	if err != nil || int64(len(data)) > c.maxFetchSize {
		c.log.Debug("skip reference image", "url", url, "reason", "body too large or unreadable")
		return nil, "", false
	}

	return data, contentType, true
}

func (c *Client) generateContent(ctx context.Context, payload generateContentRequest) (*generateContentResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s", c.baseURL, apiVersion, c.model, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation API status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("generation API error: %s (code %d)", parsed.Error.Message, parsed.Error.Code)
	}

	c.log.Debug("generation call complete",
		"model", c.model,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return &parsed, nil
}

// extractImage returns the first inline image part as a data URI. When the
// response carries no image, the finish reason decides which error to raise.
func extractImage(resp *generateContentResponse) (string, error) {
	finishReason := ""
	for _, cand := range resp.Candidates {
		if cand.FinishReason != "" {
			finishReason = cand.FinishReason
		}
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				mime := p.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return fmt.Sprintf("data:%s;base64,%s", mime, p.InlineData.Data), nil
			}
		}
	}

	if finishReason != "" && finishReason != "STOP" {
		return "", apperrors.GenerationStopped(finishReason)
	}
	return "", apperrors.NoImageReturned()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
