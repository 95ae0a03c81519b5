// Package extraction analyzes receipt images with the Gemini API.
package extraction

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

	"golang.org/x/time/rate"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.0-flash-lite"
)

// supportedImageMIMETypes are the image formats Gemini accepts for receipts.
var supportedImageMIMETypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

// IsSupportedImage reports whether mimeType is an accepted receipt image format.
func IsSupportedImage(mimeType string) bool {
	return supportedImageMIMETypes[mimeType]
}

// ImagePart is an inline image attached to a Gemini prompt.
type ImagePart struct {
	MIMEType string
	Data     []byte
}

// GeminiClient is a raw HTTP client for the Gemini generateContent API.
type GeminiClient struct {
	apiKey      string
	model       string
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	RetryConfig RetryConfig
}

// GeminiOption configures a GeminiClient.
type GeminiOption func(*GeminiClient)

// WithModel overrides the default Gemini model.
func WithModel(model string) GeminiOption {
	return func(c *GeminiClient) { c.model = model }
}

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(url string) GeminiOption {
	return func(c *GeminiClient) { c.baseURL = url }
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) GeminiOption {
	return func(c *GeminiClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(apiKey string, opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		apiKey:  apiKey,
		model:   defaultGeminiModel,
		baseURL: defaultGeminiBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter:     rate.NewLimiter(rate.Limit(2), 4),
		RetryConfig: DefaultGeminiRetryConfig,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available returns true if an API key is configured.
func (c *GeminiClient) Available() bool {
	return c.apiKey != ""
}

// GenerateJSON sends a prompt (plus an optional inline image) to Gemini and
// decodes the JSON object in its reply into out. Retries transient failures.
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, image *ImagePart, out interface{}) error {
	if c.apiKey == "" {
		return &AnalysisError{
			Code:    ErrGeminiUnavailable,
			Message: "Gemini API key not configured",
		}
	}
	if image != nil && !IsSupportedImage(image.MIMEType) {
		return &AnalysisError{
			Code:    ErrUnsupportedMedia,
			Message: fmt.Sprintf("unsupported image type %q", image.MIMEType),
		}
	}

	text, err := WithRetry(ctx, c.RetryConfig, func(ctx context.Context) (string, error) {
		return c.generateContent(ctx, prompt, image)
	})
	if err != nil {
		return err
	}

	// Strip markdown code fences if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return &AnalysisError{
			Code:    ErrInvalidResponse,
			Message: fmt.Sprintf("parse model response (text: %s)", text[:min(len(text), 200)]),
			Cause:   err,
		}
	}
	return nil
}

func (c *GeminiClient) generateContent(ctx context.Context, prompt string, image *ImagePart) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	parts := []map[string]interface{}{
		{"text": prompt},
	}
	if image != nil {
		parts = append(parts, map[string]interface{}{
			"inline_data": map[string]string{
				"mime_type": image.MIMEType,
				"data":      base64.StdEncoding.EncodeToString(image.Data),
			},
		})
	}

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": parts},
		},
		"generationConfig": map[string]interface{}{
			"temperature":      0.1,
			"maxOutputTokens":  4096,
			"responseMimeType": "application/json",
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &AnalysisError{
			Code:      ErrGeminiUnavailable,
			Message:   "Gemini API request failed",
			Retryable: true,
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyGeminiHTTPError(resp.StatusCode, string(respBody))
	}

	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return "", &AnalysisError{
			Code:    ErrInvalidResponse,
			Message: "decode Gemini response envelope",
			Cause:   err,
		}
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", &AnalysisError{
			Code:      ErrInvalidResponse,
			Message:   "empty Gemini response",
			Retryable: true,
		}
	}

	return geminiResp.Candidates[0].Content.Parts[0].Text, nil
}

// classifyGeminiHTTPError converts Gemini HTTP errors to AnalysisErrors.
func classifyGeminiHTTPError(statusCode int, body string) *AnalysisError {
	if statusCode == http.StatusTooManyRequests {
		return &AnalysisError{
			Code:      ErrGeminiRateLimited,
			Message:   "Gemini API rate limited",
			Retryable: true,
		}
	}
	return &AnalysisError{
		Code:      ErrGeminiUnavailable,
		Message:   fmt.Sprintf("Gemini API error (HTTP %d): %s", statusCode, body),
		Retryable: statusCode >= 500,
	}
}
