package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// ErrUploadDisabled is returned when no image host is configured
var ErrUploadDisabled = errors.New("image upload is not configured")

// ImageUploader stores an image and returns its public URL.
type ImageUploader interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}

// ImageClient uploads images to an imgbb-compatible host: a multipart POST
// with an "image" field answered by {"data":{"url":...}}.
type ImageClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

// NewImageClient creates a new image host client
func NewImageClient(endpoint, apiKey string, timeout time.Duration, log *zap.Logger) *ImageClient {
	return &ImageClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type uploadResponse struct {
	Data struct {
		URL string `json:"url"`
	} `json:"data"`
	Success bool `json:"success"`
}

// Upload sends data to the image host and returns the hosted URL.
func (c *ImageClient) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	if c.endpoint == "" {
		return "", ErrUploadDisabled
	}
	if filename == "" {
		filename = "upload"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	target, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid image host url: %w", err)
	}
	if c.apiKey != "" {
		q := target.Query()
		q.Set("key", c.apiKey)
		target.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("Image upload failed", zap.String("filename", filename), zap.Error(err))
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("Image host rejected upload",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return "", fmt.Errorf("image host returned status %d", resp.StatusCode)
	}

	var out uploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode image host response: %w", err)
	}
	if out.Data.URL == "" {
		return "", errors.New("image host response has no url")
	}

	c.log.Info("Image uploaded", zap.String("url", out.Data.URL), zap.Int("bytes", len(data)))
	return out.Data.URL, nil
}
