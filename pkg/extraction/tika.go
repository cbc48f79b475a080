package extraction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
)

// TikaExtractor sends files to an Apache Tika server.
type TikaExtractor struct {
	baseURL    string
	httpClient *http.Client
	logger     hclog.Logger
	maxRetries uint64
}

// TikaConfig holds configuration for the Tika extractor.
type TikaConfig struct {
	BaseURL    string        // Base URL (default: http://localhost:9998)
	Timeout    time.Duration // HTTP timeout (default: 120s)
	MaxRetries uint64        // Retries for 5xx and transport errors (default: 2)
	Logger     hclog.Logger  // Logger (optional)
}

// NewTikaExtractor creates a new Tika extractor.
func NewTikaExtractor(cfg TikaConfig) *TikaExtractor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:9998"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &TikaExtractor{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger.Named("tika"),
		maxRetries: cfg.MaxRetries,
	}
}

// Supports implements Extractor.
func (t *TikaExtractor) Supports(fileType string) bool {
	return IsTextBearing(fileType)
}

// Extract implements Extractor.
func (t *TikaExtractor) Extract(ctx context.Context, r io.Reader, fileType string) (*Result, error) {
	if !t.Supports(fileType) {
		return nil, fmt.Errorf("%s: %w", fileType, ErrUnsupported)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	startTime := time.Now()
	var res *Result
	op := func() error {
		var err error
		res, err = t.put(ctx, data)
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), t.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}

	t.logger.Debug("extracted text",
		"file_type", fileType,
		"bytes", len(data),
		"text_length", len(res.Text),
		"pages", res.PageCount,
		"duration", time.Since(startTime),
	)
	return res, nil
}

func (t *TikaExtractor) put(ctx context.Context, data []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, backoff.Permanent(fmt.Errorf("tika rejected content (%d): %w", resp.StatusCode, ErrUnsupported))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("tika error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("tika error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	pages, _ := strconv.Atoi(resp.Header.Get("X-TIKA-PDF-NumberOfPages"))
	return &Result{Text: string(body), PageCount: pages}, nil
}
