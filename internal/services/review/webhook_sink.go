package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ncecere/viberank/internal/config"
	"github.com/ncecere/viberank/internal/models"
)

// WebhookSink posts flagged submissions to HTTP endpoints.
type WebhookSink struct {
	client     *http.Client
	targets    []string
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

func NewWebhookSink(targets []string, cfg config.WebhookConfig, logger *slog.Logger) *WebhookSink {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &WebhookSink{
		client:     &http.Client{Timeout: cfg.Timeout},
		targets:    targets,
		maxRetries: cfg.MaxRetries,
		backoff:    250 * time.Millisecond,
		logger:     logger,
	}
}

func (s *WebhookSink) NotifyFlagged(ctx context.Context, sub models.Submission) error {
	if s == nil || len(s.targets) == 0 {
		return nil
	}
	body, err := json.Marshal(payloadFor(sub))
	if err != nil {
		return err
	}

	var errs []error
	for _, target := range s.targets {
		if err := s.postWithRetries(ctx, target, body); err != nil {
			s.logger.WarnContext(ctx, "review webhook failed",
				slog.String("target", target),
				slog.String("submission_id", sub.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
		}
	}
	return errors.Join(errs...)
}

func (s *WebhookSink) postWithRetries(ctx context.Context, url string, body []byte) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		lastErr = s.post(ctx, url, body)
		if lastErr == nil {
			return nil
		}
		if attempt == s.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
	return lastErr
}

func (s *WebhookSink) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "viberank-review")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
