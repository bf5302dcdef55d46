// Package review delivers alerts for submissions flagged for manual review.
package review

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ncecere/viberank/internal/config"
	"github.com/ncecere/viberank/internal/models"
)

// Sink receives flagged submissions.
type Sink interface {
	NotifyFlagged(ctx context.Context, sub models.Submission) error
}

// Payload is the JSON document posted to review webhooks.
type Payload struct {
	Event        string    `json:"event"`
	SubmissionID string    `json:"submission_id"`
	Username     string    `json:"username"`
	Source       string    `json:"source"`
	TotalCost    float64   `json:"total_cost"`
	TotalTokens  int64     `json:"total_tokens"`
	DateStart    string    `json:"date_start"`
	DateEnd      string    `json:"date_end"`
	Reasons      []string  `json:"reasons"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

const eventFlagged = "submission.flagged"

func payloadFor(sub models.Submission) Payload {
	reasons := sub.FlagReasons
	if reasons == nil {
		reasons = []string{}
	}
	return Payload{
		Event:        eventFlagged,
		SubmissionID: sub.ID,
		Username:     sub.Username,
		Source:       string(sub.Source.Normalize()),
		TotalCost:    sub.Totals.TotalCost,
		TotalTokens:  sub.Totals.TotalTokens,
		DateStart:    sub.DateRange.Start,
		DateEnd:      sub.DateRange.End,
		Reasons:      reasons,
		SubmittedAt:  sub.SubmittedAt.UTC(),
	}
}

// NewNotifier builds the sink chain from configuration. The log sink is
// always present; webhook and email sinks are added when configured.
func NewNotifier(cfg config.ReviewConfig, logger *slog.Logger) Sink {
	sinks := []Sink{NewLogSink(logger)}
	targets := make([]string, 0, len(cfg.Webhooks))
	for _, target := range cfg.Webhooks {
		if t := strings.TrimSpace(target); t != "" {
			targets = append(targets, t)
		}
	}
	if len(targets) > 0 {
		sinks = append(sinks, NewWebhookSink(targets, cfg.Webhook, logger))
	}
	if smtpSink := NewSMTPSink(cfg.SMTP); smtpSink != nil {
		sinks = append(sinks, smtpSink)
	}
	return NewCompositeSink(sinks...)
}

// CompositeSink fans out notifications to multiple sinks.
type CompositeSink struct {
	sinks []Sink
}

func NewCompositeSink(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		filtered = append(filtered, sink)
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeSink{sinks: filtered}
}

func (c *CompositeSink) NotifyFlagged(ctx context.Context, sub models.Submission) error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, sink := range c.sinks {
		if err := sink.NotifyFlagged(ctx, sub); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes flagged submissions to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) NotifyFlagged(ctx context.Context, sub models.Submission) error {
	s.logger.WarnContext(ctx, "submission flagged for review",
		slog.String("submission_id", sub.ID),
		slog.String("username", sub.Username),
		slog.String("source", string(sub.Source.Normalize())),
		slog.Float64("total_cost", sub.Totals.TotalCost),
		slog.String("reasons", strings.Join(sub.FlagReasons, "; ")),
	)
	return nil
}
