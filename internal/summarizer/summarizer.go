// Package summarizer reduces a caption to a microblog-sized summary using a
// pre-trained sequence-to-sequence model behind the Model interface.
//
// Whatever the backend returns, Summarize guarantees at most MaxSummaryChars
// runes and, after a cut, ends the text at the last sentence terminator.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	MaxSummaryChars = 280
	MaxInputTokens  = 1024
	MinOutputTokens = 100
	MaxOutputTokens = 300
	NumBeams        = 4
)

// GenerationConfig is the fixed decoding configuration passed to models.
type GenerationConfig struct {
	MaxInputTokens int
	MinLength      int
	MaxLength      int
	NumBeams       int
	EarlyStopping  bool
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxInputTokens: MaxInputTokens,
		MinLength:      MinOutputTokens,
		MaxLength:      MaxOutputTokens,
		NumBeams:       NumBeams,
		EarlyStopping:  true,
	}
}

// Model generates the highest-scoring summary for text.
type Model interface {
	Generate(ctx context.Context, text string, cfg GenerationConfig) (string, error)
}

// Observer receives the latency and outcome of every generation.
type Observer interface {
	ObserveSummary(d time.Duration, err error)
}

type Summarizer struct {
	model    Model
	cfg      GenerationConfig
	logger   *slog.Logger
	observer Observer
}

func New(model Model, logger *slog.Logger, observer Observer) *Summarizer {
	return &Summarizer{
		model:    model,
		cfg:      DefaultGenerationConfig(),
		logger:   logger.With("component", "summarizer"),
		observer: observer,
	}
}

// Summarize returns a cleaned summary of caption. On failure the error is
// logged and returned with an empty summary.
func (s *Summarizer) Summarize(ctx context.Context, caption string) (string, error) {
	input := TruncateTokens(caption, s.cfg.MaxInputTokens)

	start := time.Now()
	out, err := s.model.Generate(ctx, input, s.cfg)
	if s.observer != nil {
		s.observer.ObserveSummary(time.Since(start), err)
	}
	if err != nil {
		s.logger.Error("error summarizing caption", "error", err)
		return "", fmt.Errorf("generate summary: %w", err)
	}

	summary := Clean(out)
	s.logger.Info("caption summarized",
		"input_chars", len([]rune(caption)),
		"summary_chars", len([]rune(summary)),
	)
	return summary, nil
}

// Clean strips decoder artefacts and enforces the length bound.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "<n>", "")
	text = strings.ReplaceAll(text, "<pad>", "")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) > MaxSummaryChars {
		text = TrimToSentence(string(runes[:MaxSummaryChars]))
	}
	return text
}

// TrimToSentence cuts text after its rightmost '.', '!' or '?'. Text without
// any terminator is returned unchanged.
func TrimToSentence(text string) string {
	if i := strings.LastIndexAny(text, ".!?"); i >= 0 {
		return text[:i+1]
	}
	return text
}

// TruncateTokens keeps the first max whitespace-separated tokens of text.
func TruncateTokens(text string, max int) string {
	if max <= 0 {
		return text
	}
	fields := strings.Fields(text)
	if len(fields) <= max {
		return text
	}
	return strings.Join(fields[:max], " ")
}
