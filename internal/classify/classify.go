// Package classify suggests a category for a new report.
package classify

import (
	"context"
	"log/slog"

	"github.com/civicconnect/civic/internal/llm"
	"github.com/civicconnect/civic/internal/models"
)

// Source names where a suggestion came from.
type Source string

const (
	SourceKeywords Source = "keywords"
	SourceLLM      Source = "llm"
)

// Result is a category suggestion.
type Result struct {
	Category models.IssueCategory `json:"category"`
	Source   Source               `json:"source"`
	Reason   string               `json:"reason,omitempty"`
}

// Model suggests a category. *llm.Client satisfies it.
type Model interface {
	SuggestCategory(ctx context.Context, title, description string) (*llm.Suggestion, error)
}

// Classifier uses the model when one is configured and the keyword
// heuristic otherwise, or when the model fails.
type Classifier struct {
	model  Model
	logger *slog.Logger
}

// New returns a classifier. model may be nil.
func New(model Model, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{model: model, logger: logger}
}

// Suggest returns a category for the report.
func (c *Classifier) Suggest(ctx context.Context, title, description string) Result {
	if c.model != nil {
		s, err := c.model.SuggestCategory(ctx, title, description)
		if err == nil {
			return Result{Category: s.Category, Source: SourceLLM, Reason: s.Reason}
		}
		c.logger.Warn("llm category suggestion failed, using keywords", "error", err)
	}
	return Result{Category: Keywords(title, description), Source: SourceKeywords}
}
