// Package gemini provides a model wrapper for Google Gemini through the
// official google.golang.org/genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hupe1980/crucible/model"
)

// DefaultModel is used when Options.Model is empty.
const DefaultModel = "gemini-2.0-flash"

// Options configures the Gemini adapter.
type Options struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Model wraps genai's GenerateContent behind the model.Model interface.
type Model struct {
	client *genai.Client
	opts   Options
}

var _ model.Model = (*Model)(nil)

// NewModel creates a Gemini model. An API key is required.
func NewModel(optFns ...func(o *Options)) (*Model, error) {
	opts := Options{Model: DefaultModel, Temperature: 0.2, MaxTokens: 8192}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: opts.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// Generate sends prompt as a single user turn and joins the text parts of
// the first candidate.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(m.opts.Temperature)),
		MaxOutputTokens: int32(m.opts.MaxTokens),
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini api error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: no candidates returned")
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}

	return sb.String(), nil
}
