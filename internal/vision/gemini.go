// Package vision wraps the image-understanding service used by the monitor.
//
// Callers depend on the Service interface; Gemini is the production
// implementation backed by google.golang.org/genai.
package vision

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/baby-monitor/internal/metrics"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Service answers prompts about images and produces structured summaries.
type Service interface {
	// Analyze sends prompt together with one image and returns the reply text.
	Analyze(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
	// Summarize sends a text-only prompt and returns JSON conforming to schema.
	Summarize(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
}

// generateFunc matches genai's Models.GenerateContent.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Gemini implements Service with the Gemini API.
type Gemini struct {
	generate          generateFunc
	model             string
	systemInstruction string
}

// Option configures a Gemini service.
type Option func(*Gemini)

// WithModel overrides the model ID.
func WithModel(model string) Option {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// WithSystemInstruction sets the system instruction sent with image analysis calls.
func WithSystemInstruction(text string) Option {
	return func(g *Gemini) { g.systemInstruction = text }
}

// NewGemini creates a Gemini API client for apiKey.
func NewGemini(ctx context.Context, apiKey string, opts ...Option) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGemini(client.Models.GenerateContent, opts...), nil
}

func newGemini(generate generateFunc, opts ...Option) *Gemini {
	g := &Gemini{generate: generate, model: ModelFromEnv()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ModelFromEnv returns GEMINI_MODEL, or DefaultModel when unset.
func ModelFromEnv() string {
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultModel
}

// Model returns the model ID in use.
func (g *Gemini) Model() string { return g.model }

// Analyze implements Service.
func (g *Gemini) Analyze(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
		{Text: prompt},
	}
	var config *genai.GenerateContentConfig
	if g.systemInstruction != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: g.systemInstruction}},
			},
		}
	}
	return g.call(ctx, "analyze", parts, config)
}

// Summarize implements Service. The response is constrained to JSON.
func (g *Gemini) Summarize(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	return g.call(ctx, "summarize", []*genai.Part{{Text: prompt}}, config)
}

func (g *Gemini) call(ctx context.Context, operation string, parts []*genai.Part, config *genai.GenerateContentConfig) (string, error) {
	log.Debug().
		Str("model", g.model).
		Str("operation", operation).
		Int("parts", len(parts)).
		Msg("Starting Gemini API call")

	start := time.Now()
	contents := []*genai.Content{{Role: "user", Parts: parts}}
	resp, err := g.generate(ctx, g.model, contents, config)
	elapsed := time.Since(start)

	var text string
	if err == nil {
		if resp != nil {
			text = resp.Text()
		}
		if text == "" {
			err = ErrEmptyResponse
		}
	} else {
		err = Classify(err)
	}

	result := "success"
	if err != nil {
		result = kindOf(err)
	}
	metrics.Monitor().
		Dimension("Operation", operation).
		Dimension("Result", result).
		Duration("VisionLatencyMs", elapsed).
		Count("VisionCalls").
		Flush()

	if err != nil {
		log.Warn().Err(err).
			Str("operation", operation).
			Str("result", result).
			Dur("duration", elapsed).
			Msg("Gemini API call failed")
		return "", fmt.Errorf("gemini %s: %w", operation, err)
	}

	log.Debug().
		Str("operation", operation).
		Int("responseLength", len(text)).
		Dur("duration", elapsed).
		Msg("Gemini API response received")
	return text, nil
}
