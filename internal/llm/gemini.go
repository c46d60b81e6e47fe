package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/blacktop/rxpost/internal/logutil"
	"github.com/blacktop/rxpost/internal/xpost"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini completes prompts with Google's Gemini API in JSON mode.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini completer. Empty model and baseURL use defaults.
func NewGemini(ctx context.Context, apiKey, model, baseURL string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Complete sends prompt with a system instruction and returns the response text.
func (g *Gemini) Complete(ctx context.Context, system, prompt string) (string, error) {
	logutil.Debugf("gemini completion: model=%s prompt_len=%d", g.model, len(prompt))
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", xpost.NewError(classifyGemini(err), ProviderGemini, "generate content", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", xpost.NewError(xpost.MalformedResponse, ProviderGemini, "generate content", errors.New("empty response"))
	}
	return text, nil
}

func classifyGemini(err error) xpost.Kind {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code = apiErrPtr.Code
	}
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return xpost.PermissionDenied
	}
	return xpost.ServiceUnavailable
}
