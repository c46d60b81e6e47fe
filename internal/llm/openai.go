package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blacktop/rxpost/internal/logutil"
	"github.com/blacktop/rxpost/internal/xpost"
	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4oMini

var requestTimeout = 60 * time.Second

// OpenAI completes prompts with the chat completions API in JSON mode.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI returns an OpenAI completer. Empty model and baseURL use defaults.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: requestTimeout}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

// Complete sends a system and user message and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, system, prompt string) (string, error) {
	logutil.Debugf("openai completion: model=%s prompt_len=%d", o.model, len(prompt))
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", xpost.NewError(classifyOpenAI(err), ProviderOpenAI, "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", xpost.NewError(xpost.MalformedResponse, ProviderOpenAI, "chat completion", errors.New("no choices returned"))
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", xpost.NewError(xpost.MalformedResponse, ProviderOpenAI, "chat completion", fmt.Errorf("empty completion (finish_reason=%s)", resp.Choices[0].FinishReason))
	}
	return content, nil
}

func classifyOpenAI(err error) xpost.Kind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden) {
		return xpost.PermissionDenied
	}
	return xpost.ServiceUnavailable
}
