// Package variant asks a text-generation service for rephrased post titles.
package variant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/blacktop/rxpost/internal/logutil"
	"github.com/blacktop/rxpost/internal/xpost"
)

const (
	providerName = "variants"
	titleField   = "title"

	systemPrompt = "You are a helpful assistant."
)

// Completer sends one prompt to a text-generation service and returns the raw reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// CountError reports a response whose title list has the wrong length.
type CountError struct {
	Want int
	Got  int
}

func (e CountError) Error() string {
	return fmt.Sprintf("expected %d titles, got %d", e.Want, e.Got)
}

// Generator produces title variants.
type Generator struct {
	completer Completer
}

// New returns a Generator backed by c.
func New(c Completer) *Generator {
	return &Generator{completer: c}
}

// Generate returns exactly n rephrasings of title. On any failure it returns a
// nil slice and an error classified as ServiceUnavailable or MalformedResponse.
func (g *Generator) Generate(ctx context.Context, title string, n int) ([]string, error) {
	if n < 1 {
		return nil, xpost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("variant count must be at least 1, got %d", n)}
	}

	raw, err := g.completer.Complete(ctx, systemPrompt, Prompt(title, n))
	if err != nil {
		if xpost.KindOf(err) != xpost.Unknown {
			return nil, err
		}
		return nil, xpost.NewError(xpost.ServiceUnavailable, providerName, "complete", err)
	}
	logutil.Debugf("raw variant response: %s", raw)

	titles, err := Parse(raw, n)
	if err != nil {
		return nil, err
	}
	return titles, nil
}

// Prompt builds the rephrasing instruction for n variants of title.
func Prompt(title string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subtly rephrase the following title into %d distinct forms. ", n)
	b.WriteString("Keep the meaning intact and do not change the length significantly. ")
	fmt.Fprintf(&b, "Strictly return a JSON object with exactly one key: '%s', which maps to a list of %d rephrased strings. ", titleField, n)
	b.WriteString("Do not include any extra text or explanation.\n\n")
	b.WriteString("Example response format:\n")
	b.WriteString(`{"title": ["Rephrased Title 1", "Rephrased Title 2", "Rephrased Title 3"]}`)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Title: %s", title)
	return b.String()
}

// Parse decodes a generator reply into exactly n titles. The reply may be
// wrapped in a markdown code fence.
func Parse(raw string, n int) ([]string, error) {
	body := stripCodeFence(raw)

	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, malformed(fmt.Errorf("decode response: %w", err))
	}

	field, ok := payload[titleField]
	if !ok {
		return nil, malformed(fmt.Errorf("response has no %q field", titleField))
	}

	var titles []string
	if err := json.Unmarshal(field, &titles); err != nil || titles == nil {
		return nil, malformed(fmt.Errorf("%q is not a list of strings", titleField))
	}

	if len(titles) != n {
		return nil, malformed(CountError{Want: n, Got: len(titles)})
	}
	return titles, nil
}

func malformed(err error) error {
	return xpost.NewError(xpost.MalformedResponse, providerName, "parse", err)
}

// stripCodeFence removes ```json ... ``` or ``` ... ``` wrapping.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	firstNewline := strings.Index(trimmed, "\n")
	if firstNewline == -1 {
		return trimmed
	}
	lastFence := strings.LastIndex(trimmed, "```")
	if lastFence <= firstNewline {
		return trimmed
	}
	return strings.TrimSpace(trimmed[firstNewline+1 : lastFence])
}

// IsCountMismatch reports whether err came from a wrong-length title list.
func IsCountMismatch(err error) bool {
	var ce CountError
	return errors.As(err, &ce)
}
