package variant

import (
	"context"
	"errors"
	"testing"

	"github.com/blacktop/rxpost/internal/xpost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
	systems []string
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	f.systems = append(f.systems, system)
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func TestParse(t *testing.T) {
	plain := `{"title": ["Cats rule", "Cats are awesome", "Felines are great"]}`
	want := []string{"Cats rule", "Cats are awesome", "Felines are great"}

	tests := []struct {
		name string
		raw  string
	}{
		{name: "plain", raw: plain},
		{name: "json fence", raw: "```json\n" + plain + "\n```"},
		{name: "bare fence", raw: "```\n" + plain + "\n```"},
		{name: "surrounding whitespace", raw: "\n  " + plain + "  \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw, 3)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		n    int
	}{
		{name: "invalid json", raw: `{"title": [`, n: 1},
		{name: "not an object", raw: `["a"]`, n: 1},
		{name: "missing field", raw: `{"titles": ["a"]}`, n: 1},
		{name: "field is a string", raw: `{"title": "a"}`, n: 1},
		{name: "field is null", raw: `{"title": null}`, n: 1},
		{name: "list of numbers", raw: `{"title": [1, 2]}`, n: 2},
		{name: "too few", raw: `{"title": ["a"]}`, n: 2},
		{name: "too many", raw: `{"title": ["a", "b", "c"]}`, n: 2},
		{name: "empty list", raw: `{"title": []}`, n: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw, tt.n)
			assert.Nil(t, got)
			require.Error(t, err)
			assert.ErrorIs(t, err, xpost.ErrMalformedResponse)
		})
	}
}

func TestParseCountMismatch(t *testing.T) {
	_, err := Parse(`{"title": ["a"]}`, 3)
	require.Error(t, err)
	assert.True(t, IsCountMismatch(err))

	var ce CountError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CountError{Want: 3, Got: 1}, ce)

	_, err = Parse(`nope`, 3)
	assert.False(t, IsCountMismatch(err))
}

func TestGenerate(t *testing.T) {
	fc := &fakeCompleter{reply: "```json\n{\"title\": [\"Cats rock\", \"Cats are grand\"]}\n```"}
	titles, err := New(fc).Generate(context.Background(), "Cats are great", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cats rock", "Cats are grand"}, titles)

	require.Len(t, fc.prompts, 1)
	assert.Contains(t, fc.prompts[0], "into 2 distinct forms")
	assert.Contains(t, fc.prompts[0], "Title: Cats are great")
	assert.Equal(t, systemPrompt, fc.systems[0])
}

func TestGenerateServiceError(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("connection reset")}
	titles, err := New(fc).Generate(context.Background(), "Cats are great", 2)
	assert.Nil(t, titles)
	assert.ErrorIs(t, err, xpost.ErrServiceUnavailable)
}

func TestGenerateKeepsClassifiedError(t *testing.T) {
	cause := xpost.NewError(xpost.MalformedResponse, "openai", "complete", errors.New("empty completion"))
	fc := &fakeCompleter{err: cause}
	_, err := New(fc).Generate(context.Background(), "Cats are great", 2)
	assert.ErrorIs(t, err, xpost.ErrMalformedResponse)
}

func TestGenerateWrongCount(t *testing.T) {
	fc := &fakeCompleter{reply: `{"title": ["only one"]}`}
	titles, err := New(fc).Generate(context.Background(), "Cats are great", 3)
	assert.Nil(t, titles)
	assert.True(t, IsCountMismatch(err))
}

func TestGenerateRejectsZero(t *testing.T) {
	fc := &fakeCompleter{}
	_, err := New(fc).Generate(context.Background(), "Cats are great", 0)
	var ve xpost.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Empty(t, fc.prompts)
}
