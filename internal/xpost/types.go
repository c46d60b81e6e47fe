package xpost

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// SourcePost is the content being cross-posted. It is immutable once fetched.
type SourcePost struct {
	Title          string
	Body           string
	ImageURL       string
	LocalImagePath string

	cleanup sync.Once
}

// HasImage reports whether the source post points at an image, regardless of
// whether the download succeeded.
func (p *SourcePost) HasImage() bool { return p != nil && p.ImageURL != "" }

// Cleanup removes the downloaded image, if any. It is safe to call more than once.
func (p *SourcePost) Cleanup() error {
	if p == nil || p.LocalImagePath == "" {
		return nil
	}
	var err error
	p.cleanup.Do(func() {
		if rmErr := os.Remove(p.LocalImagePath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = rmErr
		}
	})
	return err
}

// RemotePost is a post as the content platform returns it.
type RemotePost struct {
	ID    string
	Title string
	Body  string
	URL   string
}

// Request defines the submission payload shared across all destinations.
type Request struct {
	Title     string
	Body      string
	ImagePath string
	ImageAlt  string
	Tag       string
}

// Text joins the title and body for networks that have no separate title field.
func (r Request) Text() string {
	body := strings.TrimSpace(r.Body)
	if body == "" {
		return r.Title
	}
	return r.Title + "\n\n" + body
}

// Fit truncates s to at most limit runes, ending with an ellipsis when cut.
// A non-positive limit leaves s unchanged.
func Fit(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:limit-1]), unicode.IsSpace) + "…"
}

// Tag is a categorization template offered by a destination (Reddit link flair).
type Tag struct {
	ID   string
	Text string
}

// Destination abstracts a community or account that can receive a submission.
type Destination interface {
	Name() string
	TagTemplates(ctx context.Context) ([]Tag, error)
	SubmitText(ctx context.Context, req Request) error
	SubmitImage(ctx context.Context, req Request) error
}

// Directory looks up destination handles by name.
type Directory interface {
	Destination(ctx context.Context, name string) (Destination, error)
}

// Result records what happened to a single destination.
type Result struct {
	Destination string
	Title       string
	Tag         string
	Err         error
}

// Outcome is the tally for one run. Counters only ever increase while the run
// is in progress.
type Outcome struct {
	Total     int
	Attempted int
	Succeeded int
	Failed    int
	Results   []Result
}

// Degraded reports whether destinations were attempted but none succeeded.
func (o Outcome) Degraded() bool { return o.Attempted > 0 && o.Succeeded == 0 }
