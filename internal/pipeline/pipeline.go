// Package pipeline runs one source-post-to-many-destinations fan-out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/blacktop/rxpost/internal/logutil"
	"github.com/blacktop/rxpost/internal/xpost"
)

// ErrVariantsUnavailable aborts a run before any submission when the title
// variants cannot be paired one-to-one with the destinations.
var ErrVariantsUnavailable = errors.New("title variants not available in expected number")

// Fetcher loads the source post.
type Fetcher interface {
	Fetch(ctx context.Context, postID string) (*xpost.SourcePost, error)
}

// Generator produces n title variants.
type Generator interface {
	Generate(ctx context.Context, title string, n int) ([]string, error)
}

// Pacer blocks between consecutive submissions.
type Pacer interface {
	Wait(ctx context.Context) (time.Duration, error)
}

// Options tweak how a run dispatches submissions.
type Options struct {
	// TextFallback sends a text post when the source has an image that
	// failed to download.
	TextFallback bool
	// DryRun resolves destinations and tags but submits nothing and skips pacing.
	DryRun bool
	// Out receives progress lines. Nil discards them.
	Out io.Writer
}

// Runner wires the collaborators of a run.
type Runner struct {
	fetcher      Fetcher
	generator    Generator
	destinations xpost.Directory
	pacer        Pacer
	opts         Options
}

// New returns a Runner.
func New(f Fetcher, g Generator, d xpost.Directory, p Pacer, opts Options) *Runner {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Runner{fetcher: f, generator: g, destinations: d, pacer: p, opts: opts}
}

// Run fetches postID once, generates one title per destination and submits to
// each destination in order. Per-destination failures are recorded in the
// outcome; only fetch, variant and cancellation failures are returned.
func (r *Runner) Run(ctx context.Context, postID string, destinations []string) (xpost.Outcome, error) {
	n := len(destinations)
	outcome := xpost.Outcome{Total: n}
	if n == 0 {
		return outcome, nil
	}

	fmt.Fprintln(r.opts.Out, "📝 Fetching post data...")
	post, err := r.fetcher.Fetch(ctx, postID)
	if err != nil {
		return outcome, err
	}
	defer func() {
		if err := post.Cleanup(); err != nil {
			logutil.Warnf("remove downloaded image: %v", err)
		}
	}()
	fmt.Fprintf(r.opts.Out, "\tTitle: %s\n", post.Title)

	titles, err := r.generator.Generate(ctx, post.Title, n)
	if err != nil {
		return outcome, fmt.Errorf("%w: %w", ErrVariantsUnavailable, err)
	}
	if len(titles) != n {
		return outcome, fmt.Errorf("%w: expected %d, got %d", ErrVariantsUnavailable, n, len(titles))
	}

	fmt.Fprintln(r.opts.Out, "📝 Starting the posting process...")
	for i, name := range destinations {
		if i > 0 && !r.opts.DryRun {
			if _, err := r.pacer.Wait(ctx); err != nil {
				return outcome, fmt.Errorf("pacing before %s: %w", name, err)
			}
		}

		outcome.Attempted++
		fmt.Fprintf(r.opts.Out, "\n\t%d/%d Posting → %s\n", outcome.Attempted, n, name)

		res := r.submit(ctx, post, name, titles[i])
		outcome.Results = append(outcome.Results, res)
		if res.Err != nil {
			outcome.Failed++
			fmt.Fprintf(r.opts.Out, "\t❌ Failed to post in %s: %v\n", name, res.Err)
			continue
		}
		outcome.Succeeded++
		fmt.Fprintf(r.opts.Out, "\t✅ Posted to → %s\n", name)
	}

	return outcome, nil
}

func (r *Runner) submit(ctx context.Context, post *xpost.SourcePost, name, title string) xpost.Result {
	res := xpost.Result{Destination: name, Title: title}

	dest, err := r.destinations.Destination(ctx, name)
	if err != nil {
		res.Err = err
		return res
	}

	tag, err := resolveTag(ctx, dest)
	if err != nil {
		res.Err = err
		return res
	}
	res.Tag = tag

	req := xpost.Request{Title: title, Tag: tag}
	image := post.HasImage()
	if image && post.LocalImagePath == "" && r.opts.TextFallback {
		logutil.With("dest", name, "image", post.ImageURL).Warn("image unavailable, falling back to a text post")
		image = false
		req.Body = strings.TrimSpace(post.Body + "\n\n" + post.ImageURL)
	} else if !image {
		req.Body = post.Body
	}

	if image && post.LocalImagePath == "" {
		res.Err = xpost.ValidationError{Provider: dest.Name(), Reason: fmt.Sprintf("image %s was not downloaded", post.ImageURL)}
		return res
	}

	if r.opts.DryRun {
		kind := "text"
		if image {
			kind = "image"
		}
		fmt.Fprintf(r.opts.Out, "\t[dry-run] would submit %s post to %s: %q (tag %q)\n", kind, dest.Name(), title, tag)
		return res
	}

	if image {
		req.ImagePath = post.LocalImagePath
		req.ImageAlt = post.Title
		res.Err = dest.SubmitImage(ctx, req)
		return res
	}
	res.Err = dest.SubmitText(ctx, req)
	return res
}

// resolveTag returns the first tag template offered by dest, or "" if there is
// none. Lacking permission to list templates is treated as having none.
func resolveTag(ctx context.Context, dest xpost.Destination) (string, error) {
	tags, err := dest.TagTemplates(ctx)
	if err != nil {
		if errors.Is(err, xpost.ErrPermissionDenied) {
			logutil.With("dest", dest.Name()).Warn("no permission to list flair, proceeding without one")
			return "", nil
		}
		return "", fmt.Errorf("resolve tag: %w", err)
	}
	if len(tags) == 0 {
		return "", nil
	}
	return tags[0].ID, nil
}
