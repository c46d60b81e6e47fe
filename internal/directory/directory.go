// Package directory turns destination names into lazily constructed handles.
package directory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/blacktop/rxpost/internal/xpost"
	"github.com/blacktop/rxpost/internal/xpost/reddit"
)

// Network identifies where a destination lives.
type Network string

const (
	Reddit   Network = "reddit"
	Mastodon Network = "mastodon"
	Bluesky  Network = "bluesky"
	Twitter  Network = "twitter"
)

var subredditName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]{1,20}$`)

// Target is a parsed destination name.
type Target struct {
	Network Network
	Channel string
}

// Parse interprets a destination name. Subreddits may be written bare or with
// an r/ prefix; account timelines are written @mastodon, @bluesky or @twitter.
func Parse(name string) (Target, error) {
	raw := strings.TrimSpace(name)
	if strings.HasPrefix(raw, "@") {
		network := Network(strings.ToLower(strings.TrimPrefix(raw, "@")))
		switch network {
		case Mastodon, Bluesky, Twitter:
			return Target{Network: network}, nil
		}
		return Target{}, fmt.Errorf("unsupported destination %q", name)
	}

	sub := reddit.NormalizeSubreddit(raw)
	if !subredditName.MatchString(sub) {
		return Target{}, fmt.Errorf("invalid subreddit name %q", name)
	}
	return Target{Network: Reddit, Channel: sub}, nil
}

// Factory builds the destination for a network. Reddit factories receive the
// subreddit name as channel.
type Factory func(ctx context.Context, channel string) (xpost.Destination, error)

// Directory resolves destination names, constructing each handle at most once.
type Directory struct {
	factories map[Network]Factory

	mu    sync.Mutex
	cache map[Target]xpost.Destination
}

// New returns a Directory using the given factories.
func New(factories map[Network]Factory) *Directory {
	return &Directory{
		factories: factories,
		cache:     map[Target]xpost.Destination{},
	}
}

// Destination returns the handle for name, constructing it on first use.
func (d *Directory) Destination(ctx context.Context, name string) (xpost.Destination, error) {
	target, err := Parse(name)
	if err != nil {
		return nil, xpost.ValidationError{Provider: "directory", Reason: err.Error()}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if dest, ok := d.cache[target]; ok {
		return dest, nil
	}
	factory, ok := d.factories[target.Network]
	if !ok {
		return nil, fmt.Errorf("%s destinations are not configured", target.Network)
	}
	dest, err := factory(ctx, target.Channel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	d.cache[target] = dest
	return dest, nil
}

// Validate parses every name and reports all invalid ones together.
func Validate(names []string) error {
	var errs []error
	for _, name := range names {
		if _, err := Parse(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
