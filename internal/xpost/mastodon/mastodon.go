// Package mastodon publishes cross-posts as statuses on a Mastodon account.
package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/blacktop/rxpost/internal/logutil"
	"github.com/blacktop/rxpost/internal/xpost"
	mastodonapi "github.com/mattn/go-mastodon"
)

const (
	envServer       = "RXPOST_MASTODON_SERVER"
	envAccessToken  = "RXPOST_MASTODON_ACCESS_TOKEN"
	envClientID     = "RXPOST_MASTODON_CLIENT_ID"
	envClientSecret = "RXPOST_MASTODON_CLIENT_SECRET"
	envVisibility   = "RXPOST_MASTODON_VISIBILITY"

	providerName   = "mastodon"
	requestTimeout = 30 * time.Second

	// MaxStatusRunes is the default status limit of a Mastodon server.
	MaxStatusRunes = 500
)

var visibilities = []string{"public", "unlisted", "private", "direct"}

// Config contains the settings needed to reach a Mastodon server.
type Config struct {
	Server       string
	AccessToken  string
	ClientID     string
	ClientSecret string
	// Visibility of created statuses. Empty uses the account default.
	Visibility string
}

// Client is the @mastodon destination.
type Client struct {
	api        *mastodonapi.Client
	visibility string
}

// New reads the server and token from the environment.
func New(ctx context.Context) (*Client, error) {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg), nil
}

// NewWithConfig returns a client for explicit settings.
func NewWithConfig(cfg Config) *Client {
	api := mastodonapi.NewClient(&mastodonapi.Config{
		Server:       cfg.Server,
		AccessToken:  cfg.AccessToken,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	})
	api.Timeout = requestTimeout
	return &Client{api: api, visibility: cfg.Visibility}
}

// Name identifies the destination.
func (c *Client) Name() string { return "@" + providerName }

// TagTemplates returns nothing; statuses carry no flair.
func (c *Client) TagTemplates(context.Context) ([]xpost.Tag, error) { return nil, nil }

// SubmitText publishes the title and body as one status.
func (c *Client) SubmitText(ctx context.Context, req xpost.Request) error {
	return c.publish(ctx, req.Text(), nil)
}

// SubmitImage publishes the title with the image attached.
func (c *Client) SubmitImage(ctx context.Context, req xpost.Request) error {
	id, err := c.attach(ctx, req.ImagePath, req.ImageAlt)
	if err != nil {
		return err
	}
	return c.publish(ctx, req.Title, []mastodonapi.ID{id})
}

func (c *Client) publish(ctx context.Context, text string, media []mastodonapi.ID) error {
	status, err := c.api.PostStatus(ctx, &mastodonapi.Toot{
		Status:     xpost.Fit(text, MaxStatusRunes),
		MediaIDs:   media,
		Visibility: c.visibility,
	})
	if err != nil {
		return xpost.NewError(kindOf(err), providerName, "post status", err)
	}
	logutil.Debugf("mastodon status created: id=%s url=%s", status.ID, status.URL)
	return nil
}

func (c *Client) attach(ctx context.Context, path, alt string) (mastodonapi.ID, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", xpost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q not found", path)}
		}
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	att, err := c.api.UploadMediaFromMedia(ctx, &mastodonapi.Media{File: f, Description: alt})
	if err != nil {
		return "", xpost.NewError(kindOf(err), providerName, "upload media", err)
	}
	return att.ID, nil
}

// kindOf reads the status out of go-mastodon errors, which carry it only in
// their text ("bad request: 403 Forbidden: ...").
func kindOf(err error) xpost.Kind {
	msg := err.Error()
	has := func(codes ...int) bool {
		return slices.ContainsFunc(codes, func(code int) bool {
			return strings.Contains(msg, fmt.Sprintf("%d %s", code, http.StatusText(code)))
		})
	}
	switch {
	case has(http.StatusUnauthorized, http.StatusForbidden):
		return xpost.PermissionDenied
	case has(http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout):
		return xpost.ServiceUnavailable
	}
	return xpost.SubmissionRejected
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		Server:       strings.TrimSpace(os.Getenv(envServer)),
		AccessToken:  strings.TrimSpace(os.Getenv(envAccessToken)),
		ClientID:     strings.TrimSpace(os.Getenv(envClientID)),
		ClientSecret: strings.TrimSpace(os.Getenv(envClientSecret)),
		Visibility:   strings.ToLower(strings.TrimSpace(os.Getenv(envVisibility))),
	}

	var missing []string
	if cfg.Server == "" {
		missing = append(missing, envServer)
	}
	if cfg.AccessToken == "" {
		missing = append(missing, envAccessToken)
	}
	if len(missing) > 0 {
		return Config{}, xpost.MissingEnvError{Provider: providerName, Variables: missing}
	}
	if cfg.Visibility != "" && !slices.Contains(visibilities, cfg.Visibility) {
		return Config{}, xpost.ValidationError{
			Provider: providerName,
			Reason:   fmt.Sprintf("%s must be one of %s, got %q", envVisibility, strings.Join(visibilities, ", "), cfg.Visibility),
		}
	}
	return cfg, nil
}
