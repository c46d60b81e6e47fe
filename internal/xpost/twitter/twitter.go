// Package twitter publishes cross-posts to the authenticated X account.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/blacktop/rxpost/internal/logutil"
	"github.com/blacktop/rxpost/internal/xpost"
	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"
)

const (
	envAPIKey       = "RXPOST_TWITTER_CONSUMER_KEY"
	envAPISecret    = "RXPOST_TWITTER_CONSUMER_SECRET"
	envAccessToken  = "RXPOST_TWITTER_ACCESS_TOKEN"
	envAccessSecret = "RXPOST_TWITTER_ACCESS_TOKEN_SECRET"
	envDebug        = "RXPOST_TWITTER_DEBUG"

	providerName = "twitter"

	// MaxTweetRunes is the length limit for a standard account.
	MaxTweetRunes = 280
)

var httpTimeout = 30 * time.Second

// Config holds OAuth 1.0a user-context credentials.
type Config struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
}

// Client is the @twitter destination.
type Client struct {
	api *gotwi.Client
}

// New reads credentials from the environment and returns a ready client.
func New(ctx context.Context) (*Client, error) {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

// NewWithConfig returns a client for explicit credentials.
func NewWithConfig(cfg Config) (*Client, error) {
	api, err := gotwi.NewClient(&gotwi.NewClientInput{
		HTTPClient:           &http.Client{Timeout: httpTimeout},
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           cfg.AccessToken,
		OAuthTokenSecret:     cfg.AccessSecret,
		APIKey:               cfg.APIKey,
		APIKeySecret:         cfg.APISecret,
		Debug:                os.Getenv(envDebug) == "1" || logutil.Verbose(),
	})
	if err != nil {
		return nil, fmt.Errorf("create X client: %w", err)
	}
	if !api.IsReady() {
		return nil, errors.New("X client not ready")
	}
	return &Client{api: api}, nil
}

// Name identifies the destination.
func (c *Client) Name() string { return "@" + providerName }

// TagTemplates returns nothing; tweets carry no flair.
func (c *Client) TagTemplates(context.Context) ([]xpost.Tag, error) { return nil, nil }

// SubmitText tweets the rephrased title followed by as much body as fits.
func (c *Client) SubmitText(ctx context.Context, req xpost.Request) error {
	return c.tweet(ctx, req.Text(), "")
}

// SubmitImage tweets the rephrased title with the source image attached.
func (c *Client) SubmitImage(ctx context.Context, req xpost.Request) error {
	mediaID, err := c.uploadImage(ctx, req.ImagePath, req.ImageAlt)
	if err != nil {
		return err
	}
	return c.tweet(ctx, req.Title, mediaID)
}

func (c *Client) tweet(ctx context.Context, text, mediaID string) error {
	input := &managetweettypes.CreateInput{Text: gotwi.String(xpost.Fit(text, MaxTweetRunes))}
	if mediaID != "" {
		input.Media = &managetweettypes.CreateInputMedia{MediaIDs: []string{mediaID}}
	}

	res, err := managetweet.Create(ctx, c.api, input)
	if err != nil {
		return wrap("create tweet", err)
	}
	if res != nil && res.Data.ID != nil {
		logutil.Debugf("tweet created: id=%s", *res.Data.ID)
	}
	return nil
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		APIKey:       strings.TrimSpace(os.Getenv(envAPIKey)),
		APISecret:    strings.TrimSpace(os.Getenv(envAPISecret)),
		AccessToken:  strings.TrimSpace(os.Getenv(envAccessToken)),
		AccessSecret: strings.TrimSpace(os.Getenv(envAccessSecret)),
	}

	var missing []string
	for _, v := range []struct{ name, value string }{
		{envAPIKey, cfg.APIKey},
		{envAPISecret, cfg.APISecret},
		{envAccessToken, cfg.AccessToken},
		{envAccessSecret, cfg.AccessSecret},
	} {
		if v.value == "" {
			missing = append(missing, v.name)
		}
	}
	if len(missing) > 0 {
		return Config{}, xpost.MissingEnvError{Provider: providerName, Variables: missing}
	}
	return cfg, nil
}

// wrap classifies a gotwi failure and replaces its message with the API's
// own explanation when one is present.
func wrap(op string, err error) error {
	var apiErr *gotwi.GotwiError
	if !errors.As(err, &apiErr) || apiErr == nil {
		return xpost.NewError(xpost.SubmissionRejected, providerName, op, err)
	}
	return xpost.NewError(kindFor(apiErr.StatusCode), providerName, op, errors.New(describe(apiErr)))
}

func kindFor(status int) xpost.Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return xpost.PermissionDenied
	case status == http.StatusTooManyRequests || status >= 500:
		return xpost.ServiceUnavailable
	}
	return xpost.SubmissionRejected
}

func describe(err *gotwi.GotwiError) string {
	var parts []string
	if err.Title != "" {
		parts = append(parts, err.Title)
	}
	if err.Detail != "" {
		parts = append(parts, err.Detail)
	}
	for _, e := range err.APIErrors {
		if e.Message != "" {
			parts = append(parts, e.Message)
		}
	}
	if len(parts) == 0 {
		if msg := err.Error(); msg != "" {
			return msg
		}
		return fmt.Sprintf("X API request failed with status %d", err.StatusCode)
	}
	return strings.Join(parts, "; ")
}
