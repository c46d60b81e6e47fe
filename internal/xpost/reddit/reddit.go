package reddit

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
	redditapi "github.com/vartanbeno/go-reddit/v2/reddit"
)

const (
	envClientID     = "RXPOST_REDDIT_CLIENT_ID"
	envClientSecret = "RXPOST_REDDIT_CLIENT_SECRET"
	envUsername     = "RXPOST_REDDIT_USERNAME"
	envPassword     = "RXPOST_REDDIT_PASSWORD"
	envUserAgent    = "RXPOST_REDDIT_USER_AGENT"

	providerName     = "reddit"
	defaultUserAgent = "golang:rxpost:v1 (cross-poster)"
)

var httpTimeout = 30 * time.Second

// Config captures the script-app credentials for password-grant OAuth.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// Client reads source posts and hands out subreddit destinations.
type Client struct {
	api    *redditapi.Client
	upload *http.Client
}

// New constructs a Reddit client from environment configuration.
func New(ctx context.Context, opts ...redditapi.Opt) (*Client, error) {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg, opts...)
}

// NewWithConfig constructs a Reddit client from explicit credentials.
func NewWithConfig(cfg Config, opts ...redditapi.Opt) (*Client, error) {
	httpClient := &http.Client{Timeout: httpTimeout}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	base := []redditapi.Opt{
		redditapi.WithHTTPClient(httpClient),
		redditapi.WithUserAgent(ua),
	}
	api, err := redditapi.NewClient(redditapi.Credentials{
		ID:       cfg.ClientID,
		Secret:   cfg.ClientSecret,
		Username: cfg.Username,
		Password: cfg.Password,
	}, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create reddit client: %w", err)
	}

	// The API client's transport is wrapped with OAuth; media uploads go to a
	// third-party bucket and must not carry the bearer token.
	return &Client{api: api, upload: &http.Client{Timeout: httpTimeout}}, nil
}

// Post returns the title, self text and URL of the post with the given ID.
func (c *Client) Post(ctx context.Context, id string) (xpost.RemotePost, error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), "t3_")
	logutil.Debugf("fetching post: id=%s", id)

	pc, _, err := c.api.Post.Get(ctx, id)
	if err != nil {
		return xpost.RemotePost{}, classify("get post", err, xpost.Unknown)
	}
	if pc == nil || pc.Post == nil {
		return xpost.RemotePost{}, xpost.NewError(xpost.MalformedResponse, providerName, "get post", fmt.Errorf("post %s missing from response", id))
	}

	return xpost.RemotePost{
		ID:    pc.Post.ID,
		Title: pc.Post.Title,
		Body:  pc.Post.Body,
		URL:   pc.Post.URL,
	}, nil
}

// Subreddit checks that the subreddit exists and returns it as a destination.
func (c *Client) Subreddit(ctx context.Context, name string) (*Subreddit, error) {
	name = NormalizeSubreddit(name)
	if name == "" {
		return nil, xpost.ValidationError{Provider: providerName, Reason: "subreddit name is empty"}
	}

	sr, _, err := c.api.Subreddit.Get(ctx, name)
	if err != nil {
		return nil, classify("get subreddit r/"+name, err, xpost.SubmissionRejected)
	}
	if sr != nil && sr.Name != "" {
		name = sr.Name
	}
	return &Subreddit{client: c, name: name}, nil
}

// NormalizeSubreddit strips "r/" and "/r/" prefixes and surrounding slashes.
func NormalizeSubreddit(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimPrefix(name, "r/")
	return strings.Trim(name, "/")
}

// Subreddit is a community destination.
type Subreddit struct {
	client *Client
	name   string
}

// Name returns the prefixed subreddit name.
func (s *Subreddit) Name() string { return "r/" + s.name }

// TagTemplates lists the subreddit's link flair templates.
func (s *Subreddit) TagTemplates(ctx context.Context) ([]xpost.Tag, error) {
	flairs, _, err := s.client.api.Flair.GetPostFlairs(ctx, s.name)
	if err != nil {
		return nil, classify("list flairs", err, xpost.Unknown)
	}
	tags := make([]xpost.Tag, 0, len(flairs))
	for _, f := range flairs {
		if f == nil || f.ID == "" {
			continue
		}
		tags = append(tags, xpost.Tag{ID: f.ID, Text: f.Text})
	}
	return tags, nil
}

// SubmitText creates a self post.
func (s *Subreddit) SubmitText(ctx context.Context, req xpost.Request) error {
	logutil.Debugf("submitting text post: subreddit=%s flair=%q", s.name, req.Tag)
	submitted, _, err := s.client.api.Post.SubmitText(ctx, redditapi.SubmitTextRequest{
		Subreddit: s.name,
		Title:     req.Title,
		Text:      req.Body,
		FlairID:   req.Tag,
	})
	if err != nil {
		return classify("submit text", err, xpost.SubmissionRejected)
	}
	if submitted != nil {
		logutil.Debugf("submitted: id=%s url=%s", submitted.ID, submitted.URL)
	}
	return nil
}

// SubmitImage uploads the local image and creates a native image post.
func (s *Subreddit) SubmitImage(ctx context.Context, req xpost.Request) error {
	if _, err := os.Stat(req.ImagePath); err != nil {
		if errors.Is(err, os.ErrNotExist) || req.ImagePath == "" {
			return xpost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q not found", req.ImagePath)}
		}
		return fmt.Errorf("stat image: %w", err)
	}

	imageURL, err := s.client.uploadMedia(ctx, req.ImagePath)
	if err != nil {
		return err
	}
	logutil.Debugf("media uploaded: url=%s", imageURL)

	return s.client.submitImage(ctx, s.name, req.Title, imageURL, req.Tag)
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		ClientID:     strings.TrimSpace(os.Getenv(envClientID)),
		ClientSecret: strings.TrimSpace(os.Getenv(envClientSecret)),
		Username:     strings.TrimSpace(os.Getenv(envUsername)),
		Password:     strings.TrimSpace(os.Getenv(envPassword)),
		UserAgent:    strings.TrimSpace(os.Getenv(envUserAgent)),
	}

	var missing []string
	if cfg.ClientID == "" {
		missing = append(missing, envClientID)
	}
	if cfg.ClientSecret == "" {
		missing = append(missing, envClientSecret)
	}
	if cfg.Username == "" {
		missing = append(missing, envUsername)
	}
	if cfg.Password == "" {
		missing = append(missing, envPassword)
	}

	if len(missing) > 0 {
		return Config{}, xpost.MissingEnvError{Provider: providerName, Variables: missing}
	}

	return cfg, nil
}

// classify maps Reddit API failures onto error kinds. fallback is used for
// responses that are neither permission nor availability problems.
func classify(op string, err error, fallback xpost.Kind) error {
	kind := fallback
	if status := statusCode(err); status != 0 {
		switch {
		case status == http.StatusForbidden:
			kind = xpost.PermissionDenied
		case status == http.StatusTooManyRequests || status >= 500:
			kind = xpost.ServiceUnavailable
		}
	} else if errors.Is(err, context.DeadlineExceeded) {
		kind = xpost.ServiceUnavailable
	}
	return xpost.NewError(kind, providerName, op, err)
}

func statusCode(err error) int {
	var respErr *redditapi.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode
	}
	var upErr *uploadError
	if errors.As(err, &upErr) {
		return upErr.status
	}
	return 0
}
