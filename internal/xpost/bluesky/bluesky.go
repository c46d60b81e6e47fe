// Package bluesky publishes cross-posts to the authenticated Bluesky account.
package bluesky

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/blacktop/rxpost/internal/logutil"
	"github.com/blacktop/rxpost/internal/xpost"
	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
)

const (
	envHandle      = "RXPOST_BLUESKY_HANDLE"
	envAppPassword = "RXPOST_BLUESKY_APP_PASSWORD"
	envPDSURL      = "RXPOST_BLUESKY_PDS_URL"

	providerName   = "bluesky"
	postCollection = "app.bsky.feed.post"
	requestTimeout = 30 * time.Second

	// DefaultPDSURL is the PDS used when neither the caller nor the
	// environment names one.
	DefaultPDSURL = "https://bsky.social"

	// MaxPostRunes approximates the 300 grapheme limit of a post.
	MaxPostRunes = 300
)

var linkPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// Config carries caller defaults applied before the environment is read.
type Config struct {
	PDSURL string
}

type credentials struct {
	Handle      string
	AppPassword string
	PDSURL      string
}

// Client is the @bluesky destination.
type Client struct {
	xrpc *xrpc.Client
	did  string
}

// New opens a session with the app password from the environment.
func New(ctx context.Context, base Config) (*Client, error) {
	creds, err := loadConfig(base)
	if err != nil {
		return nil, err
	}

	ua := "rxpost/1"
	xc := &xrpc.Client{
		Client:    &http.Client{Timeout: requestTimeout},
		Host:      creds.PDSURL,
		UserAgent: &ua,
	}
	session, err := atproto.ServerCreateSession(ctx, xc, &atproto.ServerCreateSession_Input{
		Identifier: creds.Handle,
		Password:   creds.AppPassword,
	})
	if err != nil {
		return nil, xpost.NewError(kindOf(err), providerName, "create session", err)
	}
	xc.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}
	logutil.Debugf("bluesky session opened: handle=%s", session.Handle)

	return &Client{xrpc: xc, did: session.Did}, nil
}

// Name identifies the destination.
func (c *Client) Name() string { return "@" + providerName }

// TagTemplates returns nothing; Bluesky posts carry no flair.
func (c *Client) TagTemplates(context.Context) ([]xpost.Tag, error) { return nil, nil }

// SubmitText posts the title and body, with any URLs turned into links.
func (c *Client) SubmitText(ctx context.Context, req xpost.Request) error {
	return c.create(ctx, newPost(req.Text(), nil))
}

// SubmitImage posts the title with the image embedded.
func (c *Client) SubmitImage(ctx context.Context, req xpost.Request) error {
	blob, err := c.uploadBlob(ctx, req.ImagePath)
	if err != nil {
		return err
	}
	embed := &bsky.FeedPost_Embed{
		EmbedImages: &bsky.EmbedImages{
			Images: []*bsky.EmbedImages_Image{{Alt: req.ImageAlt, Image: blob}},
		},
	}
	return c.create(ctx, newPost(req.Title, embed))
}

func newPost(text string, embed *bsky.FeedPost_Embed) *bsky.FeedPost {
	text = xpost.Fit(text, MaxPostRunes)
	return &bsky.FeedPost{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Text:      text,
		Facets:    linkFacets(text),
		Embed:     embed,
	}
}

// linkFacets marks every URL in text as a link. Facet offsets are byte
// positions in the UTF-8 text.
func linkFacets(text string) []*bsky.RichtextFacet {
	var facets []*bsky.RichtextFacet
	for _, loc := range linkPattern.FindAllStringIndex(text, -1) {
		uri := strings.TrimRight(text[loc[0]:loc[1]], ".,;:!?)…")
		facets = append(facets, &bsky.RichtextFacet{
			Index: &bsky.RichtextFacet_ByteSlice{
				ByteStart: int64(loc[0]),
				ByteEnd:   int64(loc[0] + len(uri)),
			},
			Features: []*bsky.RichtextFacet_Features_Elem{
				{RichtextFacet_Link: &bsky.RichtextFacet_Link{Uri: uri}},
			},
		})
	}
	return facets
}

func (c *Client) create(ctx context.Context, post *bsky.FeedPost) error {
	out, err := atproto.RepoCreateRecord(ctx, c.xrpc, &atproto.RepoCreateRecord_Input{
		Collection: postCollection,
		Repo:       c.did,
		Record:     &util.LexiconTypeDecoder{Val: post},
	})
	if err != nil {
		return xpost.NewError(kindOf(err), providerName, "create record", err)
	}
	logutil.Debugf("bluesky post created: uri=%s", out.Uri)
	return nil
}

func (c *Client) uploadBlob(ctx context.Context, path string) (*util.LexBlob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, xpost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q not found", path)}
		}
		return nil, fmt.Errorf("read image: %w", err)
	}

	out, err := atproto.RepoUploadBlob(ctx, c.xrpc, bytes.NewReader(data))
	if err != nil {
		return nil, xpost.NewError(kindOf(err), providerName, "upload blob", err)
	}
	if out == nil || out.Blob == nil {
		return nil, xpost.NewError(xpost.MalformedResponse, providerName, "upload blob", errors.New("no blob in response"))
	}
	return out.Blob, nil
}

func kindOf(err error) xpost.Kind {
	var xe *xrpc.Error
	if !errors.As(err, &xe) {
		return xpost.SubmissionRejected
	}
	switch {
	case xe.StatusCode == http.StatusUnauthorized || xe.StatusCode == http.StatusForbidden:
		return xpost.PermissionDenied
	case xe.StatusCode == http.StatusTooManyRequests || xe.StatusCode >= 500:
		return xpost.ServiceUnavailable
	}
	return xpost.SubmissionRejected
}

// loadConfig prefers the environment PDS over the caller default.
func loadConfig(base Config) (credentials, error) {
	creds := credentials{
		Handle:      strings.TrimSpace(os.Getenv(envHandle)),
		AppPassword: strings.TrimSpace(os.Getenv(envAppPassword)),
		PDSURL:      strings.TrimSpace(os.Getenv(envPDSURL)),
	}
	if creds.PDSURL == "" {
		creds.PDSURL = strings.TrimSpace(base.PDSURL)
	}
	if creds.PDSURL == "" {
		creds.PDSURL = DefaultPDSURL
	}

	var missing []string
	if creds.Handle == "" {
		missing = append(missing, envHandle)
	}
	if creds.AppPassword == "" {
		missing = append(missing, envAppPassword)
	}
	if len(missing) > 0 {
		return credentials{}, xpost.MissingEnvError{Provider: providerName, Variables: missing}
	}
	return creds, nil
}
