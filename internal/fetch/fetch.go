// Package fetch reads the source post and downloads its image.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/blacktop/rxpost/internal/logutil"
	"github.com/blacktop/rxpost/internal/xpost"
)

var httpTimeout = 30 * time.Second

const userAgent = "rxpost/1"

// imageExtensions are matched case-sensitively against the end of the post URL.
var imageExtensions = []string{".jpg", ".jpeg", ".png"}

// Source reads posts from the content platform.
type Source interface {
	Post(ctx context.Context, id string) (xpost.RemotePost, error)
}

// Fetcher builds SourcePosts, downloading images into Dir.
type Fetcher struct {
	source Source
	http   *http.Client
	dir    string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the client used for image downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.http = c }
}

// New returns a Fetcher that stores images in dir. An empty dir uses os.TempDir.
func New(source Source, dir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		source: source,
		http:   &http.Client{Timeout: httpTimeout},
		dir:    dir,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch reads the post and downloads its image, if it has one. A failed
// download is logged and leaves LocalImagePath empty; it is not an error.
func (f *Fetcher) Fetch(ctx context.Context, postID string) (*xpost.SourcePost, error) {
	if strings.TrimSpace(postID) == "" {
		return nil, xpost.ValidationError{Provider: "fetch", Reason: "post id is required"}
	}

	remote, err := f.source.Post(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("fetch post %s: %w", postID, err)
	}

	post := &xpost.SourcePost{
		Title: remote.Title,
		Body:  remote.Body,
	}

	if ext, ok := imageExtension(remote.URL); ok {
		post.ImageURL = remote.URL
		local, err := f.download(ctx, remote.URL, ext)
		if err != nil {
			logutil.Warnf("error downloading image %s: %v", remote.URL, err)
		} else {
			post.LocalImagePath = local
			logutil.Debugf("image downloaded: path=%s", local)
		}
	}

	logutil.Infof("fetched post %s: %q", postID, post.Title)
	return post, nil
}

func imageExtension(url string) (string, bool) {
	for _, ext := range imageExtensions {
		if strings.HasSuffix(url, ext) {
			return ext, true
		}
	}
	return "", false
}

func (f *Fetcher) download(ctx context.Context, url, ext string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("download image: unexpected status %s", resp.Status)
	}

	file, err := os.CreateTemp(f.dir, "rxpost-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}

	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("write image: %w", err)
	}
	return file.Name(), nil
}
