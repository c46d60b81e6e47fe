package reddit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/blacktop/rxpost/internal/logutil"
	"github.com/blacktop/rxpost/internal/xpost"
)

const (
	leaseEndpoint  = "api/media/asset.json"
	submitEndpoint = "api/submit"
)

type mediaLease struct {
	Args struct {
		Action string `json:"action"`
		Fields []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"fields"`
	} `json:"args"`
	Asset struct {
		AssetID      string `json:"asset_id"`
		WebsocketURL string `json:"websocket_url"`
	} `json:"asset"`
}

type submitResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			URL          string `json:"url"`
			WebsocketURL string `json:"websocket_url"`
		} `json:"data"`
	} `json:"json"`
}

// uploadError carries the status of a failed upload to the media bucket.
type uploadError struct {
	status int
	body   string
}

func (e *uploadError) Error() string {
	return fmt.Sprintf("media upload returned %d: %s", e.status, e.body)
}

// uploadMedia leases an upload slot, pushes the file to it and returns the
// URL Reddit expects in an image submission.
func (c *Client) uploadMedia(ctx context.Context, path string) (string, error) {
	name := filepath.Base(path)
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if mimeType == "" {
		return "", xpost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("unsupported image type for %q", path)}
	}

	form := url.Values{}
	form.Set("filepath", name)
	form.Set("mimetype", mimeType)

	req, err := c.api.NewRequest(http.MethodPost, leaseEndpoint, form)
	if err != nil {
		return "", fmt.Errorf("build media lease: %w", err)
	}
	var lease mediaLease
	if _, err := c.api.Do(ctx, req, &lease); err != nil {
		return "", classify("media lease", err, xpost.SubmissionRejected)
	}

	action := uploadAction(lease.Args.Action)
	if action == "" {
		return "", xpost.NewError(xpost.MalformedResponse, providerName, "media lease", errors.New("lease has no upload action"))
	}
	logutil.Debugf("media lease: asset_id=%s action=%s", lease.Asset.AssetID, action)

	fields := make(map[string]string, len(lease.Args.Fields))
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range lease.Args.Fields {
		fields[f.Name] = f.Value
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return "", fmt.Errorf("build upload form: %w", err)
		}
	}
	if err := writeFile(mw, path, name); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	key := fields["key"]
	if key == "" {
		return "", xpost.NewError(xpost.MalformedResponse, providerName, "media lease", errors.New("lease has no key field"))
	}

	upReq, err := http.NewRequestWithContext(ctx, http.MethodPost, action, &buf)
	if err != nil {
		return "", fmt.Errorf("build media upload: %w", err)
	}
	upReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.upload.Do(upReq)
	if err != nil {
		return "", xpost.NewError(xpost.ServiceUnavailable, providerName, "media upload", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", classify("media upload", &uploadError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}, xpost.SubmissionRejected)
	}

	return strings.TrimRight(action, "/") + "/" + key, nil
}

func writeFile(mw *multipart.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return xpost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q not found", path)}
		}
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	return nil
}

// uploadAction turns the protocol-relative action from a lease into a URL.
func uploadAction(action string) string {
	action = strings.TrimSpace(action)
	if strings.HasPrefix(action, "//") {
		return "https:" + action
	}
	return action
}

func (c *Client) submitImage(ctx context.Context, subreddit, title, imageURL, flairID string) error {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("kind", "image")
	form.Set("sr", subreddit)
	form.Set("title", title)
	form.Set("url", imageURL)
	form.Set("resubmit", "true")
	form.Set("sendreplies", "true")
	if flairID != "" {
		form.Set("flair_id", flairID)
	}

	logutil.Debugf("submitting image post: subreddit=%s flair=%q", subreddit, flairID)
	req, err := c.api.NewRequest(http.MethodPost, submitEndpoint, form)
	if err != nil {
		return fmt.Errorf("build image submission: %w", err)
	}
	var out submitResponse
	if _, err := c.api.Do(ctx, req, &out); err != nil {
		return classify("submit image", err, xpost.SubmissionRejected)
	}
	if err := submitErrors(out.JSON.Errors); err != nil {
		return xpost.NewError(xpost.SubmissionRejected, providerName, "submit image", err)
	}
	return nil
}

// submitErrors flattens Reddit's [[code, message, field], ...] error list.
func submitErrors(list [][]any) error {
	if len(list) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(list))
	for _, e := range list {
		parts := make([]string, 0, 2)
		for _, p := range e[:min(len(e), 2)] {
			if s, ok := p.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			msgs = append(msgs, strings.Join(parts, ": "))
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "unknown error")
	}
	return errors.New(strings.Join(msgs, "; "))
}
