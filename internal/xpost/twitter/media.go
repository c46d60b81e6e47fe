package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blacktop/rxpost/internal/logutil"
	"github.com/blacktop/rxpost/internal/xpost"
	"github.com/michimani/gotwi/media/upload"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
)

const altTextEndpoint = "https://upload.twitter.com/1.1/media/metadata/create.json"

// maxAltRunes is the alt text limit of the metadata endpoint.
const maxAltRunes = 1000

// uploadImage sends the file through the chunked media endpoint in a single
// segment and returns the media ID to attach to a tweet.
func (c *Client) uploadImage(ctx context.Context, path, alt string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", xpost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q not found", path)}
		}
		return "", fmt.Errorf("read image: %w", err)
	}
	mediaType, err := mediaTypeFor(path)
	if err != nil {
		return "", err
	}

	initRes, err := upload.Initialize(ctx, c.api, &uploadtypes.InitializeInput{
		MediaType:     mediaType,
		TotalBytes:    len(data),
		MediaCategory: uploadtypes.MediaCategoryTweetImage,
	})
	if err != nil {
		return "", wrap("initialize upload", err)
	}
	if err := rejected("initialize upload", initRes.Errors); err != nil {
		return "", err
	}
	mediaID := initRes.Data.MediaID
	logutil.Debugf("upload initialized: media_id=%s bytes=%d", mediaID, len(data))

	chunk := &uploadtypes.AppendInput{MediaID: mediaID, Media: bytes.NewReader(data)}
	chunk.GenerateBoundary()
	appendRes, err := upload.Append(ctx, c.api, chunk)
	if err != nil {
		return "", wrap("append upload", err)
	}
	if err := rejected("append upload", appendRes.Errors); err != nil {
		return "", err
	}

	finalRes, err := upload.Finalize(ctx, c.api, &uploadtypes.FinalizeInput{MediaID: mediaID})
	if err != nil {
		return "", wrap("finalize upload", err)
	}
	if err := rejected("finalize upload", finalRes.Errors); err != nil {
		return "", err
	}
	info := finalRes.Data.ProcessingInfo
	if err := awaitProcessing(ctx, string(info.State), time.Duration(info.CheckAfterSecs)*time.Second); err != nil {
		return "", err
	}

	if alt = strings.TrimSpace(alt); alt != "" {
		if err := c.setAltText(ctx, mediaID, xpost.Fit(alt, maxAltRunes)); err != nil {
			// Alt text is best effort.
			logutil.Warnf("set alt text for media %s: %v", mediaID, err)
		}
	}
	return mediaID, nil
}

// mediaTypeFor maps the extensions the fetcher downloads onto upload types.
func mediaTypeFor(path string) (uploadtypes.MediaType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return uploadtypes.MediaTypeJPEG, nil
	case ".png":
		return uploadtypes.MediaTypePNG, nil
	}
	return "", xpost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("unsupported image type %q", filepath.Ext(path))}
}

// awaitProcessing waits out one processing interval. Still images are
// normally ready immediately and report no state.
func awaitProcessing(ctx context.Context, state string, after time.Duration) error {
	switch state {
	case "", string(resources.ProcessingInfoStateSucceeded):
		return nil
	case string(resources.ProcessingInfoStatePending), string(resources.ProcessingInfoStateInProgress):
	default:
		return xpost.NewError(xpost.SubmissionRejected, providerName, "process media", fmt.Errorf("state %s", state))
	}

	timer := time.NewTimer(after)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func rejected(op string, partials []resources.PartialError) error {
	if len(partials) == 0 {
		return nil
	}
	var msgs []string
	for _, pe := range partials {
		switch {
		case pe.Detail != nil && *pe.Detail != "":
			msgs = append(msgs, *pe.Detail)
		case pe.Title != nil && *pe.Title != "":
			msgs = append(msgs, *pe.Title)
		}
	}
	if len(msgs) == 0 {
		msgs = []string{"partial error without detail"}
	}
	return xpost.NewError(xpost.SubmissionRejected, providerName, op, errors.New(strings.Join(msgs, "; ")))
}

func (c *Client) setAltText(ctx context.Context, mediaID, alt string) error {
	// gotwi reads the request content type from the context.
	ctx = context.WithValue(ctx, "Content-Type", "application/json;charset=UTF-8")
	params := &altTextParams{MediaID: mediaID}
	params.AltText.Text = alt
	if err := c.api.CallAPI(ctx, altTextEndpoint, http.MethodPost, params, &altTextResponse{}); err != nil {
		return wrap("set alt text", err)
	}
	return nil
}

// altTextParams is the JSON body of the media metadata endpoint. It
// satisfies gotwi's parameter interface so the request is OAuth-signed.
type altTextParams struct {
	MediaID string `json:"media_id"`
	AltText struct {
		Text string `json:"text"`
	} `json:"alt_text"`

	token string
}

func (p *altTextParams) SetAccessToken(token string)        { p.token = token }
func (p *altTextParams) AccessToken() string                { return p.token }
func (p *altTextParams) ResolveEndpoint(base string) string { return base }
func (p *altTextParams) ParameterMap() map[string]string    { return map[string]string{} }

func (p *altTextParams) Body() (io.Reader, error) {
	buf, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

type altTextResponse struct{}

func (altTextResponse) HasPartialError() bool { return false }
