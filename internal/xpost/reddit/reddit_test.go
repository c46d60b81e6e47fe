package reddit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/blacktop/rxpost/internal/xpost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redditapi "github.com/vartanbeno/go-reddit/v2/reddit"
)

type fakeReddit struct {
	mu       sync.Mutex
	forms    map[string]map[string]string
	uploaded string
	srv      *httptest.Server

	flairStatus     int
	subredditStatus int
	submitErrors    string
	gets            []string
}

func newFakeReddit(t *testing.T) (*fakeReddit, *Client) {
	t.Helper()
	f := &fakeReddit{forms: map[string]map[string]string{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)

	c, err := NewWithConfig(Config{ClientID: "id", ClientSecret: "secret", Username: "u", Password: "p"},
		redditapi.WithBaseURL(f.srv.URL),
		redditapi.WithTokenURL(f.srv.URL+"/api/v1/access_token"),
	)
	require.NoError(t, err)
	return f, c
}

func (f *fakeReddit) record(r *http.Request) {
	_ = r.ParseForm()
	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	f.mu.Lock()
	f.forms[r.URL.Path] = form
	f.mu.Unlock()
}

func (f *fakeReddit) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/v1/access_token":
		_, _ = io.WriteString(w, `{"access_token":"token","token_type":"bearer","expires_in":3600}`)
	case strings.Contains(r.URL.Path, "flair"):
		if f.flairStatus != 0 {
			w.WriteHeader(f.flairStatus)
			_, _ = io.WriteString(w, `{"message":"Forbidden","error":403}`)
			return
		}
		_, _ = io.WriteString(w, `[{"id":"flair-1","text":"Discussion","type":"richtext"},{"id":"flair-2","text":"Meme"}]`)
	case strings.HasPrefix(r.URL.Path, "/comments/"):
		f.mu.Lock()
		f.gets = append(f.gets, r.URL.Path)
		f.mu.Unlock()
		_, _ = io.WriteString(w, `[{"kind":"Listing","data":{"children":[{"kind":"t3","data":{`+
			`"id":"abc123","name":"t3_abc123","title":"My cat learned Go","selftext":"She wrote a linter.",`+
			`"url":"https://i.redd.it/cat.png","subreddit":"cats","permalink":"/r/cats/comments/abc123/"}}]}},`+
			`{"kind":"Listing","data":{"children":[]}}]`)
	case strings.HasPrefix(r.URL.Path, "/r/") && strings.HasSuffix(r.URL.Path, "/about"):
		f.mu.Lock()
		f.gets = append(f.gets, r.URL.Path)
		f.mu.Unlock()
		if f.subredditStatus != 0 {
			w.WriteHeader(f.subredditStatus)
			_, _ = io.WriteString(w, `{"message":"`+http.StatusText(f.subredditStatus)+`","error":`+strconv.Itoa(f.subredditStatus)+`}`)
			return
		}
		_, _ = io.WriteString(w, `{"kind":"t5","data":{"display_name":"GoLang","name":"t5_2qh1i","subscribers":1}}`)
	case r.URL.Path == "/"+leaseEndpoint:
		f.record(r)
		_, _ = io.WriteString(w, `{"args":{"action":"`+f.srv.URL+`/bucket","fields":[{"name":"key","value":"abc/cat.png"},{"name":"policy","value":"p"}]},"asset":{"asset_id":"abc","websocket_url":"wss://example"}}`)
	case r.URL.Path == "/bucket":
		_ = r.ParseMultipartForm(1 << 20)
		file, _, err := r.FormFile("file")
		if err == nil {
			data, _ := io.ReadAll(file)
			f.mu.Lock()
			f.uploaded = r.FormValue("key") + "=" + string(data)
			f.mu.Unlock()
		}
		w.WriteHeader(http.StatusCreated)
	case r.URL.Path == "/"+submitEndpoint:
		f.record(r)
		if f.submitErrors != "" {
			_, _ = io.WriteString(w, `{"json":{"errors":`+f.submitErrors+`}}`)
			return
		}
		if r.PostForm.Get("kind") == "self" {
			_, _ = io.WriteString(w, `{"json":{"errors":[],"data":{"id":"xyz789","name":"t3_xyz789","url":"https://www.reddit.com/r/golang/comments/xyz789/"}}}`)
			return
		}
		_, _ = io.WriteString(w, `{"json":{"errors":[],"data":{"user_submitted_page":"https://www.reddit.com/user/u/submitted/","websocket_url":"wss://example"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func TestPost(t *testing.T) {
	f, c := newFakeReddit(t)

	post, err := c.Post(context.Background(), " t3_abc123 ")
	require.NoError(t, err)
	assert.Equal(t, xpost.RemotePost{
		ID:    "abc123",
		Title: "My cat learned Go",
		Body:  "She wrote a linter.",
		URL:   "https://i.redd.it/cat.png",
	}, post)
	assert.Equal(t, []string{"/comments/abc123"}, f.gets)
}

func TestSubreddit(t *testing.T) {
	f, c := newFakeReddit(t)

	sr, err := c.Subreddit(context.Background(), "/r/golang/")
	require.NoError(t, err)
	assert.Equal(t, "r/GoLang", sr.Name())
	assert.Equal(t, []string{"/r/golang/about"}, f.gets)
}

func TestSubredditErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "missing", status: http.StatusNotFound, want: xpost.ErrSubmissionRejected},
		{name: "private", status: http.StatusForbidden, want: xpost.ErrPermissionDenied},
		{name: "overloaded", status: http.StatusServiceUnavailable, want: xpost.ErrServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := newFakeReddit(t)
			f.subredditStatus = tt.status

			sr, err := c.Subreddit(context.Background(), "nosuchsub")
			assert.Nil(t, sr)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorContains(t, err, "get subreddit r/nosuchsub")
		})
	}
}

func TestSubredditEmptyName(t *testing.T) {
	_, c := newFakeReddit(t)
	_, err := c.Subreddit(context.Background(), "r/")
	var ve xpost.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestSubmitText(t *testing.T) {
	f, c := newFakeReddit(t)
	sr := &Subreddit{client: c, name: "golang"}

	err := sr.SubmitText(context.Background(), xpost.Request{Title: "Cats write Go now", Body: "She wrote a linter.", Tag: "flair-2"})
	require.NoError(t, err)

	submit := f.forms["/"+submitEndpoint]
	assert.Equal(t, "self", submit["kind"])
	assert.Equal(t, "golang", submit["sr"])
	assert.Equal(t, "Cats write Go now", submit["title"])
	assert.Equal(t, "She wrote a linter.", submit["text"])
	assert.Equal(t, "flair-2", submit["flair_id"])
}

func TestTagTemplates(t *testing.T) {
	_, c := newFakeReddit(t)
	sr := &Subreddit{client: c, name: "golang"}

	tags, err := sr.TagTemplates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []xpost.Tag{{ID: "flair-1", Text: "Discussion"}, {ID: "flair-2", Text: "Meme"}}, tags)
}

func TestTagTemplatesForbidden(t *testing.T) {
	f, c := newFakeReddit(t)
	f.flairStatus = http.StatusForbidden
	sr := &Subreddit{client: c, name: "golang"}

	_, err := sr.TagTemplates(context.Background())
	assert.ErrorIs(t, err, xpost.ErrPermissionDenied)
}

func TestSubmitImage(t *testing.T) {
	f, c := newFakeReddit(t)
	path := filepath.Join(t.TempDir(), "rxpost-123.png")
	require.NoError(t, os.WriteFile(path, []byte("pngdata"), 0o600))

	sr := &Subreddit{client: c, name: "cats"}
	err := sr.SubmitImage(context.Background(), xpost.Request{Title: "Look at this cat", ImagePath: path, Tag: "flair-1"})
	require.NoError(t, err)

	assert.Equal(t, "abc/cat.png=pngdata", f.uploaded)
	assert.Equal(t, "rxpost-123.png", f.forms["/"+leaseEndpoint]["filepath"])
	assert.Equal(t, "image/png", f.forms["/"+leaseEndpoint]["mimetype"])

	submit := f.forms["/"+submitEndpoint]
	assert.Equal(t, "image", submit["kind"])
	assert.Equal(t, "cats", submit["sr"])
	assert.Equal(t, "Look at this cat", submit["title"])
	assert.Equal(t, f.srv.URL+"/bucket/abc/cat.png", submit["url"])
	assert.Equal(t, "flair-1", submit["flair_id"])
}

func TestSubmitImageRejected(t *testing.T) {
	f, c := newFakeReddit(t)
	f.submitErrors = `[["SUBREDDIT_NOTALLOWED","you aren't allowed to post there.","sr"]]`
	path := filepath.Join(t.TempDir(), "rxpost-1.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpg"), 0o600))

	sr := &Subreddit{client: c, name: "cats"}
	err := sr.SubmitImage(context.Background(), xpost.Request{Title: "t", ImagePath: path})
	require.ErrorIs(t, err, xpost.ErrSubmissionRejected)
	assert.ErrorContains(t, err, "SUBREDDIT_NOTALLOWED: you aren't allowed to post there.")
	_, hasFlair := f.forms["/"+submitEndpoint]["flair_id"]
	assert.False(t, hasFlair)
}

func TestSubmitImageMissingFile(t *testing.T) {
	sr := &Subreddit{name: "cats"}
	err := sr.SubmitImage(context.Background(), xpost.Request{Title: "t", ImagePath: filepath.Join(t.TempDir(), "nope.png")})
	var ve xpost.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestClassify(t *testing.T) {
	respErr := func(status int) error {
		return &redditapi.ErrorResponse{Response: &http.Response{StatusCode: status, Request: &http.Request{Method: http.MethodGet}}, Message: http.StatusText(status)}
	}

	tests := []struct {
		name     string
		err      error
		fallback xpost.Kind
		want     xpost.Kind
	}{
		{name: "forbidden", err: respErr(http.StatusForbidden), fallback: xpost.SubmissionRejected, want: xpost.PermissionDenied},
		{name: "rate limited", err: respErr(http.StatusTooManyRequests), fallback: xpost.SubmissionRejected, want: xpost.ServiceUnavailable},
		{name: "bad gateway", err: respErr(http.StatusBadGateway), fallback: xpost.Unknown, want: xpost.ServiceUnavailable},
		{name: "not found", err: respErr(http.StatusNotFound), fallback: xpost.SubmissionRejected, want: xpost.SubmissionRejected},
		{name: "upload forbidden", err: &uploadError{status: http.StatusForbidden}, fallback: xpost.SubmissionRejected, want: xpost.PermissionDenied},
		{name: "timeout", err: context.DeadlineExceeded, fallback: xpost.SubmissionRejected, want: xpost.ServiceUnavailable},
		{name: "plain", err: errors.New("boom"), fallback: xpost.SubmissionRejected, want: xpost.SubmissionRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err, tt.fallback)
			assert.Equal(t, tt.want, xpost.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestSubmitErrors(t *testing.T) {
	assert.NoError(t, submitErrors(nil))
	assert.EqualError(t, submitErrors([][]any{{"RATELIMIT", "take a break", "ratelimit"}, {"BAD_SR_NAME"}}), "RATELIMIT: take a break; BAD_SR_NAME")
	assert.EqualError(t, submitErrors([][]any{{}}), "unknown error")
}

func TestUploadAction(t *testing.T) {
	assert.Equal(t, "https://reddit-uploaded-media.s3-accelerate.amazonaws.com", uploadAction("//reddit-uploaded-media.s3-accelerate.amazonaws.com"))
	assert.Equal(t, "http://127.0.0.1/bucket", uploadAction("http://127.0.0.1/bucket"))
}

func TestNormalizeSubreddit(t *testing.T) {
	for _, in := range []string{"golang", "r/golang", "/r/golang", "/r/golang/", " golang "} {
		assert.Equal(t, "golang", NormalizeSubreddit(in), in)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv(envClientID, "id")
	t.Setenv(envClientSecret, "")
	t.Setenv(envUsername, "user")
	t.Setenv(envPassword, "")

	_, err := loadConfigFromEnv()
	var missing xpost.MissingEnvError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{envClientSecret, envPassword}, missing.Variables)

	t.Setenv(envClientSecret, "secret")
	t.Setenv(envPassword, "pw")
	t.Setenv(envUserAgent, "ua/1")
	cfg, err := loadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, Config{ClientID: "id", ClientSecret: "secret", Username: "user", Password: "pw", UserAgent: "ua/1"}, cfg)
}
