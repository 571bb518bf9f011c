package graph

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "v17.0")
	return c
}

func TestErrorEnvelopeDecoded(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid parameter","type":"OAuthException","code":100,"error_subcode":2446079,"is_transient":false}}`))
	})

	_, err := c.Get(context.Background(), "/me/adaccounts", nil)
	var rerr *RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 100, rerr.Code)
	assert.Equal(t, 2446079, rerr.Subcode)
	assert.Equal(t, "Invalid parameter", rerr.Message)
	assert.False(t, rerr.Transient)
	assert.False(t, IsTransient(err))
}

func TestTransientFlagRespected(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Please retry","code":2,"is_transient":true}}`))
	})

	_, err := c.Get(context.Background(), "/x", nil)
	require.True(t, IsTransient(err))
}

func TestTransportFailureIsTransient(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "v17.0") // nothing listens here
	c.HTTP = &http.Client{Timeout: time.Second}
	_, err := c.Get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err), "connection failures should be retryable")
}

func TestVersionedURL(t *testing.T) {
	c := NewClient("https://graph.example.com/", "v17.0")
	assert.Equal(t, "https://graph.example.com/v17.0/me/adaccounts", c.URL("/me/adaccounts"))
	assert.Equal(t, "https://graph.example.com/v17.0/me/adaccounts", c.URL("me/adaccounts"))
}

func TestUploadMultipart(t *testing.T) {
	var gotField, gotFilename, gotBody, gotToken, gotContentType string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		mt, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		require.Equal(t, "multipart/form-data", mt)
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			b, _ := io.ReadAll(part)
			switch part.FormName() {
			case "filename":
				gotField = part.FormName()
				gotFilename = part.FileName()
				gotBody = string(b)
				gotContentType = part.Header.Get("Content-Type")
			case "access_token":
				gotToken = string(b)
			}
		}
		w.Write([]byte(`{"images":{"promo.png":{"hash":"abc123"}}}`))
	})

	params := url.Values{}
	params.Set("access_token", "tok")
	doc, err := c.Upload(context.Background(), "/act_1/adimages", "filename", "promo.png", strings.NewReader("PNGDATA"), params)
	require.NoError(t, err)

	assert.Equal(t, "filename", gotField)
	assert.Equal(t, "promo.png", gotFilename)
	assert.Equal(t, "PNGDATA", gotBody)
	assert.Equal(t, "tok", gotToken)
	assert.Equal(t, "image/png", gotContentType)

	hash, err := Extract(doc, `images.*.hash | [0]`)
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)
}

func TestSubmitterRetrySchedule(t *testing.T) {
	var slept []time.Duration
	s := &Submitter{
		Attempts: 5,
		Delay:    4 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	calls := 0
	_, err := s.Do(context.Background(), func(ctx context.Context) (map[string]any, error) {
		calls++
		return nil, &RemoteError{Code: 2, Message: "busy", Transient: true}
	})

	var rerr *RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 5, calls)
	// Linear backoff: attempt number times the base delay, no sleep after the
	// final attempt.
	assert.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second, 12 * time.Second, 16 * time.Second}, slept)
}

func TestSubmitterPermanentAbortsImmediately(t *testing.T) {
	s := NewSubmitter(5, time.Minute)
	calls := 0
	_, err := s.Do(context.Background(), func(ctx context.Context) (map[string]any, error) {
		calls++
		return nil, &RemoteError{Code: 100, Message: "bad param"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSubmitterRecovers(t *testing.T) {
	s := &Submitter{Attempts: 5, Delay: time.Millisecond}
	calls := 0
	doc, err := s.Do(context.Background(), func(ctx context.Context) (map[string]any, error) {
		calls++
		if calls < 3 {
			return nil, &RemoteError{Transient: true, Message: "busy"}
		}
		return map[string]any{"id": "123"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	id, err := ID(doc)
	require.NoError(t, err)
	assert.Equal(t, "123", id)
}
