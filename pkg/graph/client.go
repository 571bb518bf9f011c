// pkg/graph/client.go
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	jmes "github.com/jmespath/go-jmespath"
)

// Client is a thin Graph API transport: GET/POST with form or JSON bodies and
// multipart file upload, returning parsed JSON. Any response carrying the
// platform error envelope is normalized into *RemoteError.
type Client struct {
	BaseURL string // e.g. https://graph.facebook.com
	Version string // e.g. v17.0
	HTTP    *http.Client
}

func NewClient(baseURL, version string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Version: version,
		HTTP:    &http.Client{Timeout: 90 * time.Second},
	}
}

// URL joins the versioned base with an object path ("/me/adaccounts",
// "/{account}/campaigns", ...).
func (c *Client) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.BaseURL + "/" + c.Version + path
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// Get performs a GET with query params and decodes the response envelope.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	u := c.URL(path)
	if enc := params.Encode(); enc != "" {
		u += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// PostForm sends a form-encoded POST. The Marketing API is most reliable with
// form payloads; nested objects must be JSON-serialized by the caller.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// PostJSON sends a JSON-bodied POST (used by the carousel creative endpoints).
func (c *Client) PostJSON(ctx context.Context, path string, body any) (map[string]any, error) {
	bb, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), bytes.NewReader(bb))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// Upload streams a binary asset as a multipart POST. params are sent as extra
// form fields (access_token included by callers).
func (c *Client) Upload(ctx context.Context, path, field, filename string, src io.Reader, params url.Values) (map[string]any, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, vs := range params {
		for _, v := range vs {
			if err := mw.WriteField(k, v); err != nil {
				return nil, err
			}
		}
	}
	fw, err := createFormFile(mw, field, filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, src); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func (c *Client) do(req *http.Request) (map[string]any, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		// Transport-level failures are retryable: the request may never have
		// been accepted by the platform.
		return nil, &RemoteError{Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Message: err.Error(), Transient: true}
	}
	return decodeEnvelope(raw)
}

// createFormFile is like multipart.Writer.CreateFormFile but preserves the
// asset's real content type instead of application/octet-stream.
func createFormFile(mw *multipart.Writer, field, filename string) (io.Writer, error) {
	ct := mime.TypeByExtension(filepath.Ext(filename))
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename)}
	h["Content-Type"] = []string{ct}
	return mw.CreatePart(h)
}

// Extract pulls a value out of a decoded response using a JMESPath
// expression, e.g. `images.*.hash | [0]` for the adimages envelope.
func Extract(doc map[string]any, expr string) (string, error) {
	v, err := jmes.Search(expr, map[string]any(doc))
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("graph: expression %q matched nothing", expr)
	}
	return s, nil
}

// ID returns the "id" field of a creation response.
func ID(doc map[string]any) (string, error) {
	if s, ok := doc["id"].(string); ok && s != "" {
		return s, nil
	}
	return "", fmt.Errorf("graph: response has no id: %v", doc)
}
