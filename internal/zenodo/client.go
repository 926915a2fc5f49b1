package zenodo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
)

const (
	defaultTimeout  = 120 * time.Second
	maxErrorBodyLen = 64 * 1024
)

// Client is the deposition API client. Every request is authenticated with
// the access_token query parameter.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  HTTPDoer
}

// NewClient creates a new deposition API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client HTTPDoer) {
	c.httpClient = client
}

// DepositionsURL is the collection endpoint all deposition calls hang off.
func (c *Client) DepositionsURL() string {
	return c.baseURL + "/depositions"
}

// ListDepositions fetches the caller's depositions. It is used as the
// pre-flight probe for the access token and base URL.
func (c *Client) ListDepositions(ctx context.Context) ([]Deposition, error) {
	body, err := c.do(ctx, "list depositions", http.MethodGet, c.DepositionsURL(), nil, "")
	if err != nil {
		return nil, err
	}

	var deps []Deposition
	if err := decode("list depositions", body, &deps); err != nil {
		return nil, err
	}
	return deps, nil
}

// CreateDeposition creates an empty deposition and returns its id and bucket.
func (c *Client) CreateDeposition(ctx context.Context) (*Deposition, error) {
	const op = "create deposition"

	body, err := c.do(ctx, op, http.MethodPost, c.DepositionsURL(), strings.NewReader("{}"), "application/json")
	if err != nil {
		return nil, err
	}

	var dep Deposition
	if err := decode(op, body, &dep); err != nil {
		return nil, err
	}
	if dep.ID == 0 || dep.Links.Bucket == "" {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("response is missing id or links.bucket: %s", truncate(body))}
	}
	return &dep, nil
}

// UploadFile streams content to {bucketURL}/{filename}.
func (c *Client) UploadFile(ctx context.Context, bucketURL, filename string, content io.Reader) (*FileInfo, error) {
	const op = "upload file"

	target := strings.TrimSuffix(bucketURL, "/") + "/" + url.PathEscape(filename)
	body, err := c.do(ctx, op, http.MethodPut, target, content, "application/octet-stream")
	if err != nil {
		return nil, err
	}

	info := &FileInfo{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := decode(op, body, info); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// UpdateMetadata replaces the metadata document of a deposition.
func (c *Client) UpdateMetadata(ctx context.Context, depositionID int64, md domain.Metadata) (*Deposition, error) {
	const op = "update metadata"

	payload, err := json.Marshal(metadataEnvelope{Metadata: md})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	body, err := c.do(ctx, op, http.MethodPut, c.depositionURL(depositionID), bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}

	var dep Deposition
	if err := decode(op, body, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

// Publish turns the draft into a public record. This cannot be undone.
func (c *Client) Publish(ctx context.Context, depositionID int64) (*Deposition, error) {
	const op = "publish"

	body, err := c.do(ctx, op, http.MethodPost, c.depositionURL(depositionID)+"/actions/publish", nil, "")
	if err != nil {
		return nil, err
	}

	var dep Deposition
	if err := decode(op, body, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

// SubmitToCommunity requests inclusion of the deposition in a community.
func (c *Client) SubmitToCommunity(ctx context.Context, depositionID int64, community string) error {
	target := fmt.Sprintf("%s/communities/%s", c.depositionURL(depositionID), url.PathEscape(community))
	_, err := c.do(ctx, "submit to community", http.MethodPost, target, nil, "")
	return err
}

func (c *Client) depositionURL(id int64) string {
	return fmt.Sprintf("%s/%d", c.DepositionsURL(), id)
}

// do performs an authenticated request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op, method, rawURL string, body io.Reader, contentType string) ([]byte, error) {
	reqURL, err := c.withToken(rawURL)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	// Files are not one of the body types net/http sizes on its own.
	if f, ok := body.(interface{ Stat() (fs.FileInfo, error) }); ok {
		if fi, err := f.Stat(); err == nil {
			req.ContentLength = fi.Size()
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{Op: op, StatusCode: resp.StatusCode, Body: truncate(respBody)}
	}

	return respBody, nil
}

func (c *Client) withToken(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	q := u.Query()
	q.Set("access_token", c.accessToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func decode(op string, body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodyLen {
		return string(body[:maxErrorBodyLen]) + "..."
	}
	return string(body)
}
