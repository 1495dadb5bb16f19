// Package source talks to the upstream service that owns the business data:
// export files, payroll runs, and the time records audit packs are built from.
package source

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/config"
	"github.com/persistorai/auditseal/internal/lineage"
	"github.com/persistorai/auditseal/internal/models"
)

const (
	// maxFilesResponse bounds a file listing, which carries file contents inline.
	maxFilesResponse = 1 << 30
	maxRecordResponse = 64 << 20
)

// Client is an HTTP JSON client for the upstream business data service.
// It implements lineage.Resolver.
type Client struct {
	baseURL string
	token   config.Secret
	client  *http.Client
	log     *logrus.Logger
}

// NewClient creates a Client. timeout bounds each request.
func NewClient(baseURL, token string, timeout time.Duration, log *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   config.Secret(token),
		log:     log,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}
}

type fileDoc struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

type filesResponse struct {
	Files []fileDoc `json:"files"`
}

type recordsResponse struct {
	Records []lineage.Node `json:"records"`
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

// FetchFiles returns the files of the referenced export or payroll run.
func (c *Client) FetchFiles(ctx context.Context, orgID string, src models.SourceRef) ([]models.SourceFile, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/orgs/%s/sources/%s/%s/files",
		url.PathEscape(orgID), url.PathEscape(string(src.Kind())), url.PathEscape(src.ID()))

	var resp filesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, maxFilesResponse); err != nil {
		return nil, fmt.Errorf("fetching files for %s: %w", src, err)
	}

	files := make([]models.SourceFile, len(resp.Files))
	for i, f := range resp.Files {
		files[i] = models.BytesFile(f.Path, f.Content)
	}

	c.log.WithFields(logrus.Fields{
		"org_id": orgID,
		"source": src.String(),
		"files":  len(files),
	}).Debug("source files fetched")

	return files, nil
}

// CollectRecords returns the time records whose occurrence falls within [start, end].
func (c *Client) CollectRecords(ctx context.Context, orgID string, start, end time.Time) ([]lineage.Node, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))

	path := fmt.Sprintf("/orgs/%s/records?%s", url.PathEscape(orgID), q.Encode())

	var resp recordsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, maxRecordResponse); err != nil {
		return nil, fmt.Errorf("collecting records: %w", err)
	}

	return resp.Records, nil
}

// FetchNodes implements lineage.Resolver.
func (c *Client) FetchNodes(ctx context.Context, orgID string, ids []string) ([]lineage.Node, error) {
	return c.lookup(ctx, orgID, "lookup", ids)
}

// FetchDependents implements lineage.Resolver.
func (c *Client) FetchDependents(ctx context.Context, orgID string, ids []string) ([]lineage.Node, error) {
	return c.lookup(ctx, orgID, "dependents", ids)
}

func (c *Client) lookup(ctx context.Context, orgID, op string, ids []string) ([]lineage.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	path := fmt.Sprintf("/orgs/%s/records/%s", url.PathEscape(orgID), op)

	var resp recordsResponse
	if err := c.do(ctx, http.MethodPost, path, idsRequest{IDs: ids}, &resp, maxRecordResponse); err != nil {
		return nil, fmt.Errorf("records %s: %w", op, err)
	}

	return resp.Records, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, limit int64) error {
	var body io.Reader = http.NoBody

	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token.Value())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, limit)

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, limited)
		return models.ErrObjectNotFound
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(limited, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
