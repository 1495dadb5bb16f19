package client

import (
	"context"
	"net/url"
)

// PackService handles audit pack requests.
type PackService struct {
	c *Client
}

// Create requests a pack. It is built asynchronously; poll Get for the outcome.
func (s *PackService) Create(ctx context.Context, req *CreatePackRequest) (*PackRequest, error) {
	var pack PackRequest
	if err := s.c.post(ctx, "/api/v1/packs", req, &pack); err != nil {
		return nil, err
	}
	return &pack, nil
}

// Get returns a pack and, once completed, its artifact.
func (s *PackService) Get(ctx context.Context, id string) (*PackRequest, *PackArtifact, error) {
	var resp struct {
		Pack     PackRequest   `json:"pack"`
		Artifact *PackArtifact `json:"artifact"`
	}
	if err := s.c.get(ctx, "/api/v1/packs/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, nil, err
	}
	return &resp.Pack, resp.Artifact, nil
}

// List returns packs, newest first.
func (s *PackService) List(ctx context.Context, opts *PackListOptions) ([]PackRequest, bool, error) {
	if opts == nil {
		opts = &PackListOptions{}
	}
	var resp struct {
		Packs   []PackRequest `json:"packs"`
		HasMore bool          `json:"has_more"`
	}
	if err := s.c.get(ctx, "/api/v1/packs", listParams(opts.Status, opts.Limit, opts.Offset), &resp); err != nil {
		return nil, false, err
	}
	return resp.Packs, resp.HasMore, nil
}
