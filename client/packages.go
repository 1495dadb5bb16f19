package client

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

// PackageService handles export packages.
type PackageService struct {
	c *Client
}

func packagePath(id string, suffix ...string) string {
	p := "/api/v1/packages/" + url.PathEscape(id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

// Create records a package for src and schedules its build. The returned
// package is pending; poll Get until it is completed or failed.
func (s *PackageService) Create(ctx context.Context, src Source) (*Package, error) {
	var pkg Package
	if err := s.c.post(ctx, "/api/v1/packages", map[string]Source{"source": src}, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// Get returns a package by ID.
func (s *PackageService) Get(ctx context.Context, id string) (*Package, error) {
	var pkg Package
	if err := s.c.get(ctx, packagePath(id), nil, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// List returns packages, newest first.
func (s *PackageService) List(ctx context.Context, opts *PackageListOptions) ([]Package, bool, error) {
	if opts == nil {
		opts = &PackageListOptions{}
	}
	var resp struct {
		Packages []Package `json:"packages"`
		HasMore  bool      `json:"has_more"`
	}
	if err := s.c.get(ctx, "/api/v1/packages", listParams(opts.Status, opts.Limit, opts.Offset), &resp); err != nil {
		return nil, false, err
	}
	return resp.Packages, resp.HasMore, nil
}

// Files returns the manifest rows of a package in Merkle order.
func (s *PackageService) Files(ctx context.Context, id string) ([]ExportFile, error) {
	var resp struct {
		Files []ExportFile `json:"files"`
	}
	if err := s.c.get(ctx, packagePath(id, "files"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// Proof returns the inclusion proof of the file at Merkle index index.
func (s *PackageService) Proof(ctx context.Context, id string, index int) (*FileProof, error) {
	var proof FileProof
	if err := s.c.get(ctx, packagePath(id, "proof", strconv.Itoa(index)), nil, &proof); err != nil {
		return nil, err
	}
	return &proof, nil
}

// Verify re-checks a sealed package. With fetchArchive the server re-hashes
// the stored archive; otherwise only the recorded digests are checked.
func (s *PackageService) Verify(ctx context.Context, id string, fetchArchive bool) (*VerificationReport, error) {
	var report VerificationReport
	body := map[string]bool{"fetch_archive": fetchArchive}
	if err := s.c.post(ctx, packagePath(id, "verify"), body, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// VerifyFiles checks caller-held bytes, keyed by archive path, against the
// package manifest.
func (s *PackageService) VerifyFiles(ctx context.Context, id string, files map[string][]byte) (*VerificationReport, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for path, data := range files {
		fw, err := mw.CreateFormFile(path, path)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", path, err)
		}
		if _, err := fw.Write(data); err != nil {
			return nil, fmt.Errorf("encode %s: %w", path, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}

	var report VerificationReport
	if err := s.c.send(ctx, http.MethodPost, packagePath(id, "verify"), &buf, mw.FormDataContentType(), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Verifications returns the verification history of a package, newest first.
func (s *PackageService) Verifications(ctx context.Context, id string, limit int) ([]VerificationLog, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Verifications []VerificationLog `json:"verifications"`
	}
	if err := s.c.get(ctx, packagePath(id, "verifications"), params, &resp); err != nil {
		return nil, err
	}
	return resp.Verifications, nil
}
