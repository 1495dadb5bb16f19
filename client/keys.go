package client

import (
	"context"
	"net/url"
)

// KeyService manages signing keys.
type KeyService struct {
	c *Client
}

// List returns every key of the organization, newest first.
func (s *KeyService) List(ctx context.Context) ([]SigningKey, error) {
	var resp struct {
		Keys []SigningKey `json:"keys"`
	}
	if err := s.c.get(ctx, "/api/v1/keys", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// Active returns the key new packages are signed with.
func (s *KeyService) Active(ctx context.Context) (*SigningKey, error) {
	var key SigningKey
	if err := s.c.get(ctx, "/api/v1/keys/active", nil, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// Rotate replaces the active key. Packages signed by the old key stay verifiable.
func (s *KeyService) Rotate(ctx context.Context) (*SigningKey, error) {
	var key SigningKey
	if err := s.c.post(ctx, "/api/v1/keys/rotate", nil, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// Archive marks a rotated key archived.
func (s *KeyService) Archive(ctx context.Context, id string) (*SigningKey, error) {
	var key SigningKey
	if err := s.c.post(ctx, "/api/v1/keys/"+url.PathEscape(id)+"/archive", nil, &key); err != nil {
		return nil, err
	}
	return &key, nil
}
