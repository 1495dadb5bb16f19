package client

import "context"

// ConfigService manages the organization's export policy.
type ConfigService struct {
	c *Client
}

// Get returns the current policy.
func (s *ConfigService) Get(ctx context.Context) (*ExportConfig, error) {
	var cfg ExportConfig
	if err := s.c.get(ctx, "/api/v1/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Set opts in or changes the policy.
func (s *ConfigService) Set(ctx context.Context, req *UpsertConfigRequest) (*ExportConfig, error) {
	var cfg ExportConfig
	if err := s.c.put(ctx, "/api/v1/config", req, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Disable stops new packages from being built. Existing packages are untouched.
func (s *ConfigService) Disable(ctx context.Context) error {
	return s.c.del(ctx, "/api/v1/config", nil)
}
