package graph

import (
	"context"
	"fmt"

	"github.com/jun/gophdrive/explorer/internal/adapter"
	"github.com/jun/gophdrive/explorer/internal/auth"
)

// Provider implements adapter.StorageProvider for OneDrive.
type Provider struct {
	authService *auth.AuthService
	baseURL     string
}

// NewProvider creates a new OneDrive provider talking to baseURL.
func NewProvider(authService *auth.AuthService, baseURL string) *Provider {
	return &Provider{authService: authService, baseURL: baseURL}
}

// GetAdapter returns a GraphAdapter authenticated as the given user.
func (p *Provider) GetAdapter(ctx context.Context, userID string) (adapter.DriveService, error) {
	client, err := p.authService.GetClient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated client: %w", err)
	}
	return NewGraphAdapter(client, p.baseURL), nil
}
