package googledrive

import (
	"context"
	"fmt"

	"github.com/jun/gophdrive/explorer/internal/adapter"
	"github.com/jun/gophdrive/explorer/internal/auth"
)

// Provider implements adapter.StorageProvider for Google Drive.
type Provider struct {
	authService *auth.AuthService
}

// NewProvider creates a new Google Drive provider.
func NewProvider(authService *auth.AuthService) *Provider {
	return &Provider{authService: authService}
}

// GetAdapter returns a DriveAdapter for the given user ID.
func (p *Provider) GetAdapter(ctx context.Context, userID string) (adapter.DriveService, error) {
	client, err := p.authService.GetClient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated client: %w", err)
	}

	storage, err := NewDriveAdapter(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive adapter: %w", err)
	}

	return storage, nil
}
