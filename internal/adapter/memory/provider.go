package memory

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/jun/gophdrive/explorer/internal/adapter"
	"github.com/jun/gophdrive/explorer/internal/model"
)

// Provider hands out one MemoryAdapter per user and keeps it for the process lifetime.
type Provider struct {
	client    DynamoAPI
	tableName string
	stores    map[string]*MemoryAdapter
	mu        sync.Mutex
}

// NewProvider creates a provider. A nil client keeps every tree in process memory.
func NewProvider(client DynamoAPI, tableName string) *Provider {
	if tableName == "" {
		tableName = "FileStore"
	}
	return &Provider{
		client:    client,
		tableName: tableName,
		stores:    make(map[string]*MemoryAdapter),
	}
}

func (p *Provider) GetAdapter(ctx context.Context, userID string) (adapter.DriveService, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.stores[userID]; !ok {
		p.stores[userID] = NewMemoryAdapter(p.client, p.tableName, userID)
	}
	return p.stores[userID], nil
}

// SeedDemo fills an empty tree with a few folders, a text file and a picture.
func (m *MemoryAdapter) SeedDemo(ctx context.Context) error {
	kids, err := m.children(ctx, model.RootID)
	if err != nil {
		return err
	}
	if len(kids) > 0 {
		return nil
	}

	docs, err := m.CreateFolder(ctx, model.RootID, "Documents")
	if err != nil {
		return fmt.Errorf("seeding demo tree: %w", err)
	}
	pics, err := m.CreateFolder(ctx, model.RootID, "Pictures")
	if err != nil {
		return fmt.Errorf("seeding demo tree: %w", err)
	}
	if _, err := m.CreateFolder(ctx, model.RootID, "Empty"); err != nil {
		return fmt.Errorf("seeding demo tree: %w", err)
	}

	welcome := "Welcome to the drive explorer.\nBrowse folders, upload files and share links.\n"
	if _, err := m.UploadContent(ctx, docs.ID, "Welcome.txt", strings.NewReader(welcome), int64(len(welcome)), adapter.ConflictFail, nil); err != nil {
		return fmt.Errorf("seeding demo tree: %w", err)
	}

	var buf bytes.Buffer
	img := imaging.New(256, 192, color.NRGBA{R: 0x00, G: 0x78, B: 0xd4, A: 0xff})
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return fmt.Errorf("seeding demo tree: %w", err)
	}
	if _, err := m.UploadContent(ctx, pics.ID, "sky.png", &buf, int64(buf.Len()), adapter.ConflictFail, nil); err != nil {
		return fmt.Errorf("seeding demo tree: %w", err)
	}
	return nil
}
