package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jun/gophdrive/explorer/internal/adapter"
	"github.com/jun/gophdrive/explorer/internal/model"
)

const (
	maxDemoContentSize = 4 * 1024 * 1024 // simple upload ceiling
	maxDemoNameLength  = 255
	maxDemoItemCount   = 200
	copyBufferSize     = 32 * 1024
)

// invalidNameChars are rejected in item names, mirroring OneDrive.
const invalidNameChars = `"*:<>?/\|`

// linkBaseURL prefixes generated sharing and download URLs.
const linkBaseURL = "https://drive.memory.local"

// FileItem is one node of a user's tree, persisted as-is in DynamoDB.
type FileItem struct {
	PK           string    `dynamodbav:"pk"`
	UserID       string    `dynamodbav:"user_id"`
	ID           string    `dynamodbav:"id"`
	Name         string    `dynamodbav:"name"`
	IsFolder     bool      `dynamodbav:"is_folder"`
	MIMEType     string    `dynamodbav:"mime_type"`
	ModifiedTime time.Time `dynamodbav:"modified_time"`
	Size         int64     `dynamodbav:"size"`
	ParentID     string    `dynamodbav:"parent_id"`
	Content      []byte    `dynamodbav:"content"`
	TTL          int64     `dynamodbav:"ttl"`
}

// MemoryAdapter implements adapter.DriveService over a per-user tree.
// If the store has no DynamoDB client, nodes live in a map (tests, demo users).
type MemoryAdapter struct {
	store  nodeStore
	userID string

	// Serializes check-then-write sequences such as name conflict checks.
	mu sync.Mutex
}

// NewMemoryAdapter creates an adapter for userID. A nil client keeps everything in memory.
func NewMemoryAdapter(client DynamoAPI, tableName, userID string) *MemoryAdapter {
	var store nodeStore
	if client == nil {
		store = newMapStore()
	} else {
		store = &dynamoStore{client: client, table: tableName, userID: userID}
	}
	return &MemoryAdapter{store: store, userID: userID}
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name must not be empty", adapter.ErrInvalidRequest)
	}
	if len(name) > maxDemoNameLength {
		return fmt.Errorf("%w: name too long (max %d characters)", adapter.ErrInvalidRequest, maxDemoNameLength)
	}
	if strings.ContainsAny(name, invalidNameChars) {
		return fmt.Errorf("%w: name %q contains invalid characters", adapter.ErrInvalidRequest, name)
	}
	return nil
}

func (m *MemoryAdapter) newNode(name, parentID string, folder bool) *FileItem {
	id := uuid.New().String()
	return &FileItem{
		PK:           m.userID + "#" + id,
		UserID:       m.userID,
		ID:           id,
		Name:         name,
		IsFolder:     folder,
		ModifiedTime: time.Now().UTC(),
		ParentID:     parentID,
		TTL:          time.Now().Add(60 * time.Minute).Unix(),
	}
}

// root returns the user's root node, creating it on first use.
func (m *MemoryAdapter) root(ctx context.Context) (*FileItem, error) {
	n, err := m.store.get(ctx, model.RootID)
	if err != nil {
		return nil, err
	}
	if n != nil {
		return n, nil
	}
	n = &FileItem{
		PK:           m.userID + "#" + model.RootID,
		UserID:       m.userID,
		ID:           model.RootID,
		Name:         "root",
		IsFolder:     true,
		ModifiedTime: time.Now().UTC(),
		TTL:          time.Now().Add(60 * time.Minute).Unix(),
	}
	if err := m.store.put(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// node loads id, resolving the root alias.
func (m *MemoryAdapter) node(ctx context.Context, id string) (*FileItem, error) {
	if id == model.RootID {
		return m.root(ctx)
	}
	n, err := m.store.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: %s", adapter.ErrNotFound, id)
	}
	return n, nil
}

// children returns the direct children of parentID ordered by name.
func (m *MemoryAdapter) children(ctx context.Context, parentID string) ([]*FileItem, error) {
	all, err := m.store.all(ctx)
	if err != nil {
		return nil, err
	}
	var out []*FileItem
	for _, n := range all {
		if n.ParentID == parentID && n.ID != model.RootID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// findChild looks up a child by name. OneDrive names are case-insensitive.
func (m *MemoryAdapter) findChild(ctx context.Context, parentID, name string) (*FileItem, error) {
	kids, err := m.children(ctx, parentID)
	if err != nil {
		return nil, err
	}
	for _, k := range kids {
		if strings.EqualFold(k.Name, name) {
			return k, nil
		}
	}
	return nil, nil
}

func (m *MemoryAdapter) checkCapacity(ctx context.Context) error {
	all, err := m.store.all(ctx)
	if err != nil {
		return err
	}
	if len(all) >= maxDemoItemCount {
		return fmt.Errorf("%w: item limit reached for demo mode (max %d items)", adapter.ErrInvalidRequest, maxDemoItemCount)
	}
	return nil
}

// parentFolder loads parentID and requires it to be a folder.
func (m *MemoryAdapter) parentFolder(ctx context.Context, parentID string) (*FileItem, error) {
	p, err := m.node(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !p.IsFolder {
		return nil, fmt.Errorf("%w: %s is not a folder", adapter.ErrInvalidRequest, p.Name)
	}
	return p, nil
}

// pathOf returns the Graph-style parent path of n, e.g. "/drive/root:/A/B".
func (m *MemoryAdapter) pathOf(ctx context.Context, n *FileItem) string {
	var names []string
	for cur := n; cur.ParentID != "" && cur.ParentID != model.RootID; {
		p, err := m.store.get(ctx, cur.ParentID)
		if err != nil || p == nil {
			break
		}
		names = append([]string{p.Name}, names...)
		cur = p
	}
	if len(names) == 0 {
		return "/drive/root:"
	}
	return "/drive/root:/" + strings.Join(names, "/")
}

func (m *MemoryAdapter) toItem(ctx context.Context, n *FileItem, thumbnails bool) model.Item {
	item := model.Item{
		ID:           n.ID,
		Name:         n.Name,
		Size:         n.Size,
		LastModified: n.ModifiedTime,
		WebURL:       linkBaseURL + "/items/" + n.ID,
	}
	if n.ParentID != "" {
		item.ParentReference = &model.ItemReference{ID: n.ParentID, Path: m.pathOf(ctx, n)}
	}
	if n.IsFolder {
		item.Folder = &model.Folder{}
	} else {
		item.File = &model.File{MimeType: n.MIMEType}
		item.DownloadURL = linkBaseURL + "/content/" + n.ID
		if thumbnails && isImage(n.MIMEType) {
			item.Thumbnails = []model.ThumbnailSet{{
				ID:    "0",
				Small: &model.Thumbnail{URL: linkBaseURL + "/thumbnails/" + n.ID, Width: 96, Height: 96},
			}}
		}
	}
	return item
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// GetItem returns an item, inlining its children when expand asks for them.
func (m *MemoryAdapter) GetItem(ctx context.Context, id, expand string) (*model.Item, error) {
	n, err := m.node(ctx, id)
	if err != nil {
		return nil, err
	}

	item := m.toItem(ctx, n, strings.Contains(expand, "thumbnails"))
	if n.IsFolder {
		kids, err := m.children(ctx, n.ID)
		if err != nil {
			return nil, err
		}
		item.Folder.ChildCount = len(kids)
		if strings.Contains(expand, "children") {
			childThumbs := strings.Contains(expand, "children(expand=thumbnails)")
			for _, k := range kids {
				item.Children = append(item.Children, m.toItem(ctx, k, childThumbs))
			}
		}
	}

	raw, err := json.Marshal(item)
	if err == nil {
		item.Raw = raw
	}
	return &item, nil
}

// ResolvePath walks path one name at a time starting at anchorID.
func (m *MemoryAdapter) ResolvePath(ctx context.Context, anchorID, path, expand string) (*model.Item, error) {
	cur, err := m.node(ctx, anchorID)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve path %q: %w", path, err)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		next, err := m.findChild(ctx, cur.ID, seg)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, fmt.Errorf("unable to resolve path %q: %w", path, adapter.ErrNotFound)
		}
		cur = next
	}
	return m.GetItem(ctx, cur.ID, expand)
}

// CreateFolder creates a folder, failing when the name is taken.
func (m *MemoryAdapter) CreateFolder(ctx context.Context, parentID, name string) (*model.Item, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	parent, err := m.parentFolder(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if err := m.checkCapacity(ctx); err != nil {
		return nil, err
	}
	if existing, err := m.findChild(ctx, parent.ID, name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: %s", adapter.ErrNameAlreadyExists, name)
	}

	n := m.newNode(name, parent.ID, true)
	if err := m.store.put(ctx, n); err != nil {
		return nil, err
	}
	item := m.toItem(ctx, n, false)
	return &item, nil
}

// RenameItem changes the name of an item, keeping names unique within its folder.
func (m *MemoryAdapter) RenameItem(ctx context.Context, id, newName string) (*model.Item, error) {
	if err := validateName(newName); err != nil {
		return nil, err
	}
	if id == model.RootID {
		return nil, fmt.Errorf("%w: the root cannot be renamed", adapter.ErrInvalidRequest)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.node(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing, err := m.findChild(ctx, n.ParentID, newName); err != nil {
		return nil, err
	} else if existing != nil && existing.ID != n.ID {
		return nil, fmt.Errorf("%w: %s", adapter.ErrNameAlreadyExists, newName)
	}

	n.Name = newName
	n.ModifiedTime = time.Now().UTC()
	if err := m.store.put(ctx, n); err != nil {
		return nil, err
	}
	item := m.toItem(ctx, n, false)
	return &item, nil
}

// DeleteItem removes an item and, for folders, everything beneath it.
func (m *MemoryAdapter) DeleteItem(ctx context.Context, id string) error {
	if id == model.RootID {
		return fmt.Errorf("%w: the root cannot be deleted", adapter.ErrInvalidRequest)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.node(ctx, id); err != nil {
		return err
	}
	return m.deleteTree(ctx, id)
}

func (m *MemoryAdapter) deleteTree(ctx context.Context, id string) error {
	kids, err := m.children(ctx, id)
	if err != nil {
		return err
	}
	for _, k := range kids {
		if err := m.deleteTree(ctx, k.ID); err != nil {
			return err
		}
	}
	return m.store.remove(ctx, id)
}

// availableName returns "name (n).ext" for the first n that does not collide.
func (m *MemoryAdapter) availableName(ctx context.Context, parentID, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
		existing, err := m.findChild(ctx, parentID, candidate)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
	}
}

// UploadContent stores the bytes of r as a file under parentID.
func (m *MemoryAdapter) UploadContent(ctx context.Context, parentID, name string, r io.Reader, size int64, conflict adapter.ConflictBehavior, progress adapter.ProgressFunc) (*model.Item, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if size > maxDemoContentSize {
		return nil, fmt.Errorf("%w: content too large (max %d bytes)", adapter.ErrInvalidRequest, maxDemoContentSize)
	}

	var buf bytes.Buffer
	src := io.LimitReader(adapter.NewProgressReader(r, size, progress), maxDemoContentSize+1)
	// Hide ReadFrom so progress is reported once per copyBufferSize chunk.
	if _, err := io.CopyBuffer(struct{ io.Writer }{&buf}, src, make([]byte, copyBufferSize)); err != nil {
		return nil, fmt.Errorf("unable to read upload body: %w", err)
	}
	if buf.Len() > maxDemoContentSize {
		return nil, fmt.Errorf("%w: content too large (max %d bytes)", adapter.ErrInvalidRequest, maxDemoContentSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	parent, err := m.parentFolder(ctx, parentID)
	if err != nil {
		return nil, err
	}

	existing, err := m.findChild(ctx, parent.ID, name)
	if err != nil {
		return nil, err
	}

	var n *FileItem
	switch {
	case existing == nil:
		if err := m.checkCapacity(ctx); err != nil {
			return nil, err
		}
		n = m.newNode(name, parent.ID, false)
	case conflict == adapter.ConflictReplace && !existing.IsFolder:
		n = existing
	case conflict == adapter.ConflictRename:
		if err := m.checkCapacity(ctx); err != nil {
			return nil, err
		}
		alt, err := m.availableName(ctx, parent.ID, name)
		if err != nil {
			return nil, err
		}
		n = m.newNode(alt, parent.ID, false)
	default:
		return nil, fmt.Errorf("%w: %s", adapter.ErrNameAlreadyExists, name)
	}

	n.Content = buf.Bytes()
	n.Size = int64(buf.Len())
	n.MIMEType = mime.TypeByExtension(strings.ToLower(filepath.Ext(n.Name)))
	if n.MIMEType == "" {
		n.MIMEType = "application/octet-stream"
	}
	n.ModifiedTime = time.Now().UTC()
	if err := m.store.put(ctx, n); err != nil {
		return nil, err
	}
	item := m.toItem(ctx, n, false)
	return &item, nil
}

// CreateLink returns a generated sharing URL. Links are not persisted.
func (m *MemoryAdapter) CreateLink(ctx context.Context, id string, linkType model.LinkType) (*model.Link, error) {
	if !linkType.Valid() {
		return nil, fmt.Errorf("%w: unknown link type %q", adapter.ErrInvalidRequest, linkType)
	}
	n, err := m.node(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.Link{
		URL:  fmt.Sprintf("%s/s/%s/%s?%s", linkBaseURL, n.ID, uuid.New().String(), linkType),
		Type: linkType,
	}, nil
}

// Thumbnail returns the stored bytes of an image file; they are scaled by the caller.
func (m *MemoryAdapter) Thumbnail(ctx context.Context, id string) ([]byte, error) {
	n, err := m.node(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.IsFolder || !isImage(n.MIMEType) {
		return nil, fmt.Errorf("%w: no thumbnail for %s", adapter.ErrNotFound, n.Name)
	}
	return n.Content, nil
}

// Content returns the stored bytes of a file.
func (m *MemoryAdapter) Content(ctx context.Context, id string) ([]byte, error) {
	n, err := m.node(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.IsFolder {
		return nil, fmt.Errorf("%w: %s is a folder", adapter.ErrInvalidRequest, n.Name)
	}
	return n.Content, nil
}
