package adapter

import (
	"context"
	"io"
	"mime"
	"strings"

	"github.com/jun/gophdrive/explorer/internal/model"
)

// Expansion directives requested when loading an item.
const (
	ExpandChildrenAndThumbnails        = "children(expand=thumbnails),thumbnails"
	ExpandChildrenAndThumbnailsLimited = "children,thumbnails"
)

// AcceptedUploadTypes is the content filter offered when picking a file to upload.
const AcceptedUploadTypes = "*/*"

// AcceptsUpload reports whether contentType passes AcceptedUploadTypes. A
// missing content type is accepted.
func AcceptsUpload(contentType string) bool {
	return acceptsType(AcceptedUploadTypes, contentType)
}

func acceptsType(pattern, contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, p := range strings.Split(pattern, ",") {
		p = strings.TrimSpace(p)
		switch {
		case p == "*/*" || p == mediaType:
			return true
		case strings.HasSuffix(p, "/*") && strings.HasPrefix(mediaType, strings.TrimSuffix(p, "*")):
			return true
		}
	}
	return false
}

// ConflictBehavior controls what happens when an upload collides with an existing name.
type ConflictBehavior string

const (
	ConflictFail    ConflictBehavior = "fail"
	ConflictReplace ConflictBehavior = "replace"
	ConflictRename  ConflictBehavior = "rename"
)

// ProgressFunc receives the number of bytes sent so far and the total.
type ProgressFunc func(current, total int64)

// DriveService defines the remote operations the explorer performs against a drive.
// This abstraction allows switching between providers (Microsoft Graph, Google Drive)
// without changing the browsing logic.
type DriveService interface {
	// GetItem fetches an item, inlining the sub-resources named by expand.
	// The id model.RootID addresses the drive root.
	GetItem(ctx context.Context, id, expand string) (*model.Item, error)

	// ResolvePath fetches the item found at a relative path under anchorID.
	ResolvePath(ctx context.Context, anchorID, path, expand string) (*model.Item, error)

	// CreateFolder creates a folder child under parentID.
	CreateFolder(ctx context.Context, parentID, name string) (*model.Item, error)

	// RenameItem applies a partial update carrying only the new name.
	RenameItem(ctx context.Context, id, newName string) (*model.Item, error)

	// DeleteItem deletes a file or folder by its ID.
	DeleteItem(ctx context.Context, id string) error

	// UploadContent uploads size bytes from r as a child named name.
	// progress may be nil.
	UploadContent(ctx context.Context, parentID, name string, r io.Reader, size int64, conflict ConflictBehavior, progress ProgressFunc) (*model.Item, error)

	// CreateLink creates a sharing link of the given type.
	CreateLink(ctx context.Context, id string, linkType model.LinkType) (*model.Link, error)

	// Thumbnail returns the encoded bytes of the item's small thumbnail.
	Thumbnail(ctx context.Context, id string) ([]byte, error)
}
