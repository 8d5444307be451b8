package googledrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jun/gophdrive/explorer/internal/adapter"
	"github.com/jun/gophdrive/explorer/internal/model"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Fields requested for every item. Children omit thumbnailLink under the limited expansion.
const (
	itemFields      = "id, name, mimeType, modifiedTime, size, parents, webViewLink, webContentLink, thumbnailLink"
	childFields     = "nextPageToken, files(" + itemFields + ")"
	childFieldsLite = "nextPageToken, files(id, name, mimeType, modifiedTime, size, parents, webViewLink, webContentLink)"
	childPageSize   = 200
)

// DriveAdapter implements adapter.DriveService for Google Drive.
type DriveAdapter struct {
	service *drive.Service
	client  *http.Client
}

// NewDriveAdapter creates a new DriveAdapter.
// client should be an authenticated http.Client with specific user credentials.
func NewDriveAdapter(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*DriveAdapter, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %v", err)
	}
	return &DriveAdapter{service: srv, client: client}, nil
}

// escapeQuery quotes a value for use inside a Drive query string literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// mapError converts a googleapi error into the adapter sentinels.
func mapError(err error) error {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return err
	}
	switch gErr.Code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", adapter.ErrNotFound, gErr.Message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", adapter.ErrUnauthorized, gErr.Message)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", adapter.ErrInvalidRequest, gErr.Message)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", adapter.ErrNameAlreadyExists, gErr.Message)
	}
	return &adapter.APIError{Status: gErr.Code, Message: gErr.Message}
}

// toItem maps a Drive file onto the explorer's item shape.
func toItem(f *drive.File) model.Item {
	modTime, _ := time.Parse(time.RFC3339, f.ModifiedTime)
	item := model.Item{
		ID:           f.Id,
		Name:         f.Name,
		Size:         f.Size,
		LastModified: modTime,
		WebURL:       f.WebViewLink,
		DownloadURL:  f.WebContentLink,
	}
	if len(f.Parents) > 0 {
		item.ParentReference = &model.ItemReference{ID: f.Parents[0]}
	}
	if f.MimeType == folderMimeType {
		item.Folder = &model.Folder{}
	} else {
		item.File = &model.File{MimeType: f.MimeType}
	}
	if f.ThumbnailLink != "" {
		item.Thumbnails = []model.ThumbnailSet{{ID: "0", Small: &model.Thumbnail{URL: f.ThumbnailLink}}}
	}
	return item
}

// GetItem fetches an item and, when expand asks for children, its first page of children.
func (d *DriveAdapter) GetItem(ctx context.Context, id, expand string) (*model.Item, error) {
	f, err := d.service.Files.Get(id).
		Context(ctx).
		SupportsAllDrives(true).
		Fields(itemFields).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to get item %s: %w", id, mapError(err))
	}

	item := toItem(f)
	if item.IsFolder() && strings.Contains(expand, "children") {
		fields := childFieldsLite
		if strings.Contains(expand, "children(expand=thumbnails)") {
			fields = childFields
		}
		r, err := d.service.Files.List().
			Context(ctx).
			Q(fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(f.Id))).
			Fields(googleapi.Field(fields)).
			OrderBy("folder,name").
			PageSize(childPageSize).
			Do()
		if err != nil {
			return nil, fmt.Errorf("unable to list children of %s: %w", id, mapError(err))
		}
		for _, c := range r.Files {
			item.Children = append(item.Children, toItem(c))
		}
		item.Folder.ChildCount = len(item.Children)
	}

	raw, err := json.Marshal(f)
	if err == nil {
		item.Raw = raw
	}
	return &item, nil
}

// findChild returns the ID of the named child of parentID, or "" when absent.
func (d *DriveAdapter) findChild(ctx context.Context, parentID, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), escapeQuery(parentID))
	r, err := d.service.Files.List().Context(ctx).Q(q).Fields("files(id)").PageSize(1).Do()
	if err != nil {
		return "", mapError(err)
	}
	if len(r.Files) == 0 {
		return "", nil
	}
	return r.Files[0].Id, nil
}

// ResolvePath walks path one name at a time starting at anchorID.
func (d *DriveAdapter) ResolvePath(ctx context.Context, anchorID, path, expand string) (*model.Item, error) {
	current := anchorID
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		id, err := d.findChild(ctx, current, seg)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve path %q: %w", path, err)
		}
		if id == "" {
			return nil, fmt.Errorf("unable to resolve path %q: %w: %s", path, adapter.ErrNotFound, seg)
		}
		current = id
	}
	return d.GetItem(ctx, current, expand)
}

// CreateFolder creates a new folder, failing if the name is taken.
func (d *DriveAdapter) CreateFolder(ctx context.Context, parentID, name string) (*model.Item, error) {
	existing, err := d.findChild(ctx, parentID, name)
	if err != nil {
		return nil, fmt.Errorf("unable to create folder: %w", err)
	}
	if existing != "" {
		return nil, fmt.Errorf("unable to create folder: %w: %s", adapter.ErrNameAlreadyExists, name)
	}

	f := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}
	res, err := d.service.Files.Create(f).
		Context(ctx).
		SupportsAllDrives(true).
		Fields(itemFields).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to create folder: %w", mapError(err))
	}
	item := toItem(res)
	return &item, nil
}

// RenameItem renames a file or folder.
func (d *DriveAdapter) RenameItem(ctx context.Context, id, newName string) (*model.Item, error) {
	res, err := d.service.Files.Update(id, &drive.File{Name: newName}).
		Context(ctx).
		SupportsAllDrives(true).
		Fields(itemFields).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to rename item: %w", mapError(err))
	}
	item := toItem(res)
	return &item, nil
}

// DeleteItem deletes a file or folder by its ID.
func (d *DriveAdapter) DeleteItem(ctx context.Context, id string) error {
	if err := d.service.Files.Delete(id).Context(ctx).SupportsAllDrives(true).Do(); err != nil {
		return fmt.Errorf("unable to delete item: %w", mapError(err))
	}
	return nil
}

// UploadContent creates a file under parentID. Drive permits duplicate names,
// so ConflictFail and ConflictReplace are enforced with a lookup first.
func (d *DriveAdapter) UploadContent(ctx context.Context, parentID, name string, r io.Reader, size int64, conflict adapter.ConflictBehavior, progress adapter.ProgressFunc) (*model.Item, error) {
	body := adapter.NewProgressReader(r, size, progress)

	if conflict != adapter.ConflictRename {
		existing, err := d.findChild(ctx, parentID, name)
		if err != nil {
			return nil, fmt.Errorf("unable to upload %s: %w", name, err)
		}
		if existing != "" {
			if conflict != adapter.ConflictReplace {
				return nil, fmt.Errorf("unable to upload %s: %w", name, adapter.ErrNameAlreadyExists)
			}
			res, err := d.service.Files.Update(existing, &drive.File{}).
				Context(ctx).
				Media(body).
				SupportsAllDrives(true).
				Fields(itemFields).
				Do()
			if err != nil {
				return nil, fmt.Errorf("unable to upload %s: %w", name, mapError(err))
			}
			item := toItem(res)
			return &item, nil
		}
	}

	f := &drive.File{
		Name:    name,
		Parents: []string{parentID},
	}
	res, err := d.service.Files.Create(f).
		Context(ctx).
		Media(body).
		SupportsAllDrives(true).
		Fields(itemFields).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to upload %s: %w", name, mapError(err))
	}
	item := toItem(res)
	return &item, nil
}

// CreateLink grants anyone-with-the-link access and returns the item's web link.
func (d *DriveAdapter) CreateLink(ctx context.Context, id string, linkType model.LinkType) (*model.Link, error) {
	role := "reader"
	if linkType == model.LinkEdit {
		role = "writer"
	}

	_, err := d.service.Permissions.Create(id, &drive.Permission{Type: "anyone", Role: role}).
		Context(ctx).
		SupportsAllDrives(true).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to create link: %w", mapError(err))
	}

	f, err := d.service.Files.Get(id).Context(ctx).SupportsAllDrives(true).Fields("webViewLink").Do()
	if err != nil {
		return nil, fmt.Errorf("unable to create link: %w", mapError(err))
	}
	return &model.Link{URL: f.WebViewLink, Type: linkType}, nil
}

// Thumbnail downloads the image behind the item's thumbnailLink.
func (d *DriveAdapter) Thumbnail(ctx context.Context, id string) ([]byte, error) {
	f, err := d.service.Files.Get(id).Context(ctx).Fields("thumbnailLink").Do()
	if err != nil {
		return nil, fmt.Errorf("unable to get thumbnail: %w", mapError(err))
	}
	if f.ThumbnailLink == "" {
		return nil, fmt.Errorf("unable to get thumbnail: %w: no thumbnail for %s", adapter.ErrNotFound, id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ThumbnailLink, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to download thumbnail: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unable to download thumbnail: %w", &adapter.APIError{Status: resp.StatusCode})
	}
	return io.ReadAll(resp.Body)
}
