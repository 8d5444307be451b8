package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jun/gophdrive/explorer/internal/adapter"
	"github.com/jun/gophdrive/explorer/internal/model"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// GraphAdapter implements adapter.DriveService for OneDrive through Microsoft Graph.
type GraphAdapter struct {
	client  *http.Client
	baseURL string
}

// NewGraphAdapter creates a new GraphAdapter.
// client should be an authenticated http.Client with the user's credentials.
func NewGraphAdapter(client *http.Client, baseURL string) *GraphAdapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &GraphAdapter{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// itemURL maps an item id to its resource URL. The root alias goes to the default drive root.
func (g *GraphAdapter) itemURL(id string) string {
	if id == model.RootID {
		return g.baseURL + "/me/drive/root"
	}
	return g.baseURL + "/me/drive/items/" + url.PathEscape(id)
}

// escapePath escapes each segment of a relative path, dropping empty segments.
func escapePath(path string) string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s == "" {
			continue
		}
		segments = append(segments, url.PathEscape(s))
	}
	return strings.Join(segments, "/")
}

func withExpand(u, expand string) string {
	if expand == "" {
		return u
	}
	return u + "?" + url.Values{"$expand": {expand}}.Encode()
}

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// mapError categorizes a non-success Graph response.
func mapError(status int, body []byte) error {
	var gErr graphError
	if err := json.Unmarshal(body, &gErr); err == nil && gErr.Error.Code != "" {
		msg := gErr.Error.Message
		switch gErr.Error.Code {
		case "nameAlreadyExists":
			return fmt.Errorf("%w: %s", adapter.ErrNameAlreadyExists, msg)
		case "itemNotFound":
			return fmt.Errorf("%w: %s", adapter.ErrNotFound, msg)
		case "unauthenticated", "accessDenied":
			return fmt.Errorf("%w: %s", adapter.ErrUnauthorized, msg)
		case "invalidRequest", "notAllowed", "notSupported", "invalidRange":
			return fmt.Errorf("%w: %s", adapter.ErrInvalidRequest, msg)
		}
		return &adapter.APIError{Status: status, Code: gErr.Error.Code, Message: msg}
	}

	switch status {
	case http.StatusNotFound, http.StatusGone:
		return adapter.ErrNotFound
	case http.StatusConflict:
		return adapter.ErrNameAlreadyExists
	case http.StatusUnauthorized, http.StatusForbidden:
		return adapter.ErrUnauthorized
	case http.StatusBadRequest:
		return adapter.ErrInvalidRequest
	}
	return &adapter.APIError{Status: status, Message: strings.TrimSpace(string(body))}
}

// do sends the request and returns the response body of a successful call.
func (g *GraphAdapter) do(ctx context.Context, method, u string, body io.Reader, contentType string, size int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request failed: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if size >= 0 && body != nil {
		req.ContentLength = size
	}
	req.Header.Set("Accept", "application/json")

	res, err := g.client.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: %v", adapter.ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read response: %w", err)
	}
	if res.StatusCode >= 400 {
		return nil, mapError(res.StatusCode, resBody)
	}
	return resBody, nil
}

func (g *GraphAdapter) doJSON(ctx context.Context, method, u string, payload any) ([]byte, error) {
	if payload == nil {
		return g.do(ctx, method, u, nil, "", -1)
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}
	return g.do(ctx, method, u, bytes.NewReader(buf), "application/json", int64(len(buf)))
}

// decodeItem parses an item and keeps the raw payload for diagnostics.
func decodeItem(body []byte) (*model.Item, error) {
	var item model.Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("decoding item failed: %w", err)
	}
	item.Raw = json.RawMessage(body)
	return &item, nil
}

// GetItem fetches an item with the requested expansion.
func (g *GraphAdapter) GetItem(ctx context.Context, id, expand string) (*model.Item, error) {
	body, err := g.doJSON(ctx, http.MethodGet, withExpand(g.itemURL(id), expand), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to get item %s: %w", id, err)
	}
	return decodeItem(body)
}

// ResolvePath fetches the item at path relative to anchorID.
func (g *GraphAdapter) ResolvePath(ctx context.Context, anchorID, path, expand string) (*model.Item, error) {
	escaped := escapePath(path)
	if escaped == "" {
		return g.GetItem(ctx, anchorID, expand)
	}
	u := g.itemURL(anchorID) + ":/" + escaped + ":"
	body, err := g.doJSON(ctx, http.MethodGet, withExpand(u, expand), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve path %q: %w", path, err)
	}
	return decodeItem(body)
}

// CreateFolder creates a new folder under parentID.
func (g *GraphAdapter) CreateFolder(ctx context.Context, parentID, name string) (*model.Item, error) {
	payload := map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": string(adapter.ConflictFail),
	}
	body, err := g.doJSON(ctx, http.MethodPost, g.itemURL(parentID)+"/children", payload)
	if err != nil {
		return nil, fmt.Errorf("unable to create folder: %w", err)
	}
	return decodeItem(body)
}

// RenameItem sends a partial update carrying only id and name.
func (g *GraphAdapter) RenameItem(ctx context.Context, id, newName string) (*model.Item, error) {
	payload := map[string]string{"id": id, "name": newName}
	body, err := g.doJSON(ctx, http.MethodPatch, g.itemURL(id), payload)
	if err != nil {
		return nil, fmt.Errorf("unable to rename item: %w", err)
	}
	return decodeItem(body)
}

// DeleteItem deletes an item by its ID.
func (g *GraphAdapter) DeleteItem(ctx context.Context, id string) error {
	if _, err := g.doJSON(ctx, http.MethodDelete, g.itemURL(id), nil); err != nil {
		return fmt.Errorf("unable to delete item: %w", err)
	}
	return nil
}

// UploadContent performs a simple upload of the whole body as a new child.
func (g *GraphAdapter) UploadContent(ctx context.Context, parentID, name string, r io.Reader, size int64, conflict adapter.ConflictBehavior, progress adapter.ProgressFunc) (*model.Item, error) {
	if conflict == "" {
		conflict = adapter.ConflictFail
	}
	u := g.itemURL(parentID) + ":/" + url.PathEscape(name) + ":/content?@name.conflictBehavior=" + string(conflict)
	body, err := g.do(ctx, http.MethodPut, u, adapter.NewProgressReader(r, size, progress), "application/octet-stream", size)
	if err != nil {
		return nil, fmt.Errorf("unable to upload %s: %w", name, err)
	}
	return decodeItem(body)
}

// CreateLink creates a sharing link and returns its URL.
func (g *GraphAdapter) CreateLink(ctx context.Context, id string, linkType model.LinkType) (*model.Link, error) {
	body, err := g.doJSON(ctx, http.MethodPost, g.itemURL(id)+"/createLink", map[string]string{"type": string(linkType)})
	if err != nil {
		return nil, fmt.Errorf("unable to create link: %w", err)
	}

	var permission struct {
		Link model.Link `json:"link"`
	}
	if err := json.Unmarshal(body, &permission); err != nil {
		return nil, fmt.Errorf("decoding permission failed: %w", err)
	}
	if permission.Link.Type == "" {
		permission.Link.Type = linkType
	}
	return &permission.Link, nil
}

// Thumbnail downloads the small rendition of the item's first thumbnail set.
func (g *GraphAdapter) Thumbnail(ctx context.Context, id string) ([]byte, error) {
	body, err := g.do(ctx, http.MethodGet, g.itemURL(id)+"/thumbnails/0/small/content", nil, "", -1)
	if err != nil {
		return nil, fmt.Errorf("unable to download thumbnail: %w", err)
	}
	return body, nil
}
