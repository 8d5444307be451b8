package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jun/gophdrive/explorer/internal/adapter"
	"github.com/jun/gophdrive/explorer/internal/browser"
	"github.com/jun/gophdrive/explorer/internal/logging"
	"github.com/jun/gophdrive/explorer/internal/model"
	"github.com/jun/gophdrive/explorer/internal/prefs"
	"github.com/jun/gophdrive/explorer/internal/thumbs"
	"go.uber.org/zap"
)

// thumbnailUsers bounds how many per-user thumbnail caches are kept.
const thumbnailUsers = 128

// ItemConfig tunes the per-request controllers.
type ItemConfig struct {
	Options            browser.Options
	ThumbnailCacheSize int
	Checker            browser.Connectivity
}

// ItemHandler exposes the browsing controller over API Gateway.
type ItemHandler struct {
	storageProvider adapter.StorageProvider
	prefs           prefs.Store
	jwtSecret       string
	cfg             ItemConfig
	caches          *lru.Cache[string, *thumbs.Cache]
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(provider adapter.StorageProvider, store prefs.Store, jwtSecret string, cfg ItemConfig) *ItemHandler {
	caches, _ := lru.New[string, *thumbs.Cache](thumbnailUsers)
	return &ItemHandler{
		storageProvider: provider,
		prefs:           store,
		jwtSecret:       jwtSecret,
		cfg:             cfg,
		caches:          caches,
	}
}

// itemResponse is the body returned by every item endpoint.
type itemResponse struct {
	State        *browser.State     `json:"state,omitempty"`
	Item         *model.Item        `json:"item,omitempty"`
	Link         *model.Link        `json:"link,omitempty"`
	Notices      []string           `json:"notices,omitempty"`
	Progress     []browser.Progress `json:"progress,omitempty"`
	NavigateBack string             `json:"navigateBack,omitempty"`
}

func (h *ItemHandler) thumbCache(userID string) *thumbs.Cache {
	if c, ok := h.caches.Get(userID); ok {
		return c
	}
	c, err := thumbs.NewCache(h.cfg.ThumbnailCacheSize)
	if err != nil {
		return nil
	}
	h.caches.Add(userID, c)
	return c
}

// controller builds a browsing controller for the authenticated user.
func (h *ItemHandler) controller(ctx context.Context, req events.APIGatewayProxyRequest) (*browser.Controller, *browser.Recorder, string, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return nil, nil, "", fmt.Errorf("unauthorized: %w", err)
	}
	service, err := h.storageProvider.GetAdapter(ctx, userID)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to get drive adapter: %w", err)
	}
	rec := &browser.Recorder{}
	c := browser.New(browser.Deps{
		Service:   service,
		Presenter: rec,
		Thumbs:    h.thumbCache(userID),
		Checker:   h.cfg.Checker,
		Prefs:     h.prefs,
		UserID:    userID,
		Logger:    logging.WithContext(ctx).With(zap.String("user_id", userID)),
		Options:   h.cfg.Options,
	})
	return c, rec, userID, nil
}

func unauthorized(err error) events.APIGatewayProxyResponse {
	return textResponse(http.StatusUnauthorized, err.Error())
}

func currentState(c *browser.Controller) *browser.State {
	s := c.State()
	if s.ItemID == "" {
		return nil
	}
	return &s
}

// GetItem loads an item with its children.
func (h *ItemHandler) GetItem(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	c, rec, _, err := h.controller(ctx, req)
	if err != nil {
		return unauthorized(err), nil
	}
	defer c.Close()

	if _, err := c.LoadItem(ctx, req.PathParameters["id"]); err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, itemResponse{State: currentState(c), Notices: rec.Notices()}), nil
}

// ResolvePath looks up ?path= relative to the item.
func (h *ItemHandler) ResolvePath(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	c, _, _, err := h.controller(ctx, req)
	if err != nil {
		return unauthorized(err), nil
	}
	defer c.Close()

	item, err := c.ResolveByPath(ctx, req.PathParameters["id"], req.QueryStringParameters["path"])
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, itemResponse{Item: item}), nil
}

type nameBody struct {
	Name string `json:"name"`
}

// CreateFolder creates a child folder and returns the reloaded parent.
func (h *ItemHandler) CreateFolder(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	c, rec, _, err := h.controller(ctx, req)
	if err != nil {
		return unauthorized(err), nil
	}
	defer c.Close()

	var body nameBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return textResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	folder, err := c.CreateFolder(ctx, req.PathParameters["id"], body.Name)
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusCreated, itemResponse{Item: folder, State: currentState(c), Notices: rec.Notices()}), nil
}

// RenameItem renames an item. With ?parentId= the parent listing is loaded
// first so the response carries the refreshed listing.
func (h *ItemHandler) RenameItem(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	c, rec, _, err := h.controller(ctx, req)
	if err != nil {
		return unauthorized(err), nil
	}
	defer c.Close()

	var body nameBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return textResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	if parentID := req.QueryStringParameters["parentId"]; parentID != "" {
		if _, err := c.LoadItem(ctx, parentID); err != nil {
			return errorResponse(err), nil
		}
	}
	item, err := c.RenameItem(ctx, req.PathParameters["id"], body.Name)
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, itemResponse{Item: item, State: currentState(c), Notices: rec.Notices()}), nil
}

// DeleteItem deletes an item.
func (h *ItemHandler) DeleteItem(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	c, rec, _, err := h.controller(ctx, req)
	if err != nil {
		return unauthorized(err), nil
	}
	defer c.Close()

	if err := c.DeleteItem(ctx, req.PathParameters["id"]); err != nil {
		return errorResponse(err), nil
	}
	back := rec.NavigatedBack()
	resp := itemResponse{Notices: rec.Notices()}
	if len(back) > 0 {
		resp.NavigateBack = back[0]
	}
	return jsonResponse(http.StatusOK, resp), nil
}

// UploadContent stores the request body as ?name= under the item.
func (h *ItemHandler) UploadContent(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	c, rec, _, err := h.controller(ctx, req)
	if err != nil {
		return unauthorized(err), nil
	}
	defer c.Close()

	contentType := req.Headers["Content-Type"]
	if contentType == "" {
		contentType = req.Headers["content-type"]
	}
	if !adapter.AcceptsUpload(contentType) {
		return textResponse(http.StatusUnsupportedMediaType, "Unsupported content type"), nil
	}

	content := []byte(req.Body)
	if req.IsBase64Encoded {
		content, err = base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return textResponse(http.StatusBadRequest, "Invalid base64 body"), nil
		}
	}

	task := c.UploadContent(ctx, req.PathParameters["id"], req.QueryStringParameters["name"], content)
	item, err := task.Wait()
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusCreated, itemResponse{
		Item:     item,
		State:    currentState(c),
		Notices:  rec.Notices(),
		Progress: rec.Progress(),
	}), nil
}

// CreateLink creates a sharing link of the requested type.
func (h *ItemHandler) CreateLink(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	c, _, _, err := h.controller(ctx, req)
	if err != nil {
		return unauthorized(err), nil
	}
	defer c.Close()

	var body struct {
		Type model.LinkType `json:"type"`
	}
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return textResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	link, err := c.CreateSharingLink(ctx, req.PathParameters["id"], body.Type)
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, itemResponse{Link: link}), nil
}

// Download redirects to the item's content URL.
func (h *ItemHandler) Download(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	c, _, _, err := h.controller(ctx, req)
	if err != nil {
		return unauthorized(err), nil
	}
	defer c.Close()

	url, err := c.Download(ctx, req.PathParameters["id"])
	if err != nil {
		return errorResponse(err), nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers:    map[string]string{"Location": url},
	}, nil
}

// Thumbnail returns the item's thumbnail as a PNG, served from the cache when possible.
func (h *ItemHandler) Thumbnail(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return unauthorized(err), nil
	}
	id := req.PathParameters["id"]
	cache := h.thumbCache(userID)

	img, ok := cache.Get(id)
	if !ok {
		service, err := h.storageProvider.GetAdapter(ctx, userID)
		if err != nil {
			return textResponse(http.StatusInternalServerError, "Failed to get drive adapter"), nil
		}
		data, err := service.Thumbnail(ctx, id)
		if err != nil {
			if errors.Is(err, adapter.ErrNotFound) {
				return textResponse(http.StatusNotFound, "No thumbnail"), nil
			}
			logging.WithContext(ctx).Warn("thumbnail fetch failed", zap.String("item_id", id), zap.Error(err))
			return textResponse(http.StatusBadGateway, "Failed to fetch thumbnail"), nil
		}
		if img, err = thumbs.Decode(data); err != nil {
			return textResponse(http.StatusUnsupportedMediaType, "Thumbnail is not an image"), nil
		}
		cache.Put(id, img)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return textResponse(http.StatusInternalServerError, "Failed to encode thumbnail"), nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode:      http.StatusOK,
		Body:            base64.StdEncoding.EncodeToString(buf.Bytes()),
		IsBase64Encoded: true,
		Headers: map[string]string{
			"Content-Type":  "image/png",
			"Cache-Control": "private, max-age=300",
		},
	}, nil
}

// GetCopyDestination returns the remembered copy destination id.
func (h *ItemHandler) GetCopyDestination(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	c, _, _, err := h.controller(ctx, req)
	if err != nil {
		return unauthorized(err), nil
	}
	defer c.Close()

	id, err := c.CopyDestination(ctx)
	if errors.Is(err, prefs.ErrNotSet) {
		return textResponse(http.StatusNotFound, "No copy destination set"), nil
	}
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, map[string]string{"id": id}), nil
}

// SetCopyDestination remembers the folder given as {"id": ...}.
func (h *ItemHandler) SetCopyDestination(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	c, rec, userID, err := h.controller(ctx, req)
	if err != nil {
		return unauthorized(err), nil
	}
	defer c.Close()

	var body struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil || body.ID == "" {
		return textResponse(http.StatusBadRequest, "Folder id is required"), nil
	}

	service, err := h.storageProvider.GetAdapter(ctx, userID)
	if err != nil {
		return textResponse(http.StatusInternalServerError, "Failed to get drive adapter"), nil
	}
	folder, err := service.GetItem(ctx, body.ID, "")
	if err != nil {
		return errorResponse(err), nil
	}
	if err := c.SetCopyDestination(ctx, folder); err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, itemResponse{Item: folder, Notices: rec.Notices()}), nil
}
