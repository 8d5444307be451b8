package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jun/gophdrive/explorer/internal/adapter/memory"
	"github.com/jun/gophdrive/explorer/internal/auth"
	"github.com/jun/gophdrive/explorer/internal/config"
	"github.com/jun/gophdrive/explorer/internal/crypto"
	"github.com/jun/gophdrive/explorer/internal/handler"
	"github.com/jun/gophdrive/explorer/internal/model"
	"github.com/jun/gophdrive/explorer/internal/prefs"
)

const testSecret = "router-secret"

func testApp(t *testing.T, origin string) *App {
	t.Helper()
	cfg := config.Default()
	cfg.DriveProvider = config.ProviderMemory

	authService := auth.NewAuthService(auth.ProviderMicrosoft,
		auth.NewOAuthConfig(auth.ProviderMicrosoft, "id", "secret", cfg.RedirectURL()),
		nil, "tokens", crypto.NewMockEncryptor())
	mem := memory.NewProvider(nil, "")
	provider := &HybridProvider{driveProvider: mem, memoryProvider: mem}

	return &App{
		authHandler:  handler.NewAuthHandler(authService, provider, testSecret, handler.AuthConfig{FrontendURL: cfg.FrontendURL}),
		itemHandler:  handler.NewItemHandler(provider, prefs.NewStore(nil, ""), testSecret, handler.ItemConfig{}),
		cfg:          cfg,
		originSecret: origin,
	}
}

func request(t *testing.T, method, path, body string) events.APIGatewayProxyRequest {
	t.Helper()
	token, err := handler.SignSession(testSecret, "router-user", "", "", time.Hour)
	require.NoError(t, err)
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Body:       body,
		Headers:    map[string]string{"Authorization": "Bearer " + token},
	}
}

func TestHandleRequest_ItemRoutes(t *testing.T) {
	app := testApp(t, "")
	ctx := context.Background()

	resp, err := app.HandleRequest(ctx, request(t, http.MethodPost, "/api/items/root/children", `{"name":"Docs"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
	assert.Equal(t, "http://localhost:3000", resp.Headers["Access-Control-Allow-Origin"])

	var created struct {
		Item model.Item `json:"item"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &created))

	resp, err = app.HandleRequest(ctx, request(t, http.MethodGet, "/items/root", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, `"name":"Docs"`)

	req := request(t, http.MethodGet, "/items/root/resolve", "")
	req.QueryStringParameters = map[string]string{"path": "Docs"}
	resp, err = app.HandleRequest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, created.Item.ID)

	req = request(t, http.MethodPatch, "/items/"+created.Item.ID, `{"name":"Papers"}`)
	req.QueryStringParameters = map[string]string{"parentId": model.RootID}
	resp, err = app.HandleRequest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, `Renamed \"Docs\" to \"Papers\".`)

	resp, err = app.HandleRequest(ctx, request(t, http.MethodDelete, "/items/"+created.Item.ID, ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleRequest_NotFound(t *testing.T) {
	app := testApp(t, "")
	for _, path := range []string{"/nowhere", "/items/", "/items/a/b/c", "/items/root/unknown", "/auth/whoami"} {
		resp, err := app.HandleRequest(context.Background(), request(t, http.MethodGet, path, ""))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestHandleRequest_Preflight(t *testing.T) {
	app := testApp(t, "s3cret")
	resp, err := app.HandleRequest(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodOptions, Path: "/items/root"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, strings.Contains(resp.Headers["Access-Control-Allow-Methods"], "PATCH"))
}

func TestHandleRequest_OriginVerify(t *testing.T) {
	app := testApp(t, "s3cret")

	resp, err := app.HandleRequest(context.Background(), request(t, http.MethodGet, "/items/root", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req := request(t, http.MethodGet, "/items/root", "")
	req.Headers["x-origin-verify"] = "s3cret"
	resp, err = app.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	app.cfg.DevMode = true
	resp, err = app.HandleRequest(context.Background(), request(t, http.MethodGet, "/items/root", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleRequest_CopyDestination(t *testing.T) {
	app := testApp(t, "")
	ctx := context.Background()

	resp, err := app.HandleRequest(ctx, request(t, http.MethodGet, "/prefs/copy-destination", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.HandleRequest(ctx, request(t, http.MethodPut, "/prefs/copy-destination", `{"id":"root"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	resp, err = app.HandleRequest(ctx, request(t, http.MethodGet, "/api/prefs/copy-destination", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"root"}`, resp.Body)
}

func TestHybridProvider_RoutesDemoUsers(t *testing.T) {
	demo := memory.NewProvider(nil, "")
	primary := memory.NewProvider(nil, "")
	p := &HybridProvider{driveProvider: primary, memoryProvider: demo}
	ctx := context.Background()

	d, err := p.GetAdapter(ctx, handler.DemoUserPrefix+"1")
	require.NoError(t, err)
	_, err = d.CreateFolder(ctx, model.RootID, "OnlyDemo")
	require.NoError(t, err)

	fromDemo, _ := demo.GetAdapter(ctx, handler.DemoUserPrefix+"1")
	assert.Same(t, d, fromDemo)

	r, err := p.GetAdapter(ctx, "real-user")
	require.NoError(t, err)
	fromReal, _ := primary.GetAdapter(ctx, "real-user")
	assert.Same(t, r, fromReal)
}
