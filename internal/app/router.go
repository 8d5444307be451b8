package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jun/gophdrive/explorer/internal/logging"
)

type route func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// itemRoutes maps /items/{id}/<action> and method to a handler.
func (app *App) itemRoutes(action, method string) route {
	h := app.itemHandler
	switch action + " " + method {
	case " GET":
		return h.GetItem
	case " PATCH":
		return h.RenameItem
	case " DELETE":
		return h.DeleteItem
	case "resolve GET":
		return h.ResolvePath
	case "children POST":
		return h.CreateFolder
	case "content PUT":
		return h.UploadContent
	case "link POST":
		return h.CreateLink
	case "thumbnail GET":
		return h.Thumbnail
	case "download GET":
		return h.Download
	}
	return nil
}

func (app *App) authRoutes(path, method string) route {
	h := app.authHandler
	switch path + " " + method {
	case "/auth/login GET":
		return h.Login
	case "/auth/callback GET":
		return h.Callback
	case "/auth/demo-login GET":
		return h.DemoLogin
	case "/auth/logout POST":
		return h.Logout
	}
	return nil
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	requestID := req.RequestContext.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx = logging.WithRequestID(ctx, requestID)
	logger := logging.WithContext(ctx)

	path := req.Path
	method := req.HTTPMethod
	start := time.Now()

	if method == http.MethodOptions {
		return app.corsResponse(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	// Only CloudFront knows the origin secret.
	if !app.cfg.DevMode && app.originSecret != "" {
		if verify := req.Headers["X-Origin-Verify"]; verify != app.originSecret && req.Headers["x-origin-verify"] != app.originSecret {
			logger.Warn("missing or invalid origin header", zap.String("path", path))
			return events.APIGatewayProxyResponse{StatusCode: http.StatusForbidden, Body: "Forbidden: Access denied"}, nil
		}
	}

	// CloudFront forwards /api/*.
	path = strings.TrimPrefix(path, "/api")
	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}
	if req.QueryStringParameters == nil {
		req.QueryStringParameters = make(map[string]string)
	}

	var h route
	switch {
	case strings.HasPrefix(path, "/auth/"):
		h = app.authRoutes(path, method)
	case path == "/prefs/copy-destination" && method == http.MethodGet:
		h = app.itemHandler.GetCopyDestination
	case path == "/prefs/copy-destination" && method == http.MethodPut:
		h = app.itemHandler.SetCopyDestination
	case strings.HasPrefix(path, "/items/"):
		parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/items/"), "/"), "/")
		if len(parts) <= 2 && parts[0] != "" {
			req.PathParameters["id"] = parts[0]
			action := ""
			if len(parts) == 2 {
				action = parts[1]
			}
			h = app.itemRoutes(action, method)
		}
	}

	if h == nil {
		return app.corsResponse(events.APIGatewayProxyResponse{
			StatusCode: http.StatusNotFound,
			Body:       fmt.Sprintf("Not Found: %s %s", method, path),
		}), nil
	}

	resp := must(ctx, h, req)
	logger.Info("request handled",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return app.corsResponse(resp), nil
}

// corsResponse adds CORS headers to an API Gateway response.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.cfg.FrontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,PUT,DELETE,OPTIONS,PATCH"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization"
	return resp
}

// must runs h, turning a handler error into a 500.
func must(ctx context.Context, h route, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	resp, err := h(ctx, req)
	if err != nil {
		logging.WithContext(ctx).Error("handler error", zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
