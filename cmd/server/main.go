package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/jun/gophdrive/explorer/internal/app"
	"github.com/jun/gophdrive/explorer/internal/config"
	"github.com/jun/gophdrive/explorer/internal/logging"
	"github.com/jun/gophdrive/explorer/internal/metrics"
)

// textual reports whether a request body can be passed to the handlers as-is.
func textual(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType == ""
	}
	return strings.HasPrefix(mediaType, "text/") || mediaType == "application/json"
}

// toEvent converts an HTTP request into the API Gateway shape the handlers expect.
func toEvent(r *http.Request) (events.APIGatewayProxyRequest, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return events.APIGatewayProxyRequest{}, err
	}

	headers := make(map[string]string)
	for k, v := range r.Header {
		headers[k] = strings.Join(v, ", ")
	}
	// Cookies are joined with "; ", not ", ".
	if c := r.Header.Values("Cookie"); len(c) > 0 {
		headers["Cookie"] = strings.Join(c, "; ")
	}

	queryParams := make(map[string]string)
	for k, v := range r.URL.Query() {
		queryParams[k] = v[0]
	}

	req := events.APIGatewayProxyRequest{
		Path:                  r.URL.Path,
		HTTPMethod:            r.Method,
		Headers:               headers,
		QueryStringParameters: queryParams,
		RequestContext:        events.APIGatewayProxyRequestContext{RequestID: logging.GetRequestID(r.Context())},
	}
	if textual(r.Header.Get("Content-Type")) {
		req.Body = string(body)
	} else {
		req.Body = base64.StdEncoding.EncodeToString(body)
		req.IsBase64Encoded = true
	}
	return req, nil
}

func writeResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	for k, vs := range resp.MultiValueHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if resp.IsBase64Encoded {
		data, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			logging.L().Error("invalid base64 response body", zap.Error(err))
			return
		}
		w.Write(data)
		return
	}
	io.WriteString(w, resp.Body)
}

func main() {
	configPath := flag.String("config", os.Getenv("EXPLORER_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.L().Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		logging.L().Fatal("failed to start", zap.Error(err))
	}
	defer logging.Sync()
	logger := logging.L()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		req, err := toEvent(r)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		resp, err := application.HandleRequest(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeResponse(w, resp)
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           logging.Middleware(metrics.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting local server", zap.String("addr", cfg.ListenAddr), zap.String("provider", cfg.DriveProvider))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}
