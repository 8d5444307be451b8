package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/jun/gophdrive/explorer/internal/adapter"
	"github.com/jun/gophdrive/explorer/internal/auth"
	"github.com/jun/gophdrive/explorer/internal/logging"
	"go.uber.org/zap"
)

// DemoUserPrefix marks users whose drive lives in the in-memory backend.
const DemoUserPrefix = "demo-user-"

const (
	stateCookie    = "oauth_state"
	sessionTTL     = 24 * time.Hour
	demoSessionTTL = time.Hour
)

// seeder is implemented by drives that can fill themselves with sample content.
type seeder interface {
	SeedDemo(ctx context.Context) error
}

// AuthConfig holds the settings the sign-in flow depends on.
type AuthConfig struct {
	FrontendURL string
	DevMode     bool
}

// AuthHandler handles authentication requests.
type AuthHandler struct {
	authService     *auth.AuthService
	storageProvider adapter.StorageProvider
	jwtSecret       string
	cfg             AuthConfig
}

// NewAuthHandler creates a new AuthHandler. storageProvider serves demo users.
func NewAuthHandler(s *auth.AuthService, storageProvider adapter.StorageProvider, jwtSecret string, cfg AuthConfig) *AuthHandler {
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:3000"
	}
	return &AuthHandler{authService: s, storageProvider: storageProvider, jwtSecret: jwtSecret, cfg: cfg}
}

func (h *AuthHandler) sameSite() string {
	if h.cfg.DevMode {
		return "Lax"
	}
	return "None"
}

// Login starts the OAuth2 code flow. The state is echoed back in a cookie and
// checked by Callback.
func (h *AuthHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	state := uuid.NewString()
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": h.authService.GenerateAuthURL(state),
		},
		MultiValueHeaders: map[string][]string{
			"Set-Cookie": {fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=600; SameSite=Lax; Secure", stateCookie, state)},
		},
	}, nil
}

// Callback completes the code flow, stores the refresh token and issues a session.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := logging.WithContext(ctx)

	code := req.QueryStringParameters["code"]
	if code == "" {
		return textResponse(http.StatusBadRequest, "Missing code"), nil
	}
	if state := getCookie(req, stateCookie); state == "" || state != req.QueryStringParameters["state"] {
		return textResponse(http.StatusBadRequest, "Invalid state"), nil
	}

	token, err := h.authService.ExchangeCode(ctx, code)
	if err != nil {
		logger.Error("code exchange failed", zap.Error(err))
		return textResponse(http.StatusInternalServerError, "Failed to exchange code"), nil
	}

	profile, err := h.authService.FetchProfile(ctx, token)
	if err != nil {
		logger.Error("profile lookup failed", zap.Error(err))
		return textResponse(http.StatusInternalServerError, "Failed to get user info"), nil
	}

	// Subsequent sign-ins may omit the refresh token; the stored one stays valid.
	if err := h.authService.SaveToken(ctx, profile.ID, token); err != nil {
		logger.Warn("refresh token not saved", zap.String("user_id", profile.ID), zap.Error(err))
	}

	signed, err := SignSession(h.jwtSecret, profile.ID, profile.Email, profile.Name, sessionTTL)
	if err != nil {
		return textResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": h.cfg.FrontendURL + "/?success=true",
		},
		MultiValueHeaders: map[string][]string{
			"Set-Cookie": {
				sessionCookie(signed, sessionTTL, h.sameSite()),
				fmt.Sprintf("%s=; HttpOnly; Path=/; Max-Age=0; SameSite=Lax; Secure", stateCookie),
			},
		},
	}, nil
}

// DemoLogin issues a short session backed by a seeded in-memory drive.
func (h *AuthHandler) DemoLogin(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID := DemoUserPrefix + uuid.NewString()
	logger := logging.WithContext(ctx).With(zap.String("user_id", userID))

	drive, err := h.storageProvider.GetAdapter(ctx, userID)
	if err != nil {
		logger.Error("demo drive unavailable", zap.Error(err))
		return textResponse(http.StatusInternalServerError, "Failed to get drive adapter"), nil
	}
	if s, ok := drive.(seeder); ok {
		if err := s.SeedDemo(ctx); err != nil {
			logger.Error("demo drive seeding failed", zap.Error(err))
			return textResponse(http.StatusInternalServerError, "Failed to prepare demo drive"), nil
		}
	}

	signed, err := SignSession(h.jwtSecret, userID, "demo@explorer.local", "Demo User", demoSessionTTL)
	if err != nil {
		return textResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": fmt.Sprintf("%s/?token=%s", h.cfg.FrontendURL, signed),
		},
		MultiValueHeaders: map[string][]string{
			"Set-Cookie": {sessionCookie(signed, demoSessionTTL, "Lax")},
		},
	}, nil
}

// Logout forgets the stored refresh token and clears the session cookie.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if userID, err := GetUserID(req, h.jwtSecret); err == nil && !strings.HasPrefix(userID, DemoUserPrefix) {
		if err := h.authService.DeleteToken(ctx, userID); err != nil {
			logging.WithContext(ctx).Error("sign out failed", zap.String("user_id", userID), zap.Error(err))
			return textResponse(http.StatusInternalServerError, "Failed to sign out"), nil
		}
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Body:       `{"success":true}`,
		MultiValueHeaders: map[string][]string{
			"Set-Cookie": {sessionCookie("", 0, h.sameSite())},
		},
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}, nil
}
