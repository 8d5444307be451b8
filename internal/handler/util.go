package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jun/gophdrive/explorer/internal/adapter"
	"github.com/jun/gophdrive/explorer/internal/browser"
)

// SessionCookie carries the signed session token.
const SessionCookie = "session_token"

var errNoToken = errors.New("no authorization token found")

func getHeader(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func getCookie(req events.APIGatewayProxyRequest, name string) string {
	for _, part := range strings.Split(getHeader(req, "Cookie"), ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, name+"="); ok {
			return v
		}
	}
	return ""
}

// GetUserID extracts the user ID from the Authorization header or session cookie.
func GetUserID(req events.APIGatewayProxyRequest, jwtSecret string) (string, error) {
	tokenString := ""
	if authHeader := getHeader(req, "Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	}
	if tokenString == "" {
		tokenString = getCookie(req, SessionCookie)
	}
	if tokenString == "" {
		return "", errNoToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return sub, nil
		}
	}
	return "", fmt.Errorf("invalid token claims")
}

// SignSession issues an HS256 session token for userID.
func SignSession(jwtSecret, userID, email, name string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"name":  name,
		"exp":   time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
}

func sessionCookie(token string, maxAge time.Duration, sameSite string) string {
	return fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=%d; SameSite=%s; Secure",
		SessionCookie, token, int(maxAge.Seconds()), sameSite)
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Failed to encode response"}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

func textResponse(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{StatusCode: status, Body: body}
}

// statusFor maps a failed operation to an HTTP status.
func statusFor(err error) int {
	var oe *browser.OpError
	if errors.As(err, &oe) {
		switch oe.Kind {
		case browser.KindOffline:
			return http.StatusServiceUnavailable
		case browser.KindNameConflict:
			return http.StatusConflict
		case browser.KindInvalid:
			return http.StatusBadRequest
		}
	}
	switch {
	case errors.Is(err, adapter.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, adapter.ErrUnauthorized):
		return http.StatusUnauthorized
	}
	return http.StatusBadGateway
}

func errorResponse(err error) events.APIGatewayProxyResponse {
	body := map[string]string{"error": browser.Message(err)}
	var oe *browser.OpError
	if errors.As(err, &oe) {
		body["kind"] = oe.Kind.String()
	}
	return jsonResponse(statusFor(err), body)
}
