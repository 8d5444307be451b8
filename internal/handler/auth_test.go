package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/gophdrive/explorer/internal/adapter/memory"
	"github.com/jun/gophdrive/explorer/internal/auth"
	"github.com/jun/gophdrive/explorer/internal/crypto"
	"github.com/jun/gophdrive/explorer/internal/handler"
	"github.com/jun/gophdrive/explorer/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testAuth(t *testing.T) (*handler.AuthHandler, *auth.AuthService, *memory.Provider) {
	t.Helper()
	svc := auth.NewAuthService(
		auth.ProviderMicrosoft,
		auth.NewOAuthConfig(auth.ProviderMicrosoft, "client", "secret", "http://localhost:8080/auth/callback"),
		nil, "tokens", crypto.NewMockEncryptor(),
	)
	provider := memory.NewProvider(nil, "")
	h := handler.NewAuthHandler(svc, provider, testJWTSecret, handler.AuthConfig{FrontendURL: "http://front.test", DevMode: true})
	return h, svc, provider
}

func TestAuthHandler_LoginSetsState(t *testing.T) {
	h, _, _ := testAuth(t)
	resp, err := h.Login(context.Background(), makeRequest(http.MethodGet, "/auth/login", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Headers["Location"])
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	cookies := resp.MultiValueHeaders["Set-Cookie"]
	require.Len(t, cookies, 1)
	assert.True(t, strings.HasPrefix(cookies[0], "oauth_state="+state+";"))
}

func TestAuthHandler_CallbackRejected(t *testing.T) {
	h, _, _ := testAuth(t)

	tests := []struct {
		name   string
		query  map[string]string
		cookie string
	}{
		{"missing code", map[string]string{"state": "s"}, "oauth_state=s"},
		{"missing cookie", map[string]string{"code": "c", "state": "s"}, ""},
		{"mismatched state", map[string]string{"code": "c", "state": "s"}, "oauth_state=other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := makeRequest(http.MethodGet, "/auth/callback", "")
			req.QueryStringParameters = tt.query
			req.Headers = map[string]string{"Cookie": tt.cookie}
			resp, err := h.Callback(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestAuthHandler_CallbackIssuesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			w.Write([]byte(`{"access_token":"access","refresh_token":"refresh","token_type":"Bearer","expires_in":3600}`))
		case "/me":
			w.Write([]byte(`{"id":"ms-1","displayName":"Ada","mail":"ada@example.com"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h, svc, _ := testAuth(t)
	svc.Config().Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	svc.ProfileURL = srv.URL + "/me"

	req := makeRequest(http.MethodGet, "/auth/callback", "")
	req.QueryStringParameters = map[string]string{"code": "abc", "state": "st"}
	req.Headers = map[string]string{"Cookie": "oauth_state=st"}

	resp, err := h.Callback(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode, resp.Body)
	assert.Equal(t, "http://front.test/?success=true", resp.Headers["Location"])

	cookies := resp.MultiValueHeaders["Set-Cookie"]
	require.Len(t, cookies, 2)
	session := strings.TrimPrefix(strings.SplitN(cookies[0], ";", 2)[0], handler.SessionCookie+"=")
	userID, err := handler.GetUserID(makeCookieRequest(session), testJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "ms-1", userID)
	assert.Contains(t, cookies[1], "Max-Age=0")

	saved, err := svc.GetUserToken(context.Background(), "ms-1")
	require.NoError(t, err)
	assert.Equal(t, "mock:refresh", saved.EncryptedRefreshToken)
}

func TestAuthHandler_DemoLoginSeedsDrive(t *testing.T) {
	h, _, provider := testAuth(t)
	resp, err := h.DemoLogin(context.Background(), makeRequest(http.MethodGet, "/auth/demo", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode, resp.Body)

	location, err := url.Parse(resp.Headers["Location"])
	require.NoError(t, err)
	userID, err := handler.GetUserID(makeCookieRequest(location.Query().Get("token")), testJWTSecret)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(userID, handler.DemoUserPrefix))

	drive, err := provider.GetAdapter(context.Background(), userID)
	require.NoError(t, err)
	item, err := drive.ResolvePath(context.Background(), model.RootID, "Documents/Welcome.txt", "")
	require.NoError(t, err)
	assert.True(t, item.IsFile())
}

func TestAuthHandler_LogoutForgetsToken(t *testing.T) {
	h, svc, _ := testAuth(t)
	ctx := context.Background()
	require.NoError(t, svc.SaveToken(ctx, testUserID, &oauth2.Token{RefreshToken: "r"}))

	resp, err := h.Logout(ctx, makeRequest(http.MethodPost, "/auth/logout", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.MultiValueHeaders["Set-Cookie"][0], "Max-Age=0")

	_, err = svc.GetUserToken(ctx, testUserID)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func makeCookieRequest(token string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		Headers: map[string]string{"Cookie": handler.SessionCookie + "=" + token},
	}
}
