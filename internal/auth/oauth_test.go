package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jun/gophdrive/explorer/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testAuthService() *AuthService {
	return NewAuthService(
		ProviderMicrosoft,
		NewOAuthConfig(ProviderMicrosoft, "test-client-id", "test-client-secret", "http://localhost:8080/auth/callback"),
		nil, // no DynamoDB client, tokens stay in memory
		"test-tokens-table",
		crypto.NewMockEncryptor(),
	)
}

func TestAuthService_SaveAndGetUserToken(t *testing.T) {
	s := testAuthService()
	ctx := context.Background()

	token := &oauth2.Token{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		Expiry:       time.Now().Add(1 * time.Hour),
	}
	require.NoError(t, s.SaveToken(ctx, "user1", token))

	saved, err := s.GetUserToken(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "user1", saved.UserID)
	assert.Equal(t, ProviderMicrosoft, saved.Provider)
	// MockEncryptor prefixes with "mock:"
	assert.Equal(t, "mock:refresh-456", saved.EncryptedRefreshToken)
}

func TestAuthService_GetUserToken_NotFound(t *testing.T) {
	s := testAuthService()

	_, err := s.GetUserToken(context.Background(), "nonexistent-user")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthService_SaveToken_EmptyRefreshToken(t *testing.T) {
	s := testAuthService()
	ctx := context.Background()

	require.NoError(t, s.SaveToken(ctx, "user1", &oauth2.Token{RefreshToken: "original-refresh"}))

	err := s.SaveToken(ctx, "user1", &oauth2.Token{AccessToken: "new-access"})
	require.Error(t, err)

	saved, err := s.GetUserToken(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "mock:original-refresh", saved.EncryptedRefreshToken)
}

func TestAuthService_DeleteToken(t *testing.T) {
	s := testAuthService()
	ctx := context.Background()

	require.NoError(t, s.SaveToken(ctx, "user1", &oauth2.Token{RefreshToken: "r"}))
	require.NoError(t, s.DeleteToken(ctx, "user1"))

	_, err := s.GetUserToken(ctx, "user1")
	assert.ErrorIs(t, err, ErrUserNotFound)

	// Signing out twice is harmless.
	assert.NoError(t, s.DeleteToken(ctx, "user1"))

	_, err = s.GetClient(ctx, "user1")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthService_GenerateAuthURL(t *testing.T) {
	t.Run("microsoft", func(t *testing.T) {
		s := testAuthService()
		url := s.GenerateAuthURL("test-state")
		assert.Contains(t, url, "login.microsoftonline.com/common")
		assert.Contains(t, url, "test-state")
		assert.Contains(t, url, "test-client-id")
		assert.Contains(t, url, "offline_access")
	})

	t.Run("google", func(t *testing.T) {
		cfg := NewOAuthConfig(ProviderGoogle, "g-client", "secret", "http://localhost/cb")
		s := NewAuthService(ProviderGoogle, cfg, nil, "t", crypto.NewMockEncryptor())
		url := s.GenerateAuthURL("st")
		assert.Contains(t, url, "accounts.google.com")
		assert.Contains(t, url, "access_type=offline")
		assert.Contains(t, url, "g-client")
	})
}

func TestAuthService_FetchProfile_Microsoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.0/me", r.URL.Path)
		assert.Equal(t, "Bearer access-xyz", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"ms-123","displayName":"Ada","userPrincipalName":"ada@example.com"}`))
	}))
	defer srv.Close()

	s := testAuthService()
	s.ProfileURL = srv.URL + "/v1.0/me"

	profile, err := s.FetchProfile(context.Background(), &oauth2.Token{
		AccessToken: "access-xyz",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "ms-123", profile.ID)
	assert.Equal(t, "ada@example.com", profile.Email)
	assert.Equal(t, "Ada", profile.Name)
}

func TestAuthService_FetchProfile_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := testAuthService()
	s.ProfileURL = srv.URL

	_, err := s.FetchProfile(context.Background(), &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)})
	assert.Error(t, err)
}

func TestAuthService_InMemoryTokenStore(t *testing.T) {
	// Verify that with nil dynamoClient, tokens are stored in-memory
	s := testAuthService()
	ctx := context.Background()

	for _, uid := range []string{"u1", "u2", "u3"} {
		err := s.SaveToken(ctx, uid, &oauth2.Token{RefreshToken: "refresh-" + uid})
		require.NoError(t, err)
	}

	for _, uid := range []string{"u1", "u2", "u3"} {
		saved, err := s.GetUserToken(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, uid, saved.UserID)
		assert.Equal(t, "mock:refresh-"+uid, saved.EncryptedRefreshToken)
	}
}

func TestAuthService_GetClient(t *testing.T) {
	s := testAuthService()
	ctx := context.Background()

	require.NoError(t, s.SaveToken(ctx, "user1", &oauth2.Token{RefreshToken: "r"}))

	client, err := s.GetClient(ctx, "user1")
	require.NoError(t, err)
	assert.NotNil(t, client)
}
