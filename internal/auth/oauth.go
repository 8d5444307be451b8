package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jun/gophdrive/explorer/internal/crypto"
	"github.com/jun/gophdrive/explorer/internal/model"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// Identity providers the explorer can sign in with.
const (
	ProviderMicrosoft = "microsoft"
	ProviderGoogle    = "google"
)

// DefaultProfileURL is the Graph endpoint describing the signed-in user.
const DefaultProfileURL = "https://graph.microsoft.com/v1.0/me"

// ErrUserNotFound is returned when no token is stored for a user.
var ErrUserNotFound = errors.New("user not found")

// Profile identifies the signed-in user.
type Profile struct {
	ID    string
	Email string
	Name  string
}

// AuthService handles OAuth2 authentication flows and token management.
type AuthService struct {
	provider     string
	oauthConfig  *oauth2.Config
	dynamoClient *dynamodb.Client
	tableName    string
	kmsService   crypto.Encryptor

	// ProfileURL is queried for the user's identity when provider is Microsoft.
	ProfileURL string

	// In-memory fallback
	tokens map[string]model.UserToken
	mu     sync.RWMutex
}

// NewOAuthConfig builds the OAuth2 config for the given identity provider.
func NewOAuthConfig(provider, clientID, clientSecret, redirectURL string) *oauth2.Config {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
	}
	switch provider {
	case ProviderGoogle:
		cfg.Endpoint = google.Endpoint
		cfg.Scopes = []string{
			"https://www.googleapis.com/auth/drive",
			"https://www.googleapis.com/auth/userinfo.email",
		}
	default:
		cfg.Endpoint = microsoft.AzureADEndpoint("common")
		cfg.Scopes = []string{"Files.ReadWrite", "User.Read", "offline_access", "openid"}
	}
	return cfg
}

// Config returns the OAuth2 config.
func (s *AuthService) Config() *oauth2.Config {
	return s.oauthConfig
}

// Provider returns the identity provider name.
func (s *AuthService) Provider() string {
	return s.provider
}

// NewAuthService creates a new AuthService.
// A nil dynamoClient keeps tokens in memory.
func NewAuthService(provider string, oauthConfig *oauth2.Config, dynamoClient *dynamodb.Client, tableName string, kmsService crypto.Encryptor) *AuthService {
	if provider == "" {
		provider = ProviderMicrosoft
	}
	return &AuthService{
		provider:     provider,
		oauthConfig:  oauthConfig,
		dynamoClient: dynamoClient,
		tableName:    tableName,
		kmsService:   kmsService,
		ProfileURL:   DefaultProfileURL,
		tokens:       make(map[string]model.UserToken),
	}
}

// GenerateAuthURL returns the URL to redirect the user to for sign-in.
func (s *AuthService) GenerateAuthURL(state string) string {
	if s.provider == ProviderGoogle {
		return s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	}
	return s.oauthConfig.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// ExchangeCode exchanges the authorization code for an access token.
func (s *AuthService) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return s.oauthConfig.Exchange(ctx, code)
}

// FetchProfile identifies the owner of token.
func (s *AuthService) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	ts := s.oauthConfig.TokenSource(ctx, token)

	if s.provider == ProviderGoogle {
		svc, err := goauth2.NewService(ctx, option.WithTokenSource(ts))
		if err != nil {
			return nil, fmt.Errorf("failed to create oauth2 service: %w", err)
		}
		info, err := svc.Userinfo.Get().Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get user info: %w", err)
		}
		return &Profile{ID: info.Id, Email: info.Email, Name: info.Name}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ProfileURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := oauth2.NewClient(ctx, ts).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get user info: status %d", res.StatusCode)
	}

	var me struct {
		ID                string `json:"id"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.NewDecoder(res.Body).Decode(&me); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}
	return &Profile{ID: me.ID, Email: email, Name: me.DisplayName}, nil
}

// SaveToken encrypts the refresh token and stores it in DynamoDB.
func (s *AuthService) SaveToken(ctx context.Context, userID string, token *oauth2.Token) error {
	if token.RefreshToken == "" {
		return fmt.Errorf("no refresh token in response")
	}

	encrypted, err := s.kmsService.Encrypt(ctx, token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	userToken := model.UserToken{
		UserID:                userID,
		EncryptedRefreshToken: encrypted,
		Provider:              s.provider,
		UpdatedAt:             time.Now(),
	}

	// In-memory fallback
	if s.dynamoClient == nil {
		s.mu.Lock()
		s.tokens[userID] = userToken
		s.mu.Unlock()
		return nil
	}

	item, err := attributevalue.MarshalMap(userToken)
	if err != nil {
		return fmt.Errorf("failed to marshal user token: %w", err)
	}

	_, err = s.dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save token to DynamoDB: %w", err)
	}

	return nil
}

// GetUserToken retrieves the UserToken from DynamoDB.
func (s *AuthService) GetUserToken(ctx context.Context, userID string) (*model.UserToken, error) {
	if s.dynamoClient == nil {
		s.mu.RLock()
		t, ok := s.tokens[userID]
		s.mu.RUnlock()
		if !ok {
			return nil, ErrUserNotFound
		}
		return &t, nil
	}

	out, err := s.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return nil, ErrUserNotFound
	}

	var userToken model.UserToken
	if err := attributevalue.UnmarshalMap(out.Item, &userToken); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user token: %w", err)
	}
	return &userToken, nil
}

// DeleteToken forgets the user's stored refresh token. Signing out twice is not an error.
func (s *AuthService) DeleteToken(ctx context.Context, userID string) error {
	if s.dynamoClient == nil {
		s.mu.Lock()
		delete(s.tokens, userID)
		s.mu.Unlock()
		return nil
	}

	_, err := s.dynamoClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete token from DynamoDB: %w", err)
	}
	zap.L().Info("signed out", zap.String("user_id", userID))
	return nil
}

// GetClient returns an authenticated http.Client for the user.
func (s *AuthService) GetClient(ctx context.Context, userID string) (*http.Client, error) {
	userToken, err := s.GetUserToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.kmsService.Decrypt(ctx, userToken.EncryptedRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-1 * time.Hour), // Force refresh
	}

	return oauth2.NewClient(ctx, s.oauthConfig.TokenSource(ctx, token)), nil
}
