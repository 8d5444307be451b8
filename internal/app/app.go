package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"github.com/jun/gophdrive/explorer/internal/adapter"
	"github.com/jun/gophdrive/explorer/internal/adapter/googledrive"
	"github.com/jun/gophdrive/explorer/internal/adapter/graph"
	"github.com/jun/gophdrive/explorer/internal/adapter/memory"
	"github.com/jun/gophdrive/explorer/internal/auth"
	"github.com/jun/gophdrive/explorer/internal/browser"
	"github.com/jun/gophdrive/explorer/internal/config"
	"github.com/jun/gophdrive/explorer/internal/crypto"
	"github.com/jun/gophdrive/explorer/internal/handler"
	"github.com/jun/gophdrive/explorer/internal/logging"
	"github.com/jun/gophdrive/explorer/internal/netcheck"
	"github.com/jun/gophdrive/explorer/internal/prefs"
	"github.com/jun/gophdrive/explorer/internal/secret"
)

// HybridProvider serves demo users from the in-memory drive and everyone
// else from the configured backend.
type HybridProvider struct {
	driveProvider  adapter.StorageProvider
	memoryProvider adapter.StorageProvider
}

func (h *HybridProvider) GetAdapter(ctx context.Context, userID string) (adapter.DriveService, error) {
	if strings.HasPrefix(userID, handler.DemoUserPrefix) {
		return h.memoryProvider.GetAdapter(ctx, userID)
	}
	return h.driveProvider.GetAdapter(ctx, userID)
}

// App holds the dependencies for the Lambda function.
type App struct {
	authHandler  *handler.AuthHandler
	itemHandler  *handler.ItemHandler
	cfg          *config.Config
	originSecret string
}

// NewApp initializes the application dependencies from cfg.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, OutputPath: cfg.Log.Output}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger := logging.L()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	var encryptor crypto.Encryptor
	var resolver secret.Resolver
	if cfg.DevMode {
		encryptor = crypto.NewMockEncryptor()
		resolver = secret.NewEnvResolver()
		logger.Info("using mock encryptor and environment secrets", zap.Bool("dev_mode", true))
	} else {
		encryptor = crypto.NewKMSService(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
		resolver = secret.NewCachedResolver(secret.NewSSMResolver(ssm.NewFromConfig(awsCfg)))
	}

	clientSecret := secret.ResolveOr(ctx, resolver, cfg.OAuth.ClientSecretParam, "")
	jwtSecret := secret.ResolveOr(ctx, resolver, cfg.JWTSecretParam, "default-dev-secret")
	originSecret := secret.ResolveOr(ctx, resolver, cfg.OriginSecretParam, "")

	identity := auth.ProviderMicrosoft
	if cfg.DriveProvider == config.ProviderGoogle {
		identity = auth.ProviderGoogle
	}
	oauthConfig := auth.NewOAuthConfig(identity, cfg.OAuth.ClientID, clientSecret, cfg.RedirectURL())
	authService := auth.NewAuthService(identity, oauthConfig, dynamoClient, cfg.Tables.UserTokens, encryptor)

	memoryProvider := memory.NewProvider(dynamoClient, cfg.Tables.FileStore)
	var driveProvider adapter.StorageProvider
	var checker browser.Connectivity = netcheck.Always(true)
	switch cfg.DriveProvider {
	case config.ProviderGraph:
		driveProvider = graph.NewProvider(authService, cfg.GraphBaseURL)
		checker = netcheck.New(&http.Client{}, cfg.GraphBaseURL, logger.Named("netcheck"))
	case config.ProviderGoogle:
		driveProvider = googledrive.NewProvider(authService)
	default:
		driveProvider = memoryProvider
	}
	storageProvider := &HybridProvider{driveProvider: driveProvider, memoryProvider: memoryProvider}
	logger.Info("drive backend selected", zap.String("provider", cfg.DriveProvider), zap.String("identity", identity))

	itemHandler := handler.NewItemHandler(storageProvider, prefs.NewStore(dynamoClient, cfg.Tables.Preferences), jwtSecret, handler.ItemConfig{
		Options: browser.Options{
			ExpandLimited:       cfg.Browser.ExpandLimited,
			PrefetchConcurrency: cfg.Browser.PrefetchConcurrency,
		},
		ThumbnailCacheSize: cfg.Browser.ThumbnailCacheSize,
		Checker:            checker,
	})
	authHandler := handler.NewAuthHandler(authService, storageProvider, jwtSecret, handler.AuthConfig{
		FrontendURL: cfg.FrontendURL,
		DevMode:     cfg.DevMode,
	})

	return &App{
		authHandler:  authHandler,
		itemHandler:  itemHandler,
		cfg:          cfg,
		originSecret: originSecret,
	}, nil
}
