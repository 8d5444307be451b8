package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/jun/gophdrive/explorer/internal/adapter"
	"github.com/jun/gophdrive/explorer/internal/adapter/googledrive"
	"github.com/jun/gophdrive/explorer/internal/adapter/graph"
	"github.com/jun/gophdrive/explorer/internal/adapter/memory"
	"github.com/jun/gophdrive/explorer/internal/browser"
	"github.com/jun/gophdrive/explorer/internal/config"
	"github.com/jun/gophdrive/explorer/internal/logging"
	"github.com/jun/gophdrive/explorer/internal/netcheck"
	"github.com/jun/gophdrive/explorer/internal/prefs"
)

// cli carries the flags and the collaborators shared by every subcommand.
type cli struct {
	cfgFile   string
	backend   string
	token     string
	user      string
	prefsPath string
	verbose   bool

	cfg     *config.Config
	service adapter.DriveService
	checker browser.Connectivity
	logger  *zap.Logger
}

func defaultPrefsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "explorer-prefs.yaml"
	}
	return filepath.Join(dir, "explorer", "prefs.yaml")
}

// NewRootCmd creates the root command. A non-nil service skips backend setup.
func NewRootCmd(service adapter.DriveService) *cobra.Command {
	a := &cli{service: service}

	rootCmd := &cobra.Command{
		Use:   "explorer",
		Short: "Browse and manage the items of a cloud drive",
		Long: `explorer browses a OneDrive (Microsoft Graph) or Google Drive account.

Items are addressed by id, or by path when the argument starts with "/".
Without --token the memory backend is used: a demo drive seeded on every run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", os.Getenv("EXPLORER_CONFIG"), "path to a YAML config file")
	flags.StringVar(&a.backend, "backend", "", "drive backend: graph, google or memory (default from config)")
	flags.StringVar(&a.token, "token", os.Getenv("DRIVE_ACCESS_TOKEN"), "OAuth access token for the graph or google backend")
	flags.StringVar(&a.user, "user", "cli", "user the preferences are stored for")
	flags.StringVar(&a.prefsPath, "prefs", defaultPrefsPath(), "preferences file")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(
		a.newLsCmd(),
		a.newResolveCmd(),
		a.newMkdirCmd(),
		a.newRenameCmd(),
		a.newRmCmd(),
		a.newUploadCmd(),
		a.newLinkCmd(),
		a.newCopyDestCmd(),
		a.newDownloadCmd(),
	)
	return rootCmd
}

func (a *cli) setup(ctx context.Context) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := "warn"
	if a.verbose {
		level = "debug"
	}
	if err := logging.Init(logging.Config{Level: level, Format: "console", OutputPath: "stderr"}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	a.logger = logging.L()

	a.checker = netcheck.Always(true)
	if a.service != nil {
		return nil
	}

	backend := a.backend
	if backend == "" {
		backend = cfg.DriveProvider
	}
	if a.token == "" {
		backend = config.ProviderMemory
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: a.token, TokenType: "Bearer"}))
	switch backend {
	case config.ProviderGraph:
		a.service = graph.NewGraphAdapter(httpClient, cfg.GraphBaseURL)
		a.checker = netcheck.New(nil, cfg.GraphBaseURL, a.logger.Named("netcheck"))
	case config.ProviderGoogle:
		svc, err := googledrive.NewDriveAdapter(ctx, httpClient)
		if err != nil {
			return err
		}
		a.service = svc
	case config.ProviderMemory:
		drive := memory.NewMemoryAdapter(nil, "", a.user)
		if err := drive.SeedDemo(ctx); err != nil {
			return err
		}
		a.service = drive
	default:
		return fmt.Errorf("unknown backend %q", backend)
	}
	a.logger.Debug("backend ready", zap.String("backend", backend))
	return nil
}

// controller builds a controller whose events are printed to cmd's streams.
func (a *cli) controller(cmd *cobra.Command) *browser.Controller {
	return browser.New(browser.Deps{
		Service:   a.service,
		Presenter: &printer{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()},
		Checker:   a.checker,
		Prefs:     prefs.NewFileStore(a.prefsPath),
		UserID:    a.user,
		Logger:    a.logger,
		Options: browser.Options{
			ExpandLimited:       a.cfg.Browser.ExpandLimited,
			PrefetchConcurrency: a.cfg.Browser.PrefetchConcurrency,
		},
	})
}

// printer shows notices on stdout and failures on stderr.
type printer struct {
	out    io.Writer
	errOut io.Writer
}

func (p *printer) StateChanged(browser.State) {}
func (p *printer) NavigateBack(string)        {}

func (p *printer) UploadProgress(pr browser.Progress) {
	fmt.Fprintf(p.errOut, "uploading %s: %d/%d bytes\n", pr.Name, pr.Sent, pr.Total)
}

func (p *printer) Failed(err *browser.OpError) {
	fmt.Fprintln(p.errOut, browser.Message(err))
}

func (p *printer) Notify(message string) {
	fmt.Fprintln(p.out, message)
}

func main() {
	if err := NewRootCmd(nil).Execute(); err != nil {
		// Operation failures were already shown by the printer.
		var oe *browser.OpError
		if !errors.As(err, &oe) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
