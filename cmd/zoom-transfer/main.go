package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"

	"github.com/curtbushko/zoom-transfer/internal/app"
	"github.com/curtbushko/zoom-transfer/internal/config"
	"github.com/curtbushko/zoom-transfer/internal/logging"
	"github.com/curtbushko/zoom-transfer/internal/secrets"
	"github.com/curtbushko/zoom-transfer/internal/storage/box"
)

var (
	// Version information - will be set during build
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// rootOptions holds the global flags
type rootOptions struct {
	configFile string
	verbose    bool
}

// serveOptions holds the serve flags
type serveOptions struct {
	addr       string
	hostsFile  string
	watchHosts bool
}

// buildRootCommand creates and configures the root command
func buildRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "zoom-transfer",
		Short: "Transfer Zoom cloud recordings to cloud storage",
		Long: `zoom-transfer moves the cloud recordings of a Zoom meeting to Dropbox,
Box or S3.

A caller opens the callback URL with the meeting id as the state parameter.
The first call redirects to the Zoom consent page; when Zoom calls back with
an authorization code the recordings and the meeting metadata are downloaded
and uploaded to the configured destination.

The same handler runs in AWS Lambda (transfer-lambda) and locally (serve).`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "configuration file path (default: environment only)")
	rootCmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "verbose logging")

	rootCmd.AddCommand(createServeCommand(opts))
	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())

	return rootCmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display version, commit, and build information for zoom-transfer",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("zoom-transfer version %s\n", version)
			cmd.Printf("Commit: %s\n", commit)
			cmd.Printf("Build date: %s\n", buildDate)
		},
	}
}

func createServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the transfer callback over HTTP",
		Long: `Run the transfer callback on a local HTTP server. Point the Zoom OAuth app's
redirect URL at this server to exercise the full flow without deploying.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, rotation, err := loadServeConfig(cmd.Context(), root, opts)
			if err != nil {
				return err
			}
			return serve(cmd, cfg, rotation, opts.addr)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.hostsFile, "hosts-file", "", "host allowlist file (overrides config)")
	cmd.Flags().BoolVar(&opts.watchHosts, "watch-hosts", true, "reload the host allowlist when the file changes")

	return cmd
}

// loadServeConfig loads the configuration, applies flag overrides and resolves secrets
func loadServeConfig(ctx context.Context, root *rootOptions, opts *serveOptions) (*config.Config, box.RotationFunc, error) {
	cfg, err := config.LoadUnvalidated(root.configFile)
	if err != nil {
		return nil, nil, err
	}
	if root.verbose {
		cfg.Logging.Level = "debug"
	}
	if opts.hostsFile != "" {
		cfg.Hosts.File = opts.hostsFile
	}
	cfg.Hosts.Watch = opts.watchHosts && cfg.Hosts.File != ""

	if err := logging.InitializeLogging(cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	var params secrets.ParameterAPI
	if cfg.Secrets.SSMPrefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		params = ssm.NewFromConfig(awsCfg)
	}

	rotation, err := app.ResolveSecrets(ctx, cfg, params)
	if err != nil {
		return nil, nil, err
	}
	return cfg, rotation, nil
}

func serve(cmd *cobra.Command, cfg *config.Config, rotation box.RotationFunc, addr string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, app.Options{OnBoxTokenRotation: rotation})
	if err != nil {
		return err
	}
	defer application.Close()

	server := &http.Server{
		Addr:              addr,
		Handler:           application.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	cmd.Printf("Listening on %s (destination: %s)\n", addr, application.Destination.Name())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	cmd.Printf("Shutting down\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func createConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show configuration file structure and environment variables",
		Long:  "Display the configuration file structure, the environment variables that override it, and the SSM secret names",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(configHelp)
		},
	}
}

const configHelp = `Configuration File Structure (config.yaml):

ZOOM OAUTH APP (Required):
=========================
zoom:
  client_id: "your_zoom_client_id"         # OAuth app (authorization code flow) client ID
  client_secret: "your_zoom_client_secret" # OAuth app client secret
  redirect_url: "https://.../callback"     # Must match the app's registered redirect URL
  auth_url: "https://zoom.us/oauth/authorize"  # default
  token_url: "https://zoom.us/oauth/token"     # default
  base_url: "https://api.zoom.us/v2"           # default

# REQUIRED SCOPES: cloud_recording:read:list_recording_files (recording:read)

DESTINATION (Required):
======================
destination:
  provider: "dropbox"              # dropbox (default), box or s3
  dropbox:
    client_id: "app_key"
    client_secret: "app_secret"
    refresh_token: "offline_refresh_token"
  box:
    client_id: "box_client_id"
    client_secret: "box_client_secret"
    refresh_token: "box_refresh_token"  # rotated on every refresh
    folder_id: "0"                      # default: root folder
  s3:
    bucket: "recordings-bucket"
    prefix: "zoom/"
    region: "us-east-1"

DOWNLOAD CONFIGURATION:
======================
download:
  local_dir: "/tmp/zoom-transfer"  # per-request directories are created here
  retry_attempts: 3                # retries for downloads and uploads (default: 3)
  timeout_seconds: 300             # HTTP timeout per request (default: 300)
  concurrency: 3                   # parallel downloads and uploads (default: 3)
  requests_per_second: 10          # Zoom API rate limit (default: 10)

LOGGING CONFIGURATION:
=====================
logging:
  level: "info"                    # debug, info, warn, error (default: info)
  json_format: true                # JSON lines (default: false)

HOST ALLOWLIST (Optional):
=========================
hosts:
  file: "./hosts.txt"              # one host e-mail per line, # for comments
  watch: false                     # reload on change (serve enables this)

SECRETS (Optional):
==================
secrets:
  ssm_prefix: "/zoom-transfer/prod"  # read empty secrets from SSM Parameter Store

# Parameter names under the prefix:
#   zoom-client-secret
#   dropbox-client-secret, dropbox-refresh-token
#   box-client-secret, box-refresh-token

ENVIRONMENT VARIABLES:
=====================
  ZOOM_CLIENT_ID, ZOOM_CLIENT_SECRET, ZOOM_REDIRECT_URL, ZOOM_BASE_URL
  DESTINATION_PROVIDER
  DROPBOX_CLIENT_ID, DROPBOX_CLIENT_SECRET, DROPBOX_REFRESH_TOKEN
  BOX_CLIENT_ID, BOX_CLIENT_SECRET, BOX_REFRESH_TOKEN, BOX_FOLDER_ID
  S3_BUCKET, S3_PREFIX, AWS_REGION
  TMP_DOWNLOAD_LOCATION, DOWNLOAD_CONCURRENCY, DOWNLOAD_TIMEOUT_SECONDS
  LOG_LEVEL, HOSTS_FILE, SSM_PREFIX

EXAMPLE USAGE:
=============
  zoom-transfer serve --config config.yaml --addr :8080
  open "http://localhost:8080/?state=<meeting id>"
`

func main() {
	rootCmd := buildRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
