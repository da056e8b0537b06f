// Package main provides the chorus CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"chorus/internal/catalog"
	"chorus/internal/core"
	httpserver "chorus/internal/http"
	"chorus/internal/publisher"
	"chorus/internal/relay"
	"chorus/internal/resolver"
	"chorus/internal/snapshot"
	"chorus/internal/store"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chorus",
	Short: "Chorus - decentralized music publishing client",
	Long: `Chorus fetches, verifies, and serves music and podcast releases
published as signed records on open relays, and publishes new releases
signed with a local key.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSlice("relay-urls", nil, "relay websocket URLs")
	rootCmd.PersistentFlags().String("snapshot-dir", "", "snapshot directory")
	rootCmd.PersistentFlags().String("library-path", "", "library database path")
	rootCmd.PersistentFlags().String("key-path", "", "signing key file")
	rootCmd.PersistentFlags().String("server-host", "", "HTTP server host")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(publishCmd)

	publishCmd.AddCommand(publishTrackCmd)
	publishCmd.AddCommand(publishPlaylistCmd)

	publishTrackCmd.Flags().String("identifier", "", "track identifier")
	publishTrackCmd.Flags().String("title", "", "track title")
	publishTrackCmd.Flags().String("artist", "", "artist name")
	publishTrackCmd.Flags().String("url", "", "audio source URL")
	publishTrackCmd.Flags().String("album", "", "album name")
	publishTrackCmd.Flags().Int("duration", 0, "duration in seconds")
	publishTrackCmd.Flags().Bool("explicit", false, "mark as explicit")
	publishTrackCmd.Flags().StringSlice("genre", nil, "genres")
	publishTrackCmd.Flags().StringSlice("supersedes", nil, "record IDs this revision replaces")

	publishPlaylistCmd.Flags().String("identifier", "", "playlist identifier")
	publishPlaylistCmd.Flags().String("title", "", "playlist title")
	publishPlaylistCmd.Flags().StringSlice("ref", nil, "track references (kind:author:identifier)")
	publishPlaylistCmd.Flags().String("description", "", "playlist description")
	publishPlaylistCmd.Flags().StringSlice("category", nil, "categories")
	publishPlaylistCmd.Flags().StringSlice("supersedes", nil, "record IDs this revision replaces")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
	}

	viper.SetEnvPrefix("CHORUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	if urls := viper.GetStringSlice("relay-urls"); len(urls) > 0 {
		cfg.Relay.URLs = urls
	}
	if dir := viper.GetString("snapshot-dir"); dir != "" {
		cfg.Cache.SnapshotDir = dir
	}
	if path := viper.GetString("library-path"); path != "" {
		cfg.Library.Path = path
	}
	if path := viper.GetString("key-path"); path != "" {
		cfg.Publish.KeyPath = path
	}
	if host := viper.GetString("server-host"); host != "" {
		cfg.Server.Host = host
	}
	if port := viper.GetInt("server-port"); port != 0 {
		cfg.Server.Port = port
	}
	cfg.Log.Level = viper.GetString("log-level")

	return cfg
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func validateConfig() error {
	if len(config.Relay.URLs) == 0 {
		return fmt.Errorf("at least one relay URL is required")
	}
	return nil
}

// buildCatalog wires the relay client, resolver, and catalog service.
func buildCatalog() *catalog.Service {
	relayClient := relay.NewClient(&config.Relay, logger.Named("relay"))
	res := resolver.New(relayClient, logger.Named("resolver"))
	return catalog.NewService(relayClient, res, &config.Cache, logger.Named("catalog"))
}

func releasesFetcher(svc *catalog.Service) snapshot.Fetcher {
	return func(ctx context.Context) (*snapshot.Document, error) {
		releases, err := svc.Releases(ctx, nil, 0)
		if err != nil {
			return nil, err
		}
		return &snapshot.Document{
			GeneratedAt: time.Now().UTC(),
			Source:      snapshot.SourceLive,
			Releases:    snapshot.NewReleaseViews(releases),
		}, nil
	}
}

func latestFetcher(svc *catalog.Service) snapshot.Fetcher {
	return func(ctx context.Context) (*snapshot.Document, error) {
		release, err := svc.LatestRelease(ctx)
		if err != nil {
			return nil, err
		}
		view := snapshot.NewReleaseView(*release)
		return &snapshot.Document{
			GeneratedAt: time.Now().UTC(),
			Source:      snapshot.SourceLive,
			Latest:      &view,
		}, nil
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the release API",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.Info("Starting chorus",
		zap.Strings("relays", config.Relay.URLs),
		zap.String("snapshot_dir", config.Cache.SnapshotDir))

	svc := buildCatalog()

	library, err := store.Open(config.Library.Path)
	if err != nil {
		return fmt.Errorf("failed to open library: %w", err)
	}
	defer library.Close()

	fileStore := snapshot.NewFileStore(config.Cache.SnapshotDir)
	releasesManager := snapshot.NewManager(
		fileStore, snapshot.ReleasesFile, releasesFetcher(svc),
		&config.Cache, logger.Named("snapshot"))
	latestManager := snapshot.NewManager(
		fileStore, snapshot.LatestFile, latestFetcher(svc),
		&config.Cache, logger.Named("snapshot"))

	httpServer := httpserver.NewServer(
		&config.Server, releasesManager, latestManager, svc, library, logger.Named("http"))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start(gCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				httpServer.SetSeenRecords(svc.SeenCount())
			}
		}
	})

	logger.Info("Chorus started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("Chorus stopped with error", zap.Error(err))
		return err
	}

	logger.Info("Chorus stopped gracefully")
	return nil
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Generate snapshot files from live relay data",
	RunE:  runSnapshot,
}

func runSnapshot(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	svc := buildCatalog()
	fileStore := snapshot.NewFileStore(config.Cache.SnapshotDir)

	releasesDoc, err := releasesFetcher(svc)(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch releases: %w", err)
	}
	if err := fileStore.Write(snapshot.ReleasesFile, releasesDoc); err != nil {
		return fmt.Errorf("failed to write releases snapshot: %w", err)
	}

	latestDoc, err := latestFetcher(svc)(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch latest release: %w", err)
	}
	if err := fileStore.Write(snapshot.LatestFile, latestDoc); err != nil {
		return fmt.Errorf("failed to write latest snapshot: %w", err)
	}

	logger.Info("Snapshots generated",
		zap.String("dir", config.Cache.SnapshotDir),
		zap.Int("releases", len(releasesDoc.Releases)))
	return nil
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new signing key",
	RunE: func(_ *cobra.Command, _ []string) error {
		signer, err := publisher.GenerateKey(config.Publish.KeyPath)
		if err != nil {
			return err
		}
		fmt.Printf("Generated key at %s\npublic key: %s\n",
			config.Publish.KeyPath, signer.PublicKey())
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish signed records to the relays",
}

var publishTrackCmd = &cobra.Command{
	Use:   "track",
	Short: "Publish a track record",
	RunE:  runPublishTrack,
}

func runPublishTrack(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	pub, err := buildPublisher()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	draft := publisher.TrackDraft{}
	draft.Identifier, _ = flags.GetString("identifier")
	draft.Title, _ = flags.GetString("title")
	draft.Artist, _ = flags.GetString("artist")
	draft.AudioURL, _ = flags.GetString("url")
	draft.Album, _ = flags.GetString("album")
	draft.Duration, _ = flags.GetInt("duration")
	draft.Explicit, _ = flags.GetBool("explicit")
	draft.Genres, _ = flags.GetStringSlice("genre")
	draft.Supersedes, _ = flags.GetStringSlice("supersedes")

	rec, err := pub.PublishTrack(ctx, draft)
	if err != nil {
		return err
	}

	fmt.Printf("published track %s\nrecord ID: %s\n", draft.Identifier, rec.ID)
	return nil
}

var publishPlaylistCmd = &cobra.Command{
	Use:   "playlist",
	Short: "Publish a playlist record",
	RunE:  runPublishPlaylist,
}

func runPublishPlaylist(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	pub, err := buildPublisher()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	draft := publisher.PlaylistDraft{}
	draft.Identifier, _ = flags.GetString("identifier")
	draft.Title, _ = flags.GetString("title")
	draft.Description, _ = flags.GetString("description")
	draft.Categories, _ = flags.GetStringSlice("category")
	draft.Supersedes, _ = flags.GetStringSlice("supersedes")

	refs, _ := flags.GetStringSlice("ref")
	for _, raw := range refs {
		ref, err := core.ParseTrackRef(raw)
		if err != nil {
			return fmt.Errorf("bad --ref %q: %w", raw, err)
		}
		draft.Refs = append(draft.Refs, ref)
	}

	rec, err := pub.PublishPlaylist(ctx, draft)
	if err != nil {
		return err
	}

	fmt.Printf("published playlist %s\nrecord ID: %s\n", draft.Identifier, rec.ID)
	return nil
}

func buildPublisher() (*publisher.Publisher, error) {
	signer, err := publisher.LoadSigner(config.Publish.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key (run 'chorus keygen' first): %w", err)
	}

	relayClient := relay.NewClient(&config.Relay, logger.Named("relay"))
	return publisher.New(relayClient, signer, logger.Named("publisher")), nil
}
