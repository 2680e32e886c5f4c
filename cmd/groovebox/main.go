// Package main provides the player server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/groovebox/internal/api/connect"
	"github.com/osa030/groovebox/internal/app/filter"
	"github.com/osa030/groovebox/internal/app/library"
	"github.com/osa030/groovebox/internal/app/session"
	"github.com/osa030/groovebox/internal/infra/artwork"
	"github.com/osa030/groovebox/internal/infra/audio"
	"github.com/osa030/groovebox/internal/infra/config"
	"github.com/osa030/groovebox/internal/infra/lastfm"
	"github.com/osa030/groovebox/internal/infra/logger"
	"github.com/osa030/groovebox/internal/infra/store"
	"github.com/osa030/groovebox/internal/infra/tags"
)

var (
	app        = kingpin.New("groovebox", "GrooveBox music player server")
	configPath = app.Flag("config", "Path to config file").Default("config/groovebox.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// scan command
	scanCmd  = app.Command("scan", "Scan directories and print the tracks found")
	scanDirs = scanCmd.Arg("dirs", "Directories to scan (default: library dirs from config)").Strings()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.Config{Level: cfg.Log.Level, File: cfg.Log.File}
	if *verbose {
		logCfg.Level = "debug"
	}
	if *logfile != "" {
		logCfg.File = *logfile
	}
	logCloser, err := logger.Init(logCfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	switch command {
	case scanCmd.FullCommand():
		err = scan(cfg, *scanDirs)
	default:
		err = run(cfg)
	}
	if err != nil {
		zlog.Error().Msgf("%v", err)
		logCloser.Close()
		os.Exit(1)
	}
}

// run starts the player and serves the API until a shutdown signal arrives.
// Using a separate function ensures deferred cleanup runs on error returns.
func run(cfg *config.Config) error {
	backend, closeSink, err := newBackend(cfg.Player)
	if err != nil {
		return err
	}
	defer closeSink()
	defer backend.Close()

	tagReader := tags.NewReader()
	scanner := library.NewScanner(tagReader, audio.Prober{})

	covers, err := newCoverResolver(cfg, tagReader)
	if err != nil {
		return err
	}

	comps := session.Components{
		Backend: backend,
		Scanner: scanner,
		Covers:  covers,
	}
	if !cfg.State.Disabled {
		comps.Store = store.New(cfg.State.Path)
		zlog.Info().Msgf("State file: %s", cfg.State.Path)
	}

	sessionMgr, err := session.NewManager(cfg, comps)
	if err != nil {
		return errors.Wrap(err, "failed to create session manager")
	}
	defer sessionMgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sessionMgr.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start session")
	}
	zlog.Info().Msgf("Library: %d tracks, import filters: [%s]",
		len(sessionMgr.Library()), strings.Join(sessionMgr.ImportFilters(), ", "))

	var opts []connect.HandlerOption
	if cfg.Server.Token != "" {
		opts = append(opts, connect.WithInterceptors(apiconnect.NewAuthInterceptor(cfg.Server.Token)))
	} else {
		zlog.Warn().Msg("No server token configured, the API is open to anyone who can reach it")
	}

	mux := http.NewServeMux()
	mux.Handle(apiconnect.NewHandler(apiconnect.NewPlayerService(sessionMgr), opts...))

	// h2c serves HTTP/2 without TLS so server streams work with plain clients
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	// Close the session first so subscription streams end
	sessionMgr.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// newBackend creates the audio backend for the configured output.
func newBackend(cfg config.PlayerConfig) (*audio.Backend, func(), error) {
	switch cfg.Output {
	case config.OutputNull:
		sink := audio.NewNullSink(true)
		zlog.Info().Msg("Audio output: null (headless)")
		return audio.NewBackend(sink, cfg.SampleRate), sink.Close, nil
	default:
		if !audio.OutputAvailable {
			return nil, nil, errors.New("this build has no sound output, set player.output to \"null\"")
		}
		sink := audio.NewSpeakerSink()
		sink.BufferDuration = cfg.Buffer()
		zlog.Info().Msgf("Audio output: speaker (rate=%d buffer=%s)", cfg.SampleRate, cfg.Buffer())
		return audio.NewBackend(sink, cfg.SampleRate), func() {}, nil
	}
}

// newCoverResolver creates the cover resolver, with Last.fm lookups when an
// API key is configured.
func newCoverResolver(cfg *config.Config, pictures artwork.PictureReader) (*artwork.Resolver, error) {
	var remote artwork.AlbumArtFetcher
	if cfg.LastFM.APIKey != "" {
		client, err := lastfm.New(lastfm.Config{
			APIKey:  cfg.LastFM.APIKey,
			Timeout: cfg.LastFM.Timeout(),
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Last.fm client")
		}
		remote = client
		zlog.Info().Msg("Last.fm album art lookups enabled")
	}

	resolver, err := artwork.NewResolver(pictures, remote, artwork.Config{
		Size:      cfg.Artwork.Size,
		CacheSize: cfg.Artwork.CacheSize,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cover resolver")
	}
	return resolver, nil
}

// scan indexes dirs (or the configured library) and prints the result.
func scan(cfg *config.Config, dirs []string) error {
	if len(dirs) == 0 {
		dirs = cfg.Library.Dirs
	}
	if len(dirs) == 0 {
		return errors.New("no directories to scan")
	}

	scanner := library.NewScanner(tags.NewReader(), audio.Prober{})
	ctx := context.Background()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Title", "Artist", "Album", "Duration", "Cover"})

	var total time.Duration
	count := 0
	for _, dir := range dirs {
		tracks, skipped, err := scanner.Scan(ctx, dir)
		if err != nil {
			return errors.Wrapf(err, "failed to scan %s", dir)
		}
		for _, s := range skipped {
			zlog.Warn().Msgf("Skipped %s: %v", s.Path, s.Err)
		}
		for _, tr := range tracks {
			count++
			total += tr.Duration
			cover := ""
			if tr.HasCover() {
				cover = "yes"
			}
			t.AppendRow(table.Row{count, tr.DisplayTitle(), tr.Artist, tr.Album, formatDuration(tr.Duration), cover})
		}
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d tracks", count), "", "", formatDuration(total), ""})
	t.Render()
	return nil
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registry := filter.GetRegistered()
	for _, name := range filter.Names() {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
