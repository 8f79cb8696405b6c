package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/schollz/progressbar/v3"

	"github.com/GeminiZA/GoTorrentHandler/internal/api"
	"github.com/GeminiZA/GoTorrentHandler/internal/config"
	"github.com/GeminiZA/GoTorrentHandler/internal/database"
	"github.com/GeminiZA/GoTorrentHandler/internal/logger"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/client"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/engine"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/engine/btengine"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/engine/localengine"
)

const usage = `usage:
  gotorrenthandler [-config path] serve
  gotorrenthandler [-config path] fetch [-timeout d] <magnet> <dir>
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gotorrenthandler", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", config.DefaultPath, "path to the JSON config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := config.ParseConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	log := logger.New(logger.ParseLevel(cfg.LogLevel), "main")
	defer log.Sync()

	var catalog *database.DBConn
	if cfg.DBPath != "" {
		catalog, err = database.Connect(cfg.DBPath)
		if err != nil {
			fmt.Fprintf(stderr, "catalog: %v\n", err)
			return 1
		}
		defer catalog.Disconnect()
	}

	clientCfg := client.Config{
		Engine:        newEngine(cfg, log),
		PollInterval:  cfg.PollInterval(),
		RemoveTimeout: cfg.RemoveTimeout(),
		Logger:        log.Named("client"),
	}
	if catalog != nil {
		clientCfg.Catalog = catalog
	}
	tc := client.New(clientCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch fs.Arg(0) {
	case "serve":
		var manifests api.Manifests
		if catalog != nil {
			manifests = catalog
		}
		err = serve(ctx, cfg, api.NewServer(tc, manifests, cfg.APIToken, log.Named("api")), tc, log)
	case "fetch":
		err = fetch(ctx, fs.Args()[1:], tc, stdout, stderr)
	default:
		fmt.Fprint(stderr, usage)
		return 2
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func newEngine(cfg *config.Config, log *logger.Logger) engine.Engine {
	if cfg.Engine == config.EngineLocal {
		return localengine.New(osfs.New(cfg.MetainfoDir), ".", cfg.ResolveDelay(), log.Named("localengine"))
	}
	return btengine.New(btengine.Config{
		DataDir:    cfg.DataDir,
		ListenPort: cfg.ListenPort,
		NoDHT:      cfg.NoDHT,
	}, log.Named("btengine"))
}

// serve runs the host bridge until ctx ends, then stops the client.
func serve(ctx context.Context, cfg *config.Config, srv *api.Server, tc *client.TorrentClient, log *logger.Logger) error {
	httpServer := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("Host bridge listening on %s", cfg.APIAddr))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			tc.Stop(context.Background())
			return err
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	// Stop first so a Start still waiting on metadata releases its request.
	stopErr := tc.Stop(context.Background())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(stopErr, httpServer.Shutdown(shutdownCtx))
}

func fetch(ctx context.Context, args []string, tc *client.TorrentClient, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	timeout := fs.Duration("timeout", 0, "give up waiting for metadata after this long (0 waits forever)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New(usage)
	}
	magnetURI, dir := fs.Arg(0), fs.Arg(1)

	if err := tc.Initialize(); err != nil {
		return err
	}
	defer tc.Stop(context.Background())

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(stderr),
		progressbar.OptionSetDescription("waiting for metadata"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	path, err := tc.Start(ctx, magnetURI, dir,
		client.WithTimeout(*timeout),
		client.WithProgress(func(time.Duration) { bar.Add(1) }),
	)
	bar.Finish()
	if err != nil {
		return fmt.Errorf("%s: %w", client.KindOf(err), err)
	}

	files, err := tc.ListFiles()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Saving to %s\n", path)
	for _, f := range files {
		fmt.Fprintln(stdout, f)
	}
	return nil
}
