// sync2gmd - local sync daemon for mirroring a MediaMonkey library to
// a remote cloud music service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sync2gm/sync2gmd/internal/binding/mediamonkey"
	"github.com/sync2gm/sync2gmd/internal/config"
	"github.com/sync2gm/sync2gmd/internal/control"
	"github.com/sync2gm/sync2gmd/internal/cursor"
	"github.com/sync2gm/sync2gmd/internal/dispatch"
	"github.com/sync2gm/sync2gmd/internal/idmap"
	"github.com/sync2gm/sync2gmd/internal/logging"
	"github.com/sync2gm/sync2gmd/internal/poll"
	"github.com/sync2gm/sync2gmd/internal/remote"
	"github.com/sync2gm/sync2gmd/internal/remote/httpclient"
	"github.com/sync2gm/sync2gmd/internal/syncerr"
	"github.com/sync2gm/sync2gmd/internal/watch"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `sync2gmd v%s - mirror a MediaMonkey library to a remote music service

Usage: sync2gmd <command> [options]

Commands:
  init     Create or reset a profile's config and id map store (an existing cursor is kept)
  run      Run the daemon: watch the library and replay changes
  status   Report whether the daemon is running
  stop     Ask a running daemon to shut down

Run "sync2gmd <command> -h" for command-specific options.
`, version)
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "run":
		err = runDaemon(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "stop":
		err = runStop(os.Args[2:])
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "sync2gmd: %v\n", err)
		os.Exit(1)
	}
}

func profileFlags(fs *flag.FlagSet) *string {
	return fs.String("profile", "default", "profile name, used to namespace the on-disk config directory")
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	profile := profileFlags(fs)
	mpDBPath := fs.String("mp-db-path", "", "path to the MediaMonkey library database (required)")
	remoteBaseURL := fs.String("remote-base-url", "", "base URL of the remote music service")
	remoteToken := fs.String("remote-token", "", "bearer token for the remote music service")
	controlAddr := fs.String("control-addr", "127.0.0.1:7421", "localhost address for the control socket")
	fs.Parse(args)

	if *mpDBPath == "" {
		return fmt.Errorf("-mp-db-path is required")
	}

	cfg := config.Config{
		MediaPlayerType:   "mediamonkey",
		MediaPlayerDBPath: *mpDBPath,
		RemoteBaseURL:     *remoteBaseURL,
		RemoteToken:       *remoteToken,
		ControlAddr:       *controlAddr,
	}
	if err := config.Init(*profile, cfg); err != nil {
		return err
	}

	idMapPath, err := config.IDMapPath(*profile)
	if err != nil {
		return err
	}
	idMapStore, err := idmap.Open(idMapPath)
	if err != nil {
		return err
	}
	defer idMapStore.Close()
	if err := idMapStore.Init([]idmap.Kind{idmap.Song, idmap.Playlist}); err != nil {
		return err
	}

	db, err := mediamonkey.Connect(*mpDBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := watch.Reattach(db, mediamonkey.WatchedPoints()); err != nil {
		return err
	}

	fmt.Printf("initialized profile %q at %s\n", *profile, idMapPath)
	return nil
}

func runDaemon(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	profile := profileFlags(fs)
	useMock := fs.Bool("mock-remote", false, "use an in-memory mock remote client instead of the configured one")
	fs.Parse(args)

	cfg, err := config.Read(*profile)
	if err != nil {
		return err
	}

	logger := logging.New("sync2gmd")

	cursorPath, err := config.CursorPath(*profile)
	if err != nil {
		return err
	}
	cursorStore := cursor.New(cursorPath)
	if hasBackup, backupPath := cursorStore.Recover(); hasBackup {
		logger.Printf("found leftover cursor backup %s from an interrupted write", backupPath)
	}

	idMapPath, err := config.IDMapPath(*profile)
	if err != nil {
		return err
	}
	idMapStore, err := idmap.Open(idMapPath)
	if err != nil {
		return err
	}
	defer idMapStore.Close()

	watchedDB, err := mediamonkey.Connect(cfg.MediaPlayerDBPath)
	if err != nil {
		return err
	}
	defer watchedDB.Close()

	var remoteClient remote.Client
	if *useMock || cfg.RemoteBaseURL == "" {
		remoteClient = remote.NewMock("R")
	} else {
		remoteClient = httpclient.New(cfg.RemoteBaseURL, cfg.RemoteToken)
	}

	dispatcher := dispatch.New(mediamonkey.Handlers(), idMapStore, remoteClient, watchedDB)
	loop := poll.New(watchedDB, cursorStore, dispatcher, logger, poll.Options{})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Printf("received shutdown signal")
		stop()
	}()

	if err := config.WatchForExternalEdits(*profile, logger, ctx.Done()); err != nil {
		logger.Printf("could not watch config file for external edits: %v", err)
	}

	controlServer := control.NewServer(cfg.ControlAddr, logger, stop)
	controlErrCh := make(chan error, 1)
	go func() { controlErrCh <- controlServer.Serve(ctx) }()

	logger.Printf("sync2gmd running, profile=%s watching=%s", *profile, cfg.MediaPlayerDBPath)
	loopErr := loop.Run(ctx)
	stop()

	if err := <-controlErrCh; err != nil {
		logger.Printf("control socket error: %v", err)
	}

	if loopErr != nil && syncerr.Fatal(loopErr) {
		logger.Printf("poll loop stopped on a fatal error: %v", loopErr)
	}

	return loopErr
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	profile := profileFlags(fs)
	fs.Parse(args)

	cfg, err := config.Read(*profile)
	if err != nil {
		return err
	}
	if control.Status(cfg.ControlAddr) {
		fmt.Println("running")
		return nil
	}
	fmt.Println("stopped")
	return nil
}

func runStop(args []string) error {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	profile := profileFlags(fs)
	fs.Parse(args)

	cfg, err := config.Read(*profile)
	if err != nil {
		return err
	}
	return control.Shutdown(cfg.ControlAddr)
}
