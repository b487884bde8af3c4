package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/spf13/cobra"

	"github.com/triiberg/repeat/internal/control"
	"github.com/triiberg/repeat/internal/eventloop"
	"github.com/triiberg/repeat/internal/history"
	"github.com/triiberg/repeat/internal/picker"
	"github.com/triiberg/repeat/internal/rlog"
	"github.com/triiberg/repeat/internal/selection"
)

const defaultSocketPath = "/tmp/repeat.socket"

var (
	socketPath string
	maxClips   int
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "repeat",
		Short: "X11 clipboard history daemon with a fuzzy-searchable picker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", defaultSocketPath, "control socket path")
	root.Flags().IntVar(&maxClips, "max-clips", history.DefaultMaxClips, "maximum clips retained in history")
	root.Flags().BoolVar(&verbose, "verbose", false, "also log to stderr")

	root.AddCommand(clientCmd("show", control.Show, "show the picker"))
	root.AddCommand(clientCmd("pause", control.Pause, "pause capture"))
	root.AddCommand(clientCmd("start", control.Start, "resume capture"))
	root.AddCommand(clientCmd("dump", control.Dump, "dump full history to a file"))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func clientCmd(use string, verb control.Verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := control.Dial(socketPath)
			if err != nil {
				return fmt.Errorf("connect to daemon: %w", err)
			}
			defer client.Close()
			return client.Send(verb)
		},
	}
}

func runDaemon() error {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		homeDir, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return fmt.Errorf("determine cache directory: %w", err)
		}
		cacheDir = filepath.Join(homeDir, ".cache")
	}
	cacheDir = filepath.Join(cacheDir, "repeat")

	log, err := rlog.New(cacheDir, verbose)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync()

	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("connect to X server: %w", err)
	}
	defer conn.Close()

	store := history.New(maxClips)

	selDisp, err := selection.NewXGBDisplay(conn)
	if err != nil {
		return fmt.Errorf("init selection display: %w", err)
	}
	engine, err := selection.New(selDisp, store, log)
	if err != nil {
		return fmt.Errorf("init selection engine: %w", err)
	}
	if err := engine.TakeOwnership(); err != nil {
		log.Warnf("initial ownership claim failed: %v", err)
	}

	pickerDisp, err := picker.NewXGBDisplay(conn)
	if err != nil {
		return fmt.Errorf("init picker display: %w", err)
	}
	controller := picker.NewController(store)
	window := picker.NewWindow(pickerDisp, controller, log, func(text string) error {
		idx, added := store.Add(history.Clip{Source: history.Primary, Contents: history.Contents{Text: text}})
		if added {
			log.Infof("captured clip %d from picker commit", idx)
		}
		return engine.TakeOwnership()
	})

	ctrl, err := control.NewServer(socketPath, log)
	if err != nil {
		return fmt.Errorf("init control socket: %w", err)
	}
	defer ctrl.Close()

	loop := eventloop.New(conn, engine, window, ctrl, store, log)
	loop.OnDump(func(clips []history.Clip) error {
		return dumpClips(cacheDir, clips)
	})

	errCh := make(chan error, 2)
	go func() { errCh <- ctrl.Serve() }()
	go func() { errCh <- loop.Run() }()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signalCh:
		log.Infof("received signal %s, shutting down", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Errorf("daemon error: %v", err)
			return err
		}
	}
	return nil
}

// dumpClips writes the clips in the order given (the event loop passes
// the full history newest first) to a timestamped file under
// cacheDir/dumps, carried over from the teacher's
// internal/ipc dump op (spec.md "Supplemented features").
func dumpClips(cacheDir string, clips []history.Clip) error {
	dumpDir := filepath.Join(cacheDir, "dumps")
	if err := os.MkdirAll(dumpDir, 0o700); err != nil {
		return fmt.Errorf("create dump dir: %w", err)
	}
	path := filepath.Join(dumpDir, fmt.Sprintf("dump-%s.txt", time.Now().Format("2006-01-02T15-04-05")))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for i, clip := range clips {
		if _, err := writer.WriteString(clip.Contents.Text); err != nil {
			return err
		}
		if i < len(clips)-1 {
			if _, err := writer.WriteString("\n-----\n"); err != nil {
				return err
			}
		}
	}
	return writer.Flush()
}
