package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/storyline-go/internal/cli/repl"
	"github.com/yndnr/storyline-go/internal/config"
	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/internal/infra/confloader"
	"github.com/yndnr/storyline-go/internal/infra/shutdown"
	"github.com/yndnr/storyline-go/internal/savestore"
	"github.com/yndnr/storyline-go/internal/telemetry/logger"
)

const historyFile = ".play_history"

// PlayCommand returns the interactive play command.
func PlayCommand() *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "Drive a history interactively",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "restore",
				Usage: "Resume from the last session snapshot",
				Value: true,
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address",
			},
		},
		Action: play,
	}
}

type player struct {
	rt  *Runtime
	out io.Writer
}

var playCommands = []string{
	"new", "back", "forward", "goto", "where", "set", "get", "vars", "visited",
	"roll", "save", "autosave", "load", "continue", "delete", "saves",
	"level", "help", "quit", "exit",
}

func play(c *cli.Context) error {
	rt, err := runtimeFor(c, true)
	if err != nil {
		return err
	}
	ctx := logger.WithLogger(c.Context, rt.Logger)

	hooks := shutdown.NewHandler(0)
	hooks.OnShutdown(rt.Close)
	stop := hooks.Watch(ctx)
	defer stop()

	// A signal closes the engine while the loop may be blocked on input.
	var loopDone atomic.Bool
	go func() {
		<-hooks.Done()
		if !loopDone.Load() {
			os.Exit(130)
		}
	}()

	if addr := c.String("metrics-addr"); addr != "" {
		srv, err := serveMetrics(addr, rt)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "metrics on http://%s/metrics\n", srv.Addr)
		hooks.OnShutdown(srv.Shutdown)
	}

	if path := c.String("config"); path != "" {
		if w, err := watchConfig(path, rt.Logger); err == nil {
			hooks.OnShutdown(func(context.Context) error { return w.Stop() })
		} else {
			rt.Logger.Warn("play: config watch disabled", "error", err)
		}
	}

	if c.Bool("restore") {
		restored, err := rt.Engine.RestoreSession(ctx)
		switch {
		case err != nil:
			fmt.Fprintf(c.App.Writer, "session snapshot unusable: %v\n", err)
		case restored:
			fmt.Fprintf(c.App.Writer, "resumed at %q\n", currentTitle(rt))
		}
	}

	p := &player{rt: rt, out: c.App.Writer}
	var in io.Reader = os.Stdin
	if c.App.Reader != nil {
		in = c.App.Reader
	}
	loop := repl.New(repl.Config{
		In:       in,
		Out:      c.App.Writer,
		Prompt:   "story> ",
		History:  repl.NewHistory(filepath.Join(rt.Config.Storage.DataDir, historyFile), 0),
		Commands: playCommands,
	}, p.handle)

	runErr := loop.Run(ctx)
	loopDone.Store(true)
	if err := hooks.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func serveMetrics(addr string, rt *Runtime) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.Metrics.Handler())
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Logger.Error("play: metrics server stopped", "error", err)
		}
	}()
	return srv, nil
}

// watchConfig reloads the log level when the config file changes.
func watchConfig(path string, log *slog.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return nil, err
	}
	w.OnChange(func(string) {
		cfg := config.Default()
		if err := confloader.NewLoader(confloader.WithConfigFile(path)).Load(cfg); err != nil {
			log.Warn("play: config reload failed", "error", err)
			return
		}
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("play: config reload failed", "error", err)
			return
		}
		log.Info("play: log level reloaded", "level", cfg.Log.Level)
	})
	w.Start()
	return w, nil
}

func currentTitle(rt *Runtime) string {
	if m, ok := rt.Engine.Machine().Current(); ok {
		return m.Title
	}
	return ""
}

func (p *player) handle(ctx context.Context, args []string) error {
	e := p.rt.Engine
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "quit", "exit":
		return repl.ErrQuit
	case "help":
		fmt.Fprintln(p.out, strings.Join(playCommands, " "))
		return nil
	case "new":
		if len(rest) != 1 {
			return errors.New("usage: new TITLE")
		}
		n, err := e.Create(rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(p.out, "%d: %s\n", n-1, rest[0])
		return nil
	case "back":
		return p.moved(e.Backward())
	case "forward":
		return p.moved(e.Forward())
	case "goto":
		i, err := intArg(rest, 0, "goto INDEX")
		if err != nil {
			return err
		}
		return p.moved(e.GoTo(i))
	case "where":
		p.where()
		return nil
	case "set":
		if len(rest) != 2 {
			return errors.New("usage: set NAME VALUE")
		}
		e.Machine().SetVariable(rest[0], parseValue(rest[1]))
		return nil
	case "get":
		if len(rest) != 1 {
			return errors.New("usage: get NAME")
		}
		v, ok := e.Machine().Variable(rest[0])
		if !ok {
			return fmt.Errorf("%s is not set", rest[0])
		}
		return p.printJSON(v)
	case "vars":
		return p.printJSON(e.Machine().Variables())
	case "visited":
		if len(rest) != 1 {
			return errors.New("usage: visited TITLE")
		}
		fmt.Fprintln(p.out, e.Machine().VisitedCount(rest[0]))
		return nil
	case "roll":
		return p.roll(rest)
	case "save":
		slot, err := intArg(rest, 0, "save SLOT [NAME]")
		if err != nil {
			return err
		}
		var meta domain.Metadata
		if len(rest) > 1 {
			meta.SaveName = strings.Join(rest[1:], " ")
		}
		return p.status(e.Save(ctx, slot, "", meta))
	case "autosave":
		return p.status(e.Autosave(ctx))
	case "load":
		slot, err := intArg(rest, 0, "load SLOT")
		if err != nil {
			return err
		}
		if err := e.Load(ctx, slot); err != nil {
			return err
		}
		fmt.Fprintf(p.out, "loaded %q\n", currentTitle(p.rt))
		return nil
	case "continue":
		slot, ok, err := e.Continue(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(p.out, "no saves")
			return nil
		}
		fmt.Fprintf(p.out, "loaded slot %d: %q\n", slot, currentTitle(p.rt))
		return nil
	case "delete":
		slot, err := intArg(rest, 0, "delete SLOT")
		if err != nil {
			return err
		}
		return p.status(e.Delete(ctx, slot))
	case "saves":
		details, err := e.Details(ctx)
		if err != nil {
			return err
		}
		for _, d := range details {
			r := toRow(d)
			fmt.Fprintf(p.out, "%d\t%s\t%s\t%s\n", r.Slot, r.Kind, r.Title, r.Date.Format(time.DateTime))
		}
		return nil
	case "level":
		if len(rest) != 1 {
			fmt.Fprintln(p.out, logger.GetLevel())
			return nil
		}
		return logger.SetLevel(rest[0])
	default:
		return fmt.Errorf("%w: %s", repl.ErrUnknownCommand, cmd)
	}
}

func (p *player) moved(ok bool) error {
	if !ok {
		return errors.New("no such moment")
	}
	p.where()
	return nil
}

func (p *player) where() {
	m := p.rt.Engine.Machine()
	idx := m.Index()
	for i, title := range m.Titles() {
		marker := " "
		if i == idx {
			marker = "*"
		}
		fmt.Fprintf(p.out, "%s %d: %s\n", marker, i, title)
	}
}

func (p *player) roll(rest []string) error {
	if len(rest) != 2 {
		return errors.New("usage: roll MIN MAX")
	}
	lo, err1 := strconv.Atoi(rest[0])
	hi, err2 := strconv.Atoi(rest[1])
	if err1 != nil || err2 != nil {
		return errors.New("usage: roll MIN MAX")
	}
	n, err := p.rt.Engine.PRNG().Int(lo, hi)
	if err != nil {
		return err
	}
	fmt.Fprintln(p.out, n)
	return nil
}

func (p *player) status(status savestore.Status, err error) error {
	if err := statusError(status, err); err != nil {
		return err
	}
	fmt.Fprintln(p.out, "ok")
	return nil
}

func (p *player) printJSON(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(p.out, string(raw))
	return nil
}

func intArg(args []string, i int, usage string) (int, error) {
	if len(args) <= i {
		return 0, errors.New("usage: " + usage)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, errors.New("usage: " + usage)
	}
	return n, nil
}

// parseValue reads v as JSON, falling back to a plain string.
func parseValue(v string) any {
	var out any
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return v
	}
	return out
}

