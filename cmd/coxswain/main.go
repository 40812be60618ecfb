package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/coxswain-ai/coxswain/agent"
	"github.com/coxswain-ai/coxswain/config"
	"github.com/coxswain-ai/coxswain/eventbus"
	"github.com/coxswain-ai/coxswain/gateway"
	"github.com/coxswain-ai/coxswain/session"
	"github.com/coxswain-ai/coxswain/store"
)

var version = "dev"

// getConfigPath returns the config file location.
// Priority: COXSWAIN_CONFIG env var > ./coxswain.yaml > ~/.config/coxswain/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COXSWAIN_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("coxswain.yaml"); err == nil {
		return "coxswain.yaml"
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "coxswain.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coxswain", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coxswain <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  run                  Start an interactive agent session")
		fmt.Println("  sessions             List journaled sessions")
		fmt.Println("  replay <session-id>  Print a journaled session's event log")
		fmt.Println("  version              Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runInteractive(ctx)
	case "sessions":
		err = runSessions(ctx)
	case "replay":
		if len(os.Args) < 3 {
			err = errors.New("usage: coxswain replay <session-id>")
		} else {
			err = runReplay(ctx, os.Args[2])
		}
	case "version":
		fmt.Println("coxswain", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.Logging) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func buildGateway(cfg *config.Config, logger *slog.Logger) (*gateway.Gateway, error) {
	profile := gateway.LookupProfile(cfg.Provider.Model)
	if profile == nil {
		profile = gateway.DefaultProfile(cfg.Provider.Name)
	}
	if profile == nil {
		return nil, fmt.Errorf("no capability profile for provider %q model %q", cfg.Provider.Name, cfg.Provider.Model)
	}

	opts := []gateway.GollmOption{gateway.WithModel(profile.Model)}
	if cfg.Provider.APIKey != "" {
		opts = append(opts, gateway.WithAPIKey(cfg.Provider.APIKey))
	}
	if cfg.Provider.MaxTokens > 0 {
		opts = append(opts, gateway.WithMaxTokens(cfg.Provider.MaxTokens))
	}
	if cfg.Provider.Temperature > 0 {
		opts = append(opts, gateway.WithTemperature(cfg.Provider.Temperature))
	}
	provider, err := gateway.NewGollmProvider(cfg.Provider.Name, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}

	retry := gateway.DefaultRetryPolicy()
	retry.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Warn("retrying reasoning request",
			"attempt", attempt, "delay", delay, "error", err)
	}

	return gateway.New(provider, *profile,
		gateway.WithLogger(logger),
		gateway.WithRetryPolicy(retry),
	), nil
}

func runInteractive(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	gw, err := buildGateway(cfg, logger)
	if err != nil {
		return err
	}

	journal, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer journal.Close()
	sink := store.NewSink(journal, logger)

	executor := agent.NewLocalExecutor(cfg.Executor.WorkingDir, logger)
	mgr := session.NewManager(gw, executor,
		session.WithLogger(logger),
		session.WithAgentConfig(agent.Config{
			GatewayTimeout: cfg.Session.GatewayTimeout,
			CommandTimeout: cfg.Session.CommandTimeout,
		}),
		session.WithSubscriberBuffer(cfg.Session.SubscriberBuffer),
		session.WithInactivityTimeout(cfg.Session.InactivityTimeout),
		session.WithSessionHook(func(id string, bus *eventbus.Bus) {
			sink.Attach(bus)
			attachConsole(bus)
		}),
	)
	defer func() {
		mgr.Close()
		sink.Wait()
	}()

	id, err := mgr.Create()
	if err != nil {
		return err
	}
	color.New(color.FgCyan).Printf("session %s — type a message, y/n answers a pending confirmation, ctrl-d exits\n", id)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		select {
		case <-ctx.Done():
			return mgr.Terminate(id, "interrupted")
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			_ = mgr.Terminate(id, "input closed")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if _, pending, _ := mgr.Pending(id); pending {
			d := agent.DecisionRejected
			switch strings.ToLower(line) {
			case "y", "yes":
				d = agent.DecisionApproved
			}
			if err := mgr.Resolve(id, d); err != nil {
				color.New(color.FgRed).Println(err)
			}
			continue
		}

		switch err := mgr.Send(id, line); {
		case errors.Is(err, session.ErrSessionBusy):
			color.New(color.FgYellow).Println("still working on the previous message")
		case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, agent.ErrSessionTerminated):
			return nil
		case err != nil:
			return err
		}

		if done := waitQuiescent(ctx, mgr, id); done {
			return nil
		}
	}
}

// waitQuiescent blocks until the session's turn settles: idle, awaiting
// a confirmation decision, or terminal. Returns true when the session is
// over.
func waitQuiescent(ctx context.Context, mgr *session.Manager, id string) bool {
	for {
		select {
		case <-ctx.Done():
			_ = mgr.Terminate(id, "interrupted")
			return true
		case <-time.After(50 * time.Millisecond):
		}

		state, err := mgr.State(id)
		if err != nil {
			return true
		}
		if state.Terminal() {
			return true
		}
		if state == agent.StateIdle {
			return false
		}
		if _, pending, _ := mgr.Pending(id); pending {
			return false
		}
	}
}

// attachConsole renders the session's event stream to the terminal.
func attachConsole(bus *eventbus.Bus) {
	ch, _ := bus.Subscribe()
	go func() {
		agentMsg := color.New(color.FgGreen)
		command := color.New(color.FgYellow)
		problem := color.New(color.FgRed)
		for e := range ch {
			switch {
			case e.Type == eventbus.TypeAction && e.Action != nil:
				a := e.Action
				switch a.Kind {
				case eventbus.ActionRunCommand:
					if a.RequiresConfirmation {
						problem.Printf("agent wants to run: %s — approve? [y/N]\n", a.Command)
					} else {
						command.Printf("$ %s\n", a.Command)
					}
				case eventbus.ActionRequestConfirmation:
					problem.Printf("agent asks: %s — approve? [y/N]\n", a.Message)
				case eventbus.ActionSendMessage, eventbus.ActionFinish:
					agentMsg.Printf("agent: %s\n", a.Message)
				case eventbus.ActionError:
					problem.Printf("session error: %s\n", a.Message)
				}

			case e.Type == eventbus.TypeObservation && e.Observation != nil:
				o := e.Observation
				switch o.Kind {
				case eventbus.ObservationOutput:
					if o.Output != "" {
						fmt.Println(o.Output)
					}
				case eventbus.ObservationFailure:
					problem.Printf("command failed (exit %d)\n%s\n", o.ExitCode, o.Output)
				case eventbus.ObservationTimeout:
					problem.Println("command timed out")
				case eventbus.ObservationRejection:
					fmt.Println("action rejected")
				}
			}
		}
	}()
}

func runSessions(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return err
	}
	setupLogger(config.Logging{Level: "error"})

	journal, err := store.Open(cfg.Database.Path, nil)
	if err != nil {
		return err
	}
	defer journal.Close()

	ids, err := journal.Sessions(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runReplay(ctx context.Context, sessionID string) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return err
	}
	setupLogger(config.Logging{Level: "error"})

	journal, err := store.Open(cfg.Database.Path, nil)
	if err != nil {
		return err
	}
	defer journal.Close()

	events, err := journal.ListEvents(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events for session %s", sessionID)
	}

	dim := color.New(color.Faint)
	for _, e := range events {
		dim.Printf("%4d %s %s/%s ", e.Seq, e.Timestamp.Format(time.RFC3339), e.Type, e.Kind())
		switch {
		case e.Action != nil:
			if e.Action.Command != "" {
				fmt.Print(e.Action.Command)
			} else {
				fmt.Print(e.Action.Message)
			}
		case e.Observation != nil:
			out := e.Observation.Output
			if len(out) > 120 {
				out = out[:120] + "…"
			}
			fmt.Print(strings.ReplaceAll(out, "\n", " "))
		}
		fmt.Println()
	}
	fmt.Printf("\nfinal state: %s\n", agent.DeriveState(events))
	return nil
}
