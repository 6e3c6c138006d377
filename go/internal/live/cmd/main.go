// Debatelive follows a live debate session from the terminal: it keeps a
// reconciled view of the session from polling and hub pushes, sends fire
// reactions and drives moderator actions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/mcdev12/debatelive/go/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	var (
		configPath = pflag.StringP("config", "c", "", "Path to debatelive.yaml")
		sessionID  = pflag.StringP("session", "s", "", "Debate session id")
		baseURL    = pflag.String("base-url", "", "Backend base URL")
		prefix     = pflag.String("api-prefix", "", "API path prefix (/api or /debate-manager)")
		transport  = pflag.String("transport", "", "Push transport: websocket or nats")
		logLevel   = pflag.String("log-level", "", "Log level (debug, info, warn, error)")
		jsonOut    = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		overlay    = pflag.Bool("overlay", false, "Serve the overlay endpoints while watching")
	)

	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	applyFlags(cfg, *sessionID, *baseURL, *prefix, *transport, *logLevel, *overlay)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(cfg, *jsonOut)
	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	switch cmd {
	case "watch":
		err = app.watch(ctx)

	case "fire":
		var position float64
		fireFlags := pflag.NewFlagSet("fire", pflag.ContinueOnError)
		fireFlags.Float64Var(&position, "position", 0.5, "Horizontal position of the burst, 0 to 1")
		if err = fireFlags.Parse(subArgs); err == nil {
			err = app.fire(ctx, position)
		}

	case "fires":
		err = app.fires(ctx)

	case "login":
		var email, password string
		loginFlags := pflag.NewFlagSet("login", pflag.ContinueOnError)
		loginFlags.StringVar(&email, "email", os.Getenv("DEBATELIVE_EMAIL"), "Account email")
		loginFlags.StringVar(&password, "password", os.Getenv("DEBATELIVE_PASSWORD"), "Account password")
		if err = loginFlags.Parse(subArgs); err == nil {
			err = app.login(ctx, email, password)
		}

	case "logout":
		err = app.logout()

	case "whoami":
		err = app.whoami()

	case "banned":
		err = app.banned(ctx)

	case "start-round":
		var round, duration int
		roundFlags := pflag.NewFlagSet("start-round", pflag.ContinueOnError)
		roundFlags.IntVar(&round, "round", 1, "Round number")
		roundFlags.IntVar(&duration, "duration", 180, "Round length in seconds")
		if err = roundFlags.Parse(subArgs); err == nil {
			err = app.control(ctx, actionStartRound(round, duration))
		}

	case "go-live":
		err = app.control(ctx, actionGoLive)

	case "pause":
		err = app.control(ctx, actionPause)

	case "end":
		err = app.control(ctx, actionEnd)

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config, sessionID, baseURL, prefix, transport, logLevel string, overlay bool) {
	if sessionID != "" {
		cfg.Session.ID = sessionID
	}
	if baseURL != "" {
		cfg.Server.BaseURL = baseURL
	}
	if prefix != "" {
		cfg.Server.APIPrefix = prefix
	}
	if transport != "" {
		cfg.Hub.Transport = transport
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if overlay {
		cfg.Overlay.Enabled = true
	}
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func usage() {
	fmt.Print(`
  debatelive - live debate session client

  USAGE
    debatelive [flags] <command> [command-flags]

  COMMANDS (viewer)
    watch           Follow a session live (Ctrl-C to stop)
    fire            Send one fire reaction
    fires           Show the session's fire count

  COMMANDS (account)
    login           Log in and store the token
    logout          Forget the stored token
    whoami          Show the stored identity

  COMMANDS (moderator)
    start-round     Start a round
    go-live         Take the session live
    pause           Pause the session
    end             End the session
    banned          List banned IPs

  GLOBAL FLAGS
    -c, --config PATH       Config file (default: ./debatelive.yaml if present)
    -s, --session ID        Session id
        --base-url URL      Backend base URL
        --api-prefix PATH   API prefix, /api or /debate-manager
        --transport NAME    websocket or nats
        --log-level LEVEL   debug, info, warn, error
        --json              Output raw JSON
        --overlay           Serve overlay endpoints while watching

  COMMAND FLAGS
    fire:
        --position F        0 to 1 (default: 0.5)

    login:
        --email ADDR        (env DEBATELIVE_EMAIL)
        --password PW       (env DEBATELIVE_PASSWORD)

    start-round:
        --round N           Round number (default: 1)
        --duration SECS     Round length (default: 180)

`)
}
