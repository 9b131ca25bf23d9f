// pilot drives the suite-pilot agent runtime from a terminal: it logs in
// through the device flow, sends one message through the tool-calling
// loop and prints the answer, the executed steps and, on request, the
// generated Playwright test.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/ZanzyTHEbar/suite-pilot/pilot/auth"
	"github.com/ZanzyTHEbar/suite-pilot/pilot/config"
	"github.com/ZanzyTHEbar/suite-pilot/pilot/generation"
)

type options struct {
	configPath     string
	message        string
	noTools        bool
	maxToolCalls   int
	token          string
	login          bool
	stream         bool
	scriptPath     string
	scriptName     string
	conversationID string
	logLevel       string
	watch          bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options

	flagSet := pflag.NewFlagSet("pilot", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "config file (default: search ., .., etc/suite-pilot, user config dir)")
	flagSet.StringVarP(&opts.message, "message", "m", "", "message to send")
	flagSet.BoolVar(&opts.noTools, "no-tools", false, "disable tool calling for this message")
	flagSet.IntVar(&opts.maxToolCalls, "max-tool-calls", 0, "tool call ceiling (default: agent.max_tool_calls)")
	flagSet.StringVar(&opts.token, "token", "", "use this bearer token instead of the device flow")
	flagSet.BoolVar(&opts.login, "login", false, "run the device flow before anything else")
	flagSet.BoolVar(&opts.stream, "stream", false, "stream a plain answer without tools")
	flagSet.StringVar(&opts.scriptPath, "script", "", "write the generated Playwright test here (- for stdout)")
	flagSet.StringVar(&opts.scriptName, "script-name", "generated", "test function name for --script")
	flagSet.StringVar(&opts.conversationID, "conversation", "", "conversation id for the transcript store")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "zerolog level (default: log.level)")
	flagSet.BoolVar(&opts.watch, "watch", false, "hot-reload the config file while running")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.message == "" && flagSet.NArg() > 0 {
		opts.message = strings.Join(flagSet.Args(), " ")
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, opts.logLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rt, err := generation.NewRuntime(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close runtime")
		}
	}()

	if opts.watch {
		if err := rt.Watch(); err != nil {
			logger.Warn().Err(err).Msg("Config hot reload unavailable")
		}
	}

	if opts.token != "" {
		rt.SetToken(opts.token, cfg.Auth.TokenTTL)
	}
	if opts.login || (opts.message != "" && !rt.IsAuthenticated()) {
		if err := rt.Authenticate(ctx, showDeviceCode); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		fmt.Fprintln(os.Stderr, "Logged in.")
	}

	if opts.message == "" {
		if opts.login {
			return nil
		}
		return errors.New("nothing to do: pass --message or --login")
	}

	if opts.stream {
		return stream(ctx, rt, opts.message)
	}
	return chat(ctx, rt, cfg, opts)
}

func chat(ctx context.Context, rt *generation.Runtime, cfg *config.Config, opts options) error {
	resp, err := rt.Chat(ctx, generation.ChatRequest{
		Message:        opts.message,
		ToolsEnabled:   cfg.Agent.ToolsEnabled && !opts.noTools,
		MaxToolCalls:   opts.maxToolCalls,
		ConversationID: opts.conversationID,
	})
	if err != nil {
		return err
	}

	for i, step := range resp.Steps {
		fmt.Fprintf(os.Stderr, "%2d. [%s] %s", i+1, step.Status, step.Action)
		if def, ok := rt.Tool(step.ToolName); ok && def.ServerID != "" {
			fmt.Fprintf(os.Stderr, " @%s", def.ServerID)
		}
		if step.Locator != "" {
			fmt.Fprintf(os.Stderr, " %s", step.Locator)
		}
		if step.Value != "" {
			fmt.Fprintf(os.Stderr, " = %q", step.Value)
		}
		fmt.Fprintf(os.Stderr, " (%s)\n", step.FinishedAt.Sub(step.StartedAt).Round(time.Millisecond))
	}
	fmt.Println(resp.Text)

	if opts.scriptPath == "" {
		return nil
	}
	script := rt.Script(opts.scriptName, resp.Steps)
	if opts.scriptPath == "-" {
		fmt.Print(script)
		return nil
	}
	if err := os.WriteFile(opts.scriptPath, []byte(script), 0o644); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", opts.scriptPath)
	return nil
}

func stream(ctx context.Context, rt *generation.Runtime, message string) error {
	textCh, errCh := rt.ChatStream(ctx, message)
	for part := range textCh {
		fmt.Print(part)
	}
	fmt.Println()
	return <-errCh
}

func showDeviceCode(code auth.DeviceCode) {
	fmt.Fprintf(os.Stderr, "Open %s and enter code %s\n", code.VerificationURI, code.UserCode)
}

func newLogger(cfg config.LogConfig, override string) (zerolog.Logger, error) {
	name := cfg.Level
	if override != "" {
		name = override
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", name, err)
	}

	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Logger(), nil
}
