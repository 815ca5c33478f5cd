package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"jarvisrelay/internal/channel"
	"jarvisrelay/internal/config"
	"jarvisrelay/internal/domain"
	"jarvisrelay/internal/jarvis"
	"jarvisrelay/internal/relay"
	"jarvisrelay/internal/supervisor"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "0.1.0"

const (
	exitOK    = 0
	exitError = 1
	exitLogin = 2
	exitUsage = 2
)

// Credentials can come from the environment (or a .env file) so they stay
// out of shell history.
const (
	envEmail    = "JARVIS_RELAY_EMAIL"
	envPassword = "JARVIS_RELAY_PASSWORD"
)

// usageError marks a command-line mistake.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// rootOptions holds the raw flag values; resolveConfig folds the ones the
// user set into the config.
type rootOptions struct {
	configPath string
	envFile    string

	platform string
	email    string
	password string

	verbose    bool
	mute       bool
	getID      bool
	allowAll   bool
	allowedIDs config.IDList

	program     string
	timeout     int
	metricsAddr string
}

type runFunc func(ctx context.Context, cfg *config.Config, logger *slog.Logger) error

func main() {
	root := newRootCmd(runRelay)
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var uerr usageError
		if errors.As(err, &uerr) {
			fmt.Fprint(os.Stderr, root.UsageString())
		}
	}
	os.Exit(exitCode(err))
}

func newRootCmd(run runFunc) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "jarvis-relay",
		Short: "Relay chat messages to the Jarvis assistant",
		Long: `jarvis-relay logs in to a chat platform, hands every message it receives
to the jarvis command-line assistant and sends the answer back to the
conversation it came from. Press Ctrl+C to stop.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, newLogger(cmd.ErrOrStderr(), cfg))
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	bindFlags(root.PersistentFlags(), opts)

	root.AddCommand(doctorCmd(opts))
	root.AddCommand(versionCmd())
	return root
}

func bindFlags(fs *pflag.FlagSet, opts *rootOptions) {
	d := config.Defaults()

	fs.StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (default: ~/.jarvis-relay/config.yaml if present)")
	fs.StringVar(&opts.envFile, "env-file", "", "load "+envEmail+"/"+envPassword+" from this file (default: ./.env if present)")
	fs.StringVar(&opts.platform, "platform", d.Platform, "chat platform: "+strings.Join(config.Platforms, ", "))

	fs.StringVarP(&opts.email, "email", "e", "", "account used as username (app ID or app-level token for bots)")
	fs.StringVarP(&opts.password, "password", "p", "", "account password or bot token")

	fs.VarP(newBoolValue(d.Verbose, &opts.verbose), "verbose", "v", "show debug information and verbose replies")
	fs.VarP(newBoolValue(d.Mute, &opts.mute), "mute", "m", "mute Jarvis")
	fs.VarP(newBoolValue(d.RevealSenderID, &opts.getID), "getId", "i", "tell each sender their ID after answering")
	fs.VarP(newBoolValue(d.AllowAll, &opts.allowAll), "allowAll", "a", "allow everybody to send orders to Jarvis")

	opts.allowedIDs = append(config.IDList{}, d.AllowedIDs...)
	fs.VarP(&opts.allowedIDs, "allowedIdList", "l", `IDs allowed to send orders, e.g. "['123', '456']"`)

	fs.StringVar(&opts.program, "program", d.Program, "assistant executable")
	fs.IntVar(&opts.timeout, "timeout", d.TimeoutSeconds, "seconds to wait for the assistant, 0 for no limit")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", d.MetricsAddr, "serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")
}

// boolValue is a pflag.Value that understands yes/no spellings.
type boolValue bool

func newBoolValue(val bool, p *bool) *boolValue {
	*p = val
	return (*boolValue)(p)
}

func (b *boolValue) Set(s string) error {
	v, err := config.ParseBool(s)
	if err != nil {
		return err
	}
	*b = boolValue(v)
	return nil
}

func (b *boolValue) String() string { return strconv.FormatBool(bool(*b)) }

func (b *boolValue) Type() string { return "bool" }

// resolveConfig layers defaults, the config file, the environment and the
// flags the user actually set, in that order.
func resolveConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	// Before the config file, so ${VAR} in it can see .env values.
	if err := loadEnv(opts.envFile); err != nil {
		return nil, err
	}

	cfg, _, err := loadConfigFile(opts.configPath)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv(envEmail); v != "" {
		cfg.Account = v
	}
	if v := os.Getenv(envPassword); v != "" {
		cfg.Secret = v
	}

	fs := cmd.Flags()
	if fs.Changed("platform") {
		cfg.Platform = opts.platform
	}
	if fs.Changed("email") {
		cfg.Account = opts.email
	}
	if fs.Changed("password") {
		cfg.Secret = opts.password
	}
	if fs.Changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	if fs.Changed("mute") {
		cfg.Mute = opts.mute
	}
	if fs.Changed("getId") {
		cfg.RevealSenderID = opts.getID
	}
	if fs.Changed("allowAll") {
		cfg.AllowAll = opts.allowAll
	}
	if fs.Changed("allowedIdList") {
		cfg.AllowedIDs = append(config.IDList{}, opts.allowedIDs...)
	}
	if fs.Changed("program") {
		cfg.Program = opts.program
	}
	if fs.Changed("timeout") {
		cfg.TimeoutSeconds = opts.timeout
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}

	if err := config.Validate(cfg); err != nil {
		return nil, usageError{err}
	}
	return cfg, nil
}

// loadConfigFile returns the config and the file it came from. Without
// --config a missing default file just means defaults.
func loadConfigFile(path string) (*config.Config, string, error) {
	if path == "" {
		path = config.DefaultConfigPath()
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Defaults(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func loadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
}

func runRelay(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	defer stop()

	logger.Debug("starting jarvis relay", "version", version, "config", config.Sanitize(cfg))

	dial, err := channel.NewDialer(cfg.Platform, channel.Options{Logger: logger})
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv, err := startMetricsServer(cfg.MetricsAddr, logger)
		if err != nil {
			return err
		}
		defer shutdownMetricsServer(srv, logger)
	}

	client := jarvis.NewClient(jarvis.ClientConfig{
		Program: cfg.Program,
		Mute:    cfg.Mute,
		Verbose: cfg.Verbose,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})

	sup := supervisor.New(supervisor.Config{
		Dial:        supervisor.Dialer(dial),
		Credentials: domain.Credentials{Account: cfg.Account, Secret: cfg.Secret},
		NewHandler:  relay.Factory(client, relay.OptionsFromConfig(cfg), logger),
		Logger:      logger,
	})
	if err := sup.Run(ctx); err != nil {
		return err
	}

	fmt.Println("Stopping Jarvis relay.")
	return nil
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, supervisor.ErrLogin) {
		return exitLogin
	}
	var uerr usageError
	if errors.As(err, &uerr) {
		return exitUsage
	}
	return exitError
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "jarvis-relay v%s\n", version)
		},
	}
}
