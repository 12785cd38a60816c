// Package cmd defines the CLI commands for the tululu-archiver executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/tululu-archiver/internal/app"
	"github.com/JakeFAU/tululu-archiver/internal/config"
	"github.com/JakeFAU/tululu-archiver/internal/logging"
)

// sessionKeyType is the key for storing the session in the command context.
type sessionKeyType string

const sessionKey sessionKeyType = "session"

// Runner is the slice of *app.App the commands depend on, so tests can
// inject a fake.
type Runner interface {
	Run(ctx context.Context) (app.Result, error)
	Close(ctx context.Context) error
}

// newApp is the application factory; tests replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newLogger builds the process logger; tests replace it.
var newLogger = logging.New

type session struct {
	app    Runner
	logger *zap.Logger
}

// flagBinding maps a CLI flag to its viper key.
type flagBinding struct {
	key  string
	flag string
}

var crawlFlags = []flagBinding{
	{key: "crawl.start_page", flag: "start_page"},
	{key: "crawl.end_page", flag: "end_page"},
	{key: "crawl.dest_folder", flag: "dest_folder"},
	{key: "crawl.skip_imgs", flag: "skip_imgs"},
	{key: "crawl.skip_txt", flag: "skip_txt"},
	{key: "crawl.json_path", flag: "json_path"},
	{key: "logging.development", flag: "dev"},
	{key: "server.port", flag: "status_port"},
}

// newRootCmd creates the root command. Running it without a subcommand
// performs a crawl, matching the crawl subcommand.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile, envFile string
	cmd := &cobra.Command{
		Use:   "tululu-archiver",
		Short: "Archives the tululu.org science-fiction catalog.",
		Long: `tululu-archiver walks a range of tululu.org catalog pages, downloads each
book's text and cover and writes books_info.json describing every archived book.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Config and logger are resolved here so both the root command and
		// the crawl subcommand share them.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile, cmd.Flags().Changed("env_file")); err != nil {
				return err //nolint:wrapcheck
			}
			if cmd.Flags().Changed("status_port") {
				v.Set("server.enabled", true)
			}
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("initialize application: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), sessionKey, &session{app: appInstance, logger: logger}))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return closeSession(cmd.Context())
		},

		RunE: runCrawlCommand,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.StringVar(&envFile, "env_file", ".env", "file of TULULU_* overrides loaded into the environment")
	flags.Int("start_page", v.GetInt("crawl.start_page"), "first catalog page to crawl")
	flags.Int("end_page", v.GetInt("crawl.end_page"), "catalog page to stop before (exclusive)")
	flags.String("dest_folder", v.GetString("crawl.dest_folder"), "folder for books/ and images/")
	flags.Bool("skip_imgs", v.GetBool("crawl.skip_imgs"), "do not download covers")
	flags.Bool("skip_txt", v.GetBool("crawl.skip_txt"), "do not download book texts")
	flags.String("json_path", v.GetString("crawl.json_path"), "folder for books_info.json (default dest_folder)")
	flags.Bool("dev", v.GetBool("logging.development"), "use development logging")
	flags.Int("status_port", v.GetInt("server.port"), "serve health, metrics and progress on this port")
	bindFlags(v, flags)

	cmd.AddCommand(newCrawlCmd())
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for _, b := range crawlFlags {
		cobra.CheckErr(v.BindPFlag(b.key, flags.Lookup(b.flag)))
	}
}

func resolveSession(ctx context.Context) (*session, error) {
	s, ok := ctx.Value(sessionKey).(*session)
	if !ok || s == nil || s.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return s, nil
}

func closeSession(ctx context.Context) error {
	s, err := resolveSession(ctx)
	if err != nil {
		return nil
	}
	defer func() { _ = s.logger.Sync() }()
	if err := s.app.Close(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("close application: %w", err)
	}
	return nil
}

// execute runs the root command with args under ctx.
func execute(ctx context.Context, v *viper.Viper, args []string, stderr io.Writer) error {
	root := newRootCmd(v)
	root.SetArgs(args)
	root.SetErr(stderr)
	executed, err := root.ExecuteContextC(ctx)
	if err != nil && executed != nil {
		// PersistentPostRunE is skipped when RunE fails.
		if cerr := closeSession(executed.Context()); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

// Execute is the main entry point. It cancels the run on SIGINT or SIGTERM
// and exits non-zero when the command fails.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, config.New(), os.Args[1:], os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tululu-archiver: %v\n", err)
		os.Exit(1)
	}
}
