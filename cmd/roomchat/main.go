package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomchat/internal/config"
	logpkg "github.com/vovakirdan/roomchat/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "roomchat",
		Short:         "Room-based chat server and client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			config.LoadDotEnv(nil, opts.envFiles...)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (console or json)")
	flags.StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	cmd.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newTokenCmd(opts),
		newAllowCmd(opts),
	)
	return cmd
}

// load resolves configuration and builds the logger it asks for.
func (o *rootOptions) load() (*config.Config, *zerolog.Logger, error) {
	bootstrap := logpkg.NewWithWriter(os.Stderr, o.levelOr("info"), o.logFormat)

	cfg, path, err := config.Load(bootstrap, o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(config.Config{LogLevel: o.logLevel, LogFormat: o.logFormat})

	logger := logpkg.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config_path", path).Msg("configuration loaded")
	return &cfg, logger, nil
}

func (o *rootOptions) levelOr(fallback string) string {
	if o.logLevel != "" {
		return o.logLevel
	}
	return fallback
}
