// ABOUTME: Entry point for the chatline terminal client
// ABOUTME: Builds the cobra command tree and resolves config, flags and logging

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/config"
	"github.com/2389/chatline/internal/logging"
)

// version is set at build time.
var version = "dev"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (a *app) client() *api.Client {
	return api.New(a.cfg.Server.URL, a.cfg.User.Handle, a.cfg.User.Token, api.WithLogger(a.logger))
}

// chatHeader returns the headers sent when dialing the chat channel.
func (a *app) chatHeader() http.Header {
	h := http.Header{}
	h.Set(api.UserHeader, a.cfg.User.Handle)
	if a.cfg.User.Token != "" {
		h.Set("Authorization", "Bearer "+a.cfg.User.Token)
	}
	return h
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var flags struct {
		config string
		server string
		user   string
		token  string
		debug  bool
	}

	root := &cobra.Command{
		Use:           "chatline",
		Short:         "Terminal chat client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags.config)
			if err != nil {
				return err
			}
			if flags.server != "" {
				cfg.Server.URL = flags.server
			}
			if flags.user != "" {
				cfg.User.Handle = flags.user
			}
			if flags.token != "" {
				cfg.User.Token = flags.token
			}
			if flags.debug {
				cfg.Logging.Level = "debug"
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.New(cfg.Logging, cmd.ErrOrStderr())
			slog.SetDefault(a.logger)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.config, "config", "", "config file (default $CHATLINE_CONFIG or ~/.config/chatline/config.yaml)")
	pf.StringVar(&flags.server, "server", "", "server base URL, overrides server.url")
	pf.StringVar(&flags.user, "user", "", "user handle, overrides user.handle")
	pf.StringVar(&flags.token, "token", "", "bearer token, overrides user.token")
	pf.BoolVar(&flags.debug, "debug", false, "log at debug level")

	root.AddCommand(
		newChatCmd(a),
		newListCmd(a),
		newHistoryCmd(a),
		newRenameCmd(a),
		newDeleteCmd(a),
		newPinCmd(a),
	)
	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefault()
	}
	return config.Load(path)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
