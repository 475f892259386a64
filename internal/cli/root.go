package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chat-client/internal/config"
)

const serviceName = "chat-client"

var (
	cfg config.Config

	flagAPIURL   string
	flagWSURL    string
	flagDataDir  string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "chat-client",
	Short:         "Terminal client for the chatroom backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if flagAPIURL != "" {
			cfg.APIURL = flagAPIURL
			if !cmd.Flags().Changed("ws-url") && os.Getenv("CHAT_WS_URL") == "" {
				cfg.WSURL = config.CableURL(flagAPIURL)
			}
		}
		if flagWSURL != "" {
			cfg.WSURL = flagWSURL
		}
		if flagDataDir != "" {
			cfg.DataDir = flagDataDir
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		config.SetupLogging(cfg.LogLevel)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagAPIURL, "api-url", "", "backend base URL (env CHAT_API_URL)")
	flags.StringVar(&flagWSURL, "ws-url", "", "realtime cable URL (env CHAT_WS_URL, derived from the API URL by default)")
	flags.StringVar(&flagDataDir, "data-dir", "", "directory for the local identity store (env CHAT_DATA_DIR)")
	flags.StringVar(&flagLogLevel, "log-level", "", "zerolog level (env LOG_LEVEL)")

	rootCmd.AddCommand(roomsCmd, chatCmd, serveCmd, transcriptCmd)
}

// Execute runs the root command until it returns or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
