package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/imgbatch/internal/config"
)

var (
	cfgPath   string
	serverURL string
	token     string
	persist   bool
)

var rootCmd = &cobra.Command{
	Use:           "imgbatch",
	Short:         "Batch resize and compress images",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.imgbatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "backend URL, overrides server.url")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "account token, overrides server.token")
	rootCmd.PersistentFlags().BoolVar(&persist, "persist", false, "upload results to account storage (registered accounts)")
}

// loadConfig reads the client config and applies flag overrides.
func loadConfig() (*config.Client, error) {
	cfg, err := config.LoadClient(cfgPath)
	if err != nil {
		return nil, err
	}

	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if token != "" {
		cfg.Server.Token = token
	}

	setupLogging(cfg.Log.Level)

	return cfg, nil
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func main() {
	zlog.Init()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorText(err.Error()))
		os.Exit(1)
	}
}
