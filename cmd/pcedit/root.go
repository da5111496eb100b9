package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/pcedit"
	"github.com/hupe1980/pcedit/config"
)

type globalFlags struct {
	configPath string
	apiURL     string
	logLevel   string
	logJSON    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "pcedit",
		Short:         "Inspect, stream and edit point-cloud datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&g.apiURL, "api", "", "dataset API base URL (overrides api.baseURL)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().BoolVar(&g.logJSON, "log-json", false, "log as JSON")

	root.AddCommand(
		newInspectCmd(),
		newLoadCmd(g),
		newApplyMLCmd(g),
	)
	return root
}

// load returns the configuration with flag overrides applied.
func (g *globalFlags) load() (config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if g.apiURL != "" {
		cfg.API.BaseURL = g.apiURL
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logJSON {
		cfg.Log.Format = "json"
	}
	return cfg, cfg.Validate()
}

func newLogger(c config.LogConfig) *pcedit.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Level))); err != nil {
		level = slog.LevelInfo
	}
	if c.Format == "json" {
		return pcedit.NewJSONLogger(level)
	}
	return pcedit.NewTextLogger(level)
}

func httpClient(c config.Config) *http.Client {
	return &http.Client{Timeout: c.API.Timeout}
}

func requireAPI(c config.Config) error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("no dataset API configured, use --api or api.baseURL")
	}
	return nil
}
