// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
)

// NewRootCommand builds the salesi-reporter command. Each call returns a
// fresh command with its own flag state.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "salesi-reporter",
		Short: "Captures the sales-i Call Outcome Report for each representative and emails it.",
		Long: `salesi-reporter signs in to sales-i, opens the Call Outcome Report and, for
every configured representative, filters the report to yesterday, captures the
detail view and emails the screenshot. Any failure sends an alert with a
screenshot, the page HTML and the run log.

Credentials come from the environment (or a .env file): SI_USERNAME,
SI_PASSWORD, GMAIL_USER, GMAIL_APP_PASS, TO_EMAIL and optionally ALERT_EMAIL.`,
		// Version is set at build time. See cmd/version.go.
		Version:      Version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := initializeConfig(cfgFile)
			if err != nil {
				return err
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return err
			}
			return runReport(cmd.Context(), cfg, newRunDeps())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	return rootCmd
}

// Execute runs the root command with the signal-aware context from main.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// initializeConfig layers defaults, the optional config file and the
// environment. A .env file in the working directory is loaded first if present.
func initializeConfig(cfgFile string) (*viper.Viper, error) {
	// Variables already set in the environment win over .env.
	_ = godotenv.Load()

	v := viper.New()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SALESI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	config.BindEnvironment(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return v, nil
}
