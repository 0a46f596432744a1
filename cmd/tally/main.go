package main

import (
	"errors"
	"io"
	"os"

	"github.com/MarcoPoloResearchLab/tally/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

func main() {
	rootCmd := newRootCommand(os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "tally",
		Short:        "Terminal client for a link-sharing forum",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}
	rootCmd.SetOut(out)

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		newFeedCommand(),
		newShowCommand(),
		newVoteCommand(),
		newCommentCommand(),
		newCommentVoteCommand(),
		newLoginCommand(),
		newLogoutCommand(),
		newWhoamiCommand(),
		newStubServerCommand(),
	)
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("api-url", defaults.GetString("api.base_url"), "API base URL")
	cmd.PersistentFlags().Duration("api-timeout", defaults.GetDuration("api.timeout"), "Per-request timeout")
	cmd.PersistentFlags().String("credentials-path", defaults.GetString("credentials.path"), "SQLite database holding the stored credential")
	cmd.PersistentFlags().String("profile", defaults.GetString("credentials.profile"), "Credential profile name")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log encoding (console, json)")
	cmd.PersistentFlags().String("challenge-token", defaults.GetString("challenge.token"), "Anti-abuse token attached to new comments")

	bindFlag(cmd, "api.base_url", "api-url")
	bindFlag(cmd, "api.timeout", "api-timeout")
	bindFlag(cmd, "credentials.path", "credentials-path")
	bindFlag(cmd, "credentials.profile", "profile")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "challenge.token", "challenge-token")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
