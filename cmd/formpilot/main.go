// Command formpilot runs the Google Forms filling bot.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"formpilot/pkg/config"
	"formpilot/pkg/logx"
	"formpilot/pkg/version"
)

var (
	configPath string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:   "formpilot",
	Short: "Chat bot that fills in Google Forms for you",
	Long: `formpilot walks a Google Form question by question over Telegram, remembers your
answers, and can submit the form on a schedule without you.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")
	rootCmd.AddCommand(serveCmd, fillCmd, versionCmd)
}

// loadConfig reads the dotenv files and config, then switches logging to the configured output.
// The returned function flushes the logger.
func loadConfig() (*config.Config, func(), error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	flush, err := logx.Configure(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, func() { _ = flush() }, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
