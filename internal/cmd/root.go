// Package cmd implements the parbuild command line interface.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"parbuild/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "parbuild",
	Short: "Parallel build session coordinator",
	Long: `Parbuild coordinates concurrent build and refactoring sessions over a
shared workspace: it tracks session lifecycle and progress, hands tasks
to a pool of workers, and arbitrates exclusive file locks so sessions
never trample each other's files.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/parbuild/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Defaults first so they apply even without a config file.
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PARBUILD")
	// PARBUILD_WORKERS_INITIAL maps to workers.initial.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.ReadInConfig()
}
