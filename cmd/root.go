package cmd

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tiny-dfr/tiny-dfr/internal/config"
	"github.com/tiny-dfr/tiny-dfr/internal/logger"
)

var (
	// Version is set during build
	Version = "0.1.0-dev"

	// fsys backs config, icon and backlight access.
	fsys = afero.NewOsFs()

	rootCmd = &cobra.Command{
		Use:   "tiny-dfr",
		Short: "tiny-dfr - dynamic function row daemon",
		Long: `tiny-dfr drives the Touch Bar of Apple laptops running Linux.
It draws function and media keys on the strip, turns touches into key
presses through uinput, and manages the strip's backlight.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if lvl := viper.GetString("log_level"); lvl != "" {
				logger.SetLevel(lvl)
			}
		},
		RunE: runDaemon,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("config", config.OverridePath, "Override configuration file")
	flags.String("base-config", config.BasePath, "Base configuration file")

	// Bind flags to viper
	viper.SetEnvPrefix("tiny_dfr")
	viper.AutomaticEnv()
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("config", flags.Lookup("config"))
	viper.BindPFlag("base_config", flags.Lookup("base-config"))
}

// newLoader returns a config loader for the paths selected on the command
// line.
func newLoader() *config.Loader {
	l := config.NewLoader(fsys)
	l.SetPaths(viper.GetString("base_config"), viper.GetString("config"))
	return l
}
