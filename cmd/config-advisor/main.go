// Command config-advisor validates Spring Boot, JVM and PostgreSQL
// configuration against a hardware profile, recommends sized settings and
// serves both over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/sardine-ai/go-config-advisor/config"
	"github.com/spf13/cobra"
)

// cfg is loaded before every command runs.
var cfg = config.Default()

var rootCmd = &cobra.Command{
	Use:   "config-advisor",
	Short: "Validate and size Spring Boot and PostgreSQL configuration",
	Long: `config-advisor checks application.properties, application.yml,
JAVA_OPTS and postgresql.conf against the hardware they run on, flags unsafe
combinations and emits configuration sized for a profile.

Settings are read from defaults, a YAML file (--config or ADVISOR_CONFIG_PATH),
a .env file and ADVISOR_* environment variables, in that order.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		for flag, attribute := range map[string]string{"log-level": "log_level", "log-format": "log_format"} {
			if cmd.Flags().Changed(flag) {
				value, _ := cmd.Flags().GetString(flag)
				if err := loaded.Set(attribute, value); err != nil {
					return err
				}
			}
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if err := loaded.ConfigureLogging(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text or json)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
