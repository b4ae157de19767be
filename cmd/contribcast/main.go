package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	configViper := config.NewViper()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:          "contribcast",
		Short:        "ContribCast contribution store and API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(configViper, cfgFile)
		},
	}

	setupFlags(rootCmd, configViper, &cfgFile)

	rootCmd.AddCommand(
		newServeCommand(configViper),
		newSeedCommand(configViper),
		newListCommand(configViper),
		newShowCommand(configViper),
		newChainCommand(configViper),
		newAddCommand(configViper),
		newResonateCommand(configViper),
	)
	return rootCmd
}

func setupFlags(cmd *cobra.Command, configViper *viper.Viper, cfgFile *string) {
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("storage-driver", defaults.GetString("storage.driver"), "Storage driver (memory, file, sqlite, dynamodb)")
	flags.String("storage-key", defaults.GetString("storage.key"), "Storage slot key holding the collection")
	flags.String("file-dir", defaults.GetString("file.dir"), "Directory for the file driver")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("dynamodb-table", defaults.GetString("dynamodb.table"), "DynamoDB table name")
	flags.String("dynamodb-region", defaults.GetString("dynamodb.region"), "DynamoDB region")
	flags.String("dynamodb-endpoint", defaults.GetString("dynamodb.endpoint"), "DynamoDB endpoint override")
	flags.String("id-generator", defaults.GetString("ids.generator"), "Identifier generator (ulid, uuidv7)")
	flags.Bool("seed", defaults.GetBool("seed.enabled"), "Seed sample contributions when the collection is empty")
	flags.Bool("metrics", defaults.GetBool("metrics.enabled"), "Expose Prometheus metrics")

	bindFlag(cmd, configViper, "http.address", "http-address")
	bindFlag(cmd, configViper, "log.level", "log-level")
	bindFlag(cmd, configViper, "storage.driver", "storage-driver")
	bindFlag(cmd, configViper, "storage.key", "storage-key")
	bindFlag(cmd, configViper, "file.dir", "file-dir")
	bindFlag(cmd, configViper, "database.path", "database-path")
	bindFlag(cmd, configViper, "dynamodb.table", "dynamodb-table")
	bindFlag(cmd, configViper, "dynamodb.region", "dynamodb-region")
	bindFlag(cmd, configViper, "dynamodb.endpoint", "dynamodb-endpoint")
	bindFlag(cmd, configViper, "ids.generator", "id-generator")
	bindFlag(cmd, configViper, "seed.enabled", "seed")
	bindFlag(cmd, configViper, "metrics.enabled", "metrics")
}

func bindFlag(cmd *cobra.Command, configViper *viper.Viper, key, flag string) {
	if err := configViper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig(configViper *viper.Viper, cfgFile string) error {
	if cfgFile == "" {
		return nil
	}
	configViper.SetConfigFile(cfgFile)
	if err := configViper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFound) {
			return fmt.Errorf("config file %s not found: %w", cfgFile, err)
		}
		return err
	}
	return nil
}
