package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pratik-mahalle/costlens/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	outputFormat string
	serverURL    string
	apiClient    *client.Client
)

// offline top-level commands run without a server connection
var offline = map[string]bool{
	"detect":  true,
	"token":   true,
	"config":  true,
	"version": true,
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "costlens",
		Short: "costlens - multi-cloud cost anomaly detection",
		Long: `costlens finds unusual spend in daily cloud cost series from AWS, GCP and Azure,
explains likely causes, and tracks the anomalies it has found.

Run "costlens detect costs.csv" to analyze a file locally, or use the
anomalies and costs commands against a costlens server.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			top := cmd
			for top.HasParent() && top.Parent().HasParent() {
				top = top.Parent()
			}
			if offline[top.Name()] {
				return nil
			}
			return initClient()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.costlens/config.yaml)")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: table, json, yaml")
	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (overrides config)")

	_ = viper.BindPFlag("output", cmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("server_url", cmd.PersistentFlags().Lookup("server"))

	cmd.AddCommand(newDetectCmd())
	cmd.AddCommand(newAnomaliesCmd())
	cmd.AddCommand(newCostsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".costlens"), nil
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if dir, err := configDir(); err == nil {
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// COSTLENS_SERVER_URL, COSTLENS_TOKEN, COSTLENS_JWT_SECRET ...
	viper.SetEnvPrefix("COSTLENS")
	viper.AutomaticEnv()

	viper.SetDefault("server_url", "http://localhost:8080")
	viper.SetDefault("output", "table")
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("anomaly.method", "ensemble")
	viper.SetDefault("anomaly.threshold", 2.5)

	_ = viper.ReadInConfig()
}

func initClient() error {
	url := viper.GetString("server_url")
	if serverURL != "" {
		url = serverURL
	}

	apiClient = client.NewClient(client.Config{
		BaseURL: url,
		Token:   viper.GetString("token"),
	})
	return nil
}

func getOutputFormat() string {
	if outputFormat != "" {
		return outputFormat
	}
	if f := viper.GetString("output"); f != "" {
		return f
	}
	return "table"
}
