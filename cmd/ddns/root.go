// Command ddns evaluates a pool of candidate proxy endpoints and
// keeps a Cloudflare zone's A records pointed at the ones that pass
// their liveness probe.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/laityts/ddns"
)

var (
	cfgFile string
	verbose bool

	log = logrus.New()
)

// Environment variables honored ahead of the config file. The names
// predate this tool and are kept for compatibility with existing
// deployments.
var envBindings = map[string]string{
	"zone_id":    "CLOUDFLARE_ZONE_ID",
	"auth_email": "CLOUDFLARE_AUTH_EMAIL",
	"auth_key":   "CLOUDFLARE_AUTH_KEY",
	"domain":     "CLOUDFLARE_DOMAIN",
	"check_port": "CLOUDFLARE_CHECK_PORT",
	"bot_token":  "TELEGRAM_BOT_TOKEN",
	"chat_id":    "TELEGRAM_CHAT_ID",
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ddns",
		Short:         "Proxy-pool evaluation and DNS record refresh toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.ddns.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newRecordsCmd())
	cmd.AddCommand(newHistoryCmd())
	return cmd
}

func initConfig() error {
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	viper.SetDefault("check_url", ddns.DefaultCheckURL)
	viper.SetDefault("check_port", 8888)
	viper.SetDefault("timeout", 10*time.Second)
	viper.SetDefault("workers", ddns.DefaultWorkerCap)
	viper.SetDefault("latency_limit", 200)
	viper.SetDefault("progress", true)
	viper.SetDefault("sources.pairs", "ip.txt")
	viper.SetDefault("sources.table", "data.csv")
	viper.SetDefault("outputs.diagnostics", ddns.DefaultDiagnosticsFile)
	viper.SetDefault("outputs.all", ddns.DefaultAllFile)
	viper.SetDefault("outputs.standard", ddns.DefaultStandardFile)
	viper.SetDefault("outputs.nonstandard", ddns.DefaultNonStandardFile)
	viper.SetDefault("outputs.preferred", ddns.DefaultPreferredFile)

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".ddns")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
		log.Debug("no config file found; using defaults and environment")
	} else {
		log.WithField("file", viper.ConfigFileUsed()).Debug("loaded configuration")
	}
	return nil
}

// requireCredentials validates the Cloudflare settings shared by the
// record-touching commands.
func requireCredentials() (zoneID, authEmail, authKey string, err error) {
	zoneID = viper.GetString("zone_id")
	authEmail = viper.GetString("auth_email")
	authKey = viper.GetString("auth_key")
	if zoneID == "" || authEmail == "" || authKey == "" {
		return "", "", "", fmt.Errorf(
			"missing Cloudflare credentials: set zone_id, auth_email and auth_key in the config file, or export CLOUDFLARE_ZONE_ID, CLOUDFLARE_AUTH_EMAIL and CLOUDFLARE_AUTH_KEY")
	}
	return zoneID, authEmail, authKey, nil
}
