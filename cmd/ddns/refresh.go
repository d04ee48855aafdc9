package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/laityts/ddns"
	"github.com/laityts/ddns/cloudflare"
	"github.com/laityts/ddns/notify"
)

func newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Probe the zone's A records and replace the failed ones",
		RunE:  runRefresh,
	}

	cmd.Flags().String("preferred", "", "shortlist file to draw replacement IPs from")
	must(viper.BindPFlag("refresh_preferred", cmd.Flags().Lookup("preferred")))

	return cmd
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zoneID, authEmail, authKey, err := requireCredentials()
	if err != nil {
		return err
	}
	domain := viper.GetString("domain")
	if domain == "" {
		return fmt.Errorf("no domain configured: set domain or export CLOUDFLARE_DOMAIN")
	}

	preferredFile := viper.GetString("refresh_preferred")
	if preferredFile == "" {
		preferredFile = viper.GetString("outputs.preferred")
	}

	checker := ddns.NewChecker(viper.GetString("check_url"))
	checker.Timeout = viper.GetDuration("timeout")

	notifier := notify.NewTelegram(
		viper.GetString("bot_token"),
		viper.GetString("chat_id"),
		log,
	)
	if api := viper.GetString("telegram_api"); api != "" {
		notifier.SetBaseURL(api)
	}

	refresher := &ddns.Refresher{
		Store:         recordStore{cloudflare.New(zoneID, authEmail, authKey)},
		Client:        checker,
		Notifier:      notifier,
		Domain:        domain,
		CheckPort:     uint16(viper.GetInt("check_port")),
		PreferredFile: preferredFile,
		Logger:        log,
	}

	report, err := refresher.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("healthy: %d  failed: %d  deleted: %d  added: %d  skipped: %d\n",
		len(report.Healthy), len(report.Failed), report.Deleted, report.Added, len(report.Skipped))
	return nil
}

// recordStore adapts the Cloudflare client to the refresh workflow's
// record interface.
type recordStore struct {
	client *cloudflare.Client
}

func (s recordStore) ListRecords(ctx context.Context, domain string) ([]ddns.Record, error) {
	records, err := s.client.ListRecords(ctx, domain)
	if err != nil {
		return nil, err
	}
	out := make([]ddns.Record, 0, len(records))
	for _, r := range records {
		out = append(out, ddns.Record{ID: r.ID, IP: r.Content})
	}
	return out, nil
}

func (s recordStore) DeleteRecord(ctx context.Context, id string) error {
	return s.client.DeleteRecord(ctx, id)
}

func (s recordStore) CreateRecord(ctx context.Context, domain, ip string) error {
	return s.client.CreateRecord(ctx, domain, ip)
}
