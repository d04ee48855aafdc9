package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"text/tabwriter"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/laityts/ddns/cloudflare"
)

const (
	menuList   = "List A records"
	menuDelete = "Delete records by IP"
	menuAdd    = "Add an A record"
	menuQuit   = "Quit"
)

func newRecordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "records",
		Short: "Manage the zone's A records interactively",
		RunE:  runRecords,
	}
}

func runRecords(cmd *cobra.Command, args []string) error {
	zoneID, authEmail, authKey, err := requireCredentials()
	if err != nil {
		return err
	}

	client := cloudflare.New(zoneID, authEmail, authKey)
	domain := viper.GetString("domain")
	ctx := context.Background()

	for {
		var choice string
		prompt := &survey.Select{
			Message: "DNS records:",
			Options: []string{menuList, menuDelete, menuAdd, menuQuit},
		}
		if err := survey.AskOne(prompt, &choice); err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil
			}
			return err
		}

		switch choice {
		case menuList:
			err = listRecords(ctx, client, domain)
		case menuDelete:
			err = deleteRecordsByIP(ctx, client, domain)
		case menuAdd:
			err = addRecord(ctx, client, domain)
		case menuQuit:
			return nil
		}
		if err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil
			}
			log.Error(err)
		}
	}
}

func listRecords(ctx context.Context, client *cloudflare.Client, domain string) error {
	records, err := client.ListRecords(ctx, domain)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no A records found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tIP\tTTL\tPROXIED\tID")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%s\n", r.Name, r.Content, r.TTL, r.Proxied, r.ID)
	}
	return w.Flush()
}

func deleteRecordsByIP(ctx context.Context, client *cloudflare.Client, domain string) error {
	var ip string
	if err := survey.AskOne(&survey.Input{Message: "IP to delete:"}, &ip, survey.WithValidator(ipv4Validator)); err != nil {
		return err
	}

	records, err := client.ListRecords(ctx, domain)
	if err != nil {
		return err
	}

	var matching []cloudflare.Record
	for _, r := range records {
		if r.Content == ip {
			matching = append(matching, r)
		}
	}
	if len(matching) == 0 {
		fmt.Printf("no records point at %s\n", ip)
		return nil
	}

	confirmed := false
	confirm := &survey.Confirm{
		Message: fmt.Sprintf("Delete %d record(s) for %s?", len(matching), ip),
	}
	if err := survey.AskOne(confirm, &confirmed); err != nil {
		return err
	}
	if !confirmed {
		return nil
	}

	deleted := 0
	for _, r := range matching {
		if err := client.DeleteRecord(ctx, r.ID); err != nil {
			log.WithError(err).Warnf("cannot delete record %s", r.ID)
			continue
		}
		deleted++
	}
	fmt.Printf("deleted %d record(s)\n", deleted)
	return nil
}

func addRecord(ctx context.Context, client *cloudflare.Client, domain string) error {
	name := domain
	if err := survey.AskOne(&survey.Input{Message: "Record name:", Default: domain}, &name, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	var ip string
	if err := survey.AskOne(&survey.Input{Message: "IP address:"}, &ip, survey.WithValidator(ipv4Validator)); err != nil {
		return err
	}

	if err := client.CreateRecord(ctx, name, ip); err != nil {
		return err
	}
	fmt.Printf("created %s -> %s\n", name, ip)
	return nil
}

func ipv4Validator(val interface{}) error {
	s, ok := val.(string)
	if !ok {
		return fmt.Errorf("expected a string")
	}
	parsed := net.ParseIP(s)
	if parsed == nil || parsed.To4() == nil {
		return fmt.Errorf("%q is not a valid IPv4 address", s)
	}
	return nil
}
