package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/meetsync/internal/config"
)

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process pending meetings once and exit",
	Long: `Process pending meetings once and exit.

Fetches recent meetings from the notes service, skips anything already
processed or without the required template, delivers the rest to all
configured outputs, and records the results.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		setupLogging(cfg)

		deps, cleanup, err := buildPipeline(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		printStep("Checking for unprocessed meetings...")
		sum, err := deps.pipe.RunNow(cmd.Context())
		if err != nil {
			return err
		}

		printSuccess("Run complete: %s", sum.Summary())
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent delivery attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		meetingID, _ := cmd.Flags().GetString("meeting")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/history?limit=%d", limit)
		if meetingID != "" {
			path += "&meeting_id=" + meetingID
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var deliveries []struct {
			MeetingID  string
			Title      string
			Sink       string
			Success    bool
			Retries    int
			StatusCode int
			Error      string
			CreatedAt  time.Time
		}
		if err := decodeJSON(resp, &deliveries); err != nil {
			return err
		}

		if len(deliveries) == 0 {
			fmt.Println("No deliveries found.")
			return nil
		}

		for _, d := range deliveries {
			detail := fmt.Sprintf("HTTP %d", d.StatusCode)
			if !d.Success {
				detail = d.Error
			}
			fmt.Printf("%s %s  %-8s  %-40s  retries=%d  %s\n",
				outcomeMark(d.Success),
				d.CreatedAt.Format("2006-01-02 15:04"),
				d.Sink,
				truncateTitle(d.Title, 40),
				d.Retries,
				detail,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of deliveries to show")
	historyCmd.Flags().String("meeting", "", "only show deliveries for this meeting ID")
	rootCmd.AddCommand(historyCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(cfgPath, key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <name> <value>",
	Short: "Store a secret in the platform keychain",
	Long: `Store a secret in the platform keychain.

Valid names: api_token, webhook_secret, server_token.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, value := args[0], args[1]

		switch name {
		case "api_token", "webhook_secret", "server_token":
		default:
			return fmt.Errorf("unknown secret %q (valid: api_token, webhook_secret, server_token)", name)
		}

		if err := config.KeychainSet("meetsync", name, value); err != nil {
			return fmt.Errorf("storing secret: %w", err)
		}

		printSuccess("Stored %s in keychain", name)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}
