package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kalambet/daybrief/internal/config"
	"github.com/kalambet/daybrief/internal/credentials"
	"github.com/kalambet/daybrief/internal/storage"
)

// --- auth ---

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Connect your Google Calendar",
	Long: `Connect your Google Calendar.

Prints a consent URL to open in a browser. After you approve access,
Google redirects to the daybrief callback endpoint, which stores the
refresh token locally. The server must be running for the redirect
to complete.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" {
			return fmt.Errorf("Google OAuth client is not configured. Set DAYBRIEF_GOOGLE_CLIENT_ID and DAYBRIEF_GOOGLE_CLIENT_SECRET")
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		creds := credentials.New(store, credentials.ClientConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURI:  cfg.Google.RedirectURI,
		})

		printStep("Open this URL in your browser to connect Google Calendar:")
		fmt.Println(creds.AuthURL(uuid.NewString()))
		printStep("Approval redirects to %s while the server is running.", cfg.Google.RedirectURI)
		return nil
	},
}

// --- briefing ---

var briefingCmd = &cobra.Command{
	Use:   "briefing",
	Short: "Generate a briefing right now",
	Long: `Generate a briefing right now, without going through the server.

Prints the narrative text; use --json for the full result including the
weather snapshot, events and failure flags.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		orchestrator, err := buildPipeline(cfg, store)
		if err != nil {
			return err
		}

		result := orchestrator.Run(cmd.Context())

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		fmt.Println(result.Narrative)
		if result.WeatherFailed {
			printWarning("weather source failed; briefing generated without it")
		}
		if result.CalendarFailed {
			printWarning("calendar source failed; briefing generated without it")
		}
		return nil
	},
}

func init() {
	briefingCmd.Flags().Bool("json", false, "print the full briefing as JSON")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent briefings from the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/briefings?limit=%d", limit))
		if err != nil {
			return err
		}

		var briefings []struct {
			ID        string    `json:"id"`
			CreatedAt time.Time `json:"created_at"`
			Narrative string    `json:"narrative"`
		}
		if err := decodeJSON(resp, &briefings); err != nil {
			return err
		}

		if len(briefings) == 0 {
			fmt.Println("No briefings yet.")
			return nil
		}

		for _, b := range briefings {
			narrative := b.Narrative
			if len(narrative) > 80 {
				narrative = narrative[:80] + "..."
			}
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, b.ID[:8]),
				b.CreatedAt.Format("2006-01-02 15:04"),
				narrative,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 10, "maximum number of briefings to list")
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
		cfg, err := config.Load()
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

		if err := config.Set(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
