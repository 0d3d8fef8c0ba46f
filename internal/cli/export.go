package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetworks/punchd/internal/models"
	"github.com/fleetworks/punchd/pkg/output"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Query a running instance's journal",
	Example: `  punchd export --url http://localhost:8081 --sn ABCD12345678
  punchd export --user-id 1001 --since "2024-01-01 00:00:00" --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		baseURL, _ := cmd.Flags().GetString("url")
		apiKey, _ := cmd.Flags().GetString("api-key")
		format, _ := cmd.Flags().GetString("output")

		params := url.Values{}
		for flag, param := range map[string]string{
			"sn": "sn", "user-id": "user_id", "since": "since", "until": "until",
		} {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				params.Set(param, v)
			}
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			params.Set("limit", fmt.Sprintf("%d", limit))
		}

		req, err := http.NewRequest(http.MethodGet,
			baseURL+"/adms/export.json?"+params.Encode(), nil)
		if err != nil {
			return err
		}
		if apiKey != "" {
			req.Header.Set("X-API-Key", apiKey)
		}

		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("query instance: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("export failed: status %d", resp.StatusCode)
		}

		var result struct {
			OK    bool               `json:"ok"`
			Count int                `json:"count"`
			Items []models.FlatEvent `json:"items"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decode export: %w", err)
		}

		if format == "json" {
			return output.JSON(result.Items)
		}

		table := output.NewTable([]string{"TS_INGEST", "SN", "USER_ID", "TIMESTAMP", "STATUS", "PUNCH", "SOURCE"})
		for _, ev := range result.Items {
			table.AddRow([]string{
				ev.TsIngest,
				strval(ev.SN),
				ev.UserID,
				ev.Timestamp,
				strval(ev.Status),
				strval(ev.Punch),
				ev.RawSource,
			})
		}
		table.Render()
		output.Info("%d events", result.Count)
		return nil
	},
}

func strval(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("url", "http://localhost:8081", "punchd base URL")
	exportCmd.Flags().String("api-key", "", "API key for gated endpoints")
	exportCmd.Flags().String("sn", "", "filter by device serial")
	exportCmd.Flags().String("user-id", "", "filter by user ID (PIN)")
	exportCmd.Flags().String("since", "", "inclusive lower bound (YYYY-MM-DD HH:MM:SS)")
	exportCmd.Flags().String("until", "", "inclusive upper bound (YYYY-MM-DD HH:MM:SS)")
	exportCmd.Flags().Int("limit", 0, "maximum events (default: server default)")
	exportCmd.Flags().String("output", "table", "output format: table, json")
}
