package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"taskmaster/internal/store"
	"taskmaster/pkg/api"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [job_name]",
	Short: "List recorded runs",
	Long:  `List runs recorded in PostgreSQL, newest first. Requires --database-url (or TASKMASTER_DATABASE_URL).`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := checkOutput(cmd)
		if err != nil {
			return err
		}

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("run history requires --database-url")
		}

		filter := store.RunFilter{}
		if len(args) == 1 {
			filter.JobName = args[0]
		}
		if cmd.Flags().Changed("namespace") {
			filter.Namespace = cfg.Namespace
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		if statuses, _ := cmd.Flags().GetString("status"); statuses != "" {
			for _, s := range strings.Split(statuses, ",") {
				if s = strings.TrimSpace(s); s != "" {
					filter.Statuses = append(filter.Statuses, s)
				}
			}
		}

		history, err := openRunHistory(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer history.Close()

		runs, err := history.ListRuns(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if output == "json" {
			resp := api.ListRunsResponse{Runs: make([]api.RunRecordResponse, 0, len(runs))}
			for _, r := range runs {
				resp.Runs = append(resp.Runs, api.RunRecordResponse{
					ID:         r.ID.String(),
					JobName:    r.JobName,
					Namespace:  r.Namespace,
					Status:     r.Status,
					Error:      r.ErrorMessage,
					StartedAt:  r.StartedAt,
					FinishedAt: r.FinishedAt,
				})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}

		if len(runs) == 0 {
			cmd.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "RUN ID\tJOB\tNAMESPACE\tSTATUS\tSTARTED\tDURATION\tERROR")
		for _, r := range runs {
			duration := "-"
			if r.FinishedAt != nil {
				duration = formatDuration(r.FinishedAt.Sub(r.StartedAt))
			}
			errMsg := ""
			if r.ErrorMessage != nil {
				// Truncate long error messages for the table view
				errMsg = truncate(*r.ErrorMessage, 50)
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID,
				r.JobName,
				r.Namespace,
				r.Status,
				r.StartedAt.Format(time.RFC3339),
				duration,
				errMsg,
			)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("status", "", "comma-separated statuses to include, e.g. Failed,Error")
	historyCmd.Flags().Int("limit", 50, "maximum number of runs to list")
	historyCmd.Flags().StringP("output", "o", "text", "output format: text or json")
}

// truncate shortens s to at most n runes, ending in "..." when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
