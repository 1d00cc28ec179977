package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"taskmaster/internal/store"
	"taskmaster/pkg/api"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [run_id]",
	Short: "Show one recorded run",
	Long:  `Show a run recorded in PostgreSQL by its run ID, as printed by "taskmaster run". Requires --database-url.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := checkOutput(cmd)
		if err != nil {
			return err
		}

		runID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", args[0], err)
		}

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("run history requires --database-url")
		}

		history, err := openRunHistory(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer history.Close()

		run, err := history.GetRun(cmd.Context(), runID)
		if errors.Is(err, store.ErrRunNotFound) {
			return fmt.Errorf("run %s not found", runID)
		}
		if err != nil {
			return fmt.Errorf("failed to get run: %w", err)
		}

		resp := api.RunRecordResponse{
			ID:         run.ID.String(),
			JobName:    run.JobName,
			Namespace:  run.Namespace,
			Status:     run.Status,
			Error:      run.ErrorMessage,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
		}
		if output == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}

		printRun(cmd, resp)
		return nil
	},
}

func printRun(cmd *cobra.Command, run api.RunRecordResponse) {
	cmd.Printf("%s %sRun Details%s\n", statusIcon(run.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sRun ID:%s      %s\n", colorDim, colorReset, run.ID)
	cmd.Printf("%sJob:%s         %s\n", colorDim, colorReset, run.JobName)
	cmd.Printf("%sNamespace:%s   %s\n", colorDim, colorReset, run.Namespace)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(run.Status))

	if run.Error != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, *run.Error, colorReset)
	}

	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(&run.StartedAt))
	if run.FinishedAt != nil {
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(run.FinishedAt),
			colorCyan, formatDuration(run.FinishedAt.Sub(run.StartedAt)), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    -\n", colorDim, colorReset)
	}
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringP("output", "o", "text", "output format: text or json")
}
