package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"taskmaster/internal/config"
	"taskmaster/internal/job"
	"taskmaster/internal/kube"
	"taskmaster/pkg/api"

	"github.com/spf13/cobra"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_name]",
	Short: "Get the status of a Job",
	Long:  `Evaluate a Job once and print its status (Running, Complete, Failed, Error). A Job whose pods are stuck in ImagePullBackOff past the pod timeout reports Error.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := checkOutput(cmd)
		if err != nil {
			return err
		}

		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		clientset, err := newClientset(cfg, log)
		if err != nil {
			return err
		}

		j := job.New(kube.New(clientset), nil, args[0], cfg.Namespace,
			job.WithLogger(log), job.WithClock(newClock()), job.WithTimeout(cfg.PodTimeout))
		status, _, err := j.EvaluateStatus(cmd.Context(), false)
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("job %s not found in namespace %s", j.Name(), j.Namespace())
		}
		if err != nil {
			return err
		}

		resp := api.JobStatusResponse{
			JobName:   j.Name(),
			Namespace: j.Namespace(),
			Status:    status.String(),
		}
		if output == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}

		printStatus(cmd, resp)
		return nil
	},
}

func printStatus(cmd *cobra.Command, resp api.JobStatusResponse) {
	cmd.Printf("%s %sJob Details%s\n", statusIcon(resp.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sJob:%s         %s\n", colorDim, colorReset, resp.JobName)
	cmd.Printf("%sNamespace:%s   %s\n", colorDim, colorReset, resp.Namespace)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(resp.Status))
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusColor(status string) string {
	switch job.Status(status) {
	case job.StatusComplete:
		return colorGreen
	case job.StatusFailed, job.StatusError:
		return colorRed
	case job.StatusRunning, job.StatusCancelled:
		return colorYellow
	case job.StatusInitialized:
		return colorCyan
	default:
		return ""
	}
}

func statusIcon(status string) string {
	var icon string
	switch job.Status(status) {
	case job.StatusComplete:
		icon = "✓"
	case job.StatusFailed:
		icon = "✗"
	case job.StatusError:
		icon = "!"
	case job.StatusRunning:
		icon = "⏳"
	case job.StatusCancelled:
		icon = "⊘"
	case job.StatusInitialized:
		icon = "◯"
	default:
		return "•"
	}
	return statusColor(status) + icon + colorReset
}

func colorizeStatus(status string) string {
	color := statusColor(status)
	if color == "" {
		return status
	}
	return statusIcon(status) + " " + color + status + colorReset
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String(config.KeyPodTimeout, "240s", "how long a pod may stay pending before an image pull failure is fatal")
	statusCmd.Flags().StringP("output", "o", "text", "output format: text or json")
}
