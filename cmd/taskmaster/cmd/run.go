package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"taskmaster/internal/cancel"
	"taskmaster/internal/config"
	"taskmaster/internal/descriptor"
	"taskmaster/internal/job"
	"taskmaster/internal/kube"
	"taskmaster/internal/observability"
	"taskmaster/internal/runner"
	"taskmaster/internal/store"
	"taskmaster/pkg/api"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	batchv1 "k8s.io/api/batch/v1"
)

var runCmd = &cobra.Command{
	Use:   "run [manifest]",
	Short: "Submit a Job and wait for its final status",
	Long: `Submit a batch/v1 Job manifest and poll it until it completes, fails, errors or is cancelled.

The manifest is a YAML or JSON file path, '-' for stdin, or an inline JSON object.
The Job name comes from --name, then the manifest's metadata.name, then "task-job".
The command exits non-zero unless the Job completes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJob,
}

func runJob(cmd *cobra.Command, args []string) error {
	output, err := checkOutput(cmd)
	if err != nil {
		return err
	}

	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	body, err := readManifest(cmd, args)
	if err != nil {
		return err
	}
	descriptor.ApplyPullPolicy(body, cfg.PullPolicyAlways)
	name := jobName(cmd, cfg, body)

	// API calls outlive a signal so a cancelled Job can still be deleted.
	ctx := context.WithoutCancel(cmd.Context())
	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		handler, shutdownMetrics, err := observability.InitMetrics()
		if err != nil {
			return err
		}
		defer shutdownMetrics(ctx)

		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		observability.ServeMetrics(metricsCtx, cfg.MetricsAddr, handler, log)
	}

	shutdownTracer, err := observability.InitTracer(ctx, "taskmaster", cfg.OTELEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracer(ctx)

	clientset, err := newClientset(cfg, log)
	if err != nil {
		return err
	}
	cluster := kube.New(clientset)

	var runs store.RunStore
	if cfg.DatabaseURL != "" {
		history, err := openRunHistory(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn("Run history disabled", "error", err)
		} else {
			defer history.Close()
			runs = history
		}
	}

	isCancelled := cancelPredicate(sigCtx, ctx, cluster, cfg, log)

	r := runner.New(cluster, runs, runner.Config{
		PollInterval: cfg.PollInterval,
		PodTimeout:   cfg.PodTimeout,
	}, log).WithClock(newClock())

	result, runErr := r.Run(ctx, body, name, cfg.Namespace, isCancelled)

	if err := printRunResult(cmd, output, result, runErr); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if result.Status != job.StatusComplete {
		return fmt.Errorf("job %s finished with status %s", result.JobName, result.Status)
	}
	return nil
}

// cancelPredicate combines the signal, the labels file and, when configured,
// the labels of another Job.
func cancelPredicate(sigCtx, ctx context.Context, cluster *kube.Client, cfg *config.Config, log *slog.Logger) cancel.Func {
	predicates := []cancel.Func{cancel.Signal(sigCtx)}
	if cfg.CancelLabelsFile != "" {
		predicates = append(predicates, cancel.LabelFile(cfg.CancelLabelsFile, cfg.CancelLabelKey, cfg.CancelLabelValue, log))
	}
	if cfg.CancelJob != "" {
		limiter := rate.NewLimiter(rate.Limit(cfg.CancelCheckRate), 1)
		predicates = append(predicates, cancel.JobLabel(ctx, cluster, cfg.CancelJob, cfg.Namespace,
			cfg.CancelLabelKey, cfg.CancelLabelValue, limiter, log))
	}
	return cancel.Any(predicates...)
}

// readManifest resolves the manifest from --file or the positional argument.
func readManifest(cmd *cobra.Command, args []string) (*batchv1.Job, error) {
	source, _ := cmd.Flags().GetString("file")
	if source == "" && len(args) == 1 {
		source = args[0]
	}

	switch {
	case source == "":
		return nil, errors.New("a job manifest is required: pass a file, '-' for stdin, or inline JSON")
	case source == "-":
		return descriptor.Load(cmd.InOrStdin())
	case strings.HasPrefix(strings.TrimSpace(source), "{"):
		return descriptor.LoadString(source)
	default:
		return descriptor.LoadFile(source)
	}
}

func jobName(cmd *cobra.Command, cfg *config.Config, body *batchv1.Job) string {
	name := cfg.JobName
	if !cmd.Flags().Changed(config.KeyName) && body.Name != "" {
		name = body.Name
	}
	if generate, _ := cmd.Flags().GetBool("generate-name"); generate {
		name = descriptor.GenerateName(name)
	}
	return name
}

func printRunResult(cmd *cobra.Command, output string, result runner.Result, runErr error) error {
	summary := api.RunSummary{
		RunID:           result.RunID.String(),
		JobName:         result.JobName,
		Namespace:       result.Namespace,
		Status:          result.Status.String(),
		StartedAt:       result.StartedAt,
		FinishedAt:      result.FinishedAt,
		DurationSeconds: result.Duration().Seconds(),
	}
	if runErr != nil {
		msg := runErr.Error()
		summary.Error = &msg
	}

	if output == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	cmd.Printf("%s %sRun Details%s\n", statusIcon(summary.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sRun ID:%s      %s\n", colorDim, colorReset, summary.RunID)
	cmd.Printf("%sJob:%s         %s\n", colorDim, colorReset, summary.JobName)
	cmd.Printf("%sNamespace:%s   %s\n", colorDim, colorReset, summary.Namespace)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(summary.Status))
	cmd.Printf("%sDuration:%s    %s%s%s\n", colorDim, colorReset, colorCyan, formatDuration(result.Duration()), colorReset)
	if summary.Error != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, *summary.Error, colorReset)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.StringP("file", "f", "", "job manifest file, or '-' for stdin")
	flags.String(config.KeyName, "task-job", "Job name")
	flags.Bool("generate-name", false, "append a random suffix to the Job name")
	flags.String(config.KeyPollInterval, "5s", "time between status polls (seconds or duration)")
	flags.String(config.KeyPodTimeout, "240s", "how long a pod may stay pending before an image pull failure is fatal")
	flags.Bool(config.KeyPullPolicyAlways, false, "force imagePullPolicy Always on every container")
	flags.String(config.KeyCancelLabel, "task-status=Cancelled", "label that cancels the run, as key=value")
	flags.String(config.KeyCancelLabelsFile, "/podinfo/labels", "downward API labels file checked for the cancel label")
	flags.String(config.KeyCancelJob, "", "Job whose labels are checked for the cancel label")
	flags.Float64(config.KeyCancelCheckRate, 1, "maximum reads per second of the --cancel-job Job")
	flags.String(config.KeyMetricsAddr, "", "address for the Prometheus /metrics endpoint")
	flags.String(config.KeyOTELEndpoint, "", "OTLP gRPC collector address for traces")
	flags.StringP("output", "o", "text", "output format: text or json")
}
