package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"taskmaster/internal/config"
	"taskmaster/internal/kube"
	"taskmaster/internal/logger"
	"taskmaster/internal/store"
	"taskmaster/internal/store/postgres"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/clock"
)

var cfgFile string

// runHistory is a RunStore holding a connection.
type runHistory interface {
	store.RunStore
	Close() error
}

// Swapped in tests.
var (
	newClientset = func(cfg *config.Config, log *slog.Logger) (kubernetes.Interface, error) {
		return kube.NewClientset(kube.Config{
			LocalKubeConfig: cfg.LocalKubeConfig,
			KubeConfigPath:  cfg.KubeConfig,
		}, log)
	}

	openRunHistory = func(ctx context.Context, databaseURL string) (runHistory, error) {
		s, err := postgres.New(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	runMigrations = func(ctx context.Context, databaseURL string) error {
		s, err := postgres.New(ctx, databaseURL)
		if err != nil {
			return err
		}
		defer s.Close()
		return postgres.Migrate(s.DB())
	}

	newClock = func() clock.Clock { return clock.RealClock{} }
)

var rootCmd = &cobra.Command{
	Use:   "taskmaster",
	Short: "Taskmaster runs a Kubernetes Job to completion",
	Long: `taskmaster submits a batch/v1 Job to a Kubernetes cluster and follows it until it
reaches a final status: Complete, Failed, Error or Cancelled.

A Job whose pods stay in ImagePullBackOff for longer than the pod timeout is
reported as Error. A Job is cancelled (and deleted) on SIGINT/SIGTERM, when the
pod's downward API labels file carries the cancel label, or when the Job named by
--cancel-job carries it.

Common workflows:

  Run a manifest and wait for it:
    taskmaster run job.yaml --name nightly-report

  Read the manifest from stdin:
    kubectl create job demo --image=busybox --dry-run=client -o yaml | taskmaster run -

  Check or delete a Job:
    taskmaster status nightly-report
    taskmaster delete nightly-report

  Record runs in PostgreSQL and list them:
    taskmaster migrate --database-url postgres://localhost/taskmaster
    taskmaster history --database-url postgres://localhost/taskmaster

Configuration:
  Every flag can be set in $HOME/.taskmaster.yaml or as an environment variable:
    TASKMASTER_NAMESPACE       Namespace for Jobs (default: default)
    TASKMASTER_POLL_INTERVAL   Seconds or duration between polls (default: 5s)
    TASKMASTER_POD_TIMEOUT     Pending pod timeout (default: 240s)
    TASKMASTER_DATABASE_URL    PostgreSQL URL for run history`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.BindFlags(viper.GetViper(), cmd.Flags())
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".taskmaster"
		viper.AddConfigPath(home)
		viper.SetConfigName(".taskmaster")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "TASKMASTER_VAR_NAME"
	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig resolves flags, environment and config file, and builds the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func checkOutput(cmd *cobra.Command) (string, error) {
	output, _ := cmd.Flags().GetString("output")
	switch output {
	case "text", "json":
		return output, nil
	default:
		return "", fmt.Errorf("unsupported output %q: expected text or json", output)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.taskmaster.yaml)")
	flags.StringP(config.KeyNamespace, "n", "default", "Kubernetes namespace")
	flags.String(config.KeyKubeConfig, "", "kubeconfig path (default is $HOME/.kube/config)")
	flags.Bool(config.KeyLocalKubeConfig, false, "skip the in-cluster configuration and use the kubeconfig file")
	flags.String(config.KeyLogLevel, "info", "log level: debug, info, warn, error")
	flags.String(config.KeyLogFormat, "json", "log format: json or text")
	flags.String(config.KeyDatabaseURL, "", "PostgreSQL URL for run history")
}
