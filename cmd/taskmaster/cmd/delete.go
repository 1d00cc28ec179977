package cmd

import (
	"fmt"

	"taskmaster/internal/job"
	"taskmaster/internal/kube"

	"github.com/spf13/cobra"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [job_name]",
	Short: "Delete a Job and its pods",
	Long:  `Delete a Job with background propagation: the Job is removed immediately and its pods are garbage collected by the cluster.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		clientset, err := newClientset(cfg, log)
		if err != nil {
			return err
		}

		j := job.New(kube.New(clientset), nil, args[0], cfg.Namespace, job.WithLogger(log))
		if err := j.Delete(cmd.Context()); err != nil {
			if apierrors.IsNotFound(err) {
				return fmt.Errorf("job %s not found in namespace %s", j.Name(), j.Namespace())
			}
			return err
		}

		cmd.Printf("%s✓%s Deleted job %s%s%s in namespace %s\n", colorGreen, colorReset, colorBold, j.Name(), colorReset, j.Namespace())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
