// Package config resolves taskmaster settings from flags, environment
// variables (TASKMASTER_*) and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys shared by flags, environment variables and the config file.
const (
	KeyNamespace        = "namespace"
	KeyName             = "name"
	KeyPollInterval     = "poll-interval"
	KeyPodTimeout       = "pod-timeout"
	KeyKubeConfig       = "kubeconfig"
	KeyLocalKubeConfig  = "local-kubeconfig"
	KeyPullPolicyAlways = "pull-policy-always"
	KeyLogLevel         = "log-level"
	KeyLogFormat        = "log-format"
	KeyDatabaseURL      = "database-url"
	KeyMetricsAddr      = "metrics-addr"
	KeyOTELEndpoint     = "otel-endpoint"
	KeyCancelLabel      = "cancel-label"
	KeyCancelLabelsFile = "cancel-labels-file"
	KeyCancelJob        = "cancel-job"
	KeyCancelCheckRate  = "cancel-check-rate"
)

// EnvPrefix is prepended to every environment variable, e.g. TASKMASTER_POLL_INTERVAL.
const EnvPrefix = "TASKMASTER"

// Config holds all configuration values for a taskmaster invocation.
type Config struct {
	Namespace string
	JobName   string

	PollInterval time.Duration
	PodTimeout   time.Duration

	KubeConfig      string
	LocalKubeConfig bool

	PullPolicyAlways bool

	LogLevel  string
	LogFormat string

	// DatabaseURL enables run history when set.
	DatabaseURL string
	// MetricsAddr enables the Prometheus endpoint when set.
	MetricsAddr string
	// OTELEndpoint enables tracing when set.
	OTELEndpoint string

	CancelLabelKey   string
	CancelLabelValue string
	CancelLabelsFile string
	// CancelJob names a Job whose labels are watched for cancellation.
	CancelJob string
	// CancelCheckRate caps cluster reads made by the CancelJob predicate, per second.
	CancelCheckRate float64
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyNamespace, "default")
	v.SetDefault(KeyName, "task-job")
	v.SetDefault(KeyPollInterval, "5s")
	v.SetDefault(KeyPodTimeout, "240s")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeyCancelLabel, "task-status=Cancelled")
	v.SetDefault(KeyCancelLabelsFile, "/podinfo/labels")
	v.SetDefault(KeyCancelCheckRate, 1.0)
}

// BindEnv makes every key readable from TASKMASTER_<KEY> with dashes as underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// BindFlags binds every flag in fs to the key of the same name.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// Load builds a Config from defaults, the environment and, when path is not
// empty, the YAML file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper resolves and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	pollInterval, err := parseSeconds(v.GetString(KeyPollInterval))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyPollInterval, err)
	}
	if pollInterval <= 0 {
		return nil, fmt.Errorf("invalid %s: must be positive", KeyPollInterval)
	}

	podTimeout, err := parseSeconds(v.GetString(KeyPodTimeout))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyPodTimeout, err)
	}
	if podTimeout <= 0 {
		return nil, fmt.Errorf("invalid %s: must be positive", KeyPodTimeout)
	}

	labelKey, labelValue, err := parseLabel(v.GetString(KeyCancelLabel))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyCancelLabel, err)
	}

	rate := v.GetFloat64(KeyCancelCheckRate)
	if rate <= 0 {
		return nil, fmt.Errorf("invalid %s: must be positive", KeyCancelCheckRate)
	}

	namespace := v.GetString(KeyNamespace)
	if namespace == "" {
		namespace = "default"
	}
	name := v.GetString(KeyName)
	if name == "" {
		name = "task-job"
	}

	return &Config{
		Namespace:        namespace,
		JobName:          name,
		PollInterval:     pollInterval,
		PodTimeout:       podTimeout,
		KubeConfig:       v.GetString(KeyKubeConfig),
		LocalKubeConfig:  v.GetBool(KeyLocalKubeConfig),
		PullPolicyAlways: v.GetBool(KeyPullPolicyAlways),
		LogLevel:         v.GetString(KeyLogLevel),
		LogFormat:        v.GetString(KeyLogFormat),
		DatabaseURL:      v.GetString(KeyDatabaseURL),
		MetricsAddr:      v.GetString(KeyMetricsAddr),
		OTELEndpoint:     v.GetString(KeyOTELEndpoint),
		CancelLabelKey:   labelKey,
		CancelLabelValue: labelValue,
		CancelLabelsFile: v.GetString(KeyCancelLabelsFile),
		CancelJob:        v.GetString(KeyCancelJob),
		CancelCheckRate:  rate,
	}, nil
}

// parseSeconds accepts a Go duration ("90s", "2m") or a bare number of seconds.
func parseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

func parseLabel(s string) (string, string, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return "", "", errors.New(`expected "key=value"`)
	}
	return key, value, nil
}
