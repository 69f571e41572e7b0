package config

import (
	"io/ioutil"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	DefaultWaitTimeSeconds     = 20
	DefaultMaxElapsedRetrySecs = 0
	maxWaitTimeSeconds         = 20
)

var c = Default()

type Config struct {
	Debug bool `yaml:"debug"`

	AWS struct {
		Region          string `yaml:"region"`
		QueueURL        string `yaml:"queue_url"`
		CooldownTable   string `yaml:"cooldown_table"`
		ECSCluster      string `yaml:"ecs_cluster"`
		WaitTimeSeconds int64  `yaml:"wait_time_seconds"`
	} `yaml:"aws"`

	Alarm struct {
		Patterns []string `yaml:"patterns"`
	} `yaml:"alarm"`

	Retry struct {
		MaxElapsedSeconds *int64 `yaml:"max_elapsed_seconds"`
	} `yaml:"retry"`

	Slack struct {
		APIToken        string `yaml:"api_token"`
		Channel         string `yaml:"channel"`
		Username        string `yaml:"username"`
		IconURL         string `yaml:"icon_url"`
		AttachmentColor string `yaml:"attachment_color"`
	} `yaml:"slack"`

	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
}

// Overrides are values taken from flags or the environment. Empty fields are ignored.
type Overrides struct {
	Region        string
	QueueURL      string
	CooldownTable string
	ECSCluster    string
}

func Default() Config {
	var cfg Config
	cfg.AWS.WaitTimeSeconds = DefaultWaitTimeSeconds
	return cfg
}

// Load reads filename into the process configuration, applies o and validates
// the result. An empty filename uses defaults and overrides only.
func Load(filename string, o Overrides) error {
	cfg := Default()
	if filename != "" {
		data, err := ioutil.ReadFile(filename)
		if err != nil {
			return errors.WithStack(err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return errors.WithStack(err)
		}
	}

	cfg.Apply(o)
	if err := cfg.Validate(); err != nil {
		return err
	}

	c = cfg
	return nil
}

func Get() *Config {
	return &c
}

func (cfg *Config) Apply(o Overrides) {
	if o.Region != "" {
		cfg.AWS.Region = o.Region
	}
	if o.QueueURL != "" {
		cfg.AWS.QueueURL = o.QueueURL
	}
	if o.CooldownTable != "" {
		cfg.AWS.CooldownTable = o.CooldownTable
	}
	if o.ECSCluster != "" {
		cfg.AWS.ECSCluster = o.ECSCluster
	}
}

func (cfg *Config) Validate() error {
	var missing []string
	if cfg.AWS.QueueURL == "" {
		missing = append(missing, "aws.queue_url")
	}
	if cfg.AWS.CooldownTable == "" {
		missing = append(missing, "aws.cooldown_table")
	}
	if cfg.AWS.ECSCluster == "" {
		missing = append(missing, "aws.ecs_cluster")
	}
	if cfg.AWS.Region == "" {
		missing = append(missing, "aws.region")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	if cfg.AWS.WaitTimeSeconds < 1 || cfg.AWS.WaitTimeSeconds > maxWaitTimeSeconds {
		return errors.Errorf("aws.wait_time_seconds must be between 1 and %d, got %d", maxWaitTimeSeconds, cfg.AWS.WaitTimeSeconds)
	}
	if s := cfg.Retry.MaxElapsedSeconds; s != nil && *s < 0 {
		return errors.Errorf("retry.max_elapsed_seconds must not be negative, got %d", *s)
	}
	if _, err := cfg.AlarmPatterns(); err != nil {
		return err
	}
	return nil
}

// AlarmPatterns compiles the configured alarm name patterns.
func (cfg *Config) AlarmPatterns() ([]glob.Glob, error) {
	var patterns []glob.Glob
	for _, p := range cfg.Alarm.Patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "alarm.patterns %q", p)
		}
		patterns = append(patterns, g)
	}
	return patterns, nil
}

// MaxElapsedRetrySeconds returns how long receive failures are retried before
// giving up. Zero means forever.
func (cfg *Config) MaxElapsedRetrySeconds() int64 {
	if cfg.Retry.MaxElapsedSeconds == nil {
		return DefaultMaxElapsedRetrySecs
	}
	return *cfg.Retry.MaxElapsedSeconds
}

func (cfg *Config) SlackEnabled() bool {
	return cfg.Slack.APIToken != "" && cfg.Slack.Channel != ""
}
