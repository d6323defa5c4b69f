package config

import (
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"shardwork/internal/errors"
)

// Config represents the application configuration
type Config struct {
	Storage      Storage     `yaml:"storage"`
	Jobs         []Processor `yaml:"jobs"`
	LogLevel     string      `yaml:"log_level"`
	LogJSON      bool        `yaml:"log_json"`
	MetricsAddr  string      `yaml:"metrics_addr"`
	Ledger       string      `yaml:"ledger"`
	ShowProgress bool        `yaml:"show_progress"`
}

// Storage configures the filesystem backends beyond local disk
type Storage struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config represents S3-compatible storage configuration
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Secure    bool   `yaml:"secure"`
	PartSize  int64  `yaml:"part_size"`
}

// RegisterFlags adds every flag Load understands to flags
func RegisterFlags(flags *pflag.FlagSet) {
	def := DefaultProcessor()

	// Job flags: --source/--destination/--metadata describe one more job
	flags.StringSlice("source", nil, "Source prefix or glob (repeatable)")
	flags.StringSlice("destination", nil, "Destination prefix (repeatable, aligned with --source)")
	flags.StringSlice("metadata", nil, "Completion marker prefix (repeatable, aligned with --source)")
	flags.String("unit", "", "Unit of work to run (copy, char_length)")
	flags.StringToString("kwargs", nil, "Extra unit arguments as key=value, applied to the flag job")

	// Options applied to every job
	flags.Int("workers", def.Workers, "Number of parallel workers")
	flags.Bool("debug", false, "Process files sequentially in the calling goroutine")
	flags.Int64("seed", def.Seed, "Seed for shuffling the file order")
	flags.Int("batch-size", def.BatchSize, "Files handed to a worker at a time")
	flags.Int("report-every", def.ReportEvery, "Drain finished files after this many progress updates")
	flags.Duration("report-interval", def.ReportInterval, "Progress refresh interval")
	flags.Bool("ignore-existing", false, "Reprocess files that already have a completion marker")
	flags.Bool("skip-source-glob", false, "Treat source prefixes as literal paths")
	flags.Bool("shuffle", def.Shuffle, "Shuffle the file order")
	flags.StringSlice("include", nil, "Only process these relative paths")
	flags.StringSlice("exclude", nil, "Never process these relative paths")
	flags.String("regex", "", "Only process relative paths matching this pattern")
	flags.Int("max-tries", def.Retry.MaxTries, "Attempts per file, first included")
	flags.Duration("max-time", 0, "Stop retrying a file after this long (0 = unbounded)")
	flags.Duration("initial-interval", def.Retry.InitialInterval, "First retry backoff")
	flags.StringSlice("retryable", def.Retry.Retryable, "Failure kinds that are retried")

	// Global flags
	flags.String("log-level", "info", "Log level (debug/info/warn/error)")
	flags.Bool("log-json", false, "Emit logs as JSON")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("ledger", "", "SQLite run ledger file")
	flags.Bool("show-progress", true, "Show progress while running")

	flags.String("s3-endpoint", "", "S3-compatible endpoint for s3:// paths")
	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.String("s3-region", "", "S3 region")
	flags.Bool("s3-secure", true, "Use HTTPS for S3")
}

// Load loads configuration from file and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		LogLevel:     "info",
		ShowProgress: true,
		Storage: Storage{
			S3: S3Config{Secure: true},
		},
	}

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, errors.WrapConfig(err, "failed to load config file")
		}
	}

	// Override with command line flags
	if flags != nil {
		if err := loadFromFlags(cfg, flags); err != nil {
			return nil, errors.WrapConfig(err, "failed to load flags")
		}
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("source") {
		job := DefaultProcessor()
		job.Sources, _ = flags.GetStringSlice("source")
		job.Destinations, _ = flags.GetStringSlice("destination")
		job.Metadata, _ = flags.GetStringSlice("metadata")
		job.Unit, _ = flags.GetString("unit")
		if job.Unit == "" && len(cfg.Jobs) > 0 {
			job.Unit = cfg.Jobs[0].Unit
		}
		if flags.Changed("kwargs") {
			kv, _ := flags.GetStringToString("kwargs")
			job.SharedKwargs = make(map[string]any, len(kv))
			for k, v := range kv {
				job.SharedKwargs[k] = v
			}
		}
		cfg.Jobs = append(cfg.Jobs, job)
	} else if flags.Changed("unit") {
		unit, _ := flags.GetString("unit")
		for i := range cfg.Jobs {
			cfg.Jobs[i].Unit = unit
		}
	}

	for i := range cfg.Jobs {
		applyJobFlags(&cfg.Jobs[i], flags)
	}

	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		cfg.LogJSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("ledger") {
		cfg.Ledger, _ = flags.GetString("ledger")
	}
	if flags.Changed("show-progress") {
		cfg.ShowProgress, _ = flags.GetBool("show-progress")
	}

	if flags.Changed("s3-endpoint") {
		cfg.Storage.S3.Endpoint, _ = flags.GetString("s3-endpoint")
	}
	if flags.Changed("s3-access-key") {
		cfg.Storage.S3.AccessKey, _ = flags.GetString("s3-access-key")
	}
	if flags.Changed("s3-secret-key") {
		cfg.Storage.S3.SecretKey, _ = flags.GetString("s3-secret-key")
	}
	if flags.Changed("s3-region") {
		cfg.Storage.S3.Region, _ = flags.GetString("s3-region")
	}
	if flags.Changed("s3-secure") {
		cfg.Storage.S3.Secure, _ = flags.GetBool("s3-secure")
	}

	return nil
}

func applyJobFlags(job *Processor, flags *pflag.FlagSet) {
	if flags.Changed("workers") {
		job.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("debug") {
		job.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("seed") {
		job.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("batch-size") {
		job.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("report-every") {
		job.ReportEvery, _ = flags.GetInt("report-every")
	}
	if flags.Changed("report-interval") {
		job.ReportInterval, _ = flags.GetDuration("report-interval")
	}
	if flags.Changed("ignore-existing") {
		job.IgnoreExisting, _ = flags.GetBool("ignore-existing")
	}
	if flags.Changed("skip-source-glob") {
		job.SkipSourceGlob, _ = flags.GetBool("skip-source-glob")
	}
	if flags.Changed("shuffle") {
		job.Shuffle, _ = flags.GetBool("shuffle")
	}
	if flags.Changed("include") {
		job.Include, _ = flags.GetStringSlice("include")
	}
	if flags.Changed("exclude") {
		job.Exclude, _ = flags.GetStringSlice("exclude")
	}
	if flags.Changed("regex") {
		job.Regex, _ = flags.GetString("regex")
	}
	if flags.Changed("max-tries") {
		job.Retry.MaxTries, _ = flags.GetInt("max-tries")
	}
	if flags.Changed("max-time") {
		job.Retry.MaxTime, _ = flags.GetDuration("max-time")
	}
	if flags.Changed("initial-interval") {
		job.Retry.InitialInterval, _ = flags.GetDuration("initial-interval")
	}
	if flags.Changed("retryable") {
		job.Retry.Retryable, _ = flags.GetStringSlice("retryable")
	}
}

func (c *Config) validate() error {
	if len(c.Jobs) == 0 {
		return errors.WithHint(
			errors.Configf("no job configured"),
			"add a jobs: section to the config file or pass --source, --destination and --metadata",
		)
	}

	for i := range c.Jobs {
		c.Jobs[i].Normalize()
		if err := c.Jobs[i].Validate(); err != nil {
			return errors.Wrapf(err, "job %d", i)
		}
	}

	if c.Storage.S3.PartSize != 0 && c.Storage.S3.PartSize < 5*1024*1024 { // 5MB minimum for S3
		return errors.Configf("storage.s3.part_size must be at least 5MB")
	}

	return nil
}

// Processor folds all jobs into the single processor the engine runs
func (c *Config) Processor() (Processor, error) {
	return MergeAll(c.Jobs...)
}
