package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "NOTIFIER"

// legacyEnv maps config keys to the environment names the bot was first
// deployed with. The NOTIFIER_ name always wins when both are set.
var legacyEnv = map[string]string{
	"contract":              "OCTOBAY_ADDRESS",
	"smtp-host":             "SMTP_HOST",
	"smtp-user":             "SMTP_USER",
	"smtp-pass":             "SMTP_PASS",
	"twitter-api-key":       "TWITTER_API_KEY",
	"twitter-api-secret":    "TWITTER_API_SECRET",
	"twitter-access-token":  "TWITTER_APP_ACCESS_TOKEN",
	"twitter-access-secret": "TWITTER_APP_SECRET",
	"github-token":          "GITHUB_APP_ACCESS_TOKEN",
}

// Config holds configuration values loaded from flags, env, or config file.
// The key tag names the setting in error messages.
type Config struct {
	RPCURL   string `key:"rpc" validate:"required"`
	Contract string `key:"contract" validate:"required,eth_addr"`
	Template string `key:"template" validate:"required"`

	SMTPHost string `key:"smtp-host"`
	SMTPPort int    `key:"smtp-port" validate:"omitempty,min=1,max=65535"`
	SMTPUser string `key:"smtp-user"`
	SMTPPass string `key:"smtp-pass"`
	MailFrom string `key:"mail-from"`

	TwitterAPIKey       string
	TwitterAPISecret    string
	TwitterAccessToken  string
	TwitterAccessSecret string
	TwitterReplyTo      int64 `key:"twitter-reply-to" validate:"gte=0"`

	GithubToken    string `key:"github-token" validate:"required"`
	GithubEndpoint string `key:"github-endpoint" validate:"required,url"`

	Workers            int           `key:"workers" validate:"gte=0"`
	QueueLength        int           `key:"queue-length" validate:"gte=0"`
	HandleTimeout      time.Duration `key:"handle-timeout" validate:"gte=0"`
	ResubscribeBackoff time.Duration `key:"resubscribe-backoff" validate:"gte=0"`

	LedgerOut   string
	PostgresDSN string
	MetricsAddr string `key:"metrics-addr" validate:"omitempty,hostname_port"`
	LogLevel    string `key:"log-level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`

	Backfill BackfillConfig `validate:"-"`
}

// BackfillConfig holds the settings only the backfill command reads.
type BackfillConfig struct {
	FromBlock         uint64        `key:"from"`
	ToBlock           uint64        `key:"to"`
	BatchSize         uint64        `key:"batch-size" validate:"gt=0"`
	Checkpoint        string        `key:"checkpoint" validate:"required_if=CheckpointEnabled true"`
	CheckpointEnabled bool          `key:"checkpoint-enabled"`
	MaxRetries        int           `key:"max-retries" validate:"gte=0"`
	RetryBackoff      time.Duration `key:"retry-backoff" validate:"gte=0"`
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		primary := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		if err := v.BindEnv(key, primary, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetDefault("template", "./templates/notification.html")
	v.SetDefault("smtp-port", 587)
	v.SetDefault("mail-from", `"OctoBay" <octobay@uber.space>`)
	v.SetDefault("twitter-reply-to", int64(1338830029875240961))
	v.SetDefault("github-endpoint", "https://api.github.com/graphql")
	v.SetDefault("workers", 16)
	v.SetDefault("queue-length", 1024)
	v.SetDefault("resubscribe-backoff", 30*time.Second)
	v.SetDefault("log-level", "info")
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:   strings.TrimSpace(v.GetString("rpc")),
		Contract: strings.TrimSpace(v.GetString("contract")),
		Template: v.GetString("template"),

		SMTPHost: strings.TrimSpace(v.GetString("smtp-host")),
		SMTPPort: v.GetInt("smtp-port"),
		SMTPUser: v.GetString("smtp-user"),
		SMTPPass: v.GetString("smtp-pass"),
		MailFrom: v.GetString("mail-from"),

		TwitterAPIKey:       v.GetString("twitter-api-key"),
		TwitterAPISecret:    v.GetString("twitter-api-secret"),
		TwitterAccessToken:  v.GetString("twitter-access-token"),
		TwitterAccessSecret: v.GetString("twitter-access-secret"),
		TwitterReplyTo:      v.GetInt64("twitter-reply-to"),

		GithubToken:    v.GetString("github-token"),
		GithubEndpoint: v.GetString("github-endpoint"),

		Workers:            v.GetInt("workers"),
		QueueLength:        v.GetInt("queue-length"),
		HandleTimeout:      v.GetDuration("handle-timeout"),
		ResubscribeBackoff: v.GetDuration("resubscribe-backoff"),

		LedgerOut:   v.GetString("ledger-out"),
		PostgresDSN: v.GetString("pg-dsn"),
		MetricsAddr: v.GetString("metrics-addr"),
		LogLevel:    v.GetString("log-level"),

		Backfill: BackfillConfig{
			FromBlock:         v.GetUint64("from"),
			ToBlock:           v.GetUint64("to"),
			BatchSize:         v.GetUint64("batch-size"),
			Checkpoint:        v.GetString("checkpoint"),
			CheckpointEnabled: v.GetBool("checkpoint-enabled"),
			MaxRetries:        v.GetInt("max-retries"),
			RetryBackoff:      v.GetDuration("retry-backoff"),
		},
	}

	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if key := field.Tag.Get("key"); key != "" {
			return key
		}
		return field.Name
	})
	return v
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	return describe(validate.Struct(c))
}

// ValidateBackfill checks the block range settings on top of Validate.
func (c Config) ValidateBackfill() error {
	errs := []error{c.Validate(), describe(validate.Struct(c.Backfill))}
	b := c.Backfill
	if b.ToBlock != 0 && b.ToBlock < b.FromBlock {
		errs = append(errs, fmt.Errorf("to block %d is before from block %d", b.ToBlock, b.FromBlock))
	}
	return errors.Join(errs...)
}

// describe turns validator output into one error per setting.
func describe(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			errs = append(errs, fmt.Errorf("%s is required", fe.Field()))
		case "required_if":
			errs = append(errs, fmt.Errorf("%s is required when %s", fe.Field(), fe.Param()))
		case "eth_addr":
			errs = append(errs, fmt.Errorf("%s %q is not a hex address", fe.Field(), fe.Value()))
		default:
			errs = append(errs, fmt.Errorf("%s %v fails %s %s", fe.Field(), fe.Value(), fe.Tag(), fe.Param()))
		}
	}
	return errors.Join(errs...)
}
