package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DISPATCH"

// DefaultReadableCubes are the MemOS cubes searched when none are configured.
var DefaultReadableCubes = []string{
	"openclaw-memory-operational",
	"openclaw-memory-runtime-sync",
	"openclaw-memory-session-reports",
	"openclaw-memory-turn-reports",
	"openclaw-memory-live",
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"port":         "server.port",
	"log-level":    "server.log_level",
	"database-url": "database.url",
	"worker":       "worker.enabled",
	"runner":       "worker.runner",
}

// legacyEnv lists unprefixed variable names also accepted for a key. The
// _MS names carry bare millisecond counts, see millisecondsHook.
var legacyEnv = map[string][]string{
	"database.url":       {"DATABASE_URL"},
	"llm.gemini_api_key": {"GEMINI_API_KEY"},

	"worker.enabled":              {"AGENT_WORKER_ENABLED"},
	"worker.runner":               {"AGENT_WORKER_RUNNER"},
	"worker.actor":                {"AGENT_WORKER_ACTOR"},
	"worker.interval":             {"AGENT_WORKER_INTERVAL_MS"},
	"worker.batch_size":           {"AGENT_WORKER_BATCH_SIZE"},
	"worker.exec_timeout":         {"AGENT_WORKER_EXEC_TIMEOUT_MS"},
	"worker.prompt_context_chars": {"AGENT_WORKER_PROMPT_CONTEXT_CHARS"},

	"openclaw.agent":       {"AGENT_WORKER_OPENCLAW_AGENT"},
	"openclaw.thinking":    {"AGENT_WORKER_OPENCLAW_THINKING"},
	"openclaw.local":       {"AGENT_WORKER_OPENCLAW_LOCAL"},
	"openclaw.deliver":     {"AGENT_WORKER_OPENCLAW_DELIVER"},
	"openclaw.to":          {"AGENT_WORKER_OPENCLAW_TO"},
	"openclaw.session_id":  {"AGENT_WORKER_OPENCLAW_SESSION_ID"},
	"openclaw.timeout_sec": {"AGENT_WORKER_OPENCLAW_TIMEOUT_SEC"},

	"memos.auto_context":   {"MEMOS_AUTO_CONTEXT"},
	"memos.base_url":       {"MEMOS_BASE_URL"},
	"memos.user_id":        {"MEMOS_USER_ID"},
	"memos.readable_cubes": {"MEMOS_READABLE_CUBES"},
	"memos.top_k":          {"MEMOS_TOP_K"},
	"memos.timeout":        {"MEMOS_TIMEOUT_MS"},
}

// LoadOptions customizes Load.
type LoadOptions struct {
	// ConfigFile is an optional YAML, TOML or JSON file.
	ConfigFile string
	// Flags holds flags registered with RegisterFlags.
	Flags *pflag.FlagSet
}

// RegisterFlags adds the command-line overrides understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Int("port", 0, "HTTP listen port")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("database-url", "", "postgres:// or sqlite:// database URL; empty uses in-memory storage")
	fs.Bool("worker", false, "enable the background worker")
	fs.String("runner", "", "worker runner backend (openclaw, noop, gemini)")
}

// Load reads configuration from defaults, an optional config file and the
// environment, then validates it. Environment variables take precedence
// over the file; changed flags take precedence over both.
func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

// LoadWithOptions is Load with an explicit config file and flag set.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envNames := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envNames...)...); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if flag := opts.Flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		millisecondsHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// millisecondsHook decodes a bare number into a duration as milliseconds, so
// AGENT_WORKER_INTERVAL_MS=15000 and interval: 15000 both mean 15s. Values
// with a unit such as "15s" are left to the standard duration hook.
func millisecondsHook(from, to reflect.Type, data any) (any, error) {
	if data == nil || to != durationType || from == durationType {
		return data, nil
	}
	value := reflect.ValueOf(data)
	switch from.Kind() {
	case reflect.String:
		ms, err := strconv.ParseInt(strings.TrimSpace(value.String()), 10, 64)
		if err != nil {
			return data, nil
		}
		return time.Duration(ms) * time.Millisecond, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(value.Int()) * time.Millisecond, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(value.Uint()) * time.Millisecond, nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(value.Float() * float64(time.Millisecond)), nil
	default:
		return data, nil
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_file", "")
	v.SetDefault("server.log_max_size_mb", 50)
	v.SetDefault("server.log_max_backups", 3)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.connect_attempts", 3)
	v.SetDefault("database.connect_timeout", 5*time.Second)
	v.SetDefault("database.max_open_conns", 8)

	v.SetDefault("worker.enabled", false)
	v.SetDefault("worker.runner", RunnerOpenClaw)
	v.SetDefault("worker.actor", "openclaw-worker")
	v.SetDefault("worker.interval", 15*time.Second)
	v.SetDefault("worker.batch_size", 2)
	v.SetDefault("worker.exec_timeout", 5*time.Minute)
	v.SetDefault("worker.prompt_context_chars", 3200)

	v.SetDefault("openclaw.binary", "openclaw")
	v.SetDefault("openclaw.agent", "main")
	v.SetDefault("openclaw.thinking", "low")
	v.SetDefault("openclaw.local", false)
	v.SetDefault("openclaw.deliver", false)
	v.SetDefault("openclaw.to", "")
	v.SetDefault("openclaw.session_id", "dashboard-worker")
	v.SetDefault("openclaw.timeout_sec", 240)

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")

	v.SetDefault("memos.auto_context", true)
	v.SetDefault("memos.base_url", "http://127.0.0.1:8000")
	v.SetDefault("memos.user_id", "openclaw-main")
	v.SetDefault("memos.readable_cubes", DefaultReadableCubes)
	v.SetDefault("memos.top_k", 6)
	v.SetDefault("memos.timeout", 7*time.Second)
}

// normalize trims values whose surrounding whitespace carries no meaning.
func (c *Config) normalize() {
	c.Server.LogLevel = strings.ToLower(strings.TrimSpace(c.Server.LogLevel))
	c.Database.URL = strings.TrimSpace(c.Database.URL)
	c.Worker.Runner = strings.ToLower(strings.TrimSpace(c.Worker.Runner))
	c.Worker.Actor = strings.TrimSpace(c.Worker.Actor)
	c.OpenClaw.Thinking = strings.ToLower(strings.TrimSpace(c.OpenClaw.Thinking))
	c.OpenClaw.To = strings.TrimSpace(c.OpenClaw.To)
	c.OpenClaw.SessionID = strings.TrimSpace(c.OpenClaw.SessionID)
	c.Memos.BaseURL = strings.TrimRight(strings.TrimSpace(c.Memos.BaseURL), "/")
	c.Memos.UserID = strings.TrimSpace(c.Memos.UserID)

	cubes := make([]string, 0, len(c.Memos.ReadableCubes))
	for _, cube := range c.Memos.ReadableCubes {
		if cube = strings.TrimSpace(cube); cube != "" {
			cubes = append(cubes, cube)
		}
	}
	c.Memos.ReadableCubes = cubes
}

// Validate checks struct constraints and the rules spanning sections.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q check (value %v)",
				fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Worker.Runner == RunnerGemini && c.LLM.GeminiAPIKey == "" {
		return errors.New("invalid configuration: llm.gemini_api_key is required when worker.runner is gemini")
	}
	return nil
}
