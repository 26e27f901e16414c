package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	OpenClaw OpenClawConfig `mapstructure:"openclaw" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Memos    MemosConfig    `mapstructure:"memos"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFile         string        `mapstructure:"log_file"`
	LogMaxSizeMB    int           `mapstructure:"log_max_size_mb" validate:"gte=1"`
	LogMaxBackups   int           `mapstructure:"log_max_backups" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s,max=5m"`
}

// DatabaseConfig contains the durable storage settings. An empty URL selects
// in-memory storage.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	ConnectAttempts int           `mapstructure:"connect_attempts" validate:"min=1,max=10"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" validate:"min=1s,max=1m"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=1,max=100"`
}

// Runner backends.
const (
	RunnerOpenClaw = "openclaw"
	RunnerNoop     = "noop"
	RunnerGemini   = "gemini"
)

// WorkerConfig controls the background command worker.
type WorkerConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Runner             string        `mapstructure:"runner" validate:"required,oneof=openclaw noop gemini"`
	Actor              string        `mapstructure:"actor" validate:"required,max=120"`
	Interval           time.Duration `mapstructure:"interval" validate:"min=1s,max=5m"`
	BatchSize          int           `mapstructure:"batch_size" validate:"min=1,max=20"`
	ExecTimeout        time.Duration `mapstructure:"exec_timeout" validate:"min=5s,max=30m"`
	PromptContextChars int           `mapstructure:"prompt_context_chars" validate:"min=400,max=12000"`
}

// OpenClawConfig configures the openclaw CLI runner.
type OpenClawConfig struct {
	Binary     string `mapstructure:"binary" validate:"required"`
	Agent      string `mapstructure:"agent" validate:"required"`
	Thinking   string `mapstructure:"thinking" validate:"required,oneof=off minimal low medium high"`
	Local      bool   `mapstructure:"local"`
	Deliver    bool   `mapstructure:"deliver"`
	To         string `mapstructure:"to"`
	SessionID  string `mapstructure:"session_id"`
	TimeoutSec int    `mapstructure:"timeout_sec" validate:"min=10,max=3600"`
}

// LLMConfig contains the Gemini settings used by the gemini runner.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
}

// MemosConfig configures MemOS context enrichment.
type MemosConfig struct {
	AutoContext   bool          `mapstructure:"auto_context"`
	BaseURL       string        `mapstructure:"base_url" validate:"omitempty,url"`
	UserID        string        `mapstructure:"user_id"`
	ReadableCubes []string      `mapstructure:"readable_cubes"`
	TopK          int           `mapstructure:"top_k" validate:"min=1,max=30"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"min=1s,max=30s"`
}
