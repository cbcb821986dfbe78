package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type Config struct {
	ProjectDir   string `json:"project_dir"`
	ResultsDir   string `json:"results_dir"`
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`
	DBPath       string `json:"db_path"`

	// local uses the keyword lexicon, llm asks the configured chat model
	Mode string `json:"mode" default:"local" validate:"oneof=local llm"`

	Thresholds Thresholds     `json:"thresholds"`
	Backtest   BacktestConfig `json:"backtest"`
	Data       DataConfig     `json:"data"`

	LLMProvider    string `json:"llm_provider" default:"deepseek" validate:"oneof=deepseek openai"`
	LLMModel       string `json:"llm_model" default:"deepseek-chat"`
	BackendURL     string `json:"backend_url"`
	DeepSeekAPIKey string `json:"-"`
	OpenAIAPIKey   string `json:"-"`

	LogLevel    string `json:"log_level" default:"info" validate:"oneof=debug info warn error"`
	LogFormat   string `json:"log_format" default:"console" validate:"oneof=console json"`
	MetricsFile string `json:"metrics_file"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port" default:"52538" validate:"gt=0,lt=65536"`

	CacheEnabled bool `json:"cache_enabled" default:"true"`

	// Longport API Configuration
	LongportAppKey      string `json:"-"`
	LongportAppSecret   string `json:"-"`
	LongportAccessToken string `json:"-"`
}

// Thresholds are the tunable decision parameters handed to the orchestrator and risk gate.
type Thresholds struct {
	Volatility          float64 `json:"volatility" default:"0.35" validate:"gt=0"`
	MaxDrawdown         float64 `json:"max_drawdown" default:"0.20" validate:"gt=0,lte=1"`
	BullishConfirmation float64 `json:"bullish_confirmation" default:"55" validate:"gte=0,lte=100"`
	ConfidenceFloor     float64 `json:"confidence_floor" default:"0.45" validate:"gte=0,lte=1"`
	VaRMethod           string  `json:"var_method" default:"historical" validate:"oneof=historical volatility"`
	VaRConfidence       float64 `json:"var_confidence" default:"0.95" validate:"gt=0,lt=1"`
}

type BacktestConfig struct {
	FeeRate  float64 `json:"fee_rate" default:"0.001" validate:"gte=0,lt=0.1"`
	Slippage float64 `json:"slippage" default:"0.001" validate:"gte=0,lt=0.1"`
}

type DataConfig struct {
	PriceSource   string `json:"price_source" default:"yahoo" validate:"oneof=yahoo longport file"`
	NewsSource    string `json:"news_source" default:"google" validate:"oneof=google file none"`
	LookbackDays  int    `json:"lookback_days" default:"365" validate:"gte=30,lte=3650"`
	NewsLimit     int    `json:"news_limit" default:"10" validate:"gt=0,lte=100"`
	RetryAttempts int    `json:"retry_attempts" default:"3" validate:"gte=1,lte=10"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	cfg := DefaultConfigWithRoot(currentDir)

	// Load environment variables from .env file
	_ = godotenv.Load()

	// Override with environment variables if they exist
	cfg.ApplyEnv()

	return cfg
}

// DefaultConfigWithRoot returns the built-in defaults with every directory placed under root.
func DefaultConfigWithRoot(root string) *Config {
	cfg := &Config{
		ProjectDir:   root,
		ResultsDir:   filepath.Join(root, "results"),
		DataDir:      filepath.Join(root, "data"),
		DataCacheDir: filepath.Join(root, "data", "cache"),
		DBPath:       filepath.Join(root, "data", "stockmate.db"),
	}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// ApplyEnv overlays environment variables. Secrets are only ever read from the environment.
func (c *Config) ApplyEnv() {
	envString("PROJECT_DIR", &c.ProjectDir)
	envString("RESULTS_DIR", &c.ResultsDir)
	envString("DATA_DIR", &c.DataDir)
	envString("DATA_CACHE_DIR", &c.DataCacheDir)
	envString("STOCKMATE_DB_PATH", &c.DBPath)

	envString("STOCKMATE_MODE", &c.Mode)
	envFloat("STOCKMATE_VOL_THRESHOLD", &c.Thresholds.Volatility)
	envFloat("STOCKMATE_DD_THRESHOLD", &c.Thresholds.MaxDrawdown)
	envFloat("STOCKMATE_BULLISH_CONFIRMATION", &c.Thresholds.BullishConfirmation)
	envFloat("STOCKMATE_CONFIDENCE_FLOOR", &c.Thresholds.ConfidenceFloor)
	envString("STOCKMATE_VAR_METHOD", &c.Thresholds.VaRMethod)

	envString("STOCKMATE_PRICE_SOURCE", &c.Data.PriceSource)
	envString("STOCKMATE_NEWS_SOURCE", &c.Data.NewsSource)
	envInt("STOCKMATE_LOOKBACK_DAYS", &c.Data.LookbackDays)
	envInt("STOCKMATE_NEWS_LIMIT", &c.Data.NewsLimit)

	envString("LLM_PROVIDER", &c.LLMProvider)
	envString("LLM_MODEL", &c.LLMModel)
	envString("BACKEND_URL", &c.BackendURL)
	envString("DEEPSEEK_API_KEY", &c.DeepSeekAPIKey)
	envString("OPENAI_API_KEY", &c.OpenAIAPIKey)

	envString("LOG_LEVEL", &c.LogLevel)
	envString("LOG_FORMAT", &c.LogFormat)
	envString("STOCKMATE_METRICS_FILE", &c.MetricsFile)

	envBool("CACHE_ENABLED", &c.CacheEnabled)
	envBool("EINO_DEBUG_ENABLED", &c.EinoDebugEnabled)
	envInt("EINO_DEBUG_PORT", &c.EinoDebugPort)

	envString("LONGPORT_APP_KEY", &c.LongportAppKey)
	envString("LONGPORT_APP_SECRET", &c.LongportAppSecret)
	envString("LONGPORT_ACCESS_TOKEN", &c.LongportAccessToken)
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ResultsDir, c.DataDir, c.DataCacheDir}
	if c.DBPath != "" {
		dirs = append(dirs, filepath.Dir(c.DBPath))
	}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envFloat(key string, dst *float64) {
	if val := os.Getenv(key); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = v
		}
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			*dst = v
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			*dst = v
		}
	}
}
