package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"complaintbot/internal/integrations/llm"
	"complaintbot/internal/logging"
	"complaintbot/internal/scheduler"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	RowSourceSheets = "sheets"
	RowSourceCSV    = "csv"
	RowSourceDemo   = "demo"
)

const (
	defaultOpenAICompatibleModel = "deepseek/deepseek-v3-base:free"
	defaultAnthropicModel        = "claude-3-5-haiku-latest"
)

type Config struct {
	LLMProvider          string  `yaml:"llm_provider"`
	LLMModel             string  `yaml:"llm_model"`
	LLMBaseURL           string  `yaml:"llm_base_url"`
	LLMTemperature       float64 `yaml:"llm_temperature"`
	LLMMaxTokens         int     `yaml:"llm_max_tokens"`
	LLMRequestsPerMinute int     `yaml:"llm_requests_per_minute"`
	AnthropicAPIKey      string  `yaml:"anthropic_api_key"`
	// OpenAIAPIKey authenticates against any OpenAI-compatible endpoint,
	// OpenRouter included.
	OpenAIAPIKey string `yaml:"openai_api_key"`

	AnalysisMaxAttempts          int `yaml:"analysis_max_attempts"`
	AnalysisRetryDelaySeconds    int `yaml:"analysis_retry_delay_seconds"`
	ProcessMaxAttempts           int `yaml:"process_max_attempts"`
	ProcessBackoffInitialSeconds int `yaml:"process_backoff_initial_seconds"`
	ProcessBackoffMaxSeconds     int `yaml:"process_backoff_max_seconds"`
	ExternalHTTPTimeoutSeconds   int `yaml:"external_http_timeout_seconds"`

	DBPath    string `yaml:"db_path"`
	ExportDir string `yaml:"export_dir"`

	// RowSource is sheets, csv or demo. Empty picks sheets when a
	// spreadsheet is configured, then csv when a path is set, else demo.
	RowSource             string `yaml:"row_source"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
	SpreadsheetID         string `yaml:"spreadsheet_id"`
	SheetRange            string `yaml:"sheet_range"`
	CSVPath               string `yaml:"csv_path"`

	SlackBotToken   string   `yaml:"slack_bot_token"`
	SlackChannelID  string   `yaml:"slack_channel_id"`
	SlackAlertUsers []string `yaml:"slack_alert_users"`

	ProcessSchedule string `yaml:"process_schedule"`
	ReportSchedule  string `yaml:"report_schedule"`
	MetricsAddr     string `yaml:"metrics_addr"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Timezone  string `yaml:"timezone"`

	Location   *time.Location `yaml:"-"` // computed from Timezone, not from YAML
	LoadedFrom string         `yaml:"-"`
}

// LoadConfig reads .env (path from ENV_FILE), then config.yaml (path from
// CONFIG_PATH), then environment overrides, then applies defaults and
// validates the result.
func LoadConfig() (Config, error) {
	var cfg Config

	envFile := ".env"
	if p := os.Getenv("ENV_FILE"); p != "" {
		envFile = p
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("error loading %s: %w", envFile, err)
	}

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("error parsing %s: %w", configPath, err)
		}
		cfg.LoadedFrom = configPath
	}

	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.LLMBaseURL, "LLM_BASE_URL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENROUTER_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ExportDir, "EXPORT_DIR")
	envOverride(&cfg.RowSource, "ROW_SOURCE")
	envOverride(&cfg.GoogleCredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	envOverride(&cfg.SpreadsheetID, "SPREADSHEET_ID")
	envOverride(&cfg.SheetRange, "SHEET_RANGE")
	envOverride(&cfg.CSVPath, "CSV_PATH")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverrideList(&cfg.SlackAlertUsers, "SLACK_ALERT_USERS")
	envOverride(&cfg.ProcessSchedule, "PROCESS_SCHEDULE")
	envOverride(&cfg.ReportSchedule, "REPORT_SCHEDULE")
	envOverride(&cfg.MetricsAddr, "METRICS_ADDR")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.LogFormat, "LOG_FORMAT")
	envOverride(&cfg.Timezone, "TIMEZONE")

	if err := errors.Join(
		envOverrideFloat(&cfg.LLMTemperature, "LLM_TEMPERATURE"),
		envOverrideInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS"),
		envOverrideInt(&cfg.LLMRequestsPerMinute, "LLM_REQUESTS_PER_MINUTE"),
		envOverrideInt(&cfg.AnalysisMaxAttempts, "ANALYSIS_MAX_ATTEMPTS"),
		envOverrideInt(&cfg.AnalysisRetryDelaySeconds, "ANALYSIS_RETRY_DELAY_SECONDS"),
		envOverrideInt(&cfg.ProcessMaxAttempts, "PROCESS_MAX_ATTEMPTS"),
		envOverrideInt(&cfg.ProcessBackoffInitialSeconds, "PROCESS_BACKOFF_INITIAL_SECONDS"),
		envOverrideInt(&cfg.ProcessBackoffMaxSeconds, "PROCESS_BACKOFF_MAX_SECONDS"),
		envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"),
	); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	switch cfg.LLMProvider {
	case "", "openai", "openrouter":
		cfg.LLMProvider = llm.ProviderOpenAICompatible
	}
	if cfg.LLMModel == "" {
		if cfg.LLMProvider == llm.ProviderAnthropic {
			cfg.LLMModel = defaultAnthropicModel
		} else {
			cfg.LLMModel = defaultOpenAICompatibleModel
		}
	}
	if cfg.LLMTemperature == 0 {
		cfg.LLMTemperature = 0.1
	}
	if cfg.LLMMaxTokens == 0 {
		cfg.LLMMaxTokens = 500
	}
	if cfg.AnalysisMaxAttempts == 0 {
		cfg.AnalysisMaxAttempts = 3
	}
	if cfg.AnalysisRetryDelaySeconds == 0 {
		cfg.AnalysisRetryDelaySeconds = 2
	}
	if cfg.ProcessMaxAttempts == 0 {
		cfg.ProcessMaxAttempts = 3
	}
	if cfg.ProcessBackoffInitialSeconds == 0 {
		cfg.ProcessBackoffInitialSeconds = 4
	}
	if cfg.ProcessBackoffMaxSeconds == 0 {
		cfg.ProcessBackoffMaxSeconds = 10
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./complaints.db"
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = "./exports"
	}
	cfg.RowSource = strings.ToLower(strings.TrimSpace(cfg.RowSource))
	if cfg.RowSource == "" {
		switch {
		case cfg.SpreadsheetID != "":
			cfg.RowSource = RowSourceSheets
		case cfg.CSVPath != "":
			cfg.RowSource = RowSourceCSV
		default:
			cfg.RowSource = RowSourceDemo
		}
	}
	if cfg.ProcessSchedule == "" {
		cfg.ProcessSchedule = "@hourly"
	}
	if cfg.ReportSchedule == "" {
		cfg.ReportSchedule = "0 */6 * * *"
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}
	// "off" disables a job or the metrics listener.
	for _, f := range []*string{&cfg.ProcessSchedule, &cfg.ReportSchedule, &cfg.MetricsAddr} {
		if strings.EqualFold(strings.TrimSpace(*f), "off") {
			*f = ""
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = logging.FormatConsole
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case llm.ProviderAnthropic, llm.ProviderOpenAICompatible:
	default:
		return fmt.Errorf("llm_provider must be 'anthropic' or 'openai-compatible', got '%s'", c.LLMProvider)
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("invalid llm_temperature '%g': must be between 0 and 2", c.LLMTemperature)
	}
	if c.LLMMaxTokens < 50 {
		return fmt.Errorf("invalid llm_max_tokens '%d': must be >= 50", c.LLMMaxTokens)
	}
	if c.LLMRequestsPerMinute < 0 {
		return fmt.Errorf("invalid llm_requests_per_minute '%d': must be >= 0", c.LLMRequestsPerMinute)
	}
	if c.AnalysisMaxAttempts < 1 {
		return fmt.Errorf("invalid analysis_max_attempts '%d': must be >= 1", c.AnalysisMaxAttempts)
	}
	if c.ProcessMaxAttempts < 1 {
		return fmt.Errorf("invalid process_max_attempts '%d': must be >= 1", c.ProcessMaxAttempts)
	}
	if c.AnalysisRetryDelaySeconds < 0 || c.ProcessBackoffInitialSeconds < 0 {
		return fmt.Errorf("retry delays must be >= 0")
	}
	if c.ProcessBackoffMaxSeconds < c.ProcessBackoffInitialSeconds {
		return fmt.Errorf("invalid process_backoff_max_seconds '%d': must be >= process_backoff_initial_seconds", c.ProcessBackoffMaxSeconds)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}

	switch c.RowSource {
	case RowSourceSheets:
		if c.SpreadsheetID == "" || c.GoogleCredentialsFile == "" {
			return fmt.Errorf("row_source=sheets requires spreadsheet_id and google_credentials_file")
		}
	case RowSourceCSV:
		if c.CSVPath == "" {
			return fmt.Errorf("row_source=csv requires csv_path")
		}
	case RowSourceDemo:
	default:
		return fmt.Errorf("row_source must be 'sheets', 'csv' or 'demo', got '%s'", c.RowSource)
	}

	if (c.SlackBotToken == "") != (c.SlackChannelID == "") {
		return fmt.Errorf("slack_bot_token and slack_channel_id must be set together")
	}
	if c.ProcessSchedule != "" {
		if _, err := scheduler.Parse(c.ProcessSchedule); err != nil {
			return fmt.Errorf("process_schedule: %w", err)
		}
	}
	if c.ReportSchedule != "" {
		if _, err := scheduler.Parse(c.ReportSchedule); err != nil {
			return fmt.Errorf("report_schedule: %w", err)
		}
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.LogFormat {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("log_format must be 'console' or 'json', got '%s'", c.LogFormat)
	}

	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
		c.Location = loc
	}
	return nil
}

// RequireLLM reports whether the selected provider has an API key. Only
// commands that call the model need one.
func (c Config) RequireLLM() error {
	if c.LLMAPIKey() == "" {
		if c.LLMProvider == llm.ProviderAnthropic {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
		return fmt.Errorf("openai_api_key (or OPENROUTER_API_KEY) is required when llm_provider=%s", c.LLMProvider)
	}
	return nil
}

func (c Config) LLMAPIKey() string {
	if c.LLMProvider == llm.ProviderAnthropic {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

func (c Config) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider:          c.LLMProvider,
		Model:             c.LLMModel,
		APIKey:            c.LLMAPIKey(),
		BaseURL:           c.LLMBaseURL,
		MaxTokens:         c.LLMMaxTokens,
		Temperature:       c.LLMTemperature,
		RequestsPerMinute: c.LLMRequestsPerMinute,
	}
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideList(field *[]string, envKey string) {
	vals := os.Getenv(envKey)
	if vals == "" {
		return
	}
	*field = nil
	for _, v := range strings.Split(vals, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			*field = append(*field, v)
		}
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}
