package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

const (
	GLOBAL_LANGUAGE       = "global.interface_language"
	HTTP_PROXY            = "http.proxy"
	TELEGRAM_TOKEN        = "telegram.token"
	TELEGRAM_ALLOWED      = "telegram.allowed_users"
	OPENAI_KEY            = "openai.key"
	OPENAI_BASE_URL       = "openai.base_url"
	OPENAI_MODEL          = "openai.model"
	OPENAI_MAX_TOKENS     = "openai.max_tokens"
	OPENAI_PRICE          = "openai.price"
	REPLICATE_TOKEN       = "replicate.token"
	REPLICATE_MODEL       = "replicate.model"
	STABILITY_KEY         = "stability.key"
	STABILITY_HOST        = "stability.host"
	STABILITY_ENGINE      = "stability.engine"
	BING_COOKIE           = "bing.cookie"
	CHAT_CONTEXT_SIZE     = "chat.context_size"
	CHAT_SYSTEM_PROMPT    = "chat.system_prompt"
	CHAT_IMAGE_PRICE      = "chat.image_price"
	CHAT_CAPTION_PRICE    = "chat.caption_price"
	DATABASE_DSN          = "database.dsn"
	LOGGING_LEVEL         = "logging.level"
	LOGGING_WRITE_IN_FILE = "logging.write_in_file"
	LOGGING_FILE_PATH     = "logging.file_path"
)

var defaultSQLiteParams = map[string]string{
	"_journal":      "WAL",
	"_busy_timeout": "10000",
	"_synchronous":  "NORMAL",
	"_cache":        "shared",
}

type Config struct {
	k *koanf.Koanf
}

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "", "Path to config file")
}

func Load() (*Config, error) {
	// secrets may live in a .env file next to the binary
	_ = godotenv.Overload()

	k := koanf.New(".")

	defaults := map[string]any{
		GLOBAL_LANGUAGE:       "en",
		HTTP_PROXY:            nil,
		TELEGRAM_TOKEN:        "",
		OPENAI_BASE_URL:       "https://api.openai.com/v1",
		OPENAI_MODEL:          "gpt-3.5-turbo",
		OPENAI_MAX_TOKENS:     2000,
		OPENAI_PRICE:          0.002,
		REPLICATE_MODEL:       "methexis-inc/img2prompt",
		STABILITY_HOST:        "https://api.stability.ai",
		STABILITY_ENGINE:      "stable-diffusion-512-v2-1",
		CHAT_CONTEXT_SIZE:     4000,
		CHAT_SYSTEM_PROMPT:    "You are a helpful assistant. Your name is Robie",
		CHAT_IMAGE_PRICE:      0.002,
		CHAT_CAPTION_PRICE:    0.02,
		DATABASE_DSN:          "robie.db?_journal=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache=shared",
		LOGGING_LEVEL:         "info",
		LOGGING_WRITE_IN_FILE: false,
	}
	k.Load(confmap.Provider(defaults, "."), nil)

	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("error loading config %s: %v", path, err)
			}
			break
		}
	}

	k.Load(env.Provider("ROBIE_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "ROBIE_")),
			"_", ".",
		)
	}), nil)

	if k.Get(TELEGRAM_TOKEN) == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	return &Config{k: k}, nil
}

func (c *Config) Telegram() TelegramConfig {
	var cfg TelegramConfig
	if err := c.k.Unmarshal("telegram", &cfg); err != nil {
		log.Fatalf("telegramConfig unmarshal error: %v", err)
		return TelegramConfig{}
	}
	return cfg
}

func (c *Config) OpenAI() OpenAIConfig {
	return OpenAIConfig{
		Key:       c.k.String(OPENAI_KEY),
		BaseURL:   c.k.String(OPENAI_BASE_URL),
		Model:     c.k.String(OPENAI_MODEL),
		MaxTokens: c.k.Int(OPENAI_MAX_TOKENS),
		Price:     c.k.Float64(OPENAI_PRICE),
	}
}

func (c *Config) Replicate() ReplicateConfig {
	return ReplicateConfig{
		Token: c.k.String(REPLICATE_TOKEN),
		Model: c.k.String(REPLICATE_MODEL),
	}
}

func (c *Config) Stability() StabilityConfig {
	return StabilityConfig{
		Key:    c.k.String(STABILITY_KEY),
		Host:   c.k.String(STABILITY_HOST),
		Engine: c.k.String(STABILITY_ENGINE),
	}
}

func (c *Config) Bing() BingConfig {
	return BingConfig{
		Cookie: c.k.String(BING_COOKIE),
	}
}

func (c *Config) Chat() ChatConfig {
	return ChatConfig{
		ContextSize:  c.k.Int(CHAT_CONTEXT_SIZE),
		SystemPrompt: c.k.String(CHAT_SYSTEM_PROMPT),
		ImagePrice:   c.k.Float64(CHAT_IMAGE_PRICE),
		CaptionPrice: c.k.Float64(CHAT_CAPTION_PRICE),
	}
}

func (c *Config) Log() LoggingConfig {
	return LoggingConfig{
		LogLevel:    c.k.String(LOGGING_LEVEL),
		WriteInFile: c.k.Bool(LOGGING_WRITE_IN_FILE),
		FilePath:    c.k.String(LOGGING_FILE_PATH),
	}
}

func (c *Config) GetDatabaseDSN() string {
	dsn := c.k.String(DATABASE_DSN)
	parts := strings.Split(dsn, "?")
	path := parts[0]

	params := make(map[string]string)
	if len(parts) > 1 {
		for param := range strings.SplitSeq(parts[1], "&") {
			if kv := strings.Split(param, "="); len(kv) == 2 {
				params[kv[0]] = kv[1]
			}
		}
	}

	for k, v := range defaultSQLiteParams {
		if _, exists := params[k]; !exists {
			params[k] = v
		}
	}

	var queryParams []string
	for k, v := range params {
		queryParams = append(queryParams, k+"="+v)
	}
	sort.Strings(queryParams)

	if len(queryParams) > 0 {
		return path + "?" + strings.Join(queryParams, "&")
	}
	return path
}

func (c *Config) Global() GlobalConfig {
	return GlobalConfig{
		InterfaceLanguage: c.k.String(GLOBAL_LANGUAGE),
	}
}

func (c *Config) HTTP() HTTPConfig {
	var proxy string
	if proxyValue := c.k.Get(HTTP_PROXY); proxyValue != nil {
		proxy = proxyValue.(string)
	}

	return HTTPConfig{
		proxy: &proxy,
	}
}

func getConfigPaths() []string {
	if configPath != "" {
		return []string{configPath}
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		home, _ := os.UserHomeDir()
		xdgConfig = filepath.Join(home, ".config")
	}

	return []string{
		"robie.toml",
		"config.toml",
		filepath.Join(xdgConfig, "robie", "config.toml"),
		"/etc/robie/config.toml",
	}
}
