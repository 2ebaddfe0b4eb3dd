package config

import (
	"os"
	"slices"
	"strings"
)

type GlobalConfig struct {
	InterfaceLanguage string `koanf:"interface_language"`
}

type HTTPConfig struct {
	proxy *string `koanf:"proxy"`
}

func (c HTTPConfig) GetProxy() string {
	if c.proxy != nil && *c.proxy != "" {
		return *c.proxy
	}
	for _, name := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"} {
		if proxyURL := os.Getenv(name); proxyURL != "" {
			return proxyURL
		}
	}
	return ""
}

type LoggingConfig struct {
	LogLevel    string `koanf:"level"`
	WriteInFile bool   `koanf:"write_in_file"`
	FilePath    string `koanf:"file_path"`
}

func (c LoggingConfig) Level() string {
	return strings.ToLower(c.LogLevel)
}

type TelegramConfig struct {
	Token        string  `koanf:"token"`
	AllowedUsers []int64 `koanf:"allowed_users"`
}

func (c TelegramConfig) IsAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return false
	}
	return slices.Contains(c.AllowedUsers, userID)
}

type OpenAIConfig struct {
	Key       string  `koanf:"key"`
	BaseURL   string  `koanf:"base_url"`
	Model     string  `koanf:"model"`
	MaxTokens int     `koanf:"max_tokens"`
	Price     float64 `koanf:"price"` // per 1k total tokens
}

type ReplicateConfig struct {
	Token string `koanf:"token"`
	Model string `koanf:"model"`
}

type StabilityConfig struct {
	Key    string `koanf:"key"`
	Host   string `koanf:"host"`
	Engine string `koanf:"engine"`
}

type BingConfig struct {
	Cookie string `koanf:"cookie"`
}

type ChatConfig struct {
	ContextSize  int     `koanf:"context_size"`
	SystemPrompt string  `koanf:"system_prompt"`
	ImagePrice   float64 `koanf:"image_price"`
	CaptionPrice float64 `koanf:"caption_price"`
}
