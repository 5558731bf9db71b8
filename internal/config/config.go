package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Bot     Bot     `yaml:"bot"`
	Sources Sources `yaml:"sources"`
	Output  Output  `yaml:"output"`
	Logging Logging `yaml:"logging"`
}

type Bot struct {
	TokenEnv        string     `yaml:"token_env"`
	APIURL          string     `yaml:"api_url"`
	ChannelID       int64      `yaml:"channel_id"`
	ChannelUsername string     `yaml:"channel_username"`
	CommentGroupID  int64      `yaml:"comment_group_id"`
	AdminIDs        []int64    `yaml:"admin_ids"`
	Deduplication   bool       `yaml:"deduplication"`
	CooldownSeconds int        `yaml:"notification_cooldown_seconds"`
	AIRedirect      AIRedirect `yaml:"ai_redirect"`
	MessageTail     string     `yaml:"message_tail"`
}

type AIRedirect struct {
	Enabled   bool  `yaml:"enabled"`
	ChannelID int64 `yaml:"channel_id"`
}

type Sources struct {
	Pixiv     PixivConfig     `yaml:"pixiv"`
	GalleryDL GalleryDLConfig `yaml:"gallery_dl"`
}

type PixivConfig struct {
	SessionEnv string `yaml:"phpsessid_env"`
}

type GalleryDLConfig struct {
	// Path to the gallery-dl executable; looked up on PATH when bare.
	Path string `yaml:"path"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for picbot.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "picbot")
}

// DataDir returns the XDG data directory for picbot.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "picbot")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/picbot/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'picbot init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Bot: Bot{
			TokenEnv:        "PICBOT_TOKEN",
			APIURL:          "https://api.telegram.org",
			Deduplication:   true,
			CooldownSeconds: 600,
		},
		Sources: Sources{
			Pixiv:     PixivConfig{SessionEnv: "PIXIV_PHPSESSID"},
			GalleryDL: GalleryDLConfig{Path: "gallery-dl"},
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Token reads the bot token from the configured environment variable.
func (c *Config) Token() string {
	return os.Getenv(c.Bot.TokenEnv)
}

// PixivSession reads the pixiv PHPSESSID cookie from the environment.
func (c *Config) PixivSession() string {
	return os.Getenv(c.Sources.Pixiv.SessionEnv)
}

// IsAdmin reports whether a user ID is in the configured admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Bot.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DownloadDir returns the download directory for a platform under the data dir.
func (c *Config) DownloadDir(platform string) string {
	return filepath.Join(c.GetDataDir(), "downloads", platform)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
