package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/clipreel/internal/clips"
	"github.com/MimeLyc/clipreel/pkg/log"
)

// Config holds all application configuration.
// Values are layered: defaults, then the TOML file named by CLIPREEL_CONFIG,
// then environment variables (a .env file in the working directory is
// loaded first and never overrides the real environment), then Options.
//
// Environment Variables:
// Twitch:
// - TWITCH_CLIENT_ID: Helix client id (required for compile and schedule)
// - TWITCH_TOKEN: app access token sent as a bearer token (optional)
// - TWITCH_API_URL: Helix base URL (default: https://api.twitch.tv/helix)
//
// Paths:
// - CLIPS_DIR: working directory for clip artifacts (default: ./clips)
// - OUTPUT_DIR: directory receiving compilations (default: ./output)
// - DATA_DIR: directory holding the run ledger (default: ./data)
//
// Video:
// - RESIZE_WIDTH / RESIZE_HEIGHT: target resolution (default: 1920x1080)
// - FONT_FILE: font used for overlays (optional)
// - FFMPEG_BIN / FFPROBE_BIN: binaries (default: ffmpeg, ffprobe)
//
// Compile:
// - CLIP_AMOUNT: clips per compilation (default: 10)
// - CLIP_TIME_FRAME: how far back clips may be, e.g. "1 week" (default: 1 week)
// - PIPELINE_WORKERS: parallel clips per stage (default: 4)
// - OPERATION_TIMEOUT: seconds allowed per download or ffmpeg call (default: 600)
// - PIPELINE_STRICT: abort when any clip is dropped (default: false)
//
// Schedule:
// - CRON_EXPR: when scheduled compilations run (default: 0 6 * * *)
// - SCHEDULE_TARGETS: comma separated targets such as "game:Just Chatting,user:shroud"
// - LEDGER_RETENTION_DAYS: runs older than this are pruned, 0 keeps all (default: 90)
//
// System:
// - LOG_LEVEL: debug, info, warn or error (default: info)
// - LOG_FILE: also write logs to this file (optional)
// - HTTP_ADDR: listen address of the control API in scheduled mode, e.g. ":8080" (optional)
type Config struct {
	Twitch   TwitchConfig   `toml:"twitch"`
	Paths    PathsConfig    `toml:"paths"`
	Video    VideoConfig    `toml:"video"`
	Compile  CompileConfig  `toml:"compile"`
	Schedule ScheduleConfig `toml:"schedule"`
	System   SystemConfig   `toml:"system"`

	skipCredentials bool
}

type TwitchConfig struct {
	ClientID string `toml:"client_id"`
	Token    string `toml:"token"`
	BaseURL  string `toml:"base_url"`
}

type PathsConfig struct {
	ClipsDir  string `toml:"clips_dir"`
	OutputDir string `toml:"output_dir"`
	DataDir   string `toml:"data_dir"`
}

type VideoConfig struct {
	Width      int    `toml:"width"`
	Height     int    `toml:"height"`
	FontFile   string `toml:"font_file"`
	FfmpegBin  string `toml:"ffmpeg_bin"`
	FfprobeBin string `toml:"ffprobe_bin"`
}

type CompileConfig struct {
	Amount    int    `toml:"amount"`
	TimeFrame string `toml:"time_frame"`
	Workers   int    `toml:"workers"`
	// OperationTimeout is in seconds.
	OperationTimeout int  `toml:"operation_timeout"`
	Strict           bool `toml:"strict"`
}

type ScheduleConfig struct {
	CronExpr            string   `toml:"cron_expr"`
	Targets             []string `toml:"targets"`
	LedgerRetentionDays int      `toml:"ledger_retention_days"`
}

type SystemConfig struct {
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
	HTTPAddr string `toml:"http_addr"`
}

// Target is a scheduled compilation scope, kept by name.
type Target struct {
	Kind clips.ScopeKind
	Name string
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.Name)
}

// ParseTarget reads "kind:name", e.g. "game:Just Chatting".
func ParseTarget(s string) (Target, error) {
	kind, name, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || strings.TrimSpace(name) == "" {
		return Target{}, fmt.Errorf("invalid target %q: want kind:name", s)
	}
	k, err := clips.ParseScopeKind(kind)
	if err != nil {
		return Target{}, err
	}
	return Target{Kind: k, Name: strings.TrimSpace(name)}, nil
}

// Option is a function type for configuring Config
type Option func(*Config)

// WithoutCredentials skips the Twitch credential check for commands that
// never contact Helix.
func WithoutCredentials() Option {
	return func(c *Config) {
		c.skipCredentials = true
	}
}

func Default() Config {
	return Config{
		Twitch: TwitchConfig{
			BaseURL: "https://api.twitch.tv/helix",
		},
		Paths: PathsConfig{
			ClipsDir:  "./clips",
			OutputDir: "./output",
			DataDir:   "./data",
		},
		Video: VideoConfig{
			Width:      1920,
			Height:     1080,
			FfmpegBin:  "ffmpeg",
			FfprobeBin: "ffprobe",
		},
		Compile: CompileConfig{
			Amount:           10,
			TimeFrame:        "1 week",
			Workers:          4,
			OperationTimeout: 600,
		},
		Schedule: ScheduleConfig{
			CronExpr:            "0 6 * * *",
			LedgerRetentionDays: 90,
		},
		System: SystemConfig{
			LogLevel: "info",
		},
	}
}

// NewFromEnv builds the layered configuration and validates it.
func NewFromEnv(opts ...Option) (*Config, error) {
	if err := loadDotEnv(getEnvString("CLIPREEL_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	config := Default()
	if path := getEnvString("CLIPREEL_CONFIG", ""); path != "" {
		if err := LoadFile(path, &config); err != nil {
			return nil, err
		}
	}
	config.applyEnv()

	for _, opt := range opts {
		opt(&config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: clips=%s output=%s target=%dx%d workers=%d",
		config.Paths.ClipsDir, config.Paths.OutputDir, config.Video.Width, config.Video.Height, config.Compile.Workers)
	return &config, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Twitch.ClientID = getEnvString("TWITCH_CLIENT_ID", c.Twitch.ClientID)
	c.Twitch.Token = getEnvString("TWITCH_TOKEN", c.Twitch.Token)
	c.Twitch.BaseURL = getEnvString("TWITCH_API_URL", c.Twitch.BaseURL)

	c.Paths.ClipsDir = getEnvString("CLIPS_DIR", c.Paths.ClipsDir)
	c.Paths.OutputDir = getEnvString("OUTPUT_DIR", c.Paths.OutputDir)
	c.Paths.DataDir = getEnvString("DATA_DIR", c.Paths.DataDir)

	c.Video.Width = getEnvInt("RESIZE_WIDTH", c.Video.Width)
	c.Video.Height = getEnvInt("RESIZE_HEIGHT", c.Video.Height)
	c.Video.FontFile = getEnvString("FONT_FILE", c.Video.FontFile)
	c.Video.FfmpegBin = getEnvString("FFMPEG_BIN", c.Video.FfmpegBin)
	c.Video.FfprobeBin = getEnvString("FFPROBE_BIN", c.Video.FfprobeBin)

	c.Compile.Amount = getEnvInt("CLIP_AMOUNT", c.Compile.Amount)
	c.Compile.TimeFrame = getEnvString("CLIP_TIME_FRAME", c.Compile.TimeFrame)
	c.Compile.Workers = getEnvInt("PIPELINE_WORKERS", c.Compile.Workers)
	c.Compile.OperationTimeout = getEnvInt("OPERATION_TIMEOUT", c.Compile.OperationTimeout)
	c.Compile.Strict = getEnvBool("PIPELINE_STRICT", c.Compile.Strict)

	c.Schedule.CronExpr = getEnvString("CRON_EXPR", c.Schedule.CronExpr)
	if targets := getEnvString("SCHEDULE_TARGETS", ""); targets != "" {
		c.Schedule.Targets = splitList(targets)
	}
	c.Schedule.LedgerRetentionDays = getEnvInt("LEDGER_RETENTION_DAYS", c.Schedule.LedgerRetentionDays)

	c.System.LogLevel = getEnvString("LOG_LEVEL", c.System.LogLevel)
	c.System.LogFile = getEnvString("LOG_FILE", c.System.LogFile)
	c.System.HTTPAddr = getEnvString("HTTP_ADDR", c.System.HTTPAddr)
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if !c.skipCredentials && strings.TrimSpace(c.Twitch.ClientID) == "" {
		return fmt.Errorf("TWITCH_CLIENT_ID is required")
	}
	if c.Video.Width <= 0 || c.Video.Height <= 0 {
		return fmt.Errorf("resize resolution must be positive, got %dx%d", c.Video.Width, c.Video.Height)
	}
	if c.Compile.Workers <= 0 {
		return fmt.Errorf("PIPELINE_WORKERS must be positive, got %d", c.Compile.Workers)
	}
	if c.Compile.Amount <= 0 {
		return fmt.Errorf("CLIP_AMOUNT must be positive, got %d", c.Compile.Amount)
	}
	if c.Compile.OperationTimeout <= 0 {
		return fmt.Errorf("OPERATION_TIMEOUT must be positive, got %d", c.Compile.OperationTimeout)
	}
	if _, err := clips.ParseTimeFrame(c.Compile.TimeFrame); err != nil {
		return fmt.Errorf("invalid CLIP_TIME_FRAME: %w", err)
	}
	if strings.TrimSpace(c.Schedule.CronExpr) != "" {
		if _, err := cron.ParseStandard(c.Schedule.CronExpr); err != nil {
			return fmt.Errorf("invalid CRON_EXPR: %w", err)
		}
	}
	if _, err := c.Targets(); err != nil {
		return err
	}
	return nil
}

// Targets parses the scheduled compilation targets.
func (c *Config) Targets() ([]Target, error) {
	ret := make([]Target, 0, len(c.Schedule.Targets))
	for _, raw := range c.Schedule.Targets {
		t, err := ParseTarget(raw)
		if err != nil {
			return nil, err
		}
		ret = append(ret, t)
	}
	return ret, nil
}

// TimeFrame is the parsed default clip window.
func (c *Config) TimeFrame() time.Duration {
	d, _ := clips.ParseTimeFrame(c.Compile.TimeFrame)
	return d
}

func (c *Config) OperationTimeout() time.Duration {
	return time.Duration(c.Compile.OperationTimeout) * time.Second
}

func (c *Config) LedgerRetention() time.Duration {
	return time.Duration(c.Schedule.LedgerRetentionDays) * 24 * time.Hour
}

func (c *Config) DBPath() string {
	return filepath.Join(c.Paths.DataDir, "clipreel.db")
}

func splitList(s string) []string {
	var ret []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ret = append(ret, part)
		}
	}
	return ret
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
