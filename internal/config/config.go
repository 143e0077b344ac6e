package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
)

// Fixed base name for the run lock and run marker under LockDir.
const runFileBase = "pbtv"

// Config holds recorder, merger and resolver settings.
// Load from env; cmd/pbtv flags override individual fields.
type Config struct {
	// Source
	SourceURL   string // page URL handed to streamlink (the plugin resolves it)
	MediaAPIURL string // player media JSON used by resolve / -check

	// Extraction (streamlink)
	StreamlinkPath string
	StreamlinkArgs []string // extra args inserted before the mode flags
	Player         string   // playback mode player command
	Quality        string
	ProcessName    string // process name the open-file check filters on

	// Segments
	OutputDir     string
	LockDir       string
	SegmentPrefix string
	SegmentExt    string
	RestartPause  time.Duration
	StopGrace     time.Duration

	// Merge
	MergeExt   string
	BatchSize  int // <= 0 = one batch with all files
	FFmpegPath string
	Selector   []string

	// Observability
	JournalPath string // sqlite journal; "" = disabled
	MetricsAddr string // stream: serve /metrics here; "" = disabled
	Debug       bool
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load() to use a .env file.
func Load() (*Config, error) {
	c := &Config{
		SourceURL:      getEnv("PBTV_SOURCE_URL", "https://pickleballtv.com"),
		MediaAPIURL:    getEnv("PBTV_MEDIA_API_URL", "https://cdn.jwplayer.com/v2/media/kqrvUq1X"),
		StreamlinkPath: getEnv("PBTV_STREAMLINK_PATH", "streamlink"),
		Player:         getEnv("PBTV_PLAYER", "mpv"),
		Quality:        getEnv("PBTV_QUALITY", "best"),
		ProcessName:    getEnv("PBTV_PROCESS_NAME", "streamlink"),
		OutputDir:      getEnv("PBTV_OUTPUT_DIR", "."),
		LockDir:        getEnv("PBTV_LOCK_DIR", os.TempDir()),
		SegmentPrefix:  getEnv("PBTV_SEGMENT_PREFIX", "pbtv"),
		SegmentExt:     strings.TrimPrefix(getEnv("PBTV_SEGMENT_EXT", "ts"), "."),
		RestartPause:   getEnvDuration("PBTV_RESTART_PAUSE", 3*time.Second),
		StopGrace:      getEnvDuration("PBTV_STOP_GRACE", 8*time.Second),
		MergeExt:       strings.TrimPrefix(getEnv("PBTV_MERGE_EXT", "mp4"), "."),
		BatchSize:      getEnvInt("PBTV_BATCH_SIZE", 0),
		FFmpegPath:     os.Getenv("PBTV_FFMPEG_PATH"),
		JournalPath:    os.Getenv("PBTV_JOURNAL"),
		MetricsAddr:    os.Getenv("PBTV_METRICS_ADDR"),
		Debug:          getEnvBool("PBTV_DEBUG", false),
	}
	var err error
	if c.StreamlinkArgs, err = getEnvArgs("PBTV_STREAMLINK_ARGS", nil); err != nil {
		return nil, err
	}
	if c.Selector, err = getEnvArgs("PBTV_SELECTOR", []string{"fzf", "--multi"}); err != nil {
		return nil, err
	}
	if c.RestartPause < 0 {
		c.RestartPause = 0
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 8 * time.Second
	}
	if c.BatchSize < 0 {
		c.BatchSize = 0
	}
	return c, nil
}

// LockPath is the run lock location: one per host and LockDir.
func (c *Config) LockPath() string {
	return filepath.Join(c.LockDir, runFileBase+".lock")
}

// MarkerPath is the run marker (recording semaphore) location.
func (c *Config) MarkerPath() string {
	return filepath.Join(c.LockDir, runFileBase+".recording")
}

func getEnv(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvArgs splits a command-line style value with shell quoting rules.
func getEnvArgs(key string, defaultVal []string) ([]string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	args, err := shlex.Split(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return args, nil
}
