// Package config handles service configuration. Values resolve in three
// layers: built-in defaults, then an optional Settings.ini file, then
// SNAPVIEW_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/ini.v1"

	"github.com/snapview/snapview/internal/capture"
	"github.com/snapview/snapview/internal/errors"
)

// Defaults
const (
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 5000
	DefaultInterval    = 3 * time.Second
	DefaultOutputDir   = "./Images"
	DefaultJournalPath = "./Images/snapview.db"
	DefaultSettings    = "Settings.ini"

	iniSection = "Settings"

	// MaxPort is the top of the valid TCP port range.
	MaxPort = 65535
)

type Config struct {
	Host         string
	Port         int
	OutputDir    string
	Interval     time.Duration
	Policy       string // "reuse" or "history"
	Mode         string // capture mode, free-form, normalized by the capture layer
	MonitorIndex int
	WindowTitle  string
	Dedup        bool
	JournalPath  string
	LogLevel     string
}

// Load resolves configuration from defaults and environment only.
func Load() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFile resolves configuration from defaults, the INI file at path, and
// the environment, in that order. A missing file is not an error; a
// malformed one is.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()
	if _, err := os.Stat(path); err == nil {
		if err := cfg.applyINI(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		OutputDir:    DefaultOutputDir,
		Interval:     DefaultInterval,
		Policy:       "reuse",
		Mode:         "Full Screen",
		MonitorIndex: 1,
		JournalPath:  DefaultJournalPath,
		LogLevel:     "info",
	}
}

func (c *Config) applyINI(path string) error {
	f, err := ini.Load(path)
	if err != nil {
		return errors.Wrapf(err, errors.CodeConfiguration, "cannot load settings file %q", path)
	}
	s := f.Section(iniSection)

	c.Host = s.Key("host").MustString(c.Host)
	c.Port = s.Key("port").MustInt(c.Port)
	c.OutputDir = s.Key("outputDir").MustString(c.OutputDir)
	c.Interval = time.Duration(s.Key("intervalSeconds").MustFloat64(c.Interval.Seconds()) * float64(time.Second))
	c.Policy = s.Key("persistence").MustString(c.Policy)
	c.Mode = s.Key("captureMode").MustString(c.Mode)
	c.MonitorIndex = s.Key("monitorIndex").MustInt(c.MonitorIndex)
	c.WindowTitle = s.Key("windowTitle").MustString(c.WindowTitle)
	c.Dedup = s.Key("skipDuplicates").MustBool(c.Dedup)
	c.JournalPath = s.Key("journalPath").MustString(c.JournalPath)
	c.LogLevel = s.Key("logLevel").MustString(c.LogLevel)
	return nil
}

func (c *Config) applyEnv() {
	c.Host = getEnv("SNAPVIEW_HOST", c.Host)
	c.Port = getEnvInt("SNAPVIEW_PORT", c.Port)
	c.OutputDir = getEnv("SNAPVIEW_OUTPUT_DIR", c.OutputDir)
	if secs := getEnvFloat("SNAPVIEW_INTERVAL_SECONDS", c.Interval.Seconds()); secs > 0 {
		c.Interval = time.Duration(secs * float64(time.Second))
	}
	c.Policy = getEnv("SNAPVIEW_POLICY", c.Policy)
	c.Mode = getEnv("SNAPVIEW_MODE", c.Mode)
	c.MonitorIndex = getEnvInt("SNAPVIEW_MONITOR_INDEX", c.MonitorIndex)
	c.WindowTitle = getEnv("SNAPVIEW_WINDOW_TITLE", c.WindowTitle)
	c.Dedup = getEnvBool("SNAPVIEW_SKIP_DUPLICATES", c.Dedup)
	c.JournalPath = getEnv("SNAPVIEW_JOURNAL_PATH", c.JournalPath)
	c.LogLevel = getEnv("SNAPVIEW_LOG_LEVEL", c.LogLevel)
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New(errors.CodeConfiguration, "host must not be empty")
	}
	if c.Port < 1 || c.Port > MaxPort {
		return errors.Newf(errors.CodeConfiguration, "port %d out of range [1, %d]", c.Port, MaxPort)
	}
	if c.OutputDir == "" {
		return errors.New(errors.CodeConfiguration, "output directory must not be empty")
	}
	if c.Interval <= 0 {
		return errors.Newf(errors.CodeConfiguration, "capture interval %v must be positive", c.Interval)
	}
	if _, err := c.Target(); err != nil {
		return err
	}
	return nil
}

// Addr returns the host:port the HTTP server binds.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Target builds the configured capture target.
func (c *Config) Target() (capture.Target, error) {
	kind, err := capture.ParseKind(c.Mode)
	if err != nil {
		return capture.Target{}, err
	}
	switch kind {
	case capture.Monitor:
		return capture.NewMonitor(c.MonitorIndex), nil
	case capture.Window:
		return capture.NewWindow(c.WindowTitle), nil
	case capture.DirectXSurface:
		return capture.NewDirectXSurface(c.WindowTitle), nil
	case capture.BrowserTab:
		return capture.NewBrowserTab(c.WindowTitle), nil
	default:
		return capture.NewFullScreen(), nil
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}
