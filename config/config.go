// Package config loads the drmcore service configuration from the XDG
// config directories.
package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml"
	"github.com/sirupsen/logrus"
)

const configPath = "drmcore/drmcore.toml"

type Config struct {
	// Log level understood by logrus (trace, debug, info, warn, error).
	LogLevel string `toml:"log_level,omitempty"`

	Device Device `toml:"device,omitempty"`
}

// Device bounds what the mode-setting core will accept from clients.
type Device struct {
	MinWidth  uint32 `toml:"min_width,omitempty"`
	MinHeight uint32 `toml:"min_height,omitempty"`
	MaxWidth  uint32 `toml:"max_width,omitempty"`
	MaxHeight uint32 `toml:"max_height,omitempty"`

	// Maximum number of events buffered per connection before posting
	// starts dropping the oldest entries. Zero means unbounded.
	EventQueueDepth int `toml:"event_queue_depth,omitempty"`

	CursorWidth  uint32 `toml:"cursor_width,omitempty"`
	CursorHeight uint32 `toml:"cursor_height,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		LogLevel: "info",
		Device: Device{
			MinWidth:     0,
			MinHeight:    0,
			MaxWidth:     4096,
			MaxHeight:    4096,
			CursorWidth:  64,
			CursorHeight: 64,
		},
	}
}

// Load reads the configuration from the XDG search path, falling back to
// Default when no file exists.
func Load() (Config, error) {
	cfg := Default()

	path, err := xdg.SearchConfigFile(configPath)
	if err != nil {
		// No file anywhere on the search path.
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Parse decodes a raw TOML document over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// ApplyLogLevel pushes the configured level into logrus, leaving the
// level untouched when the value does not parse.
func (c Config) ApplyLogLevel() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.WithField("log_level", c.LogLevel).Warn("unknown log level, keeping current")
		return
	}
	logrus.SetLevel(level)
}
