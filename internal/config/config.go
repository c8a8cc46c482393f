package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted in the configuration.
const (
	BackendAuto = "auto"
	BackendMMAL = "mmal"
	BackendSim  = "sim"
)

// MaxBitRate is the ceiling of the VideoCore H.264 encoder at level 4.
const MaxBitRate = 25000000

type Config struct {
	Backend  string         `mapstructure:"backend" yaml:"backend"`
	Video    VideoConfig    `mapstructure:"video" yaml:"video"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`

	// Profile is the name of the profile merged into this config, if any.
	Profile string `mapstructure:"-" yaml:"-"`
}

type VideoConfig struct {
	Width      uint32 `mapstructure:"width" yaml:"width"`
	Height     uint32 `mapstructure:"height" yaml:"height"`
	BitRate    uint32 `mapstructure:"bit_rate" yaml:"bit_rate"`
	FrameRate  int32  `mapstructure:"frame_rate" yaml:"frame_rate"`
	MaxSeconds uint64 `mapstructure:"max_seconds" yaml:"max_seconds"` // 0 records until the encoder ends the stream
}

type OutputConfig struct {
	FilePath  string `mapstructure:"file_path" yaml:"file_path"` // empty: <unix-seconds>.h264
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type PipelineConfig struct {
	// SendTimeout bounds how long the encoder callback may wait on a full
	// record channel before the session is failed.
	SendTimeout time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"` // empty disables the endpoint
}

// Profile holds overrides applied on top of the base configuration.
type Profile struct {
	Backend  string         `mapstructure:"backend" yaml:"backend,omitempty"`
	Video    VideoConfig    `mapstructure:"video" yaml:"video,omitempty"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output,omitempty"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline,omitempty"`
}

// RootConfig is the layout of the configuration file.
type RootConfig struct {
	ActiveProfile string              `mapstructure:"active_profile" yaml:"active_profile,omitempty"`
	Config        `mapstructure:",squash" yaml:",inline"`
	Profiles      map[string]*Profile `mapstructure:"profiles" yaml:"profiles,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: BackendAuto,
		Video: VideoConfig{
			Width:      1920,
			Height:     1080,
			BitRate:    17000000,
			FrameRate:  30,
			MaxSeconds: 5,
		},
		Pipeline: PipelineConfig{
			SendTimeout: 500 * time.Millisecond,
		},
	}
}

// DefaultPath is where the configuration file is looked up when no path is
// given.
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/vidcapture.yaml")
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("video.width", d.Video.Width)
	v.SetDefault("video.height", d.Video.Height)
	v.SetDefault("video.bit_rate", d.Video.BitRate)
	v.SetDefault("video.frame_rate", d.Video.FrameRate)
	v.SetDefault("video.max_seconds", d.Video.MaxSeconds)
	v.SetDefault("output.file_path", d.Output.FilePath)
	v.SetDefault("output.directory", d.Output.Directory)
	v.SetDefault("pipeline.send_timeout", d.Pipeline.SendTimeout)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
}

// LoadWithProfile reads configFile, applies VIDCAPTURE_* environment
// overrides and merges the selected profile over the base settings. An empty
// profile selects active_profile from the file. A missing file is only an
// error when required is true.
func LoadWithProfile(configFile, profile string, required bool) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("VIDCAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if required || !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	var root RootConfig
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg := root.Config
	name := profile
	if name == "" {
		name = root.ActiveProfile
	}
	if name != "" {
		p, ok := root.Profiles[name]
		if !ok {
			return nil, fmt.Errorf("configuration profile '%s' not found", name)
		}
		cfg = mergeProfile(cfg, p)
		cfg.Profile = name
	}

	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	cfg.Output.FilePath = expandPath(cfg.Output.FilePath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// mergeProfile overlays the non-zero fields of p on base.
func mergeProfile(base Config, p *Profile) Config {
	result := base
	if p == nil {
		return result
	}
	if p.Backend != "" {
		result.Backend = p.Backend
	}
	if p.Video.Width != 0 {
		result.Video.Width = p.Video.Width
	}
	if p.Video.Height != 0 {
		result.Video.Height = p.Video.Height
	}
	if p.Video.BitRate != 0 {
		result.Video.BitRate = p.Video.BitRate
	}
	if p.Video.FrameRate != 0 {
		result.Video.FrameRate = p.Video.FrameRate
	}
	if p.Video.MaxSeconds != 0 {
		result.Video.MaxSeconds = p.Video.MaxSeconds
	}
	if p.Output.FilePath != "" {
		result.Output.FilePath = p.Output.FilePath
	}
	if p.Output.Directory != "" {
		result.Output.Directory = p.Output.Directory
	}
	if p.Pipeline.SendTimeout != 0 {
		result.Pipeline.SendTimeout = p.Pipeline.SendTimeout
	}
	return result
}

// Validate checks the values the hardware pipeline depends on.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendMMAL, BackendSim:
	default:
		return fmt.Errorf("backend must be '%s', '%s' or '%s', got: %s", BackendAuto, BackendMMAL, BackendSim, c.Backend)
	}
	if c.Video.Width == 0 || c.Video.Height == 0 {
		return fmt.Errorf("video size must be non-zero, got %dx%d", c.Video.Width, c.Video.Height)
	}
	if c.Video.Width%2 != 0 || c.Video.Height%2 != 0 {
		return fmt.Errorf("video size must be even for I420, got %dx%d", c.Video.Width, c.Video.Height)
	}
	if c.Video.FrameRate <= 0 || c.Video.FrameRate > 120 {
		return fmt.Errorf("video frame_rate must be in 1..120, got %d", c.Video.FrameRate)
	}
	if c.Video.BitRate == 0 || c.Video.BitRate > MaxBitRate {
		return fmt.Errorf("video bit_rate must be in 1..%d, got %d", MaxBitRate, c.Video.BitRate)
	}
	if c.Pipeline.SendTimeout <= 0 {
		return fmt.Errorf("pipeline send_timeout must be > 0, got %s", c.Pipeline.SendTimeout)
	}
	return nil
}

// OutputPath resolves the file a session records to. Without an explicit
// file path the name is derived from now.
func (c *Config) OutputPath(now time.Time) string {
	name := c.Output.FilePath
	if name == "" {
		name = fmt.Sprintf("%d.h264", now.Unix())
	}
	if c.Output.Directory == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Output.Directory, name)
}

// MaxDuration is the recording cap, or 0 when none is set.
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.Video.MaxSeconds) * time.Second
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
