// Package config reads the templatestore YAML configuration.
package config

import (
	"bytes"
	"io"
	"os"
	"strings"
	"templatestore/internal/utils"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

type Config struct {
	StorePath   string `yaml:"store_path"`
	Compression string `yaml:"compression"`
	FileLock    bool   `yaml:"file_lock"`
	AuditLog    string `yaml:"audit_log,omitempty"`
	LogLevel    string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		StorePath:   utils.DefaultStorePath,
		Compression: zstd.SpeedDefault.String(),
		LogLevel:    "WARNING",
	}
}

// Decode overlays yamlBytes on the defaults. Unknown keys are rejected.
func Decode(yamlBytes []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(yamlBytes))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Annotate(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the file at path. A missing file gives the defaults unless
// required is set.
func Load(path string, required bool) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return Default(), nil
		}
		return Config{}, errors.Annotatef(err, "read config %q", path)
	}
	cfg, err := Decode(b)
	if err != nil {
		return Config{}, errors.Annotatef(err, "config %q", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.StorePath) == "" {
		return errors.NotValidf("empty store_path")
	}
	if ok, _ := zstd.EncoderLevelFromString(c.Compression); !ok {
		return errors.NotValidf("compression %q", c.Compression)
	}
	if _, ok := loggo.ParseLevel(c.LogLevel); !ok {
		return errors.NotValidf("log_level %q", c.LogLevel)
	}
	return nil
}

// EncoderLevel assumes c has been validated.
func (c Config) EncoderLevel() zstd.EncoderLevel {
	_, level := zstd.EncoderLevelFromString(c.Compression)
	return level
}

// LoggingSpec is the loggo specification for the configured level.
func (c Config) LoggingSpec() string {
	return "<root>=" + strings.ToUpper(c.LogLevel)
}
