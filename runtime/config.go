package runtime

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/bfbridge/errors"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvResourcePath = "BFBRIDGE_CLASSPATH"
	EnvCachePath    = "BFBRIDGE_CACHEDIR"
)

// DefaultBufferSize is the communication buffer capacity used when neither
// Config.BufferSize nor WithBufferSize sets one. It fits a 2048×2048 tile of
// four 16-bit channels with room to spare.
const DefaultBufferSize = 34_000_000

// Config holds the settings needed to start the embedded runtime.
type Config struct {
	// ResourcePath locates the decoder: a Java classpath for the JNI
	// backend, a directory or .wasm file for the wasm backend.
	ResourcePath string `yaml:"resource_path"`
	// CachePath is optional. Empty disables caching.
	CachePath  string `yaml:"cache_path"`
	BufferSize int    `yaml:"buffer_size"`
}

// ConfigFromEnv reads BFBRIDGE_CLASSPATH and BFBRIDGE_CACHEDIR.
func ConfigFromEnv() Config {
	return Config{
		ResourcePath: os.Getenv(EnvResourcePath),
		CachePath:    os.Getenv(EnvCachePath),
	}
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "read "+path)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "parse config")
	}
	return cfg, nil
}

// Merge returns c with every non-zero field of o applied on top.
func (c Config) Merge(o Config) Config {
	if o.ResourcePath != "" {
		c.ResourcePath = o.ResourcePath
	}
	if o.CachePath != "" {
		c.CachePath = o.CachePath
	}
	if o.BufferSize != 0 {
		c.BufferSize = o.BufferSize
	}
	return c
}

// Validate checks required settings.
func (c Config) Validate() error {
	if c.ResourcePath == "" {
		return errors.MissingConfig(EnvResourcePath)
	}
	if c.BufferSize < 0 {
		return errors.New(errors.PhaseConfig, errors.KindConfiguration).
			Detail("buffer size must not be negative, got %d", c.BufferSize).
			Build()
	}
	return nil
}

func (c Config) bufferSize() int {
	if c.BufferSize > 0 {
		return c.BufferSize
	}
	return DefaultBufferSize
}
