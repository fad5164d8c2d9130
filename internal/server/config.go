package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/semiotic-ai/allocopt/internal/config"
	"github.com/semiotic-ai/allocopt/pkg/constants"
	"gopkg.in/yaml.v3"
)

// Config defines runtime parameters for the HTTP API.
type Config struct {
	Address       string               `yaml:"address"`
	MaxBodySize   string               `yaml:"maxBodySize"`
	Logging       config.LoggingConfig `yaml:"logging"`
	bodySizeBytes int64
}

// LoadConfig loads the server configuration from YAML. A missing file yields
// the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Address:       constants.DefaultServerAddress,
		MaxBodySize:   strconv.FormatInt(constants.DefaultMaxBodySizeBytes, 10),
		bodySizeBytes: constants.DefaultMaxBodySizeBytes,
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BodySizeBytes returns the request body limit in bytes.
func (c *Config) BodySizeBytes() int64 {
	return c.bodySizeBytes
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = constants.DefaultServerAddress
	}

	size, err := ParseSize(c.MaxBodySize)
	if err != nil {
		return err
	}
	if size <= 0 {
		size = constants.DefaultMaxBodySizeBytes
	}
	c.bodySizeBytes = size
	return nil
}

var sizeUnits = map[string]int64{
	"":   1,
	"B":  1,
	"K":  1 << 10,
	"KB": 1 << 10,
	"M":  1 << 20,
	"MB": 1 << 20,
}

// ParseSize converts a byte count with an optional unit ("512", "64K", "1MB")
// into bytes. An empty value selects the default body size.
func ParseSize(value string) (int64, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	if trimmed == "" {
		return constants.DefaultMaxBodySizeBytes, nil
	}

	split := strings.IndexFunc(trimmed, func(r rune) bool { return !unicode.IsDigit(r) })
	if split == -1 {
		split = len(trimmed)
	}
	if split == 0 {
		return 0, fmt.Errorf("invalid size: %s", value)
	}

	n, err := strconv.ParseInt(trimmed[:split], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", value, err)
	}

	unit := strings.TrimSpace(trimmed[split:])
	multiplier, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unsupported size unit %q", unit)
	}

	if n > (1<<63-1)/multiplier {
		return 0, fmt.Errorf("size overflow for value %s", value)
	}
	return n * multiplier, nil
}
