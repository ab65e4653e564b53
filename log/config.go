package log

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the content of the file passed via --log-config
//
// example:
//
//	level: info
//	format: json
//	filter: "info+:* *:openf1 *:poller"
type FileConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Filter string `yaml:"filter"`
}

func LoadConfig(file string) (*FileConfig, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*FileConfig, error) {
	cfg := &FileConfig{Level: "info", Format: "json", Filter: "*:*"}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid log config: %w", err)
	}
	return cfg, nil
}

func (c *FileConfig) NewLogger(writer io.Writer, opts ...Option) (*Logger, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	filter := c.Filter
	if filter == "" {
		filter = "*:*"
	}
	return NewWithFilter(writer, c.Format, level, filter, opts...)
}
