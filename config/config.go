package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	kiloByte = 1024
	megaByte = 1024 * kiloByte
)

// environment overrides, applied by LoadEnv
const (
	EnvServerHost      = "TABLEPROJ_SERVER_HOST"
	EnvServerPort      = "TABLEPROJ_SERVER_PORT"
	EnvLogLevel        = "TABLEPROJ_LOG_LEVEL"
	EnvLogFormat       = "TABLEPROJ_LOG_FORMAT"
	EnvMaxPivotColumns = "TABLEPROJ_MAX_PIVOT_COLUMNS"
)

type Config struct {
	Server  serverConfig  `yaml:"server"`
	Source  sourceConfig  `yaml:"source"`
	Engine  engineConfig  `yaml:"engine"`
	Logging loggingConfig `yaml:"logging"`
}
type serverConfig struct {
	Port             int    `yaml:"port"`
	Host             string `yaml:"host"`
	Timeout          int    `yaml:"timeout"`
	MaxRequestSizeMB uint64 `yaml:"max_request_size_mb"` // max size of a single grpc request
}
type sourceConfig struct {
	BatchSize     int      `yaml:"batch_size"` // rows per batch when draining a source
	CSVNullTokens []string `yaml:"csv_null_tokens"`
	XLSXSheet     string   `yaml:"xlsx_sheet"` // empty = first sheet
	MaxFileSizeMB int      `yaml:"max_file_size_mb"`
}
type engineConfig struct {
	// 0 disables the cap
	MaxPivotColumns int `yaml:"max_pivot_columns"`
	// rows printed by the cli, 0 prints everything
	MaxRows int `yaml:"max_rows"`
}
type loggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // logfmt, json
}

func defaultConfig() *Config {
	return &Config{
		Server: serverConfig{
			Port:             8000,
			Host:             "localhost",
			Timeout:          30,
			MaxRequestSizeMB: 15,
		},
		Source: sourceConfig{
			BatchSize:     1024 * 8,
			CSVNullTokens: []string{"", "NULL"},
			XLSXSheet:     "",
			MaxFileSizeMB: 500,
		},
		Engine: engineConfig{
			MaxPivotColumns: 0,
			MaxRows:         2000,
		},
		Logging: loggingConfig{
			Level:  "info",
			Format: "logfmt",
		},
	}
}

var configInstance *Config = defaultConfig()

func GetConfig() *Config {
	return configInstance
}

// Reset restores the defaults.
func Reset() {
	configInstance = defaultConfig()
}

func (s serverConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s serverConfig) MaxRequestBytes() int {
	return int(s.MaxRequestSizeMB) * megaByte
}

// overwrite global instance with loaded config
func Decode(filePath string) error {
	parts := strings.Split(filePath, ".")
	suffix := parts[len(parts)-1]
	if suffix != "yaml" && suffix != "yml" {
		return errors.New("file must be a .yaml or .yml file")
	}
	r, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer r.Close()
	config := make(map[string]interface{})
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(config); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	mergeConfig(configInstance, config)
	return nil
}

// LoadEnv reads a dotenv file (if path is non-empty) into the process
// environment and applies the TABLEPROJ_* overrides on top of the current
// config.
func LoadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return applyEnv(configInstance)
}

func applyEnv(dst *Config) error {
	if v, ok := os.LookupEnv(EnvServerHost); ok {
		dst.Server.Host = v
	}
	if v, ok := os.LookupEnv(EnvServerPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvServerPort, err)
		}
		dst.Server.Port = port
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		dst.Logging.Level = v
	}
	if v, ok := os.LookupEnv(EnvLogFormat); ok {
		dst.Logging.Format = v
	}
	if v, ok := os.LookupEnv(EnvMaxPivotColumns); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxPivotColumns, err)
		}
		dst.Engine.MaxPivotColumns = n
	}
	return nil
}

func mergeConfig(dst *Config, src map[string]interface{}) {
	// =============================
	// SERVER
	// =============================
	if server, ok := src["server"].(map[string]interface{}); ok {
		if v, ok := server["port"].(int); ok {
			dst.Server.Port = v
		}
		if v, ok := server["host"].(string); ok {
			dst.Server.Host = v
		}
		if v, ok := server["timeout"].(int); ok {
			dst.Server.Timeout = v
		}
		if v, ok := server["max_request_size_mb"].(int); ok {
			dst.Server.MaxRequestSizeMB = uint64(v)
		}
	}

	// =============================
	// SOURCE
	// =============================
	if source, ok := src["source"].(map[string]interface{}); ok {
		if v, ok := source["batch_size"].(int); ok {
			dst.Source.BatchSize = v
		}
		if v, ok := source["csv_null_tokens"].([]interface{}); ok {
			tokens := make([]string, 0, len(v))
			for _, t := range v {
				if s, ok := t.(string); ok {
					tokens = append(tokens, s)
				}
			}
			dst.Source.CSVNullTokens = tokens
		}
		if v, ok := source["xlsx_sheet"].(string); ok {
			dst.Source.XLSXSheet = v
		}
		if v, ok := source["max_file_size_mb"].(int); ok {
			dst.Source.MaxFileSizeMB = v
		}
	}

	// =============================
	// ENGINE
	// =============================
	if engine, ok := src["engine"].(map[string]interface{}); ok {
		if v, ok := engine["max_pivot_columns"].(int); ok {
			dst.Engine.MaxPivotColumns = v
		}
		if v, ok := engine["max_rows"].(int); ok {
			dst.Engine.MaxRows = v
		}
	}

	// =============================
	// LOGGING
	// =============================
	if logging, ok := src["logging"].(map[string]interface{}); ok {
		if v, ok := logging["level"].(string); ok {
			dst.Logging.Level = v
		}
		if v, ok := logging["format"].(string); ok {
			dst.Logging.Format = v
		}
	}
}
