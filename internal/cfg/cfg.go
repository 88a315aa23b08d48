package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"fraud-detector/internal/common"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ModelPath       string
	FeatureCount    int // 0 means take the width declared by the artifact
	ListenHost      string
	Port            int
	PredictTimeout  time.Duration
	PythonPath      string
	InferenceScript string
	MaxBodyBytes    int64
	DeskPort        int
	ScoringURL      string
	RESTTimeout     time.Duration
	DataPath        string
	DeskRateLimit   float64 // check requests per second across all clients, 0 disables
	LogLevel        string
	LogFormat       string
}

type ConfigFile struct {
	Model struct {
		Path            string `yaml:"path"`
		FeatureCount    int    `yaml:"featureCount"`
		PythonPath      string `yaml:"pythonPath"`
		InferenceScript string `yaml:"inferenceScript"`
		PredictTimeout  string `yaml:"predictTimeout"`
	} `yaml:"model"`

	Server struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		MaxBodyBytes int64  `yaml:"maxBodyBytes"`
	} `yaml:"server"`

	Desk struct {
		Port        int     `yaml:"port"`
		ScoringURL  string  `yaml:"scoringURL"`
		RESTTimeout string  `yaml:"restTimeout"`
		DataPath    string  `yaml:"dataPath"`
		RateLimit   float64 `yaml:"rateLimit"`
	} `yaml:"desk"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads an optional .env file, then the YAML file named by CONFIG_FILE,
// and finally applies environment overrides.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	predictTimeout, err := time.ParseDuration(config.Model.PredictTimeout)
	if err != nil {
		predictTimeout = common.DefaultPredictSeconds * time.Second
	}

	restTimeout, err := time.ParseDuration(config.Desk.RESTTimeout)
	if err != nil {
		restTimeout = common.DefaultRESTSeconds * time.Second
	}

	settings := Settings{
		ModelPath:       getEnvOrDefault(common.EnvModelPath, orString(config.Model.Path, common.DefaultModelPath)),
		FeatureCount:    getIntFromEnvOrConfig(common.EnvFeatureCount, config.Model.FeatureCount),
		ListenHost:      getEnvOrDefault(common.EnvListenHost, orString(config.Server.Host, common.DefaultListenHost)),
		Port:            getIntFromEnvOrConfig(common.EnvPort, orInt(config.Server.Port, common.DefaultPort)),
		PredictTimeout:  getDurationOrDefault(common.EnvPredictTimeout, predictTimeout),
		PythonPath:      getEnvOrDefault(common.EnvPythonPath, config.Model.PythonPath),
		InferenceScript: getEnvOrDefault(common.EnvInferScript, config.Model.InferenceScript),
		MaxBodyBytes:    getInt64FromEnvOrConfig(common.EnvMaxBodyBytes, orInt64(config.Server.MaxBodyBytes, common.DefaultMaxBodyBytes)),
		DeskPort:        getIntFromEnvOrConfig(common.EnvDeskPort, orInt(config.Desk.Port, common.DefaultDeskPort)),
		ScoringURL:      getEnvOrDefault(common.EnvScoringURL, orString(config.Desk.ScoringURL, common.DefaultScoringURL)),
		RESTTimeout:     getDurationOrDefault(common.EnvRESTTimeout, restTimeout),
		DataPath:        getEnvOrDefault(common.EnvDataPath, orString(config.Desk.DataPath, common.DefaultDataPath)),
		DeskRateLimit:   getFloatOrDefault(common.EnvDeskRateLimit, config.Desk.RateLimit),
		LogLevel:        getEnvOrDefault(common.EnvLogLevel, orString(config.Log.Level, common.DefaultLogLevel)),
		LogFormat:       getEnvOrDefault(common.EnvLogFormat, orString(config.Log.Format, common.DefaultLogFormat)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ModelPath:       getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		FeatureCount:    getIntOrDefault(common.EnvFeatureCount, 0),
		ListenHost:      getEnvOrDefault(common.EnvListenHost, common.DefaultListenHost),
		Port:            getIntOrDefault(common.EnvPort, common.DefaultPort),
		PredictTimeout:  getDurationOrDefault(common.EnvPredictTimeout, common.DefaultPredictSeconds*time.Second),
		PythonPath:      os.Getenv(common.EnvPythonPath), // optional, discovered when empty
		InferenceScript: os.Getenv(common.EnvInferScript),
		MaxBodyBytes:    int64(getIntOrDefault(common.EnvMaxBodyBytes, common.DefaultMaxBodyBytes)),
		DeskPort:        getIntOrDefault(common.EnvDeskPort, common.DefaultDeskPort),
		ScoringURL:      getEnvOrDefault(common.EnvScoringURL, common.DefaultScoringURL),
		RESTTimeout:     getDurationOrDefault(common.EnvRESTTimeout, common.DefaultRESTSeconds*time.Second),
		DataPath:        getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		DeskRateLimit:   getFloatOrDefault(common.EnvDeskRateLimit, 0),
		LogLevel:        getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:       getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// ListenAddr is the host:port the inference server binds to.
func (s *Settings) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.ListenHost, s.Port)
}

// DeskAddr is the host:port the transaction desk binds to.
func (s *Settings) DeskAddr() string {
	return fmt.Sprintf("%s:%d", s.ListenHost, s.DeskPort)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	return configValue
}

func getInt64FromEnvOrConfig(key string, configValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	return configValue
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orInt64(v, def int64) int64 {
	if v != 0 {
		return v
	}
	return def
}

// validateSettings performs range checks on every configuration value
func validateSettings(settings *Settings) error {
	if strings.TrimSpace(settings.ModelPath) == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	if settings.FeatureCount < 0 || settings.FeatureCount > common.MaxFeatureCount {
		return fmt.Errorf("feature count must be between 0 and %d, got %d", common.MaxFeatureCount, settings.FeatureCount)
	}

	if settings.Port < common.MinPort || settings.Port > common.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.Port)
	}
	if settings.DeskPort < common.MinPort || settings.DeskPort > common.MaxPort {
		return fmt.Errorf("desk port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.DeskPort)
	}

	if settings.PredictTimeout < 100*time.Millisecond || settings.PredictTimeout > 5*time.Minute {
		return fmt.Errorf("predict timeout must be between 100ms and 5m, got %v", settings.PredictTimeout)
	}
	if settings.RESTTimeout < 100*time.Millisecond || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 100ms and 1m, got %v", settings.RESTTimeout)
	}

	if settings.MaxBodyBytes < common.MinMaxBodyBytes || settings.MaxBodyBytes > common.MaxMaxBodyBytes {
		return fmt.Errorf("max body bytes must be between %d and %d, got %d", common.MinMaxBodyBytes, common.MaxMaxBodyBytes, settings.MaxBodyBytes)
	}

	if settings.DeskRateLimit < 0 || settings.DeskRateLimit > common.MaxDeskRateLimit {
		return fmt.Errorf("desk rate limit must be between 0 and %d, got %v", common.MaxDeskRateLimit, settings.DeskRateLimit)
	}

	u, err := url.Parse(settings.ScoringURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("scoring URL must be an absolute URL, got %q", settings.ScoringURL)
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}
	if settings.LogFormat != "json" && settings.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console, got %q", settings.LogFormat)
	}

	return nil
}
