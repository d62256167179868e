package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string `yaml:"id"`
	Role              string `yaml:"role"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type CaptureConfig struct {
	Mode    string `yaml:"mode"` // mock, exec, bus
	Command string `yaml:"command"`
}

type TranscribeConfig struct {
	Mode        string `yaml:"mode"` // mock, gemini
	Endpoint    string `yaml:"endpoint"`
	Model       string `yaml:"model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutMS   int    `yaml:"timeout_ms"`
	MaxExamples int    `yaml:"max_examples"`
}

type SpeechConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Mode          string  `yaml:"mode"` // mock, exec
	Command       string  `yaml:"command"`
	Language      string  `yaml:"language"`
	Locale        string  `yaml:"locale"`
	Rate          float64 `yaml:"rate"`
	DefaultGender string  `yaml:"default_gender"`
}

type TrainerConfig struct {
	Enabled      bool `yaml:"enabled"`
	SpeakResults bool `yaml:"speak_results"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Node        NodeConfig       `yaml:"node"`
	Store       StoreConfig      `yaml:"store"`
	Capture     CaptureConfig    `yaml:"capture"`
	Transcribe  TranscribeConfig `yaml:"transcribe"`
	Speech      SpeechConfig     `yaml:"speech"`
	Trainer     TrainerConfig    `yaml:"trainer"`
}

func Default() Config {
	return Config{
		RuntimeName: "stimm-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "stimm-node-1",
			Role:              "runtime",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		Store: StoreConfig{
			Path: "./data/stimm-store.db",
		},
		Capture: CaptureConfig{
			Mode: "bus",
		},
		Transcribe: TranscribeConfig{
			Mode:        "gemini",
			Endpoint:    "https://generativelanguage.googleapis.com",
			Model:       "gemini-2.5-flash",
			APIKeyEnv:   "GEMINI_API_KEY",
			TimeoutMS:   60000,
			MaxExamples: 5,
		},
		Speech: SpeechConfig{
			Enabled:       true,
			Mode:          "mock",
			Language:      "de",
			Locale:        "de-DE",
			Rate:          0.9,
			DefaultGender: "male",
		},
		Trainer: TrainerConfig{
			Enabled:      true,
			SpeakResults: true,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "STIMM_RUNTIME_NAME")
	overrideString(&cfg.Environment, "STIMM_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "STIMM_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "STIMM_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "STIMM_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "STIMM_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "STIMM_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "STIMM_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "STIMM_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "STIMM_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "STIMM_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "STIMM_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "STIMM_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "STIMM_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "STIMM_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "STIMM_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "STIMM_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "STIMM_NODE_ID")
	overrideString(&cfg.Node.Role, "STIMM_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "STIMM_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "STIMM_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "STIMM_STORE_PATH")
	overrideString(&cfg.Capture.Mode, "STIMM_CAPTURE_MODE")
	overrideString(&cfg.Capture.Command, "STIMM_CAPTURE_COMMAND")
	overrideString(&cfg.Transcribe.Mode, "STIMM_TRANSCRIBE_MODE")
	overrideString(&cfg.Transcribe.Endpoint, "STIMM_TRANSCRIBE_ENDPOINT")
	overrideString(&cfg.Transcribe.Model, "STIMM_TRANSCRIBE_MODEL")
	overrideString(&cfg.Transcribe.APIKeyEnv, "STIMM_TRANSCRIBE_API_KEY_ENV")
	overrideInt(&cfg.Transcribe.TimeoutMS, "STIMM_TRANSCRIBE_TIMEOUT_MS")
	overrideInt(&cfg.Transcribe.MaxExamples, "STIMM_TRANSCRIBE_MAX_EXAMPLES")
	overrideBool(&cfg.Speech.Enabled, "STIMM_SPEECH_ENABLED")
	overrideString(&cfg.Speech.Mode, "STIMM_SPEECH_MODE")
	overrideString(&cfg.Speech.Command, "STIMM_SPEECH_COMMAND")
	overrideString(&cfg.Speech.Language, "STIMM_SPEECH_LANGUAGE")
	overrideString(&cfg.Speech.Locale, "STIMM_SPEECH_LOCALE")
	overrideFloat(&cfg.Speech.Rate, "STIMM_SPEECH_RATE")
	overrideString(&cfg.Speech.DefaultGender, "STIMM_SPEECH_DEFAULT_GENDER")
	overrideBool(&cfg.Trainer.Enabled, "STIMM_TRAINER_ENABLED")
	overrideBool(&cfg.Trainer.SpeakResults, "STIMM_TRAINER_SPEAK_RESULTS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Capture.Mode {
	case "mock", "exec", "bus":
	default:
		return errors.New("capture.mode must be one of mock|exec|bus")
	}
	if cfg.Capture.Mode == "exec" && cfg.Capture.Command == "" {
		return errors.New("capture.command must be set when mode=exec")
	}
	switch cfg.Transcribe.Mode {
	case "mock", "gemini":
	default:
		return errors.New("transcribe.mode must be one of mock|gemini")
	}
	if cfg.Transcribe.Mode == "gemini" {
		if cfg.Transcribe.Endpoint == "" {
			return errors.New("transcribe.endpoint must be set when mode=gemini")
		}
		if cfg.Transcribe.Model == "" {
			return errors.New("transcribe.model must be set when mode=gemini")
		}
	}
	if cfg.Transcribe.MaxExamples < 0 {
		return errors.New("transcribe.max_examples must be >= 0")
	}
	if cfg.Transcribe.TimeoutMS <= 0 {
		return errors.New("transcribe.timeout_ms must be positive")
	}
	if cfg.Speech.Enabled {
		switch cfg.Speech.Mode {
		case "mock", "exec":
		default:
			return errors.New("speech.mode must be one of mock|exec")
		}
		if cfg.Speech.Mode == "exec" && cfg.Speech.Command == "" {
			return errors.New("speech.command must be set when mode=exec")
		}
		if cfg.Speech.Rate <= 0 {
			return errors.New("speech.rate must be positive")
		}
		switch cfg.Speech.DefaultGender {
		case "male", "female":
		default:
			return errors.New("speech.default_gender must be one of male|female")
		}
	}
	return nil
}
