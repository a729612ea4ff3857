package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/inertial_intervals/internal/interval"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker            string
	MQTTClientIDProducer  string
	MQTTClientIDGPS       string
	MQTTClientIDConsole   string
	MQTTClientIDIntervals string

	// Topics
	TopicIMULeft         string
	TopicIMURight        string
	TopicGPS             string
	TopicIntervalsPrefix string // events on <prefix>/events, measurements on <prefix>/measurements/<channel>

	// IMU Hardware
	IMULeftSPIDevice  string
	IMULeftCSPin      string
	IMURightSPIDevice string
	IMURightCSPin     string

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	// IMU whose samples feed the interval generator: "left" or "right"
	IntervalsIMU string

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// Timing
	IMUSampleInterval  int // milliseconds
	ConsoleLogInterval int // milliseconds

	// Detector
	TimeIntervalMs                  float64
	WindowSize                      int
	InitialStaticSamples            int
	MinStaticSamples                int
	MaxDynamicSamples               int
	ThresholdFactor                 float64
	InstantaneousNoiseLevelFactor   float64
	BaseNoiseLevelAbsoluteThreshold float64
	ChannelPolicy                   string // "stop_on_first_failure" or "process_all"

	// Retry after an initialization failure
	ThresholdRetryFactor float64 // threshold factor multiplier per retry
	ThresholdMaxRetries  int

	// Output
	StorePath    string // sqlite database, empty disables persistence
	ExportPath   string // directory for run exports, empty disables export
	ExportFormat string // "json" or "yaml"

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CAddr        uint16 // 0 disables the display
	DisplayUpdateInterval int    // milliseconds

	// Logging: "debug", "info", "warn" or "error"
	LogLevel string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through Get, written by InitGlobal and SetGlobal.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protecting globalConfig.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a configuration with every optional value set.
func Default() *Config {
	d := interval.DefaultConfig()
	return &Config{
		MQTTClientIDProducer:  "inertial-imu-producer",
		MQTTClientIDGPS:       "inertial-gps-producer",
		MQTTClientIDConsole:   "inertial-console",
		MQTTClientIDIntervals: "inertial-intervals",

		TopicIMULeft:         "inertial/imu/left",
		TopicIMURight:        "inertial/imu/right",
		TopicGPS:             "inertial/gps",
		TopicIntervalsPrefix: "inertial/intervals",

		IntervalsIMU: "left",
		GPSBaudRate:  9600,

		IMUSampleInterval:  20,
		ConsoleLogInterval: 1000,

		TimeIntervalMs:                  d.TimeInterval * 1000,
		WindowSize:                      d.WindowSize,
		InitialStaticSamples:            d.InitialStaticSamples,
		MinStaticSamples:                d.MinStaticSamples,
		MaxDynamicSamples:               d.MaxDynamicSamples,
		ThresholdFactor:                 d.ThresholdFactor,
		InstantaneousNoiseLevelFactor:   d.InstantaneousNoiseLevelFactor,
		BaseNoiseLevelAbsoluteThreshold: 0.5,
		ChannelPolicy:                   "stop_on_first_failure",

		ThresholdRetryFactor: 1.5,
		ThresholdMaxRetries:  3,

		ExportFormat: "json",

		WebServerPort:         8080,
		DisplayUpdateInterval: 500,
		LogLevel:              "info",
	}
}

// Load reads the configuration file and returns a Config struct.
// Files ending in .toml, .yaml or .yml hold the same keys in lower case;
// any other file uses the KEY=VALUE format.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg *Config
	switch filepath.Ext(configPath) {
	case ".toml":
		cfg, err = parseTOML(data)
	case ".yaml", ".yml":
		cfg, err = parseYAML(data)
	default:
		cfg, err = Parse(data)
	}
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads KEY=VALUE lines on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return cfg, nil
}

func parseTOML(data []byte) (*Config, error) {
	var values map[string]any
	if _, err := toml.Decode(string(data), &values); err != nil {
		return nil, fmt.Errorf("decode TOML: %w", err)
	}
	return fromMap(values)
}

func parseYAML(data []byte) (*Config, error) {
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode YAML: %w", err)
	}
	return fromMap(values)
}

// fromMap applies a flat table of lower case keys.
func fromMap(values map[string]any) (*Config, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cfg := Default()
	for _, k := range keys {
		var value string
		switch v := values[k].(type) {
		case string:
			value = v
		case int, int64, float64, bool:
			value = fmt.Sprint(v)
		default:
			return nil, fmt.Errorf("config key %q: unsupported value of type %T", k, v)
		}
		if err := cfg.setValue(strings.ToUpper(k), value); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func parseInt(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

func parsePositiveFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %g", key, v)
	}
	return v, nil
}

const maxInt = int(^uint(0) >> 1)

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_INTERVALS":
		c.MQTTClientIDIntervals = value

	// Topics
	case "TOPIC_IMU_LEFT":
		c.TopicIMULeft = value
	case "TOPIC_IMU_RIGHT":
		c.TopicIMURight = value
	case "TOPIC_GPS":
		c.TopicGPS = value
	case "TOPIC_INTERVALS_PREFIX":
		c.TopicIntervalsPrefix = strings.TrimSuffix(value, "/")

	// IMU Hardware
	case "IMU_LEFT_SPI_DEVICE":
		c.IMULeftSPIDevice = value
	case "IMU_LEFT_CS_PIN":
		c.IMULeftCSPin = value
	case "IMU_RIGHT_SPI_DEVICE":
		c.IMURightSPIDevice = value
	case "IMU_RIGHT_CS_PIN":
		c.IMURightCSPin = value

	// IMU Sensor Ranges
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)
	case "INTERVALS_IMU":
		if value != "left" && value != "right" {
			return fmt.Errorf("INTERVALS_IMU must be left or right, got %q", value)
		}
		c.IntervalsIMU = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = parseInt(key, value, 1, maxInt)

	// Timing
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = parseInt(key, value, 1, maxInt)
	case "CONSOLE_LOG_INTERVAL":
		c.ConsoleLogInterval, err = parseInt(key, value, 1, maxInt)

	// Detector
	case "TIME_INTERVAL_MS":
		c.TimeIntervalMs, err = parsePositiveFloat(key, value)
	case "WINDOW_SIZE":
		c.WindowSize, err = parseInt(key, value, interval.MinWindowSize, maxInt)
		if err == nil && c.WindowSize%2 == 0 {
			err = fmt.Errorf("WINDOW_SIZE must be odd, got %d", c.WindowSize)
		}
	case "INITIAL_STATIC_SAMPLES":
		c.InitialStaticSamples, err = parseInt(key, value, interval.MinInitialStaticSamples, maxInt)
	case "MIN_STATIC_SAMPLES":
		c.MinStaticSamples, err = parseInt(key, value, interval.MinMinStaticSamples, maxInt)
	case "MAX_DYNAMIC_SAMPLES":
		c.MaxDynamicSamples, err = parseInt(key, value, interval.MinMaxDynamicSamples, maxInt)
	case "THRESHOLD_FACTOR":
		c.ThresholdFactor, err = parsePositiveFloat(key, value)
	case "INSTANTANEOUS_NOISE_LEVEL_FACTOR":
		c.InstantaneousNoiseLevelFactor, err = parsePositiveFloat(key, value)
	case "BASE_NOISE_LEVEL_ABSOLUTE_THRESHOLD":
		c.BaseNoiseLevelAbsoluteThreshold, err = parsePositiveFloat(key, value)
	case "CHANNEL_POLICY":
		c.ChannelPolicy = value
	case "THRESHOLD_RETRY_FACTOR":
		c.ThresholdRetryFactor, err = parsePositiveFloat(key, value)
	case "THRESHOLD_MAX_RETRIES":
		c.ThresholdMaxRetries, err = parseInt(key, value, 0, 100)

	// Output
	case "STORE_PATH":
		c.StorePath = value
	case "EXPORT_PATH":
		c.ExportPath = value
	case "EXPORT_FORMAT":
		if value != "json" && value != "yaml" {
			return fmt.Errorf("EXPORT_FORMAT must be json or yaml, got %q", value)
		}
		c.ExportFormat = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 0, 65535)

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value, 1, maxInt)

	case "LOG_LEVEL":
		switch value {
		case "debug", "info", "warn", "error":
			c.LogLevel = value
		default:
			return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", value)
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that all required fields are set and that the detector
// parameters are consistent.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if err := c.Detector().Validate(); err != nil {
		return err
	}
	if c.ThresholdRetryFactor <= 1 && c.ThresholdMaxRetries > 0 {
		return fmt.Errorf("THRESHOLD_RETRY_FACTOR must be greater than 1 when retries are enabled, got %g", c.ThresholdRetryFactor)
	}
	return nil
}

// Detector returns the detector parameters.
func (c *Config) Detector() interval.Config {
	return interval.Config{
		TimeInterval:                    c.TimeIntervalMs / 1000,
		MinStaticSamples:                c.MinStaticSamples,
		MaxDynamicSamples:               c.MaxDynamicSamples,
		WindowSize:                      c.WindowSize,
		InitialStaticSamples:            c.InitialStaticSamples,
		ThresholdFactor:                 c.ThresholdFactor,
		InstantaneousNoiseLevelFactor:   c.InstantaneousNoiseLevelFactor,
		BaseNoiseLevelAbsoluteThreshold: c.BaseNoiseLevelAbsoluteThreshold,
	}
}

// IMUSampleDuration returns IMU_SAMPLE_INTERVAL as a duration.
func (c *Config) IMUSampleDuration() time.Duration {
	return time.Duration(c.IMUSampleInterval) * time.Millisecond
}

// IntervalsTopic returns the IMU topic feeding the interval generator.
func (c *Config) IntervalsTopic() string {
	if c.IntervalsIMU == "right" {
		return c.TopicIMURight
	}
	return c.TopicIMULeft
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// SetGlobal replaces the global configuration, e.g. after a reload.
func SetGlobal(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	globalConfig = cfg
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
