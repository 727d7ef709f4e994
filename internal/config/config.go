// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/relabs-tech/attitude_fusion/internal/ahrs"
)

// Filter algorithms accepted by FILTER_ALGORITHM.
const (
	AlgorithmMadgwick = "madgwick"
	AlgorithmMahony   = "mahony"
)

// Magnetic reference modes accepted by FILTER_MAG_REFERENCE.
const (
	MagReferenceTracking = "tracking"
	MagReferenceLatched  = "latched"
	MagReferenceFixed    = "fixed"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDFusion  string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTClientIDMock    string

	// Topics
	TopicIMULeft   string
	TopicIMURight  string
	TopicPoseLeft  string
	TopicPoseRight string
	TopicPoseFused string

	// IMU scaling of raw counts
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte
	// Magnetometer counts per µT
	IMUMagScale float64

	// Filter
	FilterAlgorithm    string
	FilterSamplePeriod float64 // seconds
	FilterBeta         float64
	FilterKp           float64
	FilterKi           float64
	FilterUseMag       bool
	FilterMagReference string
	// Earth-frame field (bx, 0, bz) for the fixed reference; any unit
	FilterMagBX float64
	FilterMagBZ float64

	// Service
	WebServerPort      int
	ConsoleLogInterval int // milliseconds
	MockSampleInterval int // milliseconds
	FusionQueueSize    int
}

// Package-level singleton, set once by InitGlobal and read through Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		MQTTBroker:          "tcp://localhost:1883",
		MQTTClientIDFusion:  "inertial-fusion",
		MQTTClientIDConsole: "inertial-console-subscriber",
		MQTTClientIDWeb:     "inertial-web-subscriber",
		MQTTClientIDMock:    "inertial-producer-mock",

		TopicIMULeft:   "inertial/imu/left",
		TopicIMURight:  "inertial/imu/right",
		TopicPoseLeft:  "inertial/pose/left",
		TopicPoseRight: "inertial/pose/right",
		TopicPoseFused: "inertial/pose/fused",

		IMUMagScale: 10,

		FilterAlgorithm:    AlgorithmMadgwick,
		FilterSamplePeriod: ahrs.DefaultSamplePeriod,
		FilterBeta:         ahrs.DefaultBeta,
		FilterKp:           ahrs.DefaultKp,
		FilterKi:           ahrs.DefaultKi,
		FilterUseMag:       true,
		FilterMagReference: MagReferenceTracking,

		WebServerPort:      8080,
		ConsoleLogInterval: 500,
		MockSampleInterval: 4,
		FusionQueueSize:    64,
	}
}

// Load reads the configuration file on top of Default and validates it.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
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

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_FUSION":
		c.MQTTClientIDFusion = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_MOCK":
		c.MQTTClientIDMock = value

	// Topics
	case "TOPIC_IMU_LEFT":
		c.TopicIMULeft = value
	case "TOPIC_IMU_RIGHT":
		c.TopicIMURight = value
	case "TOPIC_POSE_LEFT":
		c.TopicPoseLeft = value
	case "TOPIC_POSE_RIGHT":
		c.TopicPoseRight = value
	case "TOPIC_POSE_FUSED":
		c.TopicPoseFused = value

	// IMU scaling
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
	case "IMU_MAG_SCALE":
		scale, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid IMU_MAG_SCALE %q: %w", value, err)
		}
		c.IMUMagScale = scale

	// Filter
	case "FILTER_ALGORITHM":
		algo := strings.ToLower(value)
		if algo != AlgorithmMadgwick && algo != AlgorithmMahony {
			return fmt.Errorf("FILTER_ALGORITHM must be %q or %q, got %q", AlgorithmMadgwick, AlgorithmMahony, value)
		}
		c.FilterAlgorithm = algo
	case "FILTER_SAMPLE_PERIOD":
		period, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid FILTER_SAMPLE_PERIOD %q: %w", value, err)
		}
		c.FilterSamplePeriod = period
	case "FILTER_BETA":
		beta, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid FILTER_BETA %q: %w", value, err)
		}
		c.FilterBeta = beta
	case "FILTER_KP":
		kp, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid FILTER_KP %q: %w", value, err)
		}
		c.FilterKp = kp
	case "FILTER_KI":
		ki, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid FILTER_KI %q: %w", value, err)
		}
		c.FilterKi = ki
	case "FILTER_USE_MAG":
		useMag, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid FILTER_USE_MAG %q: %w", value, err)
		}
		c.FilterUseMag = useMag
	case "FILTER_MAG_REFERENCE":
		ref := strings.ToLower(value)
		if ref != MagReferenceTracking && ref != MagReferenceLatched && ref != MagReferenceFixed {
			return fmt.Errorf("FILTER_MAG_REFERENCE must be %q, %q or %q, got %q",
				MagReferenceTracking, MagReferenceLatched, MagReferenceFixed, value)
		}
		c.FilterMagReference = ref
	case "FILTER_MAG_BX":
		bx, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid FILTER_MAG_BX %q: %w", value, err)
		}
		c.FilterMagBX = bx
	case "FILTER_MAG_BZ":
		bz, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid FILTER_MAG_BZ %q: %w", value, err)
		}
		c.FilterMagBZ = bz

	// Service
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port
	case "CONSOLE_LOG_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONSOLE_LOG_INTERVAL %q: %w", value, err)
		}
		c.ConsoleLogInterval = interval
	case "MOCK_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MOCK_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.MockSampleInterval = interval
	case "FUSION_QUEUE_SIZE":
		size, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid FUSION_QUEUE_SIZE %q: %w", value, err)
		}
		c.FusionQueueSize = size

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks required fields and value ranges.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicIMULeft == "" && c.TopicIMURight == "" {
		return fmt.Errorf("at least one of TOPIC_IMU_LEFT, TOPIC_IMU_RIGHT is required")
	}
	if c.TopicPoseFused == "" {
		return fmt.Errorf("TOPIC_POSE_FUSED is required")
	}
	if !(c.FilterSamplePeriod > 0) {
		return fmt.Errorf("FILTER_SAMPLE_PERIOD must be > 0, got %v", c.FilterSamplePeriod)
	}
	if !(c.FilterBeta >= 0) {
		return fmt.Errorf("FILTER_BETA must be >= 0, got %v", c.FilterBeta)
	}
	if !(c.FilterKp >= 0) || !(c.FilterKi >= 0) {
		return fmt.Errorf("FILTER_KP and FILTER_KI must be >= 0, got %v and %v", c.FilterKp, c.FilterKi)
	}
	if c.FilterMagReference == MagReferenceFixed {
		bx, bz := c.FilterMagBX, c.FilterMagBZ
		if math.IsNaN(bx) || math.IsInf(bx, 0) || math.IsNaN(bz) || math.IsInf(bz, 0) || (bx == 0 && bz == 0) {
			return fmt.Errorf("FILTER_MAG_REFERENCE=fixed needs finite, non-zero FILTER_MAG_BX/FILTER_MAG_BZ, got %v, %v", bx, bz)
		}
	}
	if !(c.IMUMagScale > 0) {
		return fmt.Errorf("IMU_MAG_SCALE must be > 0, got %v", c.IMUMagScale)
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", c.WebServerPort)
	}
	if c.ConsoleLogInterval <= 0 {
		return fmt.Errorf("CONSOLE_LOG_INTERVAL must be > 0, got %d", c.ConsoleLogInterval)
	}
	if c.MockSampleInterval <= 0 {
		return fmt.Errorf("MOCK_SAMPLE_INTERVAL must be > 0, got %d", c.MockSampleInterval)
	}
	if c.FusionQueueSize <= 0 {
		return fmt.Errorf("FUSION_QUEUE_SIZE must be > 0, got %d", c.FusionQueueSize)
	}
	return nil
}

// InitGlobal loads the configuration file into the process-wide instance.
// Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, or nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
