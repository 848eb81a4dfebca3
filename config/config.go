// Package config loads service configuration from environment variables with
// sensible defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr string

	DetectorModelPath   string
	ClassifierModelPath string
	OrtLibPath          string
	NumClasses          int
	PoolSize            int

	ConfThreshold float64
	IoUThreshold  float64
	InferTimeout  time.Duration

	// MinBoxSide/MinBoxArea enable post-NMS size filtering when > 0.
	MinBoxSide float64
	MinBoxArea float64

	// RemoteDetectURL switches the single-shot path to the remote runtime
	// when no local models are configured.
	RemoteDetectURL string

	HistoryPath string
	Debug       bool
}

func Load() *Config {
	return &Config{
		Addr:                getEnv("ADDR", "127.0.0.1:8080"),
		DetectorModelPath:   getEnv("DETECTOR_MODEL_PATH", "./models/cacao_segmentation_best.onnx"),
		ClassifierModelPath: getEnv("CLASSIFIER_MODEL_PATH", "./models/yield_ranking.onnx"),
		OrtLibPath:          getEnv("ORT_LIB_PATH", ""),
		NumClasses:          getEnvInt("NUM_CLASSES", 1),
		PoolSize:            getEnvInt("POOL_SIZE", 4),
		ConfThreshold:       getEnvFloat("CONF_THRESHOLD", 0.25),
		IoUThreshold:        getEnvFloat("IOU_THRESHOLD", 0.45),
		InferTimeout:        getEnvDuration("INFER_TIMEOUT", 30*time.Second),
		MinBoxSide:          getEnvFloat("MIN_BOX_SIDE", 0),
		MinBoxArea:          getEnvFloat("MIN_BOX_AREA", 0),
		RemoteDetectURL:     getEnv("REMOTE_DETECT_URL", ""),
		HistoryPath:         getEnv("HISTORY_PATH", ""),
		Debug:               os.Getenv("DEBUG") == "true",
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
