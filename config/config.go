// Package config holds the application configuration and its on-disk locations
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the application configuration
type Config struct {
	// Audio configuration
	AudioSampleRate int
	AudioBufferSize int
	AudioChannels   int

	// Model configuration
	ModelID  string // catalog identifier of the preferred model
	CacheDir string // overrides the default model cache directory when set

	// Engine configuration
	EnginePath string // path to the whisper executable (auto-detected when empty)
	Language   string // language code, empty for auto-detect
	Threads    int    // decoder thread count

	// UI configuration
	CopyToClipboard bool // copy the final transcript to the clipboard
	Debug           bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		AudioSampleRate: 16000, // 16kHz sample rate for whisper models
		AudioBufferSize: 1024,
		AudioChannels:   1, // Mono

		ModelID: "tiny",

		Language: "en",
		Threads:  4,

		CopyToClipboard: true,
		Debug:           false,
	}
}

// Current holds the active configuration
var Current = DefaultConfig()

// GetAppDir returns the path to the .murmur directory
func GetAppDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	appDir := filepath.Join(homeDir, ".murmur")

	// Create the directory if it doesn't exist
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create .murmur directory: %w", err)
	}

	return appDir, nil
}

// GetConfigFilePath returns the path to the config file
func GetConfigFilePath() (string, error) {
	appDir, err := GetAppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(appDir, "config.json"), nil
}

// GetModelCacheDir returns the path to the model cache directory
func GetModelCacheDir() (string, error) {
	if Current.CacheDir != "" {
		if err := os.MkdirAll(Current.CacheDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create model cache directory: %w", err)
		}
		return Current.CacheDir, nil
	}

	appDir, err := GetAppDir()
	if err != nil {
		return "", err
	}

	cacheDir := filepath.Join(appDir, "models")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model cache directory: %w", err)
	}

	return cacheDir, nil
}

// LoadConfig loads the configuration from the config file
func LoadConfig() error {
	configPath, err := GetConfigFilePath()
	if err != nil {
		return fmt.Errorf("failed to get config file path: %w", err)
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, use defaults
		Current = DefaultConfig()
		// Save the default config
		return SaveConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = json.Unmarshal(data, &config)
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	Current = &config

	// Backfill fields missing from older config files
	if Current.AudioSampleRate == 0 {
		Current.AudioSampleRate = 16000
	}
	if Current.Threads == 0 {
		Current.Threads = 4
	}

	return nil
}

// SaveConfig saves the configuration to the config file
func SaveConfig() error {
	configPath, err := GetConfigFilePath()
	if err != nil {
		return fmt.Errorf("failed to get config file path: %w", err)
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(Current, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = os.WriteFile(configPath, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
