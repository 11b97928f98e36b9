package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/murmurkit/murmur/pkg/logger"
)

// ggml model files start with one of these 4-byte magics (little endian on disk)
var ggmlMagics = [][]byte{
	{0x6c, 0x6d, 0x67, 0x67}, // "ggml"
	{0x66, 0x6d, 0x67, 0x67}, // "ggmf"
	{0x6a, 0x74, 0x67, 0x67}, // "ggjt"
	{0x47, 0x47, 0x55, 0x46}, // "GGUF"
}

// ExecConfig configures the exec-backed engine
type ExecConfig struct {
	// ExecutablePath is the whisper executable (auto-detected when empty)
	ExecutablePath string
	// Language code passed to the executable (empty for auto-detect)
	Language string
	// Threads controls the decoder thread count
	Threads int
	// Debug enables verbose command logging
	Debug bool
}

// DefaultExecConfig returns a reasonable default engine configuration
func DefaultExecConfig() ExecConfig {
	return ExecConfig{
		Language: "en",
		Threads:  4,
	}
}

// ExecEngine implements Engine by spawning an external whisper executable
// for each transcription run.
type ExecEngine struct {
	config ExecConfig
}

// NewExecEngine creates an engine around an external whisper executable.
// When no path is configured it searches the PATH and common install
// locations.
func NewExecEngine(config ExecConfig) (*ExecEngine, error) {
	if config.Threads <= 0 {
		config.Threads = 4
	}

	if config.ExecutablePath == "" {
		path, err := findWhisperExecutable()
		if err != nil {
			return nil, err
		}
		config.ExecutablePath = path
	} else {
		info, err := os.Stat(config.ExecutablePath)
		if err != nil || info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidExecutablePath, config.ExecutablePath)
		}
	}

	logger.Info(logger.CategoryEngine, "Using whisper executable: %s", config.ExecutablePath)
	return &ExecEngine{config: config}, nil
}

// Initialize validates the model file and returns a handle bound to it
func (e *ExecEngine) Initialize(modelPath string) (Handle, error) {
	if err := validateModelFile(modelPath); err != nil {
		return nil, err
	}

	return &execHandle{
		engine:    e,
		modelPath: modelPath,
	}, nil
}

// InitializeVAD builds a voice-activity handle. The model file is validated
// the same way; detection itself is an energy gate over incoming frames.
func (e *ExecEngine) InitializeVAD(modelPath string) (VADHandle, error) {
	if err := validateModelFile(modelPath); err != nil {
		return nil, err
	}
	return newEnergyVAD(), nil
}

// validateModelFile rejects missing, empty, or non-ggml model files
func validateModelFile(modelPath string) error {
	info, err := os.Stat(modelPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidModelFile, modelPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidModelFile, modelPath)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidModelFile, modelPath)
	}

	f, err := os.Open(modelPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidModelFile, modelPath, err)
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := f.Read(magic); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidModelFile, modelPath, err)
	}

	for _, known := range ggmlMagics {
		if bytes.Equal(magic, known) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s has no ggml magic", ErrInvalidModelFile, modelPath)
}

// execHandle is a recognition handle bound to one model file
type execHandle struct {
	engine    *ExecEngine
	modelPath string

	mu     sync.Mutex
	closed bool
}

// ModelPath returns the model file backing this handle
func (h *execHandle) ModelPath() string {
	return h.modelPath
}

// Close marks the handle unusable. The exec engine holds no process between
// runs, so there is nothing else to release.
func (h *execHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Transcribe runs the whisper executable over a WAV file and returns the
// cleaned transcript
func (h *execHandle) Transcribe(ctx context.Context, wavPath string, opts TranscribeOptions) (string, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrHandleClosed
	}
	h.mu.Unlock()

	if _, err := os.Stat(wavPath); err != nil {
		return "", fmt.Errorf("%w: audio file: %v", ErrTranscriptionFailed, err)
	}

	language := opts.Language
	if language == "" {
		language = h.engine.config.Language
	}

	args := transcribeArgs(h.modelPath, language, h.engine.config.Threads, wavPath)
	if h.engine.config.Debug {
		logger.Debug(logger.CategoryEngine, "Executing: %s %v", h.engine.config.ExecutablePath, args)
	}

	cmd := exec.CommandContext(ctx, h.engine.config.ExecutablePath, args...)

	// OpenMP thread control for better responsiveness
	env := os.Environ()
	env = append(env, "OMP_NUM_THREADS="+strconv.Itoa(h.engine.config.Threads))
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Warning(logger.CategoryEngine, "whisper exited with error: %v", err)
		if h.engine.config.Debug && stderr.Len() > 0 {
			logger.Debug(logger.CategoryEngine, "STDERR: %s", stderr.String())
		}
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	return cleanTranscript(stdout.String()), nil
}

// transcribeArgs builds whisper.cpp style arguments for a single file run
func transcribeArgs(modelPath, language string, threads int, inputFile string) []string {
	args := []string{
		"-m", modelPath,
		"-f", inputFile,
		"-nt", // no timestamps for cleaner output
		"-t", strconv.Itoa(threads),
	}
	if language != "" {
		args = append(args, "-l", language)
	}
	return args
}

// findWhisperExecutable searches the PATH and standard install locations
func findWhisperExecutable() (string, error) {
	execNames := []string{"whisper-cli", "whisper", "whisper-cpp", "whisper.cpp", "main"}
	if runtime.GOOS == "windows" {
		for i, name := range execNames {
			execNames[i] = name + ".exe"
		}
	}

	for _, name := range execNames {
		path, err := exec.LookPath(name)
		if err == nil {
			logger.Info(logger.CategoryEngine, "Found whisper executable in PATH: %s", path)
			return path, nil
		}
	}

	searchDirs := []string{"/usr/local/bin", "/usr/bin", "/opt/whisper.cpp", "/opt/local/bin"}
	if home, err := os.UserHomeDir(); err == nil {
		searchDirs = append(searchDirs,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, "bin"),
			filepath.Join(home, ".murmur", "bin"),
		)
	}

	for _, dir := range searchDirs {
		for _, name := range execNames {
			candidate := filepath.Join(dir, name)
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			if runtime.GOOS != "windows" && info.Mode().Perm()&0111 == 0 {
				continue
			}
			logger.Info(logger.CategoryEngine, "Found whisper executable: %s", candidate)
			return candidate, nil
		}
	}

	return "", ErrExecutableNotFound
}
