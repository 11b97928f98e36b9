package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeModelFile creates a dummy model file with a valid ggml magic
func writeModelFile(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "ggml-test.bin")
	data := append([]byte{0x6c, 0x6d, 0x67, 0x67}, []byte("model weights")...)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write model file: %v", err)
	}
	return path
}

// writeStubExecutable drops a shell script that stands in for whisper
func writeStubExecutable(t *testing.T, script string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell stub executables are not supported on windows")
	}

	path := filepath.Join(t.TempDir(), "whisper-stub")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("Failed to write stub executable: %v", err)
	}
	return path
}

func TestNewExecEngineWithExplicitPath(t *testing.T) {
	stub := writeStubExecutable(t, "#!/bin/sh\nexit 0\n")

	eng, err := NewExecEngine(ExecConfig{ExecutablePath: stub})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if eng.config.ExecutablePath != stub {
		t.Errorf("Expected path %s, got %s", stub, eng.config.ExecutablePath)
	}
	if eng.config.Threads != 4 {
		t.Errorf("Expected default thread count 4, got %d", eng.config.Threads)
	}
}

func TestNewExecEngineRejectsBadPath(t *testing.T) {
	_, err := NewExecEngine(ExecConfig{ExecutablePath: filepath.Join(t.TempDir(), "missing")})
	if !errors.Is(err, ErrInvalidExecutablePath) {
		t.Fatalf("Expected ErrInvalidExecutablePath, got %v", err)
	}

	_, err = NewExecEngine(ExecConfig{ExecutablePath: t.TempDir()})
	if !errors.Is(err, ErrInvalidExecutablePath) {
		t.Fatalf("Expected ErrInvalidExecutablePath for a directory, got %v", err)
	}
}

func TestValidateModelFile(t *testing.T) {
	dir := t.TempDir()

	if err := validateModelFile(filepath.Join(dir, "missing.bin")); !errors.Is(err, ErrInvalidModelFile) {
		t.Errorf("Expected ErrInvalidModelFile for missing file, got %v", err)
	}

	empty := filepath.Join(dir, "empty.bin")
	os.WriteFile(empty, nil, 0644)
	if err := validateModelFile(empty); !errors.Is(err, ErrInvalidModelFile) {
		t.Errorf("Expected ErrInvalidModelFile for empty file, got %v", err)
	}

	garbage := filepath.Join(dir, "garbage.bin")
	os.WriteFile(garbage, []byte("not a model at all"), 0644)
	if err := validateModelFile(garbage); !errors.Is(err, ErrInvalidModelFile) {
		t.Errorf("Expected ErrInvalidModelFile for bad magic, got %v", err)
	}

	if err := validateModelFile(dir); !errors.Is(err, ErrInvalidModelFile) {
		t.Errorf("Expected ErrInvalidModelFile for a directory, got %v", err)
	}

	for i, magic := range ggmlMagics {
		path := filepath.Join(dir, "valid"+string(rune('a'+i))+".bin")
		os.WriteFile(path, append(append([]byte{}, magic...), 0x01, 0x02), 0644)
		if err := validateModelFile(path); err != nil {
			t.Errorf("Expected magic %v to validate, got %v", magic, err)
		}
	}
}

func TestInitializeReturnsBoundHandle(t *testing.T) {
	stub := writeStubExecutable(t, "#!/bin/sh\nexit 0\n")
	modelPath := writeModelFile(t, t.TempDir())

	eng, err := NewExecEngine(ExecConfig{ExecutablePath: stub})
	if err != nil {
		t.Fatalf("NewExecEngine failed: %v", err)
	}

	handle, err := eng.Initialize(modelPath)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer handle.Close()

	if handle.ModelPath() != modelPath {
		t.Errorf("Expected handle bound to %s, got %s", modelPath, handle.ModelPath())
	}
}

func TestInitializeRejectsInvalidModel(t *testing.T) {
	stub := writeStubExecutable(t, "#!/bin/sh\nexit 0\n")

	eng, err := NewExecEngine(ExecConfig{ExecutablePath: stub})
	if err != nil {
		t.Fatalf("NewExecEngine failed: %v", err)
	}

	if _, err := eng.Initialize(filepath.Join(t.TempDir(), "missing.bin")); !errors.Is(err, ErrInvalidModelFile) {
		t.Fatalf("Expected ErrInvalidModelFile, got %v", err)
	}
}

func TestTranscribeWithStubExecutable(t *testing.T) {
	stub := writeStubExecutable(t, `#!/bin/sh
echo "whisper_init_from_file: loading model"
echo "[00:00:00.000 --> 00:00:01.500]  hello world ."
echo "main: processing done"
`)
	dir := t.TempDir()
	modelPath := writeModelFile(t, dir)
	wavPath := filepath.Join(dir, "input.wav")
	os.WriteFile(wavPath, []byte("RIFF fake wav"), 0644)

	eng, err := NewExecEngine(ExecConfig{ExecutablePath: stub, Language: "en"})
	if err != nil {
		t.Fatalf("NewExecEngine failed: %v", err)
	}
	handle, err := eng.Initialize(modelPath)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer handle.Close()

	text, err := handle.Transcribe(context.Background(), wavPath, TranscribeOptions{})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "Hello world." {
		t.Errorf("Expected %q, got %q", "Hello world.", text)
	}
}

func TestTranscribeMissingAudioFile(t *testing.T) {
	stub := writeStubExecutable(t, "#!/bin/sh\nexit 0\n")
	modelPath := writeModelFile(t, t.TempDir())

	eng, _ := NewExecEngine(ExecConfig{ExecutablePath: stub})
	handle, err := eng.Initialize(modelPath)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer handle.Close()

	_, err = handle.Transcribe(context.Background(), "/nonexistent/audio.wav", TranscribeOptions{})
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("Expected ErrTranscriptionFailed, got %v", err)
	}
}

func TestTranscribeAfterClose(t *testing.T) {
	stub := writeStubExecutable(t, "#!/bin/sh\nexit 0\n")
	dir := t.TempDir()
	modelPath := writeModelFile(t, dir)
	wavPath := filepath.Join(dir, "input.wav")
	os.WriteFile(wavPath, []byte("RIFF fake wav"), 0644)

	eng, _ := NewExecEngine(ExecConfig{ExecutablePath: stub})
	handle, err := eng.Initialize(modelPath)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	handle.Close()

	if _, err := handle.Transcribe(context.Background(), wavPath, TranscribeOptions{}); !errors.Is(err, ErrHandleClosed) {
		t.Fatalf("Expected ErrHandleClosed, got %v", err)
	}
}

func TestTranscribeRespectsContext(t *testing.T) {
	stub := writeStubExecutable(t, "#!/bin/sh\nsleep 10\n")
	dir := t.TempDir()
	modelPath := writeModelFile(t, dir)
	wavPath := filepath.Join(dir, "input.wav")
	os.WriteFile(wavPath, []byte("RIFF fake wav"), 0644)

	eng, _ := NewExecEngine(ExecConfig{ExecutablePath: stub})
	handle, err := eng.Initialize(modelPath)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer handle.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = handle.Transcribe(ctx, wavPath, TranscribeOptions{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Cancellation took too long: %s", elapsed)
	}
}

func TestTranscribeArgs(t *testing.T) {
	args := transcribeArgs("/models/tiny.bin", "en", 4, "/tmp/in.wav")
	joined := strings.Join(args, " ")

	for _, want := range []string{"-m /models/tiny.bin", "-f /tmp/in.wav", "-nt", "-t 4", "-l en"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected args to contain %q, got %q", want, joined)
		}
	}

	args = transcribeArgs("/models/tiny.bin", "", 2, "/tmp/in.wav")
	if strings.Contains(strings.Join(args, " "), "-l") {
		t.Error("Expected no language flag when language is empty")
	}
}
