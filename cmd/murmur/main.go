// Package main is the murmur speech-to-text workbench
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/murmurkit/murmur/config"
	"github.com/murmurkit/murmur/internal/clipboard"
	"github.com/murmurkit/murmur/pkg/audio"
	"github.com/murmurkit/murmur/pkg/engine"
	"github.com/murmurkit/murmur/pkg/logger"
	"github.com/murmurkit/murmur/pkg/model"
	"github.com/murmurkit/murmur/pkg/ui"
)

func main() {
	debugMode := flag.Bool("debug", false, "Run in debug mode")
	listModels := flag.Bool("list", false, "List the model catalog and exit")
	modelID := flag.String("model", "", "Model identifier to load on startup")
	language := flag.String("lang", "", "Language code (overrides config)")
	useVAD := flag.Bool("vad", false, "Enable voice activity detection for live sessions")
	filePath := flag.String("file", "", "Transcribe a single WAV file and exit")
	enginePath := flag.String("engine", "", "Path to the whisper executable")
	flag.Parse()

	logger.Initialize()
	if *debugMode {
		logger.SetLevel(logger.LevelDebug)
		logger.Info(logger.CategoryApp, "Debug mode enabled - verbose logging active")
	} else {
		logger.SuppressALSAWarnings(true)
	}

	if *listModels {
		printCatalog()
		return
	}

	if err := config.LoadConfig(); err != nil {
		logger.Warning(logger.CategoryApp, "Failed to load config, using defaults: %v", err)
	}
	cfg := config.Current
	if *modelID != "" {
		cfg.ModelID = *modelID
	}
	if *language != "" {
		cfg.Language = *language
	}
	if *enginePath != "" {
		cfg.EnginePath = *enginePath
	}
	if *debugMode {
		cfg.Debug = true
	}

	logger.Info(logger.CategoryApp, "Starting Murmur - Speech-to-Text Workbench")

	eng, err := engine.NewExecEngine(engine.ExecConfig{
		ExecutablePath: cfg.EnginePath,
		Language:       cfg.Language,
		Threads:        cfg.Threads,
		Debug:          cfg.Debug,
	})
	if err != nil {
		logger.Error(logger.CategoryEngine, "Failed to set up recognition engine: %v", err)
		fmt.Fprintln(os.Stderr, "No whisper executable found. Install whisper.cpp or pass -engine.")
		os.Exit(1)
	}

	cacheDir, err := config.GetModelCacheDir()
	if err != nil {
		logger.Error(logger.CategoryApp, "Failed to prepare model cache: %v", err)
		os.Exit(1)
	}

	manager, err := model.NewManager(cacheDir, eng)
	if err != nil {
		logger.Error(logger.CategoryModel, "Failed to create model manager: %v", err)
		os.Exit(1)
	}

	if *filePath != "" {
		if err := runFileTranscription(manager, cfg, *filePath); err != nil {
			logger.Error(logger.CategoryApp, "Transcription failed: %v", err)
			os.Exit(1)
		}
		return
	}

	runTerminalUI(manager, cfg, *useVAD)
}

// printCatalog writes the compiled-in model catalog to stdout
func printCatalog() {
	fmt.Println("Available models:")
	for _, desc := range model.Catalog() {
		flags := ""
		if desc.Multilingual {
			flags += " multilingual"
		}
		if desc.Quantized {
			flags += " quantized"
		}
		if desc.SpeakerTurns {
			flags += " speaker-turns"
		}
		fmt.Printf("  %-16s %-10s%s\n", desc.ID, desc.SizeLabel, flags)
	}
}

// runFileTranscription performs a one-shot transcription of a WAV file
func runFileTranscription(manager *model.Manager, cfg *config.Config, path string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	logger.Info(logger.CategoryModel, "Preparing model %s", cfg.ModelID)
	res, err := manager.Initialize(ctx, cfg.ModelID, model.Options{})
	if err != nil {
		return err
	}
	defer manager.Reset()

	text, err := res.Handle.Transcribe(ctx, path, engine.TranscribeOptions{Language: cfg.Language})
	if err != nil {
		return err
	}

	fmt.Println(text)
	if cfg.CopyToClipboard && text != "" {
		if err := clipboard.SetText(text); err != nil {
			logger.Warning(logger.CategoryApp, "Failed to copy transcript to clipboard: %v", err)
		}
	}
	return nil
}

// uiAudioSource tees microphone frames into the UI level meter on their way
// to the transcription session
type uiAudioSource struct {
	recorder *audio.Recorder
	terminal *ui.TerminalUI
}

func (s *uiAudioSource) Start(callback func([]float32)) error {
	return s.recorder.Start(func(data []float32) {
		s.terminal.UpdateAudioLevel(scaleLevel(data))
		callback(data)
	})
}

func (s *uiAudioSource) Stop() error {
	return s.recorder.Stop()
}

// scaleLevel maps an RMS reading onto the 0..1 range the visualization expects
func scaleLevel(buffer []float32) float32 {
	level := audio.CalculateRMSLevel(buffer) * 8
	if level > 1.0 {
		level = 1.0
	}
	return level
}

// runTerminalUI runs the interactive terminal session
func runTerminalUI(manager *model.Manager, cfg *config.Config, useVAD bool) {
	// Keep log output away from the TUI frame
	if appDir, err := config.GetAppDir(); err == nil {
		if f, err := os.OpenFile(filepath.Join(appDir, "murmur.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			logger.SetOutput(f)
			defer f.Close()
		}
	}

	terminalUI := ui.NewTerminalUI(manager, useVAD)

	audioConfig := audio.DefaultConfig()
	audioConfig.SampleRate = float64(cfg.AudioSampleRate)
	audioConfig.Channels = cfg.AudioChannels
	audioConfig.FramesPerBuffer = cfg.AudioBufferSize
	audioConfig.Debug = cfg.Debug

	recorder, err := audio.NewRecorder(audioConfig)
	if err != nil {
		logger.Warning(logger.CategoryAudio, "Audio initialization issue: %v", err)
		logger.Info(logger.CategoryAudio, "You may need to configure your audio system or check permissions")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var stream engine.Stream
	isRecording := false
	toggleCh := terminalUI.ToggleChannel()

	stopSession := func() {
		if stream == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		final, err := stream.Stop(ctx)
		cancel()
		stream = nil
		isRecording = false

		terminalUI.SetRecordingState(false)
		terminalUI.UpdateAudioLevel(0)
		if err != nil {
			logger.Warning(logger.CategoryEngine, "Session stop reported: %v", err)
		}
		if final == "" {
			return
		}
		terminalUI.UpdateTranscript(final)
		if cfg.CopyToClipboard {
			if err := clipboard.SetText(final); err != nil {
				logger.Warning(logger.CategoryApp, "Failed to copy transcript to clipboard: %v", err)
			} else {
				terminalUI.SetStatus("Transcript copied to clipboard")
			}
		}
	}

	go func() {
		for {
			select {
			case <-toggleCh:
				if isRecording {
					stopSession()
					continue
				}

				handle, vad, ok := manager.ActiveHandle()
				if !ok {
					terminalUI.SetError("No model loaded")
					continue
				}
				if recorder == nil {
					terminalUI.SetError("Audio device unavailable")
					continue
				}

				s, err := handle.TranscribeRealtime(engine.RealtimeOptions{
					Source:     &uiAudioSource{recorder: recorder, terminal: terminalUI},
					Language:   cfg.Language,
					SampleRate: cfg.AudioSampleRate,
					VAD:        vad,
				})
				if err != nil {
					logger.Error(logger.CategoryEngine, "Failed to start live session: %v", err)
					terminalUI.SetError("Failed to start recording")
					continue
				}

				s.Subscribe(func(ev engine.Event) {
					terminalUI.SetCapturing(ev.Capturing)
					if ev.Text != "" {
						terminalUI.UpdateTranscript(ev.Text)
					}
				})

				stream = s
				isRecording = true
				terminalUI.UpdateTranscript("")
				terminalUI.SetRecordingState(true)

			case <-sigChan:
				stopSession()
				terminalUI.Stop()
				return
			}
		}
	}()

	if err := terminalUI.RunBlocking(); err != nil {
		fmt.Fprintf(os.Stderr, "Terminal UI error: %v\n", err)
	}

	// UI is gone, release everything
	if stream != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		stream.Stop(ctx)
		cancel()
	}
	if recorder != nil {
		recorder.Terminate()
	}

	// Remember the last loaded model for next launch
	if desc, ok := manager.Active(); ok {
		cfg.ModelID = desc.ID
	}
	manager.Reset()
	if err := config.SaveConfig(); err != nil {
		logger.Warning(logger.CategoryApp, "Failed to save config: %v", err)
	}

	logger.SetOutput(os.Stderr)
}
