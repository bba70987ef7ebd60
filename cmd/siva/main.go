// Command siva is a terminal chat client for the Siva assistant with an
// optional hands-free wake word mode.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	orchestration "github.com/koscakluka/siva/core"
	"github.com/koscakluka/siva/core/audio"
	"github.com/koscakluka/siva/core/audio/miniaudio"
	"github.com/koscakluka/siva/core/audio/portaudio"
	"github.com/koscakluka/siva/core/llms/groq"
	"github.com/koscakluka/siva/core/llms/supabase"
	sttdeepgram "github.com/koscakluka/siva/core/speechtotext/deepgram"
	ttsdeepgram "github.com/koscakluka/siva/core/texttospeech/deepgram"
	"github.com/koscakluka/siva/internal/config"
	"github.com/koscakluka/siva/internal/tui"
)

const scopeName = "github.com/koscakluka/siva/cmd/siva"

var logger = otelslog.NewLogger(scopeName)

const portaudioFramesPerBuffer = 512

type audioDevice interface {
	audio.Source
	audio.Sink
	Close()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "siva:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownLogging, err := setupLogging(cfg.LogFile)
	if err != nil {
		return err
	}
	defer shutdownLogging()

	chat, err := newChatClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create chat client: %w", err)
	}

	bridge := tui.NewBridge()
	defer bridge.Stop()

	opts := []orchestration.OrchestratorOption{
		orchestration.WithChatClient(chat),
		orchestration.WithLocale(cfg.Locale),
		orchestration.WithSpeechSettings(cfg.SpeechRate, cfg.SpeechPitch, cfg.SpeechVolume),
		orchestration.WithUserName(cfg.UserName),
		orchestration.WithEventHandler(bridge.Handle),
		orchestration.WithVoiceOptions(
			orchestration.WithWakePhrase(cfg.WakePhrase),
			orchestration.WithAcknowledgement(cfg.Acknowledgement),
		),
	}
	if cfg.Greeting != "" {
		opts = append(opts, orchestration.WithGreeting(cfg.Greeting))
	}
	if !cfg.RecordVoice {
		opts = append(opts, orchestration.WithVoiceExchangesHidden())
	}

	// Speech is optional, the client falls back to text only.
	if cfg.SpeechEnabled() {
		device, speechOpts, err := setupSpeech(cfg)
		if err != nil {
			logger.Error("speech unavailable, continuing without it", "error", err)
		} else {
			defer device.Close()
			opts = append(opts, speechOpts...)
		}
	}

	assistant := orchestration.NewOrchestrator(opts...)
	defer assistant.Close()

	program := tea.NewProgram(tui.NewModel(ctx, assistant), tea.WithAltScreen(), tea.WithContext(ctx))
	go bridge.Run(program)

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal interface failed: %w", err)
	}
	return nil
}

func newChatClient(cfg *config.Config) (orchestration.ChatClient, error) {
	if cfg.ChatBackend == config.ChatBackendGroq {
		return groq.NewClient(cfg.GroqAPIKey,
			groq.WithURL(cfg.GroqURL),
			groq.WithModel(cfg.GroqModel),
			groq.WithTimeout(cfg.RequestTimeout),
		)
	}
	return supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, supabase.WithTimeout(cfg.RequestTimeout))
}

func setupSpeech(cfg *config.Config) (audioDevice, []orchestration.OrchestratorOption, error) {
	var device audioDevice
	var err error
	switch cfg.AudioBackend {
	case config.AudioBackendPortaudio:
		device, err = portaudio.NewClient(portaudioFramesPerBuffer)
	default:
		device, err = miniaudio.NewClient()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s audio device: %w", cfg.AudioBackend, err)
	}

	recognizer, err := sttdeepgram.NewRecognizer(cfg.DeepgramAPIKey, device, sttdeepgram.WithModel(cfg.STTModel))
	if err != nil {
		device.Close()
		return nil, nil, fmt.Errorf("failed to create speech recognizer: %w", err)
	}
	synthesizer, err := ttsdeepgram.NewSynthesizer(cfg.DeepgramAPIKey, device, ttsdeepgram.WithVoice(cfg.TTSVoice))
	if err != nil {
		device.Close()
		return nil, nil, fmt.Errorf("failed to create speech synthesizer: %w", err)
	}

	return device, []orchestration.OrchestratorOption{
		orchestration.WithSpeechRecognizer(recognizer),
		orchestration.WithSpeechSynthesizer(synthesizer),
	}, nil
}

// setupLogging sends every package logger to path so the terminal interface
// stays clean.
func setupLogging(path string) (func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	exporter, err := stdoutlog.New(stdoutlog.WithWriter(file))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	global.SetLoggerProvider(provider)

	return func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			fmt.Fprintln(os.Stderr, "siva: failed to flush logs:", err)
		}
		file.Close()
	}, nil
}
