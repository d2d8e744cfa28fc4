package agent

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voicewire/voicewire/pkg/model"
	"github.com/voicewire/voicewire/pkg/store"
	"github.com/voicewire/voicewire/pkg/tools"
)

// The model provider caps one bidirectional connection at a hard ceiling well
// above these bounds. Each stream picks a resume threshold inside the range so
// reconnections never synchronize across sessions.
const (
	resumeAfterMin = 120 * time.Second
	resumeAfterMax = 450 * time.Second
)

// maxAudioInputQueue bounds buffered microphone chunks awaiting the model.
// On overflow the oldest chunk is dropped; late audio is worse than lost audio.
const maxAudioInputQueue = 200

func chooseResumeAfter(rng *rand.Rand) time.Duration {
	return resumeAfterMin + time.Duration(rng.Int63n(int64(resumeAfterMax-resumeAfterMin)))
}

// StreamConfig carries everything one stream needs at open time.
type StreamConfig struct {
	Voice        VoiceConfig
	SystemPrompt string
	ToolSpecs    []tools.Spec
	ResumeAfter  time.Duration
	Logger       *slog.Logger
}

// ModelStream sequences the outbound event queue of one bidirectional invoke.
// Events are consumed in enqueue order by the model connection; the queue
// wakes its consumer on push rather than polling.
type ModelStream struct {
	cfg            StreamConfig
	logger         *slog.Logger
	promptID       string
	audioContentID string
	openedAt       time.Time

	mu    sync.Mutex
	queue []model.Envelope
	wake  chan struct{}

	active       atomic.Bool
	audioStarted atomic.Bool

	audioMu    sync.Mutex
	audioQueue []string
	audioWake  chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func NewModelStream(cfg StreamConfig) *ModelStream {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &ModelStream{
		cfg:            cfg,
		logger:         cfg.Logger,
		promptID:       uuid.NewString(),
		audioContentID: uuid.NewString(),
		wake:           make(chan struct{}, 1),
		audioWake:      make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	s.active.Store(true)
	return s
}

// Open seeds the queue with the fixed opening sequence: session and prompt
// configuration, the system prompt, the replayed history window, then the
// interactive audio turn. The history must already be windowed.
func (s *ModelStream) Open(history []store.Message) {
	s.enqueueSessionStart()
	s.enqueuePromptStart()
	s.enqueueText(store.RoleSystem, s.cfg.SystemPrompt, false)
	for _, msg := range history {
		s.enqueueText(msg.Role, msg.Content, true)
	}
	s.enqueueAudioStart()
	s.openedAt = time.Now()
	go s.drainAudio()
}

// ShouldResume reports whether this stream has outlived its resume threshold.
func (s *ModelStream) ShouldResume() bool {
	return time.Since(s.openedAt) > s.cfg.ResumeAfter
}

// Processing reports whether the stream is accepting live audio.
func (s *ModelStream) Processing() bool {
	return s.active.Load() && s.audioStarted.Load()
}

// Next blocks until an event is available or the stream has drained past
// sessionEnd, in which case ok is false.
func (s *ModelStream) Next(ctx context.Context) (model.Envelope, bool, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			if ev.IsSessionEnd() {
				s.active.Store(false)
			}
			if !ev.IsAudioInput() {
				s.logger.Info("model event out", "event", ev.Name(), "prompt", s.promptID)
			}
			return ev, true, nil
		}
		active := s.active.Load()
		s.mu.Unlock()
		if !active {
			return model.Envelope{}, false, nil
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			return model.Envelope{}, false, ctx.Err()
		}
	}
}

// Outbound adapts the queue to the model connection's input channel. The
// channel closes once sessionEnd has been handed over.
func (s *ModelStream) Outbound(ctx context.Context) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			ev, ok, err := s.Next(ctx)
			if err != nil || !ok {
				return
			}
			payload, err := ev.Encode()
			if err != nil {
				s.logger.Error("encoding model event", "event", ev.Name(), "error", err)
				continue
			}
			select {
			case out <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// EnqueueAudioInput buffers base64 audio chunks for the drain loop. A no-op
// unless the audio turn is open and the stream active.
func (s *ModelStream) EnqueueAudioInput(chunks []string) {
	if !s.audioStarted.Load() || !s.active.Load() {
		return
	}
	s.audioMu.Lock()
	s.audioQueue = append(s.audioQueue, chunks...)
	if over := len(s.audioQueue) - maxAudioInputQueue; over > 0 {
		s.audioQueue = s.audioQueue[over:]
	}
	s.audioMu.Unlock()
	signal(s.audioWake)
}

// EnqueueToolResult appends the tool-result content triple for a completed
// tool call.
func (s *ModelStream) EnqueueToolResult(toolUseID, result string) {
	contentID := uuid.NewString()
	s.enqueue(
		model.Envelope{Event: model.InputEvent{ContentStart: &model.ContentStartEvent{
			PromptName:  s.promptID,
			ContentName: contentID,
			Type:        model.ContentTypeTool,
			Interactive: false,
			Role:        "TOOL",
			ToolResultInputConfig: &model.ToolResultInputConfiguration{
				ToolUseID:         toolUseID,
				Type:              model.ContentTypeText,
				TextConfiguration: model.TextConfiguration{MediaType: "text/plain"},
			},
		}}},
		model.Envelope{Event: model.InputEvent{ToolResult: &model.ToolResultEvent{
			PromptName:  s.promptID,
			ContentName: contentID,
			Content:     result,
		}}},
		model.Envelope{Event: model.InputEvent{ContentEnd: &model.ContentEndEvent{
			PromptName:  s.promptID,
			ContentName: contentID,
		}}},
	)
}

// Close appends the closing triple exactly once and stops accepting audio.
// The queue keeps draining so in-flight events still reach the model.
func (s *ModelStream) Close() {
	s.closeOnce.Do(func() {
		s.audioStarted.Store(false)
		close(s.done)
		s.enqueue(
			model.Envelope{Event: model.InputEvent{ContentEnd: &model.ContentEndEvent{
				PromptName:  s.promptID,
				ContentName: s.audioContentID,
			}}},
			model.Envelope{Event: model.InputEvent{PromptEnd: &model.PromptEndEvent{
				PromptName: s.promptID,
			}}},
			model.Envelope{Event: model.InputEvent{SessionEnd: &model.SessionEndEvent{}}},
		)
	})
}

func (s *ModelStream) enqueue(events ...model.Envelope) {
	s.mu.Lock()
	s.queue = append(s.queue, events...)
	s.mu.Unlock()
	signal(s.wake)
}

func (s *ModelStream) enqueueSessionStart() {
	s.enqueue(model.Envelope{Event: model.InputEvent{SessionStart: &model.SessionStartEvent{
		InferenceConfiguration: model.InferenceConfiguration{
			MaxTokens:   1024,
			TopP:        0.9,
			Temperature: 1,
		},
	}}})
}

func (s *ModelStream) enqueuePromptStart() {
	ev := &model.PromptStartEvent{
		PromptName:              s.promptID,
		TextOutputConfiguration: model.TextConfiguration{MediaType: "text/plain"},
		AudioOutputConfiguration: model.AudioOutputConfiguration{
			AudioType:       "SPEECH",
			Encoding:        "base64",
			MediaType:       "audio/lpcm",
			SampleRateHertz: 24000,
			SampleSizeBits:  16,
			ChannelCount:    1,
			VoiceID:         s.cfg.Voice.ID,
		},
	}
	if len(s.cfg.ToolSpecs) > 0 {
		ev.ToolUseOutputConfig = &model.TextConfiguration{MediaType: "application/json"}
		cfg := &model.ToolConfiguration{}
		for _, spec := range s.cfg.ToolSpecs {
			entry := model.ToolEntry{}
			entry.ToolSpec.Name = spec.Name
			entry.ToolSpec.Description = spec.Description
			entry.ToolSpec.InputSchema.JSON = string(spec.InputSchema)
			cfg.Tools = append(cfg.Tools, entry)
		}
		ev.ToolConfiguration = cfg
	}
	s.enqueue(model.Envelope{Event: model.InputEvent{PromptStart: ev}})
}

// enqueueText appends one text content triple. History messages carry their
// role on textInput with the role uppercased; the system prompt carries it on
// contentStart instead.
func (s *ModelStream) enqueueText(role store.Role, content string, history bool) {
	contentID := uuid.NewString()
	start := &model.ContentStartEvent{
		PromptName:             s.promptID,
		ContentName:            contentID,
		Type:                   model.ContentTypeText,
		Interactive:            false,
		TextInputConfiguration: &model.TextConfiguration{MediaType: "text/plain"},
	}
	input := &model.TextInputEvent{
		PromptName:  s.promptID,
		ContentName: contentID,
		Content:     content,
	}
	if history {
		input.Role = strings.ToUpper(string(role))
	} else {
		start.Role = strings.ToUpper(string(role))
	}
	s.enqueue(
		model.Envelope{Event: model.InputEvent{ContentStart: start}},
		model.Envelope{Event: model.InputEvent{TextInput: input}},
		model.Envelope{Event: model.InputEvent{ContentEnd: &model.ContentEndEvent{
			PromptName:  s.promptID,
			ContentName: contentID,
		}}},
	)
}

func (s *ModelStream) enqueueAudioStart() {
	s.enqueue(model.Envelope{Event: model.InputEvent{ContentStart: &model.ContentStartEvent{
		PromptName:  s.promptID,
		ContentName: s.audioContentID,
		Type:        model.ContentTypeAudio,
		Interactive: true,
		Role:        "USER",
		AudioInputConfiguration: &model.AudioInputConfiguration{
			AudioType:       "SPEECH",
			Encoding:        "base64",
			MediaType:       "audio/lpcm",
			SampleRateHertz: 16000,
			SampleSizeBits:  16,
			ChannelCount:    1,
		},
	}}})
	s.audioStarted.Store(true)
}

// drainAudio moves buffered audio chunks onto the event queue, parking on the
// wake channel when the buffer is empty.
func (s *ModelStream) drainAudio() {
	for {
		s.audioMu.Lock()
		if len(s.audioQueue) == 0 {
			s.audioMu.Unlock()
			select {
			case <-s.audioWake:
				continue
			case <-s.done:
				return
			}
		}
		chunk := s.audioQueue[0]
		s.audioQueue = s.audioQueue[1:]
		s.audioMu.Unlock()

		if !s.audioStarted.Load() || !s.active.Load() {
			return
		}
		s.enqueue(model.Envelope{Event: model.InputEvent{AudioInput: &model.AudioInputEvent{
			PromptName:  s.promptID,
			ContentName: s.audioContentID,
			Content:     chunk,
		}}})
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
