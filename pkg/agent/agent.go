// Package agent runs duplex speech sessions: it bridges a pub/sub session
// channel to a time-limited bidirectional speech model stream, resuming
// streams across the model's connection ceiling so one conversation can span
// many connects.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/voicewire/voicewire/pkg/bus"
	"github.com/voicewire/voicewire/pkg/model"
	"github.com/voicewire/voicewire/pkg/protocol"
	"github.com/voicewire/voicewire/pkg/store"
	"github.com/voicewire/voicewire/pkg/tools"
)

// readyTimeout bounds how long the agent keeps announcing itself before
// giving up on the client.
const (
	readyInterval = time.Second
	readyTimeout  = 60 * time.Second
)

// Deps carries the external systems one session runs against.
type Deps struct {
	Model    model.Connection
	Bus      bus.Client
	Messages store.MessageStore
	Sessions store.SessionStore

	// StaticTools are always registered; discovered MCP tools shadow them
	// on name collision.
	StaticTools []tools.Tool

	// Namespace prefixes the session channel path.
	Namespace string

	// SettleDelay is the fallback wait after subscribing, for bus
	// implementations that cannot confirm the subscription themselves.
	SettleDelay time.Duration

	// ToolTimeout bounds one tool invocation. Zero keeps the dispatcher
	// default.
	ToolTimeout time.Duration

	// ResumeAfter overrides the randomized per-stream resume threshold.
	// Zero keeps the default.
	ResumeAfter time.Duration

	Logger *slog.Logger
	Rand   *rand.Rand
}

// Params identifies and configures one session.
type Params struct {
	SessionID    string
	UserID       string
	SystemPrompt string
	VoiceID      string
	MCPConfig    tools.MCPConfig
}

// Run executes one session to completion. It returns nil on clean success;
// any error has already been reported to the client via the end event.
func Run(ctx context.Context, deps Deps, params Params) error {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", params.SessionID, "user", params.UserID)
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &session{
		deps:   deps,
		params: params,
		logger: logger,
		rng:    rng,
	}
	s.reorderer = NewReorderer(func(items []string) {
		if st := s.currentStream(); st != nil {
			st.EnqueueAudioInput(items)
		}
	})

	err := s.run(ctx)
	s.finalize(ctx, err)
	return err
}

type session struct {
	deps   Deps
	params Params
	logger *slog.Logger
	rng    *rand.Rand

	channel   bus.Channel
	providers *tools.ProviderSet
	reorderer *Reorderer

	mu     sync.Mutex
	stream *ModelStream
	parked []protocol.Event

	clientReady atomic.Bool
}

func (s *session) run(ctx context.Context) error {
	voice, ok := LookupVoice(s.params.VoiceID)
	if !ok {
		return errors.Errorf("invalid voiceId: %s", s.params.VoiceID)
	}
	systemPrompt := strings.TrimSpace(s.params.SystemPrompt + "\n\n" + voice.AdditionalPrompt)

	if err := s.deps.Sessions.UpdateSystemPrompt(ctx, s.params.UserID, s.params.SessionID, systemPrompt); err != nil {
		return errors.Wrap(err, "persisting system prompt")
	}
	s.logger.Info("session initialized")

	providers, discovered, err := tools.Discover(ctx, s.params.MCPConfig, s.logger)
	if err != nil {
		return errors.Wrap(err, "discovering tools")
	}
	s.providers = providers

	registry := tools.NewRegistry(s.deps.StaticTools...)
	for _, tool := range discovered {
		registry.Register(tool)
	}
	dispatcher := tools.NewDispatcher(registry, s.logger).WithTimeout(s.deps.ToolTimeout)

	path := fmt.Sprintf("/%s/user/%s/%s", s.deps.Namespace, s.params.UserID, s.params.SessionID)
	channel, err := s.deps.Bus.Connect(ctx, path)
	if err != nil {
		return errors.Wrap(err, "connecting to session channel")
	}
	s.channel = channel

	if err := channel.Subscribe(s.handleClientEvent, func(err error) {
		s.logger.Error("session channel error", "error", err)
	}); err != nil {
		return errors.Wrap(err, "subscribing to session channel")
	}
	s.logger.Info("subscribed to session channel", "path", path)
	if s.deps.SettleDelay > 0 {
		time.Sleep(s.deps.SettleDelay)
	}

	readyCtx, stopReady := context.WithCancel(ctx)
	defer stopReady()
	go s.announceReady(readyCtx)

	for {
		s.logger.Info("starting model stream")
		history, err := s.deps.Messages.GetMessages(ctx, s.params.SessionID)
		if err != nil {
			return errors.Wrap(err, "loading history")
		}

		resumeAfter := s.deps.ResumeAfter
		if resumeAfter <= 0 {
			resumeAfter = chooseResumeAfter(s.rng)
		}
		stream := NewModelStream(StreamConfig{
			Voice:        voice,
			SystemPrompt: systemPrompt,
			ToolSpecs:    registry.Specs(),
			ResumeAfter:  resumeAfter,
			Logger:       s.logger,
		})
		stream.Open(WindowHistory(history))
		s.setStream(stream)

		chunks, err := s.deps.Model.Invoke(ctx, stream.Outbound(ctx))
		if err != nil {
			stream.Close()
			return errors.Wrap(err, "invoking model")
		}

		it := newInterpreter(channel, stream, dispatcher, s.deps.Messages, s.params.SessionID, s.logger)
		result := it.run(ctx, chunks)
		stream.Close()

		switch result {
		case outcomeSuccess:
			s.logger.Info("session finished")
			return nil
		case outcomeResume:
			s.logger.Info("resuming session on a fresh stream")
		case outcomeError:
			return errors.New("model stream failed")
		}
	}
}

// handleClientEvent runs on the bus subscription. Events arriving while no
// stream is processing are parked and replayed once one is, so audio sent
// during a resume is not lost.
func (s *session) handleClientEvent(ev protocol.Event) {
	if ev.Direction != protocol.DirectionClientToServer {
		return
	}
	s.clientReady.Store(true)

	s.mu.Lock()
	stream := s.stream
	if stream == nil || !stream.Processing() {
		s.parked = append(s.parked, ev)
		s.mu.Unlock()
		return
	}
	pending := append(s.parked, ev)
	s.parked = nil
	s.mu.Unlock()

	for _, ev := range pending {
		if ev.Event != protocol.EventAudioInput {
			s.logger.Info("client event", "event", ev.Event)
		}
		switch ev.Event {
		case protocol.EventAudioInput:
			payload, err := ev.Audio()
			if err != nil {
				s.logger.Warn("invalid audioInput payload", "error", err)
				continue
			}
			s.reorderer.Next(payload.Sequence, payload.Blobs)
		case protocol.EventTerminateSession:
			stream.Close()
		}
	}
}

// announceReady publishes a ready event every second until the client sends
// its first event or the timeout passes.
func (s *session) announceReady(ctx context.Context) {
	deadline := time.Now().Add(readyTimeout)
	ticker := time.NewTicker(readyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.clientReady.Load() {
			s.logger.Info("client responded, stopping ready events")
			return
		}
		if time.Now().After(deadline) {
			s.logger.Warn("client did not respond, stopping ready events")
			return
		}
		ev, err := protocol.ServerEvent(protocol.EventReady, struct{}{})
		if err != nil {
			s.logger.Error("building ready event", "error", err)
			return
		}
		if err := s.channel.Publish(ctx, ev); err != nil {
			s.logger.Warn("publishing ready event", "error", err)
		}
	}
}

func (s *session) setStream(stream *ModelStream) {
	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
}

func (s *session) currentStream() *ModelStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// finalize always runs: it tells the client the session is over, closes the
// channel, and releases tool providers. Failures here are logged, never
// returned; shutdown must complete regardless.
func (s *session) finalize(ctx context.Context, runErr error) {
	reason := ""
	if runErr != nil {
		s.logger.Error("session failed", "error", runErr)
		reason = runErr.Error()
	}

	if s.channel != nil {
		ev, err := protocol.ServerEvent(protocol.EventEnd, protocol.EndPayload{Reason: reason})
		if err != nil {
			s.logger.Error("building end event", "error", err)
		} else if err := s.channel.Publish(ctx, ev); err != nil {
			s.logger.Warn("publishing end event", "error", err)
		}
		if err := s.channel.Close(); err != nil {
			s.logger.Warn("closing session channel", "error", err)
		}
	}
	s.providers.CloseAll()
	s.logger.Info("session ended", "reason", reason)
}
