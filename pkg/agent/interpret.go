package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voicewire/voicewire/pkg/bus"
	"github.com/voicewire/voicewire/pkg/model"
	"github.com/voicewire/voicewire/pkg/protocol"
	"github.com/voicewire/voicewire/pkg/store"
	"github.com/voicewire/voicewire/pkg/tools"
)

// Outcome of one stream's inbound loop.
type outcome int

const (
	// outcomeSuccess: the model closed the stream cleanly.
	outcomeSuccess outcome = iota
	// outcomeResume: the assistant finished a turn after the resume
	// threshold; reconnect with fresh history.
	outcomeResume
	// outcomeError: a non-transient failure; terminate the session.
	outcomeError
)

// The model emits this marker when the user barges in over generated speech.
// It is forwarded to the client but never persisted.
const interruptedSentinel = `{ "interrupted" : true }`

// textContent accumulates one text content block between contentStart and
// contentEnd. Only FINAL-stage content is persisted; speculative content may
// never actually be spoken.
type textContent struct {
	role    string
	content string
	isFinal bool
}

type pendingToolUse struct {
	toolUseID string
	toolName  string
	content   string
}

// interpreter consumes one stream's inbound response events, forwarding audio
// and text to the session channel, persisting finished turns, and executing
// tool calls.
type interpreter struct {
	channel    bus.Channel
	stream     *ModelStream
	dispatcher *tools.Dispatcher
	messages   store.MessageStore
	sessionID  string
	logger     *slog.Logger

	batcher  *audioBatcher
	contents map[string]*textContent
	toolUses map[string]*pendingToolUse
}

func newInterpreter(channel bus.Channel, stream *ModelStream, dispatcher *tools.Dispatcher, messages store.MessageStore, sessionID string, logger *slog.Logger) *interpreter {
	return &interpreter{
		channel:    channel,
		stream:     stream,
		dispatcher: dispatcher,
		messages:   messages,
		sessionID:  sessionID,
		logger:     logger,
		batcher:    newAudioBatcher(channel, logger),
		contents:   make(map[string]*textContent),
		toolUses:   make(map[string]*pendingToolUse),
	}
}

// run reads the inbound chunk stream to completion and reports the outcome.
// Transient model stream errors are logged and skipped; anything else ends
// the loop.
func (it *interpreter) run(ctx context.Context, chunks <-chan model.Chunk) outcome {
	for chunk := range chunks {
		if chunk.Err != nil {
			if model.IsTransient(chunk.Err) {
				it.logger.Warn("transient model stream error, retrying", "error", chunk.Err)
				continue
			}
			it.logger.Error("model stream failed", "error", chunk.Err)
			return outcomeError
		}

		env, err := model.DecodeOutput(chunk.Bytes)
		if err != nil {
			it.logger.Error("decoding model response", "error", err)
			return outcomeError
		}
		if env.Event.AudioOutput == nil {
			it.logger.Info("model event in", "payload", string(chunk.Bytes))
		}

		result, err := it.handle(ctx, env.Event)
		if err != nil {
			it.logger.Error("handling model response", "error", err)
			return outcomeError
		}
		if result == outcomeResume {
			return outcomeResume
		}
	}
	return outcomeSuccess
}

func (it *interpreter) handle(ctx context.Context, ev model.OutputEvent) (outcome, error) {
	switch {
	case ev.AudioOutput != nil:
		it.batcher.Add(ctx, ev.AudioOutput.Content)

	case ev.ContentStart != nil && ev.ContentStart.Type == model.ContentTypeText:
		it.handleTextStart(ctx, ev.ContentStart)

	case ev.TextOutput != nil:
		it.handleTextOutput(ctx, ev.TextOutput)

	case ev.ContentEnd != nil && ev.ContentEnd.Type == model.ContentTypeAudio:
		it.batcher.Flush(ctx)

	case ev.ContentEnd != nil && ev.ContentEnd.Type == model.ContentTypeText:
		return it.handleTextEnd(ctx, ev.ContentEnd)

	case ev.ToolUse != nil:
		it.handleToolUse(ev.ToolUse)

	case ev.ContentEnd != nil && ev.ContentEnd.Type == model.ContentTypeTool:
		return outcomeSuccess, it.handleToolEnd(ctx, ev.ContentEnd)
	}
	return outcomeSuccess, nil
}

func (it *interpreter) handleTextStart(ctx context.Context, ev *model.OutputContentStart) {
	stage := ev.GenerationStage()
	role := strings.ToLower(ev.Role)
	it.contents[ev.ContentID] = &textContent{
		role:    role,
		isFinal: stage == model.GenerationStageFinal,
	}
	it.publish(ctx, protocol.EventTextStart, protocol.TextStartPayload{
		ID:              ev.ContentID,
		Role:            role,
		GenerationStage: stage,
	})
}

func (it *interpreter) handleTextOutput(ctx context.Context, ev *model.TextOutput) {
	if acc, ok := it.contents[ev.ContentID]; ok {
		if ev.Content != interruptedSentinel {
			acc.content += ev.Content
		}
	} else {
		it.logger.Warn("textOutput for unknown content", "contentId", ev.ContentID)
	}
	it.publish(ctx, protocol.EventTextOutput, protocol.TextOutputPayload{
		ID:      ev.ContentID,
		Role:    strings.ToLower(ev.Role),
		Content: ev.Content,
	})
}

func (it *interpreter) handleTextEnd(ctx context.Context, ev *model.OutputContentEnd) (outcome, error) {
	it.publish(ctx, protocol.EventTextStop, protocol.TextStopPayload{
		ID:         ev.ContentID,
		StopReason: ev.StopReason,
	})

	acc, ok := it.contents[ev.ContentID]
	if !ok {
		it.logger.Warn("contentEnd for unknown content", "contentId", ev.ContentID)
		return outcomeSuccess, nil
	}
	delete(it.contents, ev.ContentID)

	if !acc.isFinal || acc.content == "" {
		return outcomeSuccess, nil
	}

	content := strings.TrimSpace(strings.ReplaceAll(acc.content, "  ", " "))
	if err := it.messages.SaveMessage(ctx, it.sessionID, store.Role(acc.role), content); err != nil {
		it.logger.Error("saving message", "role", acc.role, "error", err)
		return outcomeSuccess, nil
	}

	if acc.role == string(store.RoleAssistant) && ev.StopReason == model.StopReasonEndTurn && it.stream.ShouldResume() {
		return outcomeResume, nil
	}
	return outcomeSuccess, nil
}

func (it *interpreter) handleToolUse(ev *model.ToolUse) {
	if pending, ok := it.toolUses[ev.ContentID]; ok {
		pending.content += ev.Content
		return
	}
	it.toolUses[ev.ContentID] = &pendingToolUse{
		toolUseID: ev.ToolUseID,
		toolName:  ev.ToolName,
		content:   ev.Content,
	}
}

func (it *interpreter) handleToolEnd(ctx context.Context, ev *model.OutputContentEnd) error {
	pending, ok := it.toolUses[ev.ContentID]
	if !ok {
		it.logger.Warn("tool contentEnd without a pending toolUse", "contentId", ev.ContentID)
		return nil
	}
	delete(it.toolUses, ev.ContentID)

	result, err := it.dispatcher.Execute(ctx, pending.toolName, pending.content)
	if err != nil {
		return err
	}
	it.logger.Info("tool executed", "tool", pending.toolName, "toolUseId", pending.toolUseID)
	it.stream.EnqueueToolResult(pending.toolUseID, result)
	return nil
}

// publish forwards an event on the session channel. Publish failures are
// logged, never fatal; the channel may already be closed on the client side.
func (it *interpreter) publish(ctx context.Context, event string, payload any) {
	ev, err := protocol.ServerEvent(event, payload)
	if err != nil {
		it.logger.Error("building server event", "event", event, "error", err)
		return
	}
	if err := it.channel.Publish(ctx, ev); err != nil {
		it.logger.Warn("publishing event, channel may be closed", "event", event, "error", err)
	}
}
