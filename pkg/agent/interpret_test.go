package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/pkg/errors"

	"github.com/voicewire/voicewire/pkg/model"
	"github.com/voicewire/voicewire/pkg/protocol"
	"github.com/voicewire/voicewire/pkg/store"
	storememory "github.com/voicewire/voicewire/pkg/store/memory"
	"github.com/voicewire/voicewire/pkg/tools"
)

func chunkFor(t *testing.T, ev model.OutputEvent) model.Chunk {
	t.Helper()
	data, err := json.Marshal(model.OutputEnvelope{Event: ev})
	if err != nil {
		t.Fatalf("marshal output event: %v", err)
	}
	return model.Chunk{Bytes: data}
}

func feed(chunks ...model.Chunk) <-chan model.Chunk {
	ch := make(chan model.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func textStartEvent(id, role, stage string) model.OutputEvent {
	fields, _ := json.Marshal(map[string]string{"generationStage": stage})
	return model.OutputEvent{ContentStart: &model.OutputContentStart{
		ContentID:             id,
		Type:                  model.ContentTypeText,
		Role:                  role,
		AdditionalModelFields: string(fields),
	}}
}

func textOutputEvent(id, role, content string) model.OutputEvent {
	return model.OutputEvent{TextOutput: &model.TextOutput{ContentID: id, Role: role, Content: content}}
}

func textEndEvent(id, stopReason string) model.OutputEvent {
	return model.OutputEvent{ContentEnd: &model.OutputContentEnd{
		ContentID:  id,
		Type:       model.ContentTypeText,
		StopReason: stopReason,
	}}
}

type interpreterFixture struct {
	channel  *captureChannel
	stream   *ModelStream
	messages *storememory.Store
	it       *interpreter
}

func newInterpreterFixture(registry *tools.Registry) *interpreterFixture {
	channel := &captureChannel{}
	stream := testStream(nil)
	stream.openedAt = time.Now()
	messages := storememory.New()
	it := newInterpreter(channel, stream, tools.NewDispatcher(registry, slog.Default()), messages, "session-1", slog.Default())
	return &interpreterFixture{channel: channel, stream: stream, messages: messages, it: it}
}

func TestInterpreterSuccessAndPersistence(t *testing.T) {
	f := newInterpreterFixture(tools.NewRegistry())

	got := f.it.run(context.Background(), feed(
		chunkFor(t, textStartEvent("c1", "ASSISTANT", model.GenerationStageFinal)),
		chunkFor(t, textOutputEvent("c1", "ASSISTANT", "Hello  there.")),
		chunkFor(t, textEndEvent("c1", model.StopReasonEndTurn)),
	))
	if got != outcomeSuccess {
		t.Fatalf("outcome = %v, want success", got)
	}

	messages, err := f.messages.GetMessages(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("persisted %d messages, want 1", len(messages))
	}
	if messages[0].Role != store.RoleAssistant || messages[0].Content != "Hello there." {
		t.Errorf("persisted %+v", messages[0])
	}

	var names []string
	for _, ev := range f.channel.events {
		names = append(names, ev.Event)
	}
	want := []string{protocol.EventTextStart, protocol.EventTextOutput, protocol.EventTextStop}
	if len(names) != len(want) {
		t.Fatalf("published %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("published %v, want %v", names, want)
			break
		}
	}
}

func TestInterpreterResumeAfterThreshold(t *testing.T) {
	f := newInterpreterFixture(tools.NewRegistry())
	f.stream.openedAt = time.Now().Add(-10 * time.Minute)

	got := f.it.run(context.Background(), feed(
		chunkFor(t, textStartEvent("c1", "ASSISTANT", model.GenerationStageFinal)),
		chunkFor(t, textOutputEvent("c1", "ASSISTANT", "Still here.")),
		chunkFor(t, textEndEvent("c1", model.StopReasonEndTurn)),
	))
	if got != outcomeResume {
		t.Fatalf("outcome = %v, want resume", got)
	}

	messages, err := f.messages.GetMessages(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(messages) != 1 {
		t.Errorf("the turn should persist before resuming, got %d messages", len(messages))
	}
}

func TestInterpreterSkipsSpeculativeAndInterrupted(t *testing.T) {
	f := newInterpreterFixture(tools.NewRegistry())

	got := f.it.run(context.Background(), feed(
		chunkFor(t, textStartEvent("spec", "ASSISTANT", "SPECULATIVE")),
		chunkFor(t, textOutputEvent("spec", "ASSISTANT", "maybe")),
		chunkFor(t, textEndEvent("spec", "")),
		chunkFor(t, textStartEvent("fin", "USER", model.GenerationStageFinal)),
		chunkFor(t, textOutputEvent("fin", "USER", interruptedSentinel)),
		chunkFor(t, textEndEvent("fin", "")),
	))
	if got != outcomeSuccess {
		t.Fatalf("outcome = %v", got)
	}

	messages, _ := f.messages.GetMessages(context.Background(), "session-1")
	if len(messages) != 0 {
		t.Errorf("speculative and interruption-only content must not persist, got %v", messages)
	}

	forwarded := false
	for _, ev := range f.channel.events {
		if ev.Event != protocol.EventTextOutput {
			continue
		}
		var p protocol.TextOutputPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			t.Fatalf("decode textOutput: %v", err)
		}
		if p.Content == interruptedSentinel {
			forwarded = true
		}
	}
	if !forwarded {
		t.Error("the interruption marker should still reach the client")
	}
}

func TestInterpreterExecutesTool(t *testing.T) {
	tool := &fakeAgentTool{name: "getWeather", result: "sunny"}
	f := newInterpreterFixture(tools.NewRegistry(tool))

	got := f.it.run(context.Background(), feed(
		chunkFor(t, model.OutputEvent{ToolUse: &model.ToolUse{
			ContentID: "t1",
			ToolUseID: "use-1",
			ToolName:  "getWeather",
			Content:   `{"latitude":"35"}`,
		}}),
		chunkFor(t, model.OutputEvent{ContentEnd: &model.OutputContentEnd{
			ContentID: "t1",
			Type:      model.ContentTypeTool,
		}}),
	))
	if got != outcomeSuccess {
		t.Fatalf("outcome = %v", got)
	}
	if string(tool.gotInput) != `{"latitude":"35"}` {
		t.Errorf("tool input = %q", tool.gotInput)
	}

	events := drainEvents(t, f.stream, 3)
	if len(events) != 3 || events[0].Event.ContentStart == nil || events[1].Event.ToolResult == nil {
		t.Fatalf("tool result triple not enqueued: %v", eventNames(events))
	}
	if events[0].Event.ContentStart.ToolResultInputConfig.ToolUseID != "use-1" {
		t.Errorf("toolUseId = %q", events[0].Event.ContentStart.ToolResultInputConfig.ToolUseID)
	}
	if events[1].Event.ToolResult.Content != `{"result":"sunny"}` {
		t.Errorf("tool result = %q", events[1].Event.ToolResult.Content)
	}
}

func TestInterpreterToolEndWithoutPending(t *testing.T) {
	f := newInterpreterFixture(tools.NewRegistry())

	got := f.it.run(context.Background(), feed(
		chunkFor(t, model.OutputEvent{ContentEnd: &model.OutputContentEnd{
			ContentID: "ghost",
			Type:      model.ContentTypeTool,
		}}),
	))
	if got != outcomeSuccess {
		t.Fatalf("an orphan tool contentEnd must not be fatal, outcome = %v", got)
	}
}

func TestInterpreterErrorHandling(t *testing.T) {
	f := newInterpreterFixture(tools.NewRegistry())

	transient := model.Chunk{Err: &types.ModelStreamErrorException{}}
	got := f.it.run(context.Background(), feed(
		transient,
		chunkFor(t, textStartEvent("c1", "ASSISTANT", model.GenerationStageFinal)),
	))
	if got != outcomeSuccess {
		t.Errorf("transient stream errors should be skipped, outcome = %v", got)
	}

	f = newInterpreterFixture(tools.NewRegistry())
	got = f.it.run(context.Background(), feed(model.Chunk{Err: errors.New("connection reset")}))
	if got != outcomeError {
		t.Errorf("fatal stream error outcome = %v, want error", got)
	}
}

func TestInterpreterBatchesAudio(t *testing.T) {
	f := newInterpreterFixture(tools.NewRegistry())

	var chunks []model.Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, chunkFor(t, model.OutputEvent{AudioOutput: &model.AudioOutput{
			ContentID: "a1",
			Content:   "blob",
		}}))
	}
	chunks = append(chunks, chunkFor(t, model.OutputEvent{ContentEnd: &model.OutputContentEnd{
		ContentID: "a1",
		Type:      model.ContentTypeAudio,
	}}))

	if got := f.it.run(context.Background(), feed(chunks...)); got != outcomeSuccess {
		t.Fatalf("outcome = %v", got)
	}

	batches := audioBatches(t, f.channel.events)
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1 flushed batch", len(batches))
	}
	if len(batches[0].Blobs) != 5 {
		t.Errorf("flushed %d blobs, want 5", len(batches[0].Blobs))
	}
}

type fakeAgentTool struct {
	name     string
	result   any
	gotInput json.RawMessage
}

func (f *fakeAgentTool) Name() string { return f.name }

func (f *fakeAgentTool) Spec() tools.Spec {
	return tools.Spec{Name: f.name, InputSchema: json.RawMessage(`{"type":"object"}`)}
}

func (f *fakeAgentTool) Validate(json.RawMessage) error { return nil }

func (f *fakeAgentTool) Invoke(_ context.Context, input json.RawMessage) (any, error) {
	f.gotInput = input
	return f.result, nil
}
