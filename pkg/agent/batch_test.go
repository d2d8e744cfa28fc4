package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/voicewire/voicewire/pkg/protocol"
)

type captureChannel struct {
	events []protocol.Event
	err    error
}

func (c *captureChannel) Publish(_ context.Context, ev protocol.Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *captureChannel) Subscribe(func(protocol.Event), func(error)) error { return nil }
func (c *captureChannel) Close() error                                      { return nil }

func audioBatches(t *testing.T, events []protocol.Event) []protocol.AudioPayload {
	t.Helper()
	var batches []protocol.AudioPayload
	for _, ev := range events {
		if ev.Event != protocol.EventAudioOutput {
			continue
		}
		var p protocol.AudioPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			t.Fatalf("decode audio payload: %v", err)
		}
		batches = append(batches, p)
	}
	return batches
}

func TestBatcherHoldsBelowThreshold(t *testing.T) {
	ch := &captureChannel{}
	b := newAudioBatcher(ch, slog.Default())
	ctx := context.Background()

	for i := 0; i < minAudioBatchQueue; i++ {
		b.Add(ctx, fmt.Sprintf("c%d", i))
	}
	if len(ch.events) != 0 {
		t.Fatalf("published %d batches before threshold", len(ch.events))
	}

	b.Add(ctx, "c10")
	batches := audioBatches(t, ch.events)
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if len(batches[0].Blobs) != minAudioBatchQueue+1 {
		t.Errorf("batch size = %d, want %d", len(batches[0].Blobs), minAudioBatchQueue+1)
	}
	if batches[0].Sequence != 0 {
		t.Errorf("first sequence = %d, want 0", batches[0].Sequence)
	}
}

func TestBatcherSurvivesPublishFailure(t *testing.T) {
	ch := &captureChannel{err: fmt.Errorf("channel down")}
	b := newAudioBatcher(ch, slog.Default())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		b.Add(ctx, fmt.Sprintf("c%d", i))
	}
	ch.err = nil
	b.Flush(ctx)

	batches := audioBatches(t, ch.events)
	if len(batches) != 1 {
		t.Fatalf("got %d batches after recovery, want 1", len(batches))
	}
	if batches[0].Sequence == 0 {
		t.Error("sequence should advance past the failed batch")
	}
}

func TestBatcherSequencesAndFlushes(t *testing.T) {
	ch := &captureChannel{}
	b := newAudioBatcher(ch, slog.Default())
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		b.Add(ctx, fmt.Sprintf("c%d", i))
	}
	b.Flush(ctx)

	batches := audioBatches(t, ch.events)
	if len(batches) < 2 {
		t.Fatalf("got %d batches, want at least 2", len(batches))
	}
	total := 0
	for i, batch := range batches {
		if batch.Sequence != int64(i) {
			t.Errorf("batch %d has sequence %d", i, batch.Sequence)
		}
		if len(batch.Blobs) > maxAudioPerBatch {
			t.Errorf("batch %d carries %d chunks, cap is %d", i, len(batch.Blobs), maxAudioPerBatch)
		}
		total += len(batch.Blobs)
	}
	if total != 25 {
		t.Errorf("delivered %d chunks, want 25", total)
	}
}

func TestBatcherFlushWhenEmpty(t *testing.T) {
	ch := &captureChannel{}
	b := newAudioBatcher(ch, slog.Default())

	b.Flush(context.Background())
	batches := audioBatches(t, ch.events)
	if len(batches) != 1 || len(batches[0].Blobs) != 0 {
		t.Errorf("empty flush should still publish a sequenced batch, got %v", batches)
	}
}
