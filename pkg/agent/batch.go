package agent

import (
	"context"
	"log/slog"

	"github.com/voicewire/voicewire/pkg/bus"
	"github.com/voicewire/voicewire/pkg/protocol"
)

// Without batching, audio playback tends to be choppy on the client.
const (
	minAudioBatchQueue = 10
	maxAudioPerBatch   = 20
)

// audioBatcher groups model audio chunks into sequenced batches before
// publishing them on the session channel. The sequence number is owned by the
// batcher instance; the client reorders on it.
type audioBatcher struct {
	channel  bus.Channel
	logger   *slog.Logger
	queue    []string
	sequence int64
}

func newAudioBatcher(channel bus.Channel, logger *slog.Logger) *audioBatcher {
	return &audioBatcher{channel: channel, logger: logger}
}

// Add buffers one chunk, publishing a batch once enough have accumulated.
func (b *audioBatcher) Add(ctx context.Context, chunk string) {
	b.queue = append(b.queue, chunk)
	if len(b.queue) <= minAudioBatchQueue {
		return
	}
	n := len(b.queue)
	if n > maxAudioPerBatch {
		n = maxAudioPerBatch
	}
	batch := b.queue[:n:n]
	b.queue = b.queue[n:]
	b.publish(ctx, batch)
}

// Flush publishes whatever is buffered, closing out the audio turn.
func (b *audioBatcher) Flush(ctx context.Context) {
	batch := b.queue
	b.queue = nil
	b.publish(ctx, batch)
}

func (b *audioBatcher) publish(ctx context.Context, blobs []string) {
	if blobs == nil {
		blobs = []string{}
	}
	ev, err := protocol.ServerEvent(protocol.EventAudioOutput, protocol.AudioPayload{
		Blobs:    blobs,
		Sequence: b.sequence,
	})
	if err != nil {
		b.logger.Error("building audioOutput event", "error", err)
		return
	}
	if err := b.channel.Publish(ctx, ev); err != nil {
		b.logger.Warn("publishing audioOutput, channel may be closed", "error", err)
	}
	b.sequence++
}
