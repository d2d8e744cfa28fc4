package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// DefaultModelID is the speech-to-speech model invoked by default.
const DefaultModelID = "amazon.nova-sonic-v1:0"

// BedrockConnection implements Connection over the Bedrock bidirectional
// invoke API.
type BedrockConnection struct {
	client  *bedrockruntime.Client
	modelID string
	logger  *slog.Logger
}

func NewBedrockConnection(client *bedrockruntime.Client, modelID string, logger *slog.Logger) *BedrockConnection {
	if modelID == "" {
		modelID = DefaultModelID
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BedrockConnection{client: client, modelID: modelID, logger: logger}
}

func (c *BedrockConnection) Invoke(ctx context.Context, in <-chan []byte) (<-chan Chunk, error) {
	out, err := c.client.InvokeModelWithBidirectionalStream(ctx, &bedrockruntime.InvokeModelWithBidirectionalStreamInput{
		ModelId: aws.String(c.modelID),
	})
	if err != nil {
		return nil, err
	}
	stream := out.GetStream()

	go func() {
		for payload := range in {
			event := &types.InvokeModelWithBidirectionalStreamInputMemberChunk{
				Value: types.BidirectionalInputPayloadPart{Bytes: payload},
			}
			if err := stream.Send(ctx, event); err != nil {
				c.logger.Error("bedrock send failed", "error", err)
				break
			}
		}
		// Signals end-of-input to the service; the read side below keeps
		// draining response events until the service closes the stream.
		if err := stream.Close(); err != nil {
			c.logger.Error("bedrock stream close failed", "error", err)
		}
	}()

	chunks := make(chan Chunk, 16)
	go func() {
		defer close(chunks)
		for event := range stream.Events() {
			part, ok := event.(*types.InvokeModelWithBidirectionalStreamOutputMemberChunk)
			if !ok {
				c.logger.Warn("unexpected bedrock stream event", "type", fmt.Sprintf("%T", event))
				continue
			}
			select {
			case chunks <- Chunk{Bytes: part.Value.Bytes}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case chunks <- Chunk{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}

// IsTransient reports whether err is a model-side streaming hiccup that the
// read loop should log and survive rather than abort on.
func IsTransient(err error) bool {
	var streamErr *types.ModelStreamErrorException
	return errors.As(err, &streamErr)
}
