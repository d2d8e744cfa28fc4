package model

import "context"

// Chunk is one unit of the inbound response sequence. Exactly one of Bytes or
// Err is set; a chunk with Err set that is transient may be followed by more
// chunks.
type Chunk struct {
	Bytes []byte
	Err   error
}

// Connection opens one duplex stream to the speech model. The outbound side
// consumes serialized envelopes from in until it is closed; the returned
// channel yields inbound chunks and is closed when the model ends the stream.
type Connection interface {
	Invoke(ctx context.Context, in <-chan []byte) (<-chan Chunk, error)
}
