package cogrpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"
)

// CargoItem is one outbound cargo. ID is chosen by the caller and must be
// unique within a DeliverCargo batch; the server only echoes it back.
//
// Open is called once, when the item is sent. The returned reader is read to
// the end and closed; it is closed early if the call ends first.
type CargoItem struct {
	ID   string
	Open func() (io.ReadCloser, error)
}

// NewCargoItem returns a CargoItem over an in-memory payload.
func NewCargoItem(id string, payload []byte) CargoItem {
	return CargoItem{
		ID: id,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		},
	}
}

func (it CargoItem) read(ctx context.Context) ([]byte, error) {
	if it.Open == nil {
		return nil, fmt.Errorf("cargo %q has no payload", it.ID)
	}
	rc, err := it.Open()
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
	b, err := io.ReadAll(rc)
	if !stop() {
		// rc was closed under the read.
		return nil, ctx.Err()
	}
	if cerr := rc.Close(); err == nil {
		err = cerr
	}
	return b, err
}

// CCAProvider returns the Cargo Collection Authorization for one
// CollectCargo call. It is invoked once, before the call is opened.
type CCAProvider func() ([]byte, error)

// InboundCargo is one cargo received from the server. ID is assigned by the
// server and is opaque to the client.
//
// Call Ack once the payload has been fully consumed (e.g. persisted); the
// server is told about it only then.
type InboundCargo struct {
	ID      string
	Payload []byte

	stream *CollectionStream
	acked  atomic.Bool
}

// Reader returns a fresh reader over the payload.
func (c *InboundCargo) Reader() io.Reader {
	return bytes.NewReader(c.Payload)
}

// Ack sends the acknowledgement for c. Only the first call sends anything;
// later calls return nil. After the collection has ended Ack returns
// ErrStreamClosed.
func (c *InboundCargo) Ack() error {
	if c.stream == nil {
		return ErrStreamClosed
	}
	if !c.acked.CompareAndSwap(false, true) {
		return nil
	}
	return c.stream.ack(c.ID)
}
