package cogrpc

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"relaynet.dev/cogrpc/relay"
)

// DeliveryStream yields the ids of cargo acknowledged by the server during
// one DeliverCargo call, as the acknowledgements arrive.
//
// Recv returns io.EOF once the server ends the call, whether or not every
// cargo was acknowledged; callers detect unacknowledged cargo by comparing
// the ids received with the batch. Any other error is a *Error, or
// ErrStreamClosed after Close. Ids already returned stay valid when the call
// later fails.
type DeliveryStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stream  relay.CargoRelay_DeliverCargoClient
	pending *pendingSet
	log     *zap.Logger
	endCall func()

	acks    chan string
	settled chan struct{} // no more acks expected: close the send side
	settle  sync.Once
	done    chan struct{}

	abortMu  sync.Mutex
	abortErr error

	// err is written before acks is closed.
	err error
}

// DeliverCargo sends items to the server over one duplex call and returns the
// stream of acknowledged ids.
//
// An empty batch returns an already finished stream without contacting the
// server. Items must have distinct, non-empty ids. Payloads are opened
// lazily, one at a time, as items are sent; a payload reader still being
// read when the call ends is closed.
//
// A *Error is returned here when the call cannot be opened at all, and from
// DeliveryStream.Recv when it fails later.
func (c *Client) DeliverCargo(ctx context.Context, items []CargoItem) (*DeliveryStream, error) {
	if len(items) == 0 {
		return finishedDeliveryStream(), nil
	}

	pending := newPendingSet()
	for _, it := range items {
		if it.ID == "" {
			return nil, ErrEmptyCargoID
		}
		if !pending.Add(it.ID) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCargoID, it.ID)
		}
	}

	ctx, cancel, endCall, err := c.beginCall(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := c.relay.DeliverCargo(ctx)
	if err != nil {
		cancel()
		endCall()
		return nil, failure(delivery, err)
	}

	s := &DeliveryStream{
		ctx:     ctx,
		cancel:  cancel,
		stream:  stream,
		pending: pending,
		log:     c.log,
		endCall: endCall,
		acks:    make(chan string),
		settled: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.send(items)
	go s.receive()
	return s, nil
}

func finishedDeliveryStream() *DeliveryStream {
	s := &DeliveryStream{
		cancel: func() {},
		acks:   make(chan string),
		done:   make(chan struct{}),
		err:    io.EOF,
	}
	close(s.acks)
	close(s.done)
	return s
}

// Recv blocks until the next acknowledgement arrives or the call ends.
func (s *DeliveryStream) Recv() (string, error) {
	id, ok := <-s.acks
	if !ok {
		return "", s.err
	}
	return id, nil
}

// ReadAll collects every acknowledged id until the call ends. A normal end
// returns a nil error.
func (s *DeliveryStream) ReadAll() ([]string, error) {
	var ids []string
	for {
		id, err := s.Recv()
		if err == io.EOF {
			return ids, nil
		}
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
}

// Close aborts the call if it is still running and waits until its
// resources are released. It may be called from any goroutine, any number
// of times.
func (s *DeliveryStream) Close() error {
	s.abort(ErrStreamClosed)
	<-s.done
	return nil
}

func (s *DeliveryStream) abort(cause error) {
	s.abortMu.Lock()
	if s.abortErr == nil {
		s.abortErr = cause
	}
	s.abortMu.Unlock()
	s.cancel()
}

func (s *DeliveryStream) aborted() error {
	s.abortMu.Lock()
	defer s.abortMu.Unlock()
	return s.abortErr
}

func (s *DeliveryStream) settleSend() {
	s.settle.Do(func() { close(s.settled) })
}

// send owns the send side of the call: it pushes every item, then closes the
// send side once no more acks are expected. It may outlive the call.
func (s *DeliveryStream) send(items []CargoItem) {
	for _, it := range items {
		payload, err := it.read(s.ctx)
		if s.ctx.Err() != nil {
			// The call is over; Recv reports why.
			return
		}
		if err != nil {
			s.abort(&Error{
				Kind:    KindGeneric,
				Message: "deliverCargo: read cargo " + strconv.Quote(it.ID),
				Cause:   err,
			})
			return
		}
		s.log.Debug("deliverCargo next", zap.String("cargo_id", it.ID), zap.Int("bytes", len(payload)))
		if err := s.stream.Send(&relay.CargoDelivery{Id: it.ID, Cargo: payload}); err != nil {
			// The call is over; Recv reports why.
			s.log.Debug("deliverCargo send interrupted", zap.Error(err))
			return
		}
	}

	select {
	case <-s.settled:
	case <-s.ctx.Done():
		return
	}
	if err := s.stream.CloseSend(); err != nil {
		s.log.Debug("deliverCargo close send", zap.Error(err))
	}
}

func (s *DeliveryStream) receive() {
	err := s.receiveAcks()

	s.settleSend()
	s.cancel()
	s.endCall()

	s.err = err
	close(s.acks)
	close(s.done)
}

func (s *DeliveryStream) receiveAcks() error {
	for {
		ack, err := s.stream.Recv()
		if err == io.EOF {
			if left := s.pending.List(); len(left) > 0 {
				s.log.Info("deliverCargo ended before all cargo was acknowledged", zap.Strings("unacknowledged", left))
			} else {
				s.log.Info("deliverCargo complete")
			}
			return io.EOF
		}
		if err != nil {
			if cause := s.aborted(); cause != nil {
				return cause
			}
			s.log.Warn("ending deliverCargo due to ack error", zap.Error(err))
			return failure(delivery, err)
		}

		id := ack.GetId()
		found, left := s.pending.Remove(id)
		if !found {
			s.log.Warn("ignoring ack for cargo that is not pending", zap.String("cargo_id", id))
			continue
		}
		s.log.Debug("deliverCargo ack", zap.String("cargo_id", id), zap.Int("pending", left))
		if left == 0 {
			s.settleSend()
		}

		select {
		case s.acks <- id:
		case <-s.ctx.Done():
			if cause := s.aborted(); cause != nil {
				return cause
			}
			return failure(delivery, s.ctx.Err())
		}
	}
}
