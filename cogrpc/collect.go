package cogrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"relaynet.dev/cogrpc/relay"
)

// CollectionStream yields the cargo the server pushes during one
// CollectCargo call.
//
// Items are handed over one at a time: the next item is not read from the
// call until the caller is ready for it. Each item must be acknowledged with
// InboundCargo.Ack once consumed. Recv returns io.EOF when the server ends
// the call; a refused CCA yields a *Error of KindCollectionRefused.
type CollectionStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stream  relay.CargoRelay_CollectCargoClient
	owed    *ackLedger
	log     *zap.Logger
	endCall func()

	items chan *InboundCargo
	done  chan struct{}

	// sendMu serialises Send and CloseSend on the ack side.
	sendMu     sync.Mutex
	sendClosed bool

	abortMu  sync.Mutex
	abortErr error

	// err is written before items is closed.
	err error
}

// CollectCargo opens a collection call authorised by the CCA that cca
// returns. cca is invoked exactly once, before the call is opened; its error
// is returned wrapped.
//
// A *Error is returned here when the call cannot be opened at all, and from
// CollectionStream.Recv when it fails later.
func (c *Client) CollectCargo(ctx context.Context, cca CCAProvider) (*CollectionStream, error) {
	if cca == nil {
		return nil, errors.New("cogrpc: nil CCA provider")
	}
	token, err := cca()
	if err != nil {
		return nil, fmt.Errorf("cogrpc: read cca: %w", err)
	}

	ctx, cancel, endCall, err := c.beginCall(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := c.relay.CollectCargo(withAuthorization(ctx, token))
	if err != nil {
		cancel()
		endCall()
		return nil, failure(collection, err)
	}

	s := &CollectionStream{
		ctx:     ctx,
		cancel:  cancel,
		stream:  stream,
		owed:    newAckLedger(),
		log:     c.log,
		endCall: endCall,
		items:   make(chan *InboundCargo),
		done:    make(chan struct{}),
	}
	go s.receive()
	return s, nil
}

// Recv blocks until the server pushes the next cargo or the call ends.
func (s *CollectionStream) Recv() (*InboundCargo, error) {
	item, ok := <-s.items
	if !ok {
		return nil, s.err
	}
	return item, nil
}

// Close aborts the call if it is still running and waits until its
// resources are released. It may be called from any goroutine, any number
// of times. Unacknowledged items can no longer be acknowledged.
func (s *CollectionStream) Close() error {
	s.abort(ErrStreamClosed)
	<-s.done
	return nil
}

func (s *CollectionStream) abort(cause error) {
	s.abortMu.Lock()
	if s.abortErr == nil {
		s.abortErr = cause
	}
	s.abortMu.Unlock()
	s.cancel()
}

func (s *CollectionStream) aborted() error {
	s.abortMu.Lock()
	defer s.abortMu.Unlock()
	return s.abortErr
}

func (s *CollectionStream) ack(id string) error {
	if !s.owed.Settle(id) {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return ErrStreamClosed
	}
	if err := s.stream.Send(&relay.CargoDeliveryAck{Id: id}); err != nil {
		return fmt.Errorf("cogrpc: ack cargo %q: %w", id, err)
	}
	s.log.Debug("collectCargo ack", zap.String("cargo_id", id))
	return nil
}

// closeSend closes the ack side once; later acks fail with ErrStreamClosed.
func (s *CollectionStream) closeSend(graceful bool) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return
	}
	s.sendClosed = true
	if !graceful {
		return
	}
	if err := s.stream.CloseSend(); err != nil {
		s.log.Debug("collectCargo close send", zap.Error(err))
	}
}

func (s *CollectionStream) receive() {
	err := s.receiveCargo()

	s.cancel()
	s.closeSend(false)
	s.endCall()

	s.err = err
	close(s.items)
	close(s.done)
}

func (s *CollectionStream) receiveCargo() error {
	for {
		msg, err := s.stream.Recv()
		if err == io.EOF {
			s.closeSend(true)
			if n := s.owed.Outstanding(); n > 0 {
				s.log.Info("collectCargo complete with unacknowledged cargo", zap.Int("unacknowledged", n))
			} else {
				s.log.Info("collectCargo complete")
			}
			return io.EOF
		}
		if err != nil {
			if cause := s.aborted(); cause != nil {
				return cause
			}
			f := failure(collection, err)
			if f.Kind == KindCollectionRefused {
				s.log.Warn("collectCargo: server refused cca", zap.Error(err))
			} else {
				s.log.Warn("collectCargo error", zap.Error(err))
			}
			return f
		}

		item := &InboundCargo{ID: msg.GetId(), Payload: msg.GetCargo(), stream: s}
		s.owed.Owe(item.ID)
		s.log.Debug("collectCargo item", zap.String("cargo_id", item.ID), zap.Int("bytes", len(item.Payload)))

		select {
		case s.items <- item:
		case <-s.ctx.Done():
			if cause := s.aborted(); cause != nil {
				return cause
			}
			return failure(collection, s.ctx.Err())
		}
	}
}
