// Package relaytest runs an in-memory CargoRelay server for tests.
package relaytest

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"relaynet.dev/cogrpc/relay"
)

// Service dispatches each call to the matching handler. A nil handler
// answers Unimplemented.
type Service struct {
	relay.UnimplementedCargoRelayServer

	Deliver func(relay.CargoRelay_DeliverCargoServer) error
	Collect func(relay.CargoRelay_CollectCargoServer) error

	deliverCalls atomic.Int32
	collectCalls atomic.Int32
}

func (s *Service) DeliverCargo(stream relay.CargoRelay_DeliverCargoServer) error {
	s.deliverCalls.Add(1)
	if s.Deliver == nil {
		return status.Error(codes.Unimplemented, "no deliver handler")
	}
	return s.Deliver(stream)
}

func (s *Service) CollectCargo(stream relay.CargoRelay_CollectCargoServer) error {
	s.collectCalls.Add(1)
	if s.Collect == nil {
		return status.Error(codes.Unimplemented, "no collect handler")
	}
	return s.Collect(stream)
}

// DeliverCalls returns how many DeliverCargo calls reached the server.
func (s *Service) DeliverCalls() int { return int(s.deliverCalls.Load()) }

// CollectCalls returns how many CollectCargo calls reached the server.
func (s *Service) CollectCalls() int { return int(s.collectCalls.Load()) }

// Server is a gRPC server listening on an in-memory bufconn listener.
type Server struct {
	lis *bufconn.Listener
	srv *grpc.Server
}

// Start serves svc until the test ends.
func Start(t testing.TB, svc relay.CargoRelayServer) *Server {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer(relay.ServerCodec())
	relay.RegisterCargoRelayServer(srv, svc)

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)
	return &Server{lis: lis, srv: srv}
}

// DialOption routes every connection of a client to the in-memory listener,
// whatever the target address.
func (s *Server) DialOption() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return s.lis.DialContext(ctx)
	})
}

// Stop stops the server immediately, aborting open calls.
func (s *Server) Stop() { s.srv.Stop() }

// AckAll acknowledges every cargo of a DeliverCargo call until the client
// closes its side, then ends the call.
func AckAll(stream relay.CargoRelay_DeliverCargoServer) error {
	for {
		msg, err := stream.Recv()
		if err != nil {
			return nil
		}
		if err := stream.Send(msg.Ack()); err != nil {
			return err
		}
	}
}
