package relay_test

import (
	"context"
	"io"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"relaynet.dev/cogrpc/internal/relaytest"
	"relaynet.dev/cogrpc/relay"
)

func dial(t *testing.T, svc *relaytest.Service) relay.CargoRelayClient {
	t.Helper()
	srv := relaytest.Start(t, svc)
	conn, err := grpc.NewClient("passthrough:///bufnet",
		srv.DialOption(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return relay.NewCargoRelayClient(conn)
}

func TestCargoRelay_DeliverRoundTrip(t *testing.T) {
	client := dial(t, &relaytest.Service{Deliver: relaytest.AckAll})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := client.DeliverCargo(ctx)
	if err != nil {
		t.Fatalf("DeliverCargo: %v", err)
	}
	payload := []byte{0x00, 0x01, 0xfe, 0xff}
	if err := stream.Send(&relay.CargoDelivery{Id: "a", Cargo: payload}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ack, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if ack.GetId() != "a" {
		t.Fatalf("ack id: got %q want a", ack.GetId())
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}
	if _, err := stream.Recv(); err != io.EOF {
		t.Fatalf("Recv after CloseSend: got %v want io.EOF", err)
	}
}

func TestCargoRelay_CollectRoundTrip(t *testing.T) {
	got := make(chan string, 1)
	client := dial(t, &relaytest.Service{
		Collect: func(stream relay.CargoRelay_CollectCargoServer) error {
			if err := stream.Send(&relay.CargoDelivery{Id: "srv-1", Cargo: []byte("hi")}); err != nil {
				return err
			}
			ack, err := stream.Recv()
			if err != nil {
				return err
			}
			got <- ack.GetId()
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := client.CollectCargo(ctx)
	if err != nil {
		t.Fatalf("CollectCargo: %v", err)
	}
	msg, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if msg.GetId() != "srv-1" || string(msg.GetCargo()) != "hi" {
		t.Fatalf("cargo: got %q %q", msg.GetId(), msg.GetCargo())
	}
	if err := stream.Send(msg.Ack()); err != nil {
		t.Fatalf("Send ack: %v", err)
	}
	if _, err := stream.Recv(); err != io.EOF {
		t.Fatalf("Recv at end: got %v want io.EOF", err)
	}
	if id := <-got; id != "srv-1" {
		t.Fatalf("server saw ack %q", id)
	}
}

func TestCargoRelay_Unimplemented(t *testing.T) {
	client := dial(t, &relaytest.Service{})

	stream, err := client.CollectCargo(context.Background())
	if err != nil {
		t.Fatalf("CollectCargo: %v", err)
	}
	if _, err := stream.Recv(); status.Code(err) != codes.Unimplemented {
		t.Fatalf("Recv: got %v want Unimplemented", err)
	}
}
