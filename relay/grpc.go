package relay

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CargoRelay service and method names as published by relaynet gateways.
//
// The stubs below are written by hand so this package does not require a
// protoc/codegen toolchain. Messages are encoded by Codec, which is forced on
// every call (see NewCargoRelayClient) and on servers through ServerCodec.
//
// Proto definition: cogrpc.proto.
const (
	ServiceName = "relaynet.cogrpc.CargoRelay"

	DeliverCargoMethod = "/relaynet.cogrpc.CargoRelay/DeliverCargo"
	CollectCargoMethod = "/relaynet.cogrpc.CargoRelay/CollectCargo"
)

// CargoRelayServer is the server API for the CargoRelay service.
type CargoRelayServer interface {
	DeliverCargo(CargoRelay_DeliverCargoServer) error
	CollectCargo(CargoRelay_CollectCargoServer) error
}

// UnimplementedCargoRelayServer can be embedded to have forward compatible implementations.
type UnimplementedCargoRelayServer struct{}

func (UnimplementedCargoRelayServer) DeliverCargo(CargoRelay_DeliverCargoServer) error {
	return status.Error(codes.Unimplemented, "method DeliverCargo not implemented")
}
func (UnimplementedCargoRelayServer) CollectCargo(CargoRelay_CollectCargoServer) error {
	return status.Error(codes.Unimplemented, "method CollectCargo not implemented")
}

// RegisterCargoRelayServer registers the CargoRelay service on a gRPC server.
//
// The server must be constructed with ServerCodec().
func RegisterCargoRelayServer(s grpc.ServiceRegistrar, srv CargoRelayServer) {
	s.RegisterService(&CargoRelay_ServiceDesc, srv)
}

// ServerCodec forces Codec for every message handled by a server.
func ServerCodec() grpc.ServerOption {
	return grpc.ForceServerCodec(Codec{})
}

// CargoRelayClient is the client API for the CargoRelay service.
type CargoRelayClient interface {
	DeliverCargo(ctx context.Context, opts ...grpc.CallOption) (CargoRelay_DeliverCargoClient, error)
	CollectCargo(ctx context.Context, opts ...grpc.CallOption) (CargoRelay_CollectCargoClient, error)
}

type cargoRelayClient struct{ cc grpc.ClientConnInterface }

func NewCargoRelayClient(cc grpc.ClientConnInterface) CargoRelayClient {
	return &cargoRelayClient{cc: cc}
}

func (c *cargoRelayClient) DeliverCargo(ctx context.Context, opts ...grpc.CallOption) (CargoRelay_DeliverCargoClient, error) {
	stream, err := c.cc.NewStream(ctx, &CargoRelay_ServiceDesc.Streams[0], DeliverCargoMethod, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	return &cargoRelayDeliverCargoClient{stream}, nil
}

func (c *cargoRelayClient) CollectCargo(ctx context.Context, opts ...grpc.CallOption) (CargoRelay_CollectCargoClient, error) {
	stream, err := c.cc.NewStream(ctx, &CargoRelay_ServiceDesc.Streams[1], CollectCargoMethod, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	return &cargoRelayCollectCargoClient{stream}, nil
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	out := make([]grpc.CallOption, 0, len(opts)+1)
	out = append(out, grpc.ForceCodec(Codec{}))
	return append(out, opts...)
}

// CargoRelay_DeliverCargoClient is the client side of a DeliverCargo call:
// cargo goes out, acknowledgements come back.
type CargoRelay_DeliverCargoClient interface {
	Send(*CargoDelivery) error
	Recv() (*CargoDeliveryAck, error)
	grpc.ClientStream
}

type cargoRelayDeliverCargoClient struct{ grpc.ClientStream }

func (x *cargoRelayDeliverCargoClient) Send(m *CargoDelivery) error {
	return x.ClientStream.SendMsg(m)
}

func (x *cargoRelayDeliverCargoClient) Recv() (*CargoDeliveryAck, error) {
	m := new(CargoDeliveryAck)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// CargoRelay_CollectCargoClient is the client side of a CollectCargo call:
// acknowledgements go out, cargo comes back.
type CargoRelay_CollectCargoClient interface {
	Send(*CargoDeliveryAck) error
	Recv() (*CargoDelivery, error)
	grpc.ClientStream
}

type cargoRelayCollectCargoClient struct{ grpc.ClientStream }

func (x *cargoRelayCollectCargoClient) Send(m *CargoDeliveryAck) error {
	return x.ClientStream.SendMsg(m)
}

func (x *cargoRelayCollectCargoClient) Recv() (*CargoDelivery, error) {
	m := new(CargoDelivery)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type CargoRelay_DeliverCargoServer interface {
	Send(*CargoDeliveryAck) error
	Recv() (*CargoDelivery, error)
	grpc.ServerStream
}

type cargoRelayDeliverCargoServer struct{ grpc.ServerStream }

func (x *cargoRelayDeliverCargoServer) Send(m *CargoDeliveryAck) error {
	return x.ServerStream.SendMsg(m)
}

func (x *cargoRelayDeliverCargoServer) Recv() (*CargoDelivery, error) {
	m := new(CargoDelivery)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type CargoRelay_CollectCargoServer interface {
	Send(*CargoDelivery) error
	Recv() (*CargoDeliveryAck, error)
	grpc.ServerStream
}

type cargoRelayCollectCargoServer struct{ grpc.ServerStream }

func (x *cargoRelayCollectCargoServer) Send(m *CargoDelivery) error {
	return x.ServerStream.SendMsg(m)
}

func (x *cargoRelayCollectCargoServer) Recv() (*CargoDeliveryAck, error) {
	m := new(CargoDeliveryAck)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _CargoRelay_DeliverCargo_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(CargoRelayServer).DeliverCargo(&cargoRelayDeliverCargoServer{stream})
}

func _CargoRelay_CollectCargo_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(CargoRelayServer).CollectCargo(&cargoRelayCollectCargoServer{stream})
}

// CargoRelay_ServiceDesc is the grpc.ServiceDesc for CargoRelay service.
var CargoRelay_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CargoRelayServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "DeliverCargo",
			Handler:       _CargoRelay_DeliverCargo_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
		{
			StreamName:    "CollectCargo",
			Handler:       _CargoRelay_CollectCargo_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "cogrpc.proto",
}
