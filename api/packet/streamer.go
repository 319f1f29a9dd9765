package packet

import (
	"context"

	"google.golang.org/grpc"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "netsim.packet.PacketStreamer"

	streamPacketsMethod = "/netsim.packet.PacketStreamer/StreamPackets"
)

// PacketStreamerServer is implemented by the simulator's backend.
type PacketStreamerServer interface {
	StreamPackets(PacketStreamer_StreamPacketsServer) error
}

// PacketStreamer_StreamPacketsServer is the server view of one peer
// stream.
type PacketStreamer_StreamPacketsServer interface {
	Send(*StreamPacketsResponse) error
	Recv() (*StreamPacketsRequest, error)
	grpc.ServerStream
}

type packetStreamerStreamPacketsServer struct {
	grpc.ServerStream
}

func (s *packetStreamerStreamPacketsServer) Send(m *StreamPacketsResponse) error {
	return s.ServerStream.SendMsg(m)
}

func (s *packetStreamerStreamPacketsServer) Recv() (*StreamPacketsRequest, error) {
	m := new(StreamPacketsRequest)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func streamPacketsHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(PacketStreamerServer).StreamPackets(&packetStreamerStreamPacketsServer{stream})
}

// PacketStreamer_ServiceDesc wires StreamPackets as a bidirectional
// stream.
var PacketStreamer_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PacketStreamerServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamPackets",
			Handler:       streamPacketsHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "netsim/packet_streamer",
}

// RegisterPacketStreamerServer attaches the backend to a gRPC server.
func RegisterPacketStreamerServer(s grpc.ServiceRegistrar, srv PacketStreamerServer) {
	s.RegisterService(&PacketStreamer_ServiceDesc, srv)
}

// PacketStreamerClient opens peer streams against a simulator.
type PacketStreamerClient interface {
	StreamPackets(ctx context.Context, opts ...grpc.CallOption) (PacketStreamer_StreamPacketsClient, error)
}

// PacketStreamer_StreamPacketsClient is the client view of the stream.
type PacketStreamer_StreamPacketsClient interface {
	Send(*StreamPacketsRequest) error
	Recv() (*StreamPacketsResponse, error)
	grpc.ClientStream
}

type packetStreamerClient struct {
	cc grpc.ClientConnInterface
}

func NewPacketStreamerClient(cc grpc.ClientConnInterface) PacketStreamerClient {
	return &packetStreamerClient{cc}
}

func (c *packetStreamerClient) StreamPackets(ctx context.Context, opts ...grpc.CallOption) (PacketStreamer_StreamPacketsClient, error) {
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &PacketStreamer_ServiceDesc.Streams[0], streamPacketsMethod, callOpts...)
	if err != nil {
		return nil, err
	}
	return &packetStreamerStreamPacketsClient{stream}, nil
}

type packetStreamerStreamPacketsClient struct {
	grpc.ClientStream
}

func (c *packetStreamerStreamPacketsClient) Send(m *StreamPacketsRequest) error {
	return c.ClientStream.SendMsg(m)
}

func (c *packetStreamerStreamPacketsClient) Recv() (*StreamPacketsResponse, error) {
	m := new(StreamPacketsResponse)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
