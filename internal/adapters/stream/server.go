// Package stream hosts the PacketStreamer backend: the gRPC service
// peers connect to and the per-peer session state machine.
package stream

import (
	"errors"
	"fmt"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lcalzada-xor/netsim/api/packet"
	"github.com/lcalzada-xor/netsim/internal/core/domain"
	"github.com/lcalzada-xor/netsim/internal/core/services/hub"
	"github.com/lcalzada-xor/netsim/internal/core/services/scene"
)

// Backend implements packet.PacketStreamerServer.
type Backend struct {
	scene *scene.Controller
	hub   *hub.Hub
}

func NewBackend(sc *scene.Controller, h *hub.Hub) *Backend {
	return &Backend{scene: sc, hub: h}
}

// StreamPackets runs one peer session until its stream ends.
func (b *Backend) StreamPackets(stream packet.PacketStreamer_StreamPacketsServer) error {
	s := newSession(b.scene, b.hub, stream)
	if err := s.run(); err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			return status.Error(codes.InvalidArgument, err.Error())
		}
		return status.Error(codes.Internal, err.Error())
	}
	return nil
}

// Serve builds a gRPC server for the backend and serves on lis.
func Serve(lis net.Listener, b *Backend) (*grpc.Server, error) {
	if lis == nil {
		return nil, fmt.Errorf("%w: no listener", domain.ErrUnavailable)
	}
	srv := grpc.NewServer()
	packet.RegisterPacketStreamerServer(srv, b)
	go func() {
		log.Printf("backend: packet streamer listening on %s", lis.Addr())
		if err := srv.Serve(lis); err != nil {
			log.Printf("backend: serve ended: %v", err)
		}
	}()
	return srv, nil
}
