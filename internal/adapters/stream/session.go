package stream

import (
	"fmt"
	"log"
	"sync"

	"google.golang.org/grpc/metadata"

	"github.com/google/uuid"
	"github.com/lcalzada-xor/netsim/api/packet"
	"github.com/lcalzada-xor/netsim/internal/core/domain"
	"github.com/lcalzada-xor/netsim/internal/core/services/hub"
	"github.com/lcalzada-xor/netsim/internal/core/services/scene"
	"github.com/lcalzada-xor/netsim/internal/telemetry"
)

// guidMetadataKey lets a peer pin its device identity across
// reconnects. Without it every stream gets a fresh guid.
const guidMetadataKey = "x-netsim-guid"

const outboundQueueDepth = 256

// session is one peer's stream: AwaitingInitialInfo, then Streaming,
// then Closed. The reader runs on the gRPC handler goroutine; writes
// are serialized through a dedicated writer goroutine.
type session struct {
	scene  *scene.Controller
	hub    *hub.Hub
	stream packet.PacketStreamer_StreamPacketsServer

	kind     domain.ChipKind
	deviceID domain.DeviceID
	chipID   domain.ChipID
	facadeID domain.FacadeID

	out       chan *packet.StreamPacketsResponse
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(sc *scene.Controller, h *hub.Hub, stream packet.PacketStreamer_StreamPacketsServer) *session {
	return &session{
		scene:  sc,
		hub:    h,
		stream: stream,
		out:    make(chan *packet.StreamPacketsResponse, outboundQueueDepth),
		done:   make(chan struct{}),
	}
}

// handshake reads exactly one message and registers the chip. Anything
// but a valid initial_info is an InvalidArgument.
func (s *session) handshake() error {
	msg, err := s.stream.Recv()
	if err != nil {
		return fmt.Errorf("%w: stream ended before initial_info", domain.ErrInvalidArgument)
	}
	info := msg.InitialInfo
	if info == nil {
		return fmt.Errorf("%w: first message lacks initial_info", domain.ErrInvalidArgument)
	}
	kind := chipKindFromWire(info.Chip.Kind)
	if kind == domain.ChipKindUnspecified {
		return fmt.Errorf("%w: unknown chip kind %d", domain.ErrInvalidArgument, info.Chip.Kind)
	}

	deviceID, chipID, facadeID, err := s.scene.AddChip(
		s.peerGUID(), info.Name, kind,
		info.Chip.ID, info.Chip.Manufacturer, info.Chip.ProductName,
	)
	if err != nil {
		return err
	}
	s.kind = kind
	s.deviceID = deviceID
	s.chipID = chipID
	s.facadeID = facadeID

	s.hub.AttachSession(kind, facadeID, s)
	telemetry.SessionsActive.Inc()
	log.Printf("stream: peer registered %s chip %d (device %d, facade %d)", kind, chipID, deviceID, facadeID)
	return nil
}

// run drives the session to completion and tears it down. The handler
// returns either on peer EOF or on a write failure; returning cancels
// the stream, which unblocks the reader.
func (s *session) run() error {
	if err := s.handshake(); err != nil {
		return err
	}
	defer s.close()

	go s.writeLoop()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			msg, err := s.stream.Recv()
			if err != nil {
				return
			}
			select {
			case <-s.done:
				return
			default:
			}
			s.dispatch(msg)
		}
	}()

	select {
	case <-readDone:
	case <-s.done:
	}
	return nil
}

// dispatch validates a streaming frame's shape against the session kind
// and forwards it. Mismatched frames are logged and skipped, the stream
// stays open.
func (s *session) dispatch(msg *packet.StreamPacketsRequest) {
	switch s.kind {
	case domain.ChipKindBluetooth:
		if msg.HCIPacket == nil {
			log.Printf("stream: non-HCI frame on bluetooth session %d, ignoring", s.chipID)
			telemetry.PacketsDropped.WithLabelValues(s.kind.String(), "bad_shape").Inc()
			return
		}
		s.hub.HandleRequest(s.kind, s.facadeID, msg.HCIPacket.Packet, domain.HCIPacketType(msg.HCIPacket.PacketType))
	default:
		if msg.Packet == nil {
			log.Printf("stream: frame without packet bytes on %s session %d, ignoring", s.kind, s.chipID)
			telemetry.PacketsDropped.WithLabelValues(s.kind.String(), "bad_shape").Inc()
			return
		}
		s.hub.HandleRequest(s.kind, s.facadeID, msg.Packet, domain.HCIPacketUnspecified)
	}
}

// Write enqueues an outbound frame for the writer goroutine, preserving
// the order the facade produced. Writes on a closed session are dropped
// with ErrClosed.
func (s *session) Write(kind domain.ChipKind, packetType domain.HCIPacketType, payload []byte) error {
	resp := &packet.StreamPacketsResponse{}
	if kind == domain.ChipKindBluetooth {
		resp.HCIPacket = &packet.HCIPacket{
			PacketType: packet.HCIPacketType(packetType),
			Packet:     payload,
		}
	} else {
		resp.Packet = payload
	}
	select {
	case s.out <- resp:
		return nil
	case <-s.done:
		return domain.ErrClosed
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case resp := <-s.out:
			if err := s.stream.Send(resp); err != nil {
				log.Printf("stream: write failed on session %d: %v", s.chipID, err)
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// close transitions to Closed exactly once: the routing entry goes away
// first so a response racing with teardown is a clean drop, then the
// chip is removed from the scene.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.hub.DetachSession(s.kind, s.facadeID)
		if err := s.scene.RemoveChip(s.deviceID, s.chipID); err != nil {
			log.Printf("stream: remove chip %d: %v", s.chipID, err)
		}
		telemetry.SessionsActive.Dec()
	})
}

func (s *session) peerGUID() string {
	if md, ok := metadata.FromIncomingContext(s.stream.Context()); ok {
		if vals := md.Get(guidMetadataKey); len(vals) > 0 && vals[0] != "" {
			return vals[0]
		}
	}
	return uuid.New().String()
}

func chipKindFromWire(kind packet.ChipKind) domain.ChipKind {
	switch kind {
	case packet.ChipKindBluetooth:
		return domain.ChipKindBluetooth
	case packet.ChipKindWifi:
		return domain.ChipKindWifi
	case packet.ChipKindUWB:
		return domain.ChipKindUWB
	default:
		return domain.ChipKindUnspecified
	}
}
