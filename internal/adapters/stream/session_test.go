package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/lcalzada-xor/netsim/api/packet"
	"github.com/lcalzada-xor/netsim/internal/core/domain"
	"github.com/lcalzada-xor/netsim/internal/core/services/hub"
	"github.com/lcalzada-xor/netsim/internal/core/services/scene"
)

type recvResult struct {
	msg *packet.StreamPacketsRequest
	err error
}

// fakeStream scripts Recv from a channel and records Send.
type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
	in  chan recvResult

	mu      sync.Mutex
	sent    []*packet.StreamPacketsResponse
	sendErr error
}

func newFakeStream(ctx context.Context) *fakeStream {
	return &fakeStream{ctx: ctx, in: make(chan recvResult, 16)}
}

func (s *fakeStream) Context() context.Context { return s.ctx }

func (s *fakeStream) Send(m *packet.StreamPacketsResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *fakeStream) Recv() (*packet.StreamPacketsRequest, error) {
	r, ok := <-s.in
	if !ok {
		return nil, io.EOF
	}
	return r.msg, r.err
}

func (s *fakeStream) push(msg *packet.StreamPacketsRequest) {
	s.in <- recvResult{msg: msg}
}

func (s *fakeStream) sentFrames() []*packet.StreamPacketsResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*packet.StreamPacketsResponse(nil), s.sent...)
}

type request struct {
	facadeID   domain.FacadeID
	packetType domain.HCIPacketType
}

type fakeFacade struct {
	mu       sync.Mutex
	nextID   uint32
	requests []request
}

func (f *fakeFacade) Add(domain.ChipID, domain.DeviceID) domain.FacadeID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return domain.FacadeID(f.nextID)
}

func (f *fakeFacade) Remove(domain.FacadeID) {}

func (f *fakeFacade) Reset(domain.FacadeID) {}

func (f *fakeFacade) Patch(domain.FacadeID, domain.ChipPatch) {}

func (f *fakeFacade) Get(domain.FacadeID) domain.ChipSnapshot { return domain.ChipSnapshot{} }

func (f *fakeFacade) HandleRequest(facadeID domain.FacadeID, _ []byte, packetType domain.HCIPacketType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request{facadeID, packetType})
}

func (f *fakeFacade) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestBackend() (*Backend, *scene.Controller, *hub.Hub, *fakeFacade) {
	sc := scene.NewController(scene.NewIDAllocator())
	h := hub.NewHub()
	facade := &fakeFacade{}
	sc.RegisterFacade(domain.ChipKindBluetooth, facade)
	h.RegisterFacade(domain.ChipKindBluetooth, facade)
	return NewBackend(sc, h), sc, h, facade
}

func peerContext(guid string) context.Context {
	md := metadata.Pairs(guidMetadataKey, guid)
	return metadata.NewIncomingContext(context.Background(), md)
}

func initialInfo(name string, kind packet.ChipKind) *packet.StreamPacketsRequest {
	return &packet.StreamPacketsRequest{InitialInfo: &packet.InitialInfo{
		Name: name,
		Chip: packet.ChipInfo{Kind: kind, ID: "bt-0"},
	}}
}

func TestHandshakeRejectedWithoutInitialInfo(t *testing.T) {
	backend, sc, _, _ := newTestBackend()
	stream := newFakeStream(peerContext("peer"))
	stream.push(&packet.StreamPacketsRequest{HCIPacket: &packet.HCIPacket{PacketType: packet.HCIPacketCommand}})

	err := backend.StreamPackets(stream)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Empty(t, sc.List(), "no device may be registered")
}

func TestHandshakeRejectedOnUnknownKind(t *testing.T) {
	backend, sc, _, _ := newTestBackend()
	stream := newFakeStream(peerContext("peer"))
	stream.push(initialInfo("dev", packet.ChipKindUnspecified))

	err := backend.StreamPackets(stream)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Empty(t, sc.List())
}

func TestSessionLifecycle(t *testing.T) {
	backend, sc, h, facade := newTestBackend()
	stream := newFakeStream(peerContext("peer"))

	done := make(chan error, 1)
	go func() { done <- backend.StreamPackets(stream) }()

	stream.push(initialInfo("Pixel_XL_3", packet.ChipKindBluetooth))
	require.Eventually(t, func() bool { return len(sc.List()) == 1 }, time.Second, time.Millisecond)

	dev := sc.List()[0]
	assert.Equal(t, "Pixel_XL_3", dev.Name)
	assert.Equal(t, "peer", dev.GUID)
	require.Len(t, dev.Chips, 1)
	facadeID := dev.Chips[0].FacadeID

	// A well-formed HCI frame reaches the facade.
	stream.push(&packet.StreamPacketsRequest{HCIPacket: &packet.HCIPacket{
		PacketType: packet.HCIPacketCommand,
		Packet:     []byte{0x03, 0x0C, 0x00},
	}})
	require.Eventually(t, func() bool { return facade.requestCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, domain.HCIPacketCommand, facade.requests[0].packetType)

	// A mis-shaped frame is skipped; the session stays open.
	stream.push(&packet.StreamPacketsRequest{Packet: []byte{0x01}})
	stream.push(&packet.StreamPacketsRequest{HCIPacket: &packet.HCIPacket{
		PacketType: packet.HCIPacketACL,
		Packet:     []byte{0x02},
	}})
	require.Eventually(t, func() bool { return facade.requestCount() == 2 }, time.Second, time.Millisecond)

	// A facade response reaches the peer through the hub.
	h.HandleResponse(domain.ChipKindBluetooth, facadeID, []byte{0x0E, 0x01}, domain.HCIPacketEvent)
	require.Eventually(t, func() bool { return len(stream.sentFrames()) == 1 }, time.Second, time.Millisecond)
	sent := stream.sentFrames()[0]
	require.NotNil(t, sent.HCIPacket)
	assert.Equal(t, packet.HCIPacketEvent, sent.HCIPacket.PacketType)

	// Peer closes: chip removed, responses become clean drops.
	close(stream.in)
	require.NoError(t, <-done)
	assert.Empty(t, sc.List())
	h.HandleResponse(domain.ChipKindBluetooth, facadeID, []byte{0x0E}, domain.HCIPacketEvent)
	assert.Len(t, stream.sentFrames(), 1, "response after close is dropped")
}

func TestWriteFailureClosesSession(t *testing.T) {
	backend, sc, h, _ := newTestBackend()
	stream := newFakeStream(peerContext("peer"))
	stream.sendErr = errors.New("broken pipe")

	done := make(chan error, 1)
	go func() { done <- backend.StreamPackets(stream) }()

	stream.push(initialInfo("dev", packet.ChipKindBluetooth))
	require.Eventually(t, func() bool { return len(sc.List()) == 1 }, time.Second, time.Millisecond)
	facadeID := sc.List()[0].Chips[0].FacadeID

	h.HandleResponse(domain.ChipKindBluetooth, facadeID, []byte{0x0E}, domain.HCIPacketEvent)

	require.Eventually(t, func() bool { return len(sc.List()) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, <-done)
	close(stream.in)
}

func TestFreshGUIDWithoutMetadata(t *testing.T) {
	backend, sc, _, _ := newTestBackend()
	stream := newFakeStream(context.Background())

	done := make(chan error, 1)
	go func() { done <- backend.StreamPackets(stream) }()

	stream.push(initialInfo("dev", packet.ChipKindBluetooth))
	require.Eventually(t, func() bool { return len(sc.List()) == 1 }, time.Second, time.Millisecond)
	assert.NotEmpty(t, sc.List()[0].GUID)

	close(stream.in)
	require.NoError(t, <-done)
}
