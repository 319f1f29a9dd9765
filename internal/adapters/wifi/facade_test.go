package wifi

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/netsim/internal/core/domain"
)

// syncService hands submitted frames straight back to the receiver.
type syncService struct {
	mu        sync.Mutex
	receiver  func([]byte)
	submitted [][]byte
	echo      bool
}

func (s *syncService) Submit(packet []byte) {
	s.mu.Lock()
	s.submitted = append(s.submitted, packet)
	receiver := s.receiver
	echo := s.echo
	s.mu.Unlock()
	if echo && receiver != nil {
		receiver(packet)
	}
}

func (s *syncService) SetReceiver(receiver func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiver = receiver
}

type sinkFrame struct {
	kind       domain.ChipKind
	facadeID   domain.FacadeID
	packetType domain.HCIPacketType
}

type recordSink struct {
	mu     sync.Mutex
	frames []sinkFrame
}

func (r *recordSink) HandleResponse(kind domain.ChipKind, facadeID domain.FacadeID, _ []byte, packetType domain.HCIPacketType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, sinkFrame{kind, facadeID, packetType})
}

func radio(f *Facade, id domain.FacadeID) *domain.RadioSnapshot {
	return f.Get(id).Radio
}

func TestHandleRequestCountsAndSubmits(t *testing.T) {
	service := &syncService{}
	f := NewFacade(service)
	id := f.Add(1, 1)

	f.HandleRequest(id, []byte{0x01}, domain.HCIPacketUnspecified)
	assert.Equal(t, uint64(1), radio(f, id).TxCount)
	assert.Len(t, service.submitted, 1)
}

func TestHandleRequestDroppedWhenOff(t *testing.T) {
	service := &syncService{}
	f := NewFacade(service)
	id := f.Add(1, 1)

	off := domain.RadioStateOff
	f.Patch(id, domain.ChipPatch{Radio: &domain.RadioPatch{State: off}})
	f.HandleRequest(id, []byte{0x01}, domain.HCIPacketUnspecified)

	assert.Zero(t, radio(f, id).TxCount)
	assert.Empty(t, service.submitted)
}

func TestReceiveBroadcastsToPoweredOnChips(t *testing.T) {
	service := &syncService{echo: true}
	f := NewFacade(service)
	sink := &recordSink{}
	f.SetResponseSink(sink)

	a := f.Add(1, 1)
	b := f.Add(2, 2)
	c := f.Add(3, 3)
	f.Patch(c, domain.ChipPatch{Radio: &domain.RadioPatch{State: domain.RadioStateOff}})

	f.HandleRequest(a, []byte{0xAB}, domain.HCIPacketUnspecified)

	// The sender is a powered-on chip too: broadcast reaches everyone ON.
	require.Len(t, sink.frames, 2)
	for _, fr := range sink.frames {
		assert.Equal(t, domain.ChipKindWifi, fr.kind)
		assert.Equal(t, domain.HCIPacketUnspecified, fr.packetType)
	}
	assert.Equal(t, uint64(1), radio(f, a).RxCount)
	assert.Equal(t, uint64(1), radio(f, b).RxCount)
	assert.Zero(t, radio(f, c).RxCount)
}

func TestPatchIdempotentAndUnknownNoop(t *testing.T) {
	f := NewFacade(nil)
	id := f.Add(1, 1)

	off := domain.ChipPatch{Radio: &domain.RadioPatch{State: domain.RadioStateOff}}
	f.Patch(id, off)
	f.Patch(id, off)
	assert.Equal(t, domain.RadioStateOff, radio(f, id).State)

	f.Patch(id, domain.ChipPatch{Radio: &domain.RadioPatch{State: domain.RadioStateUnknown}})
	assert.Equal(t, domain.RadioStateOff, radio(f, id).State)
}

func TestResetRestoresDefaults(t *testing.T) {
	service := &syncService{}
	f := NewFacade(service)
	id := f.Add(1, 1)

	f.HandleRequest(id, []byte{0x01}, domain.HCIPacketUnspecified)
	f.Patch(id, domain.ChipPatch{Radio: &domain.RadioPatch{State: domain.RadioStateOff}})
	f.Reset(id)

	snap := radio(f, id)
	assert.Equal(t, domain.RadioStateOn, snap.State)
	assert.Zero(t, snap.TxCount)
	assert.Zero(t, snap.RxCount)
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	f := NewFacade(nil)
	f.Remove(42)
	assert.Nil(t, f.Get(42).Radio)
}

func TestFacadeIDsNeverReused(t *testing.T) {
	f := NewFacade(nil)
	a := f.Add(1, 1)
	f.Remove(a)
	b := f.Add(2, 1)
	assert.Greater(t, b, a)
}
