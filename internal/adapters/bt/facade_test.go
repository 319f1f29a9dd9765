package bt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/netsim/internal/adapters/bt/emulator"
	"github.com/lcalzada-xor/netsim/internal/core/domain"
)

// pairDistances answers distance queries from a fixed table.
type pairDistances struct {
	distances map[[2]domain.DeviceID]float32
}

func (p *pairDistances) GetDistance(a, b domain.DeviceID) (float32, bool) {
	if d, ok := p.distances[[2]domain.DeviceID{a, b}]; ok {
		return d, true
	}
	if d, ok := p.distances[[2]domain.DeviceID{b, a}]; ok {
		return d, true
	}
	if a == b {
		return 0, true
	}
	return 0, false
}

type sinkFrame struct {
	kind       domain.ChipKind
	facadeID   domain.FacadeID
	packet     []byte
	packetType domain.HCIPacketType
}

type recordSink struct {
	mu     sync.Mutex
	frames []sinkFrame
}

func (r *recordSink) HandleResponse(kind domain.ChipKind, facadeID domain.FacadeID, packet []byte, packetType domain.HCIPacketType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, sinkFrame{kind, facadeID, append([]byte(nil), packet...), packetType})
}

func (r *recordSink) snapshot() []sinkFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sinkFrame(nil), r.frames...)
}

func newTestFacade(t *testing.T, distances *pairDistances) (*Facade, *recordSink) {
	t.Helper()
	if distances == nil {
		distances = &pairDistances{distances: map[[2]domain.DeviceID]float32{}}
	}
	f := NewFacade(distances)
	t.Cleanup(f.Stop)
	sink := &recordSink{}
	f.SetResponseSink(sink)
	return f, sink
}

func btSnapshot(f *Facade, id domain.FacadeID) *domain.BluetoothSnapshot {
	return f.Get(id).Bluetooth
}

func TestAddJoinsBothPhys(t *testing.T) {
	f, _ := newTestFacade(t, nil)
	facadeID := f.Add(1, 1)
	assert.Equal(t, domain.FacadeID(1), facadeID)

	snap := btSnapshot(f, facadeID)
	require.NotNil(t, snap)
	assert.Equal(t, domain.RadioStateOn, snap.Classic.State)
	assert.Equal(t, domain.RadioStateOn, snap.LowEnergy.State)

	id := emulator.ControllerID(facadeID)
	require.Eventually(t, func() bool {
		return len(f.engine.MembersOfPhy(f.phyClassicIndex)) == 1 &&
			len(f.engine.MembersOfPhy(f.phyLowEnergyIndex)) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []emulator.ControllerID{id}, f.engine.MembersOfPhy(f.phyClassicIndex))
}

func TestPatchRadioToggleAndIdempotence(t *testing.T) {
	f, _ := newTestFacade(t, nil)
	facadeID := f.Add(1, 1)

	off := domain.ChipPatch{Bluetooth: &domain.BluetoothPatch{
		Classic: &domain.RadioPatch{State: domain.RadioStateOff},
	}}
	f.Patch(facadeID, off)

	snap := btSnapshot(f, facadeID)
	assert.Equal(t, domain.RadioStateOff, snap.Classic.State)
	assert.Equal(t, domain.RadioStateOn, snap.LowEnergy.State)
	require.Eventually(t, func() bool {
		return len(f.engine.MembersOfPhy(f.phyClassicIndex)) == 0
	}, time.Second, time.Millisecond)
	assert.Len(t, f.engine.MembersOfPhy(f.phyLowEnergyIndex), 1)

	// Same patch again changes nothing.
	f.Patch(facadeID, off)
	assert.Equal(t, domain.RadioStateOff, btSnapshot(f, facadeID).Classic.State)
	assert.Empty(t, f.engine.MembersOfPhy(f.phyClassicIndex))

	// UNKNOWN is a no-op.
	f.Patch(facadeID, domain.ChipPatch{Bluetooth: &domain.BluetoothPatch{
		Classic: &domain.RadioPatch{State: domain.RadioStateUnknown},
	}})
	assert.Equal(t, domain.RadioStateOff, btSnapshot(f, facadeID).Classic.State)

	f.Patch(facadeID, domain.ChipPatch{Bluetooth: &domain.BluetoothPatch{
		Classic: &domain.RadioPatch{State: domain.RadioStateOn},
	}})
	require.Eventually(t, func() bool {
		return len(f.engine.MembersOfPhy(f.phyClassicIndex)) == 1
	}, time.Second, time.Millisecond)
}

// hciReset, advDataCmd and advEnableCmd build the HCI commands a peer
// issues to start advertising.
var hciReset = []byte{0x03, 0x0C, 0x00}

func advDataCmd(data []byte) []byte {
	cmd := []byte{0x08, 0x20, byte(len(data) + 1), byte(len(data))}
	return append(cmd, data...)
}

func advEnableCmd() []byte {
	return []byte{0x0A, 0x20, 0x01, 0x01}
}

func framesFor(sink *recordSink, facadeID domain.FacadeID) []sinkFrame {
	var frames []sinkFrame
	for _, fr := range sink.snapshot() {
		if fr.facadeID == facadeID {
			frames = append(frames, fr)
		}
	}
	return frames
}

func TestRssiRewriteAndCounters(t *testing.T) {
	distances := &pairDistances{distances: map[[2]domain.DeviceID]float32{
		{1, 2}: 10,
	}}
	f, sink := newTestFacade(t, distances)
	sender := f.Add(1, 1)
	receiver := f.Add(2, 2)

	// The peer resets its controller, loads an advertisement carrying a
	// -20 dBm TX power AD element, and enables advertising.
	advData := []byte{0x02, 0x0A, 0xEC}
	f.HandleRequest(sender, hciReset, domain.HCIPacketCommand)
	f.HandleRequest(sender, advDataCmd(advData), domain.HCIPacketCommand)
	f.HandleRequest(sender, advEnableCmd(), domain.HCIPacketCommand)

	require.Eventually(t, func() bool {
		return len(framesFor(sink, receiver)) == 1
	}, time.Second, time.Millisecond)

	got := framesFor(sink, receiver)[0]
	assert.Equal(t, domain.ChipKindBluetooth, got.kind)
	assert.Equal(t, domain.HCIPacketEvent, got.packetType)
	// -20 - 20*log10(10) = -40, carried in the trailing byte.
	assert.Equal(t, append(append([]byte(nil), advData...), 0xD8), got.packet)

	// The sender saw its three command acks, nothing else.
	assert.Len(t, framesFor(sink, sender), 3)

	assert.Equal(t, uint64(1), btSnapshot(f, sender).LowEnergy.TxCount)
	assert.Equal(t, uint64(1), btSnapshot(f, receiver).LowEnergy.RxCount)
	assert.Zero(t, btSnapshot(f, sender).Classic.TxCount)
	assert.Zero(t, btSnapshot(f, receiver).Classic.RxCount)
}

func TestRssiUnmappedDeviceKeepsTxPower(t *testing.T) {
	f, _ := newTestFacade(t, &pairDistances{distances: map[[2]domain.DeviceID]float32{}})
	sender := f.Add(1, 1)
	rssi := f.ComputeRssi(emulator.ControllerID(sender), emulator.ControllerID(99), -20)
	assert.Equal(t, int8(-20), rssi)
}

func TestResetRestoresStateAndZeroesCounters(t *testing.T) {
	distances := &pairDistances{distances: map[[2]domain.DeviceID]float32{{1, 2}: 1}}
	f, _ := newTestFacade(t, distances)
	sender := f.Add(1, 1)
	f.Add(2, 2)

	f.HandleRequest(sender, hciReset, domain.HCIPacketCommand)
	f.HandleRequest(sender, advDataCmd([]byte{0x01}), domain.HCIPacketCommand)
	f.HandleRequest(sender, advEnableCmd(), domain.HCIPacketCommand)
	require.Eventually(t, func() bool {
		return btSnapshot(f, sender).LowEnergy.TxCount == 1
	}, time.Second, time.Millisecond)

	f.Patch(sender, domain.ChipPatch{Bluetooth: &domain.BluetoothPatch{
		Classic: &domain.RadioPatch{State: domain.RadioStateOff},
	}})
	f.Reset(sender)

	snap := btSnapshot(f, sender)
	assert.Equal(t, domain.RadioStateOn, snap.Classic.State)
	assert.Equal(t, domain.RadioStateOn, snap.LowEnergy.State)
	assert.Zero(t, snap.Classic.TxCount)
	assert.Zero(t, snap.LowEnergy.TxCount)
	assert.Zero(t, snap.LowEnergy.RxCount)
	require.Eventually(t, func() bool {
		return len(f.engine.MembersOfPhy(f.phyClassicIndex)) == 2
	}, time.Second, time.Millisecond)
}

func TestRemoveDropsChip(t *testing.T) {
	f, sink := newTestFacade(t, nil)
	facadeID := f.Add(1, 1)
	f.Remove(facadeID)

	assert.Nil(t, f.Get(facadeID).Bluetooth)
	require.Eventually(t, func() bool {
		return len(f.engine.MembersOfPhy(f.phyLowEnergyIndex)) == 0
	}, time.Second, time.Millisecond)

	// Requests and removals for the gone id are logged drops, no panic.
	f.HandleRequest(facadeID, []byte{0x03, 0x0C, 0x00}, domain.HCIPacketCommand)
	f.Remove(facadeID)
	assert.Empty(t, sink.snapshot())
}

func TestHandleRequestRoundTrip(t *testing.T) {
	f, sink := newTestFacade(t, nil)
	facadeID := f.Add(1, 1)

	// HCI Reset: the engine acks with a command complete event.
	f.HandleRequest(facadeID, []byte{0x03, 0x0C, 0x00}, domain.HCIPacketCommand)
	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, time.Millisecond)

	got := sink.snapshot()[0]
	assert.Equal(t, facadeID, got.facadeID)
	assert.Equal(t, domain.HCIPacketEvent, got.packetType)
	assert.Equal(t, []byte{0x0E, 0x04, 0x01, 0x03, 0x0C, 0x00}, got.packet)
}

func TestCountersNeverGoBackwards(t *testing.T) {
	distances := &pairDistances{distances: map[[2]domain.DeviceID]float32{{1, 2}: 1}}
	f, _ := newTestFacade(t, distances)
	sender := f.Add(1, 1)
	f.Add(2, 2)

	f.HandleRequest(sender, hciReset, domain.HCIPacketCommand)
	f.HandleRequest(sender, advDataCmd([]byte{0x01}), domain.HCIPacketCommand)

	var last uint64
	for i := 0; i < 5; i++ {
		// Re-enabling advertising broadcasts the payload again.
		f.HandleRequest(sender, advEnableCmd(), domain.HCIPacketCommand)
		require.Eventually(t, func() bool {
			return btSnapshot(f, sender).LowEnergy.TxCount > last
		}, time.Second, time.Millisecond)
		cur := btSnapshot(f, sender).LowEnergy.TxCount
		assert.Greater(t, cur, last)
		last = cur
	}
}
