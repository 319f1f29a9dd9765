// Package bt is the Bluetooth radio facade. It owns per-chip controller
// state, keeps each chip's membership in the two simulated PHYs in sync
// with its radio states, and interposes the engine's air interface to
// rewrite RSSI from scene positions.
package bt

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/lcalzada-xor/netsim/internal/adapters/bt/emulator"
	"github.com/lcalzada-xor/netsim/internal/core/domain"
	"github.com/lcalzada-xor/netsim/internal/core/ports"
	"github.com/lcalzada-xor/netsim/internal/geo"
)

type chipInfo struct {
	chipID       domain.ChipID
	deviceID     domain.DeviceID
	controllerID emulator.ControllerID
	transport    *hciTransport

	// Radio states are guarded by the facade lock; counters are atomic
	// because the engine loop bumps them while snapshots read them.
	classicState   domain.RadioState
	lowEnergyState domain.RadioState
	classicTx      atomic.Uint64
	classicRx      atomic.Uint64
	leTx           atomic.Uint64
	leRx           atomic.Uint64
}

// Facade implements ports.Facade for ChipKindBluetooth.
type Facade struct {
	engine    *emulator.Engine
	distances ports.DistanceProvider

	mu    sync.RWMutex
	chips map[domain.FacadeID]*chipInfo
	sink  ports.ResponseSink

	phyClassicIndex   int
	phyLowEnergyIndex int
}

// NewFacade builds the facade and starts its controller engine. The
// engine emits a hardware-error event before the first HCI Reset so a
// peer restoring from a snapshot re-initializes its stack.
func NewFacade(distances ports.DistanceProvider) *Facade {
	f := &Facade{
		distances: distances,
		chips:     make(map[domain.FacadeID]*chipInfo),
	}
	f.engine = emulator.New(emulator.Config{
		HardwareErrorBeforeReset: true,
		Observer:                 f,
	})
	// NOTE: 0:BR_EDR, 1:LOW_ENERGY. The order is relied on by peers.
	f.phyClassicIndex = f.engine.AddPhy(emulator.PhyBrEdr)
	f.phyLowEnergyIndex = f.engine.AddPhy(emulator.PhyLowEnergy)
	return f
}

// SetResponseSink wires the packet hub for controller-to-host frames.
func (f *Facade) SetResponseSink(sink ports.ResponseSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
}

// Stop shuts down the controller event loop.
func (f *Facade) Stop() { f.engine.Close() }

// Add connects a new controller for the chip and joins both PHYs, the
// default ON state for both radios.
func (f *Facade) Add(chipID domain.ChipID, deviceID domain.DeviceID) domain.FacadeID {
	transport := newHCITransport(f)
	controllerID := f.engine.AddConnection(transport)
	facadeID := domain.FacadeID(controllerID)
	transport.connect(controllerID)

	info := &chipInfo{
		chipID:         chipID,
		deviceID:       deviceID,
		controllerID:   controllerID,
		transport:      transport,
		classicState:   domain.RadioStateOn,
		lowEnergyState: domain.RadioStateOn,
	}
	f.mu.Lock()
	f.chips[facadeID] = info
	f.mu.Unlock()

	f.engine.AddDeviceToPhy(controllerID, f.phyClassicIndex)
	f.engine.AddDeviceToPhy(controllerID, f.phyLowEnergyIndex)
	log.Printf("bt: created HCI facade %d for chip %d", facadeID, chipID)
	return facadeID
}

// Remove tears down the controller. The engine closes the transport.
func (f *Facade) Remove(facadeID domain.FacadeID) {
	f.mu.Lock()
	info, ok := f.chips[facadeID]
	if ok {
		delete(f.chips, facadeID)
	}
	f.mu.Unlock()
	if !ok {
		log.Printf("bt: remove unknown facade %d", facadeID)
		return
	}
	f.engine.RemoveDevice(info.controllerID)
}

// Reset turns both radios ON, rejoins both PHYs and zeroes the counters.
func (f *Facade) Reset(facadeID domain.FacadeID) {
	f.mu.Lock()
	info, ok := f.chips[facadeID]
	if !ok {
		f.mu.Unlock()
		log.Printf("bt: reset unknown facade %d", facadeID)
		return
	}
	info.classicTx.Store(0)
	info.classicRx.Store(0)
	info.leTx.Store(0)
	info.leRx.Store(0)
	f.mu.Unlock()

	on := domain.RadioStateOn
	f.Patch(facadeID, domain.ChipPatch{Bluetooth: &domain.BluetoothPatch{
		Classic:   &domain.RadioPatch{State: on},
		LowEnergy: &domain.RadioPatch{State: on},
	}})
}

// Patch applies radio-state changes. A field takes effect only when
// present, different from the current state, and not UNKNOWN.
func (f *Facade) Patch(facadeID domain.FacadeID, patch domain.ChipPatch) {
	bt := patch.Bluetooth
	if bt == nil {
		return
	}
	f.mu.Lock()
	info, ok := f.chips[facadeID]
	if !ok {
		f.mu.Unlock()
		log.Printf("bt: patch unknown facade %d", facadeID)
		return
	}

	type phyChange struct {
		phyIndex int
		join     bool
	}
	var changes []phyChange
	if bt.Classic != nil && changedState(info.classicState, bt.Classic.State) {
		info.classicState = bt.Classic.State
		changes = append(changes, phyChange{f.phyClassicIndex, bt.Classic.State == domain.RadioStateOn})
	}
	if bt.LowEnergy != nil && changedState(info.lowEnergyState, bt.LowEnergy.State) {
		info.lowEnergyState = bt.LowEnergy.State
		changes = append(changes, phyChange{f.phyLowEnergyIndex, bt.LowEnergy.State == domain.RadioStateOn})
	}
	controllerID := info.controllerID
	f.mu.Unlock()

	for _, ch := range changes {
		if ch.join {
			f.engine.AddDeviceToPhy(controllerID, ch.phyIndex)
		} else {
			f.engine.RemoveDeviceFromPhy(controllerID, ch.phyIndex)
		}
	}
}

// Get snapshots radio states and counters.
func (f *Facade) Get(facadeID domain.FacadeID) domain.ChipSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	info, ok := f.chips[facadeID]
	if !ok {
		return domain.ChipSnapshot{}
	}
	return domain.ChipSnapshot{Bluetooth: &domain.BluetoothSnapshot{
		Classic: domain.RadioSnapshot{
			State:   info.classicState,
			TxCount: info.classicTx.Load(),
			RxCount: info.classicRx.Load(),
		},
		LowEnergy: domain.RadioSnapshot{
			State:   info.lowEnergyState,
			TxCount: info.leTx.Load(),
			RxCount: info.leRx.Load(),
		},
	}}
}

// HandleRequest injects a peer frame into the chip's controller under
// the engine's synchronize discipline.
func (f *Facade) HandleRequest(facadeID domain.FacadeID, packet []byte, packetType domain.HCIPacketType) {
	f.mu.RLock()
	info, ok := f.chips[facadeID]
	f.mu.RUnlock()
	if !ok {
		log.Printf("bt: request for unknown facade %d, dropping", facadeID)
		return
	}
	info.transport.request(f.engine, emulator.PacketType(packetType), packet)
}

// handleResponse is the transport's controller-to-host exit: frames go
// back to the hub tagged with the owning facade id.
func (f *Facade) handleResponse(controllerID emulator.ControllerID, packetType emulator.PacketType, packet []byte) {
	facadeID := domain.FacadeID(controllerID)
	f.mu.RLock()
	sink := f.sink
	_, ok := f.chips[facadeID]
	f.mu.RUnlock()
	if !ok || sink == nil {
		log.Printf("bt: response for unknown facade %d, dropping", facadeID)
		return
	}
	sink.HandleResponse(domain.ChipKindBluetooth, facadeID, packet, domain.HCIPacketType(packetType))
}

// ComputeRssi implements the air-model override: RSSI derived from the
// spatial distance between the two owning devices. If either endpoint
// lacks a mapped device, the sender's power is delivered unchanged.
func (f *Facade) ComputeRssi(sender, receiver emulator.ControllerID, txPower int8) int8 {
	f.mu.RLock()
	src, okSrc := f.chips[domain.FacadeID(sender)]
	dst, okDst := f.chips[domain.FacadeID(receiver)]
	f.mu.RUnlock()
	if !okSrc || !okDst {
		log.Printf("bt: missing chip info for rssi %d -> %d", sender, receiver)
		return txPower
	}
	distance, ok := f.distances.GetDistance(src.deviceID, dst.deviceID)
	if !ok {
		return txPower
	}
	return geo.DistanceToRssi(txPower, distance)
}

// OnTransmit counts a PHY transmission, before delivery happens.
func (f *Facade) OnTransmit(sender emulator.ControllerID, phy emulator.PhyKind) {
	f.mu.RLock()
	info, ok := f.chips[domain.FacadeID(sender)]
	f.mu.RUnlock()
	if !ok {
		return
	}
	if phy == emulator.PhyLowEnergy {
		info.leTx.Add(1)
	} else {
		info.classicTx.Add(1)
	}
}

// OnDeliver counts a PHY delivery to a non-sender member.
func (f *Facade) OnDeliver(receiver emulator.ControllerID, phy emulator.PhyKind) {
	f.mu.RLock()
	info, ok := f.chips[domain.FacadeID(receiver)]
	f.mu.RUnlock()
	if !ok {
		return
	}
	if phy == emulator.PhyLowEnergy {
		info.leRx.Add(1)
	} else {
		info.classicRx.Add(1)
	}
}

func changedState(current, requested domain.RadioState) bool {
	return requested != domain.RadioStateUnknown && requested != current
}
