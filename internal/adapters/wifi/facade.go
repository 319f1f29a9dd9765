// Package wifi is the WiFi radio facade: per-chip radio state and
// counters, with frames forwarded into a shared WiFi service whose
// receive path broadcasts to every powered-on chip.
package wifi

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/lcalzada-xor/netsim/internal/core/domain"
	"github.com/lcalzada-xor/netsim/internal/core/ports"
)

// Service models the shared hostapd / user-space IP stack. Frames
// submitted by chips come back through the receiver callback, possibly
// on a service-owned goroutine.
type Service interface {
	Submit(packet []byte)
	SetReceiver(func(packet []byte))
}

type wifiChip struct {
	chipID   domain.ChipID
	deviceID domain.DeviceID
	state    domain.RadioState
	tx       atomic.Uint64
	rx       atomic.Uint64
}

// Facade implements ports.Facade for ChipKindWifi. With no service
// configured the facade still tracks state and TX counts but forwards
// nothing.
type Facade struct {
	mu      sync.RWMutex
	chips   map[domain.FacadeID]*wifiChip
	sink    ports.ResponseSink
	service Service
	nextID  atomic.Uint32
}

func NewFacade(service Service) *Facade {
	f := &Facade{
		chips:   make(map[domain.FacadeID]*wifiChip),
		service: service,
	}
	if service != nil {
		service.SetReceiver(f.onReceive)
	}
	return f
}

// SetResponseSink wires the packet hub for broadcast deliveries.
func (f *Facade) SetResponseSink(sink ports.ResponseSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
}

func (f *Facade) Add(chipID domain.ChipID, deviceID domain.DeviceID) domain.FacadeID {
	facadeID := domain.FacadeID(f.nextID.Add(1))
	f.mu.Lock()
	f.chips[facadeID] = &wifiChip{
		chipID:   chipID,
		deviceID: deviceID,
		state:    domain.RadioStateOn,
	}
	f.mu.Unlock()
	log.Printf("wifi: created facade %d for chip %d", facadeID, chipID)
	return facadeID
}

func (f *Facade) Remove(facadeID domain.FacadeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.chips[facadeID]; !ok {
		log.Printf("wifi: remove unknown facade %d", facadeID)
		return
	}
	delete(f.chips, facadeID)
}

func (f *Facade) Reset(facadeID domain.FacadeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chip, ok := f.chips[facadeID]
	if !ok {
		log.Printf("wifi: reset unknown facade %d", facadeID)
		return
	}
	chip.state = domain.RadioStateOn
	chip.tx.Store(0)
	chip.rx.Store(0)
}

func (f *Facade) Patch(facadeID domain.FacadeID, patch domain.ChipPatch) {
	if patch.Radio == nil {
		return
	}
	requested := patch.Radio.State
	f.mu.Lock()
	defer f.mu.Unlock()
	chip, ok := f.chips[facadeID]
	if !ok {
		log.Printf("wifi: patch unknown facade %d", facadeID)
		return
	}
	if requested != domain.RadioStateUnknown && requested != chip.state {
		chip.state = requested
	}
}

func (f *Facade) Get(facadeID domain.FacadeID) domain.ChipSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	chip, ok := f.chips[facadeID]
	if !ok {
		return domain.ChipSnapshot{}
	}
	return domain.ChipSnapshot{Radio: &domain.RadioSnapshot{
		State:   chip.state,
		TxCount: chip.tx.Load(),
		RxCount: chip.rx.Load(),
	}}
}

// HandleRequest drops frames from powered-off chips, counts the
// transmission and submits the frame to the service. TX counts even when
// no service is attached.
func (f *Facade) HandleRequest(facadeID domain.FacadeID, packet []byte, _ domain.HCIPacketType) {
	f.mu.RLock()
	chip, ok := f.chips[facadeID]
	var state domain.RadioState
	if ok {
		state = chip.state
	}
	service := f.service
	f.mu.RUnlock()

	if !ok {
		log.Printf("wifi: request for unknown facade %d, dropping", facadeID)
		return
	}
	if state != domain.RadioStateOn {
		return
	}
	chip.tx.Add(1)
	if service != nil {
		service.Submit(packet)
	}
}

// onReceive broadcasts a service frame to every chip whose radio is ON.
func (f *Facade) onReceive(packet []byte) {
	f.mu.RLock()
	sink := f.sink
	type target struct {
		id   domain.FacadeID
		chip *wifiChip
	}
	var targets []target
	for id, chip := range f.chips {
		if chip.state == domain.RadioStateOn {
			targets = append(targets, target{id, chip})
		}
	}
	f.mu.RUnlock()

	if sink == nil {
		return
	}
	for _, t := range targets {
		t.chip.rx.Add(1)
		sink.HandleResponse(domain.ChipKindWifi, t.id, packet, domain.HCIPacketUnspecified)
	}
}
