// Package uwb is the ultra-wideband facade. Link-layer modelling is out
// of scope; the facade keeps per-chip state and counters so UWB peers
// can stream and be listed like any other chip.
package uwb

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/lcalzada-xor/netsim/internal/core/domain"
)

type uwbChip struct {
	chipID   domain.ChipID
	deviceID domain.DeviceID
	state    domain.RadioState
	tx       atomic.Uint64
	rx       atomic.Uint64
}

// Facade implements ports.Facade for ChipKindUWB.
type Facade struct {
	mu     sync.RWMutex
	chips  map[domain.FacadeID]*uwbChip
	nextID atomic.Uint32
}

func NewFacade() *Facade {
	return &Facade{chips: make(map[domain.FacadeID]*uwbChip)}
}

func (f *Facade) Add(chipID domain.ChipID, deviceID domain.DeviceID) domain.FacadeID {
	facadeID := domain.FacadeID(f.nextID.Add(1))
	f.mu.Lock()
	f.chips[facadeID] = &uwbChip{
		chipID:   chipID,
		deviceID: deviceID,
		state:    domain.RadioStateOn,
	}
	f.mu.Unlock()
	log.Printf("uwb: created facade %d for chip %d", facadeID, chipID)
	return facadeID
}

func (f *Facade) Remove(facadeID domain.FacadeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.chips[facadeID]; !ok {
		log.Printf("uwb: remove unknown facade %d", facadeID)
		return
	}
	delete(f.chips, facadeID)
}

func (f *Facade) Reset(facadeID domain.FacadeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chip, ok := f.chips[facadeID]
	if !ok {
		log.Printf("uwb: reset unknown facade %d", facadeID)
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
		log.Printf("uwb: patch unknown facade %d", facadeID)
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

// HandleRequest counts and discards: no UWB medium is modelled.
func (f *Facade) HandleRequest(facadeID domain.FacadeID, _ []byte, _ domain.HCIPacketType) {
	f.mu.RLock()
	chip, ok := f.chips[facadeID]
	f.mu.RUnlock()
	if !ok {
		log.Printf("uwb: request for unknown facade %d, dropping", facadeID)
		return
	}
	if chip.state != domain.RadioStateOn {
		return
	}
	chip.tx.Add(1)
}
