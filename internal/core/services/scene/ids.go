package scene

import (
	"sync/atomic"

	"github.com/lcalzada-xor/netsim/internal/core/domain"
)

// IDAllocator hands out process-unique device and chip ids. Counters
// start at 1 and are never reused, including after removal.
type IDAllocator struct {
	nextDevice atomic.Uint32
	nextChip   atomic.Uint32
}

func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

func (a *IDAllocator) NextDeviceID() domain.DeviceID {
	return domain.DeviceID(a.nextDevice.Add(1))
}

func (a *IDAllocator) NextChipID() domain.ChipID {
	return domain.ChipID(a.nextChip.Add(1))
}
