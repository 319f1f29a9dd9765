// Package scene owns the authoritative model of devices, chips and their
// spatial state, and drives the per-kind radio facades through lifecycle
// changes.
package scene

import (
	"fmt"
	"log"
	"sync"

	"github.com/lcalzada-xor/netsim/internal/core/domain"
	"github.com/lcalzada-xor/netsim/internal/core/ports"
	"github.com/lcalzada-xor/netsim/internal/geo"
)

// Notifier is fired after every scene mutation, outside the scene lock.
type Notifier interface {
	Notify()
}

// CaptureController opens and closes per-chip capture sinks. Start and
// Stop are always called outside the scene lock because they do file IO.
type CaptureController interface {
	Start(chip domain.Chip, deviceGUID string) error
	Stop(kind domain.ChipKind, facadeID domain.FacadeID)
}

// captureOp is a deferred sink toggle collected under the lock and
// applied after release.
type captureOp struct {
	chip domain.Chip
	guid string
	on   bool
}

// Controller is the scene controller. All device and chip records live in
// two flat tables; devices keep an ordered list of owned chip ids.
type Controller struct {
	mu      sync.RWMutex
	ids     *IDAllocator
	facades map[domain.ChipKind]ports.Facade
	devices map[domain.DeviceID]*domain.Device
	order   []domain.DeviceID
	chips   map[domain.ChipID]*domain.Chip

	// positions mirrors each device's position under its own lock so the
	// air model can query distances without contending on the scene
	// lock (the controller loop must never block behind a scene writer).
	posMu     sync.RWMutex
	positions map[domain.DeviceID]domain.Position

	notifier Notifier
	captures CaptureController
	events   ports.EventStore
}

func NewController(ids *IDAllocator) *Controller {
	return &Controller{
		ids:       ids,
		facades:   make(map[domain.ChipKind]ports.Facade),
		devices:   make(map[domain.DeviceID]*domain.Device),
		chips:     make(map[domain.ChipID]*domain.Chip),
		positions: make(map[domain.DeviceID]domain.Position),
	}
}

// RegisterFacade installs the facade for a chip kind. Called once per
// kind at composition time, before any session connects.
func (c *Controller) RegisterFacade(kind domain.ChipKind, f ports.Facade) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.facades[kind] = f
}

func (c *Controller) SetNotifier(n Notifier) { c.notifier = n }

func (c *Controller) SetCaptureController(cc CaptureController) { c.captures = cc }

func (c *Controller) SetEventStore(s ports.EventStore) { c.events = s }

// AddChip registers a chip for the device identified by guid, creating
// the device on first use. Returns the ids a session needs to route
// traffic.
func (c *Controller) AddChip(guid, deviceName string, kind domain.ChipKind, chipName, manufacturer, productName string) (domain.DeviceID, domain.ChipID, domain.FacadeID, error) {
	c.mu.Lock()
	facade, ok := c.facades[kind]
	if !ok {
		c.mu.Unlock()
		return 0, 0, 0, fmt.Errorf("%w: no facade registered for kind %s", domain.ErrInvalidArgument, kind)
	}

	dev := c.lookupByGUIDLocked(guid)
	if dev == nil {
		dev = &domain.Device{
			ID:      c.ids.NextDeviceID(),
			GUID:    guid,
			Name:    DefaultName(guid),
			Visible: true,
		}
		c.devices[dev.ID] = dev
		c.order = append(c.order, dev.ID)
		c.posMu.Lock()
		c.positions[dev.ID] = domain.Position{}
		c.posMu.Unlock()
	}
	if deviceName != "" {
		dev.Name = deviceName
	}

	chipID := c.ids.NextChipID()
	facadeID := facade.Add(chipID, dev.ID)
	chip := &domain.Chip{
		ID:           chipID,
		DeviceID:     dev.ID,
		Kind:         kind,
		FacadeID:     facadeID,
		Name:         chipName,
		Manufacturer: manufacturer,
		ProductName:  productName,
	}
	c.chips[chipID] = chip
	dev.Chips = append(dev.Chips, chipID)
	deviceID := dev.ID
	c.mu.Unlock()

	c.recordEvent("chip-added", guid, fmt.Sprintf("%s chip %q (chip_id=%d facade_id=%d)", kind, chipName, chipID, facadeID))
	c.notify()
	return deviceID, chipID, facadeID, nil
}

// RemoveChip detaches a chip, tears down its facade endpoint first, and
// removes the owning device when its last chip goes away.
func (c *Controller) RemoveChip(deviceID domain.DeviceID, chipID domain.ChipID) error {
	c.mu.Lock()
	dev, ok := c.devices[deviceID]
	chip, chipOK := c.chips[chipID]
	if !ok || !chipOK || chip.DeviceID != deviceID {
		c.mu.Unlock()
		return fmt.Errorf("%w: device %d chip %d", domain.ErrNotFound, deviceID, chipID)
	}

	var ops []captureOp
	if chip.CaptureOn {
		chip.CaptureOn = false
		ops = append(ops, captureOp{chip: *chip, guid: dev.GUID, on: false})
	}

	if facade, ok := c.facades[chip.Kind]; ok {
		facade.Remove(chip.FacadeID)
	}
	for i, id := range dev.Chips {
		if id == chipID {
			dev.Chips = append(dev.Chips[:i], dev.Chips[i+1:]...)
			break
		}
	}
	delete(c.chips, chipID)

	guid := dev.GUID
	if len(dev.Chips) == 0 {
		delete(c.devices, deviceID)
		c.posMu.Lock()
		delete(c.positions, deviceID)
		c.posMu.Unlock()
		for i, id := range c.order {
			if id == deviceID {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()

	c.applyCaptureOps(ops)
	c.recordEvent("chip-removed", guid, fmt.Sprintf("chip_id=%d", chipID))
	c.notify()
	return nil
}

// PatchDevice applies a partial update. The target is matched by name
// first, then guid; the first match in insertion order wins.
func (c *Controller) PatchDevice(patch domain.DevicePatch) error {
	c.mu.Lock()
	dev := c.matchPatchTargetLocked(patch)
	if dev == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: no device matches name=%q guid=%q", domain.ErrNotFound, patch.Name, patch.GUID)
	}

	if patch.Position != nil {
		dev.Position = *patch.Position
		c.posMu.Lock()
		c.positions[dev.ID] = *patch.Position
		c.posMu.Unlock()
	}
	if patch.Orientation != nil {
		dev.Orientation = *patch.Orientation
	}
	if patch.Visible != nil {
		dev.Visible = *patch.Visible
	}

	var ops []captureOp
	kindSeen := make(map[domain.ChipKind]int)
	for _, cp := range patch.Chips {
		chip := c.matchChipLocked(dev, cp, kindSeen)
		if chip == nil {
			log.Printf("scene: unknown chip in patch for device %q", dev.Name)
			continue
		}
		if cp.Capture != nil && *cp.Capture != chip.CaptureOn {
			chip.CaptureOn = *cp.Capture
			ops = append(ops, captureOp{chip: *chip, guid: dev.GUID, on: *cp.Capture})
		}
		if facade, ok := c.facades[chip.Kind]; ok {
			facade.Patch(chip.FacadeID, cp)
		}
	}
	c.mu.Unlock()

	c.applyCaptureOps(ops)
	c.notify()
	return nil
}

// Reset returns every chip to its default state, drops all capture sinks
// and moves every device back to the origin.
func (c *Controller) Reset() {
	c.mu.Lock()
	var ops []captureOp
	for _, id := range c.order {
		dev := c.devices[id]
		dev.Position = domain.Position{}
		c.posMu.Lock()
		c.positions[id] = domain.Position{}
		c.posMu.Unlock()
		dev.Orientation = domain.Orientation{}
		dev.Visible = true
		for _, chipID := range dev.Chips {
			chip := c.chips[chipID]
			if chip.CaptureOn {
				chip.CaptureOn = false
				ops = append(ops, captureOp{chip: *chip, guid: dev.GUID, on: false})
			}
			if facade, ok := c.facades[chip.Kind]; ok {
				facade.Reset(chip.FacadeID)
			}
		}
	}
	c.mu.Unlock()

	c.applyCaptureOps(ops)
	c.recordEvent("reset", "", "scene reset")
	c.notify()
}

// List snapshots every device in insertion order, chips included.
func (c *Controller) List() []domain.DeviceView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	views := make([]domain.DeviceView, 0, len(c.order))
	for _, id := range c.order {
		dev := c.devices[id]
		view := domain.DeviceView{
			ID:          dev.ID,
			GUID:        dev.GUID,
			Name:        dev.Name,
			Visible:     dev.Visible,
			Position:    dev.Position,
			Orientation: dev.Orientation,
			Chips:       make([]domain.ChipView, 0, len(dev.Chips)),
		}
		for _, chipID := range dev.Chips {
			chip := c.chips[chipID]
			cv := domain.ChipView{
				ID:           chip.ID,
				Kind:         chip.Kind,
				FacadeID:     chip.FacadeID,
				Name:         chip.Name,
				Manufacturer: chip.Manufacturer,
				ProductName:  chip.ProductName,
				CaptureOn:    chip.CaptureOn,
			}
			if facade, ok := c.facades[chip.Kind]; ok {
				cv.State = facade.Get(chip.FacadeID)
			}
			view.Chips = append(view.Chips, cv)
		}
		views = append(views, view)
	}
	return views
}

// GetDistance returns the Euclidean distance between two devices, or
// false when either is not registered. Positions default to the origin.
// Reads only the positions table so the air model never waits behind a
// scene writer.
func (c *Controller) GetDistance(a, b domain.DeviceID) (float32, bool) {
	c.posMu.RLock()
	defer c.posMu.RUnlock()

	pa, okA := c.positions[a]
	pb, okB := c.positions[b]
	if !okA || !okB {
		return 0, false
	}
	return geo.Distance(pa.X, pa.Y, pa.Z, pb.X, pb.Y, pb.Z), true
}

func (c *Controller) lookupByGUIDLocked(guid string) *domain.Device {
	for _, id := range c.order {
		if c.devices[id].GUID == guid {
			return c.devices[id]
		}
	}
	return nil
}

func (c *Controller) matchPatchTargetLocked(patch domain.DevicePatch) *domain.Device {
	if patch.Name != "" {
		for _, id := range c.order {
			if c.devices[id].Name == patch.Name {
				return c.devices[id]
			}
		}
	}
	if patch.GUID != "" {
		return c.lookupByGUIDLocked(patch.GUID)
	}
	return nil
}

// matchChipLocked resolves a chip patch: an explicit chip id wins;
// otherwise the n'th chip of the patch's kind is taken, where n counts
// earlier patches of the same kind in the request.
func (c *Controller) matchChipLocked(dev *domain.Device, cp domain.ChipPatch, kindSeen map[domain.ChipKind]int) *domain.Chip {
	if cp.ID != 0 {
		chip, ok := c.chips[cp.ID]
		if !ok || chip.DeviceID != dev.ID {
			return nil
		}
		return chip
	}
	want := kindSeen[cp.Kind]
	kindSeen[cp.Kind]++
	n := 0
	for _, chipID := range dev.Chips {
		chip := c.chips[chipID]
		if chip.Kind != cp.Kind {
			continue
		}
		if n == want {
			return chip
		}
		n++
	}
	return nil
}

func (c *Controller) applyCaptureOps(ops []captureOp) {
	if c.captures == nil {
		return
	}
	for _, op := range ops {
		if op.on {
			if err := c.captures.Start(op.chip, op.guid); err != nil {
				log.Printf("scene: capture start failed for chip %d: %v", op.chip.ID, err)
				c.mu.Lock()
				if chip, ok := c.chips[op.chip.ID]; ok {
					chip.CaptureOn = false
				}
				c.mu.Unlock()
			}
		} else {
			c.captures.Stop(op.chip.Kind, op.chip.FacadeID)
		}
	}
}

func (c *Controller) notify() {
	if c.notifier != nil {
		c.notifier.Notify()
	}
}

func (c *Controller) recordEvent(kind, guid, detail string) {
	if c.events != nil {
		c.events.RecordEvent(kind, guid, detail)
	}
}
