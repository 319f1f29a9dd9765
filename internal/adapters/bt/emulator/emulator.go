// Package emulator is the simulated Bluetooth controller engine the BT
// facade drives. It owns an event loop, the two simulated PHYs and the
// per-controller transports. It is not a protocol-faithful HCI
// controller: commands are acknowledged with command-complete style
// events, and the LE advertising commands are the one family executed
// for real — they broadcast the advertising payload over the LE
// medium, which is all the simulator's routing layer needs.
package emulator

import (
	"log"
	"sync"
	"sync/atomic"
)

// PhyKind selects one of the simulated media.
type PhyKind int

const (
	PhyBrEdr PhyKind = iota
	PhyLowEnergy
)

// ControllerID identifies a connected controller inside the engine.
// Allocated monotonically from 1, never reused.
type ControllerID uint32

// PacketType mirrors the HCI UART packet indicators.
type PacketType uint8

const (
	PacketUnspecified PacketType = iota
	PacketCommand
	PacketACL
	PacketSCO
	PacketEvent
	PacketISO
)

// PacketCallback delivers a host frame into the controller. Must only be
// invoked under Synchronize.
type PacketCallback func(packetType PacketType, packet []byte)

// Transport is the capability a connection owner hands to the engine.
// Send carries controller-to-host frames; Register is called exactly
// once when the connection is added; Close is called when the device is
// removed from the engine.
type Transport interface {
	Send(packetType PacketType, packet []byte)
	Register(packetCb PacketCallback, closeCb func())
	Close()
}

// AirObserver interposes the PHY layer: RSSI computation and traffic
// accounting live outside the engine, where spatial state is known.
type AirObserver interface {
	ComputeRssi(sender, receiver ControllerID, txPower int8) int8
	OnTransmit(sender ControllerID, phy PhyKind)
	OnDeliver(receiver ControllerID, phy PhyKind)
}

// Config carries engine construction options.
type Config struct {
	// HardwareErrorBeforeReset makes the engine emit a hardware-error
	// event when it sees any command before an HCI Reset. Peers that
	// restore from a snapshot skip controller init; the error event
	// forces their stack down its reset path.
	HardwareErrorBeforeReset bool

	Observer AirObserver
}

type device struct {
	id        ControllerID
	transport Transport
	resetSeen bool

	// LE advertising state, driven by the host's HCI commands.
	advData    []byte
	advEnabled bool
	txPower    int8
}

type phyLayer struct {
	kind    PhyKind
	members map[ControllerID]*device
}

// Engine runs all controller state on a single event-loop goroutine.
// Every mutation goes through Synchronize.
type Engine struct {
	cfg   Config
	tasks chan func()

	mu     sync.Mutex
	closed bool

	nextID atomic.Uint32

	// Loop-owned state. Touched only from run().
	phys    []*phyLayer
	devices map[ControllerID]*device
}

func New(cfg Config) *Engine {
	e := &Engine{
		cfg:     cfg,
		tasks:   make(chan func(), 128),
		devices: make(map[ControllerID]*device),
	}
	go e.run()
	return e
}

func (e *Engine) run() {
	for task := range e.tasks {
		task()
	}
}

// Synchronize enqueues fn onto the engine's event loop. Calls after
// Close are dropped.
func (e *Engine) Synchronize(fn func()) {
	e.trySynchronize(fn)
}

func (e *Engine) trySynchronize(fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.tasks <- fn
	return true
}

// synchronizeWait runs fn on the loop and blocks until it finished.
// No-op once the engine is closed.
func (e *Engine) synchronizeWait(fn func()) {
	done := make(chan struct{})
	if !e.trySynchronize(func() {
		fn()
		close(done)
	}) {
		return
	}
	<-done
}

// Close stops the event loop. Pending tasks drain first.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.tasks)
	e.mu.Unlock()
}

// AddPhy registers a simulated medium and returns its stable index.
// BR/EDR is expected at index 0 and LE at index 1.
func (e *Engine) AddPhy(kind PhyKind) int {
	index := -1
	e.synchronizeWait(func() {
		e.phys = append(e.phys, &phyLayer{kind: kind, members: make(map[ControllerID]*device)})
		index = len(e.phys) - 1
	})
	return index
}

// AddConnection attaches a transport as a new controller and returns its
// id. The transport's Register is invoked once, on the event loop.
// Non-blocking so callers may hold unrelated locks the loop also needs.
func (e *Engine) AddConnection(t Transport) ControllerID {
	id := ControllerID(e.nextID.Add(1))
	e.Synchronize(func() {
		dev := &device{id: id, transport: t}
		e.devices[id] = dev
		t.Register(e.packetCallback(dev), func() {})
	})
	return id
}

// AddDeviceToPhy makes a controller a member of a medium.
func (e *Engine) AddDeviceToPhy(id ControllerID, phyIndex int) {
	e.Synchronize(func() {
		phy := e.phy(phyIndex)
		dev, ok := e.devices[id]
		if phy == nil || !ok {
			log.Printf("emulator: add to phy %d with unknown device %d", phyIndex, id)
			return
		}
		phy.members[id] = dev
	})
}

// RemoveDeviceFromPhy drops a controller from a medium.
func (e *Engine) RemoveDeviceFromPhy(id ControllerID, phyIndex int) {
	e.Synchronize(func() {
		if phy := e.phy(phyIndex); phy != nil {
			delete(phy.members, id)
		}
	})
}

// RemoveDevice detaches a controller from every medium and closes its
// transport.
func (e *Engine) RemoveDevice(id ControllerID) {
	e.Synchronize(func() {
		dev, ok := e.devices[id]
		if !ok {
			log.Printf("emulator: remove unknown device %d", id)
			return
		}
		for _, phy := range e.phys {
			delete(phy.members, id)
		}
		delete(e.devices, id)
		dev.transport.Close()
	})
}

// MembersOfPhy reports the controllers attached to a medium, for
// quiescent-state inspection.
func (e *Engine) MembersOfPhy(phyIndex int) []ControllerID {
	var ids []ControllerID
	e.synchronizeWait(func() {
		if phy := e.phy(phyIndex); phy != nil {
			for id := range phy.members {
				ids = append(ids, id)
			}
		}
	})
	return ids
}

// TransmitFromDevice broadcasts a frame from a controller over a medium.
// Transmission is counted before delivery; each other member receives
// the frame with its pair-specific RSSI appended as the trailing byte,
// the position advertising reports carry it in.
func (e *Engine) TransmitFromDevice(sender ControllerID, phyIndex int, txPower int8, packet []byte) {
	e.Synchronize(func() {
		e.transmit(sender, phyIndex, txPower, packet)
	})
}

// transmit is the PHY send. Runs on the event loop only.
func (e *Engine) transmit(sender ControllerID, phyIndex int, txPower int8, packet []byte) {
	phy := e.phy(phyIndex)
	if phy == nil {
		return
	}
	if e.cfg.Observer != nil {
		e.cfg.Observer.OnTransmit(sender, phy.kind)
	}
	if _, ok := phy.members[sender]; !ok {
		return
	}
	for id, dev := range phy.members {
		if id == sender {
			continue
		}
		rssi := txPower
		if e.cfg.Observer != nil {
			rssi = e.cfg.Observer.ComputeRssi(sender, id, txPower)
			e.cfg.Observer.OnDeliver(id, phy.kind)
		}
		frame := make([]byte, 0, len(packet)+1)
		frame = append(frame, packet...)
		frame = append(frame, byte(rssi))
		dev.transport.Send(PacketEvent, frame)
	}
}

func (e *Engine) phy(index int) *phyLayer {
	if index < 0 || index >= len(e.phys) {
		return nil
	}
	return e.phys[index]
}

// phyIndexOf finds the first medium of a kind, -1 if none is registered.
// Runs on the event loop only.
func (e *Engine) phyIndexOf(kind PhyKind) int {
	for i, phy := range e.phys {
		if phy.kind == kind {
			return i
		}
	}
	return -1
}

// HCI command packets are [opcode lo, opcode hi, param length, params...].
func isOpcode(packet []byte, lo, hi byte) bool {
	return len(packet) >= 2 && packet[0] == lo && packet[1] == hi
}

// HCI Reset is opcode 0x0C03, little endian on the wire.
func isHciReset(packet []byte) bool {
	return isOpcode(packet, 0x03, 0x0C)
}

// adTypeTxPower is the "TX Power Level" AD structure an advertiser
// embeds so receivers can estimate path loss.
const adTypeTxPower = 0x0A

// parseAdvData extracts the advertising payload from an LE Set
// Advertising Data command and the transmit power carried in its TX
// Power AD element, 0 dBm when absent.
func parseAdvData(packet []byte) ([]byte, int8) {
	if len(packet) < 4 {
		return nil, 0
	}
	n := int(packet[3])
	if 4+n > len(packet) {
		n = len(packet) - 4
	}
	data := append([]byte(nil), packet[4:4+n]...)

	txPower := int8(0)
	for i := 0; i < len(data); {
		l := int(data[i])
		if l == 0 || i+1+l > len(data) {
			break
		}
		if data[i+1] == adTypeTxPower && l >= 2 {
			txPower = int8(data[i+2])
		}
		i += 1 + l
	}
	return data, txPower
}

// packetCallback builds the host-to-controller entry point for one
// device. Runs on the event loop only.
func (e *Engine) packetCallback(dev *device) PacketCallback {
	return func(packetType PacketType, packet []byte) {
		if packetType != PacketCommand {
			// Data traffic is routed by connection state the minimal
			// model does not track.
			return
		}
		if e.cfg.HardwareErrorBeforeReset && !dev.resetSeen && !isHciReset(packet) {
			dev.transport.Send(PacketEvent, []byte{0x10, 0x01, 0x42})
			return
		}
		if isHciReset(packet) {
			dev.resetSeen = true
			dev.advEnabled = false
			dev.advData = nil
		}

		// Command complete: one slot, echoed opcode, success status.
		ack := []byte{0x0E, 0x04, 0x01, 0x00, 0x00, 0x00}
		if len(packet) >= 2 {
			ack[3] = packet[0]
			ack[4] = packet[1]
		}
		dev.transport.Send(PacketEvent, ack)

		// LE advertising is the one command family the model executes:
		// enabling (or refreshing data while enabled) sends the payload
		// over the LE medium, which is where RSSI rewriting happens.
		switch {
		case isOpcode(packet, 0x08, 0x20): // LE Set Advertising Data
			dev.advData, dev.txPower = parseAdvData(packet)
			if dev.advEnabled {
				e.advertise(dev)
			}
		case isOpcode(packet, 0x0A, 0x20): // LE Set Advertising Enable
			dev.advEnabled = len(packet) >= 4 && packet[3] == 0x01
			if dev.advEnabled {
				e.advertise(dev)
			}
		}
	}
}

// advertise broadcasts the device's advertising payload over the LE
// medium. Runs on the event loop only.
func (e *Engine) advertise(dev *device) {
	if len(dev.advData) == 0 {
		return
	}
	phyIndex := e.phyIndexOf(PhyLowEnergy)
	if phyIndex < 0 {
		return
	}
	e.transmit(dev.id, phyIndex, dev.txPower, dev.advData)
}
