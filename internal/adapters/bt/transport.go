package bt

import (
	"log"
	"sync"

	"github.com/lcalzada-xor/netsim/internal/adapters/bt/emulator"
)

// hciTransport connects one chip's packets between the facade and the
// controller engine. The engine registers its callbacks once at
// AddConnection; the facade injects peer frames through request.
type hciTransport struct {
	facade *Facade

	mu           sync.Mutex
	controllerID emulator.ControllerID
	packetCb     emulator.PacketCallback
	closeCb      func()
	closed       bool
}

func newHCITransport(f *Facade) *hciTransport {
	return &hciTransport{facade: f}
}

// connect binds the engine-assigned controller id. Called once right
// after AddConnection returns.
func (t *hciTransport) connect(id emulator.ControllerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.controllerID = id
}

// Send carries a controller-to-host frame. Called on the engine loop.
func (t *hciTransport) Send(packetType emulator.PacketType, packet []byte) {
	t.mu.Lock()
	id := t.controllerID
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}
	if id == 0 {
		log.Printf("bt: transport send with no controller id, dropping")
		return
	}
	t.facade.handleResponse(id, packetType, packet)
}

// Register stores the engine's inbound callbacks. Called once, on the
// engine loop.
func (t *hciTransport) Register(packetCb emulator.PacketCallback, closeCb func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.packetCb = packetCb
	t.closeCb = closeCb
}

// Close is invoked by the engine when the device is removed. Controller
// callbacks arriving afterwards are ignored.
func (t *hciTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.packetCb = nil
}

// request hands a host frame to the controller under synchronize.
func (t *hciTransport) request(engine *emulator.Engine, packetType emulator.PacketType, packet []byte) {
	engine.Synchronize(func() {
		t.mu.Lock()
		cb := t.packetCb
		closed := t.closed
		t.mu.Unlock()
		if closed || cb == nil {
			log.Printf("bt: request on closed transport, dropping")
			return
		}
		cb(packetType, packet)
	})
}
