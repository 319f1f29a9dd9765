// Package hub dispatches packets between peer sessions and radio
// facades. It never parses payloads; it only selects the right facade on
// the way in and the right session on the way out.
package hub

import (
	"log"
	"sync"

	"github.com/lcalzada-xor/netsim/internal/core/domain"
	"github.com/lcalzada-xor/netsim/internal/core/ports"
	"github.com/lcalzada-xor/netsim/internal/telemetry"
)

type routeKey struct {
	kind     domain.ChipKind
	facadeID domain.FacadeID
}

// Hub routes inbound requests to facades and outbound responses to the
// owning session. The routing table is written only by session setup and
// teardown.
type Hub struct {
	mu       sync.RWMutex
	facades  map[domain.ChipKind]ports.Facade
	sessions map[routeKey]ports.SessionWriter

	taps []ports.CaptureTap
}

func NewHub() *Hub {
	return &Hub{
		facades:  make(map[domain.ChipKind]ports.Facade),
		sessions: make(map[routeKey]ports.SessionWriter),
	}
}

// RegisterFacade installs the facade handling a chip kind.
func (h *Hub) RegisterFacade(kind domain.ChipKind, f ports.Facade) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.facades[kind] = f
}

// AddTap attaches an observer that sees every request and response.
func (h *Hub) AddTap(t ports.CaptureTap) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.taps = append(h.taps, t)
}

// AttachSession installs the outbound route for a facade endpoint.
func (h *Hub) AttachSession(kind domain.ChipKind, facadeID domain.FacadeID, w ports.SessionWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[routeKey{kind, facadeID}] = w
}

// DetachSession removes the outbound route. Responses racing with
// teardown become clean drops.
func (h *Hub) DetachSession(kind domain.ChipKind, facadeID domain.FacadeID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, routeKey{kind, facadeID})
}

// HandleRequest taps a peer frame and forwards it into the facade for
// its kind.
func (h *Hub) HandleRequest(kind domain.ChipKind, facadeID domain.FacadeID, packet []byte, packetType domain.HCIPacketType) {
	h.tap(kind, facadeID, packet, domain.HostToController, packetType)

	h.mu.RLock()
	facade, ok := h.facades[kind]
	h.mu.RUnlock()
	if !ok {
		log.Printf("hub: request for unhandled kind %s, dropping", kind)
		telemetry.PacketsDropped.WithLabelValues(kind.String(), "no_facade").Inc()
		return
	}
	telemetry.PacketsForwarded.WithLabelValues(kind.String(), domain.HostToController.String()).Inc()
	facade.HandleRequest(facadeID, packet, packetType)
}

// HandleResponse taps a facade frame and writes it to the session owning
// the endpoint. Responses without a session are logged drops.
func (h *Hub) HandleResponse(kind domain.ChipKind, facadeID domain.FacadeID, packet []byte, packetType domain.HCIPacketType) {
	h.tap(kind, facadeID, packet, domain.ControllerToHost, packetType)

	h.mu.RLock()
	session, ok := h.sessions[routeKey{kind, facadeID}]
	h.mu.RUnlock()
	if !ok {
		log.Printf("hub: response for %s facade %d with no session, dropping", kind, facadeID)
		telemetry.PacketsDropped.WithLabelValues(kind.String(), "no_session").Inc()
		return
	}
	if err := session.Write(kind, packetType, packet); err != nil {
		log.Printf("hub: session write for %s facade %d failed: %v", kind, facadeID, err)
		telemetry.PacketsDropped.WithLabelValues(kind.String(), "write_failed").Inc()
		return
	}
	telemetry.PacketsForwarded.WithLabelValues(kind.String(), domain.ControllerToHost.String()).Inc()
}

func (h *Hub) tap(kind domain.ChipKind, facadeID domain.FacadeID, packet []byte, dir domain.Direction, packetType domain.HCIPacketType) {
	h.mu.RLock()
	taps := h.taps
	h.mu.RUnlock()
	for _, t := range taps {
		t.Tap(kind, facadeID, packet, dir, packetType)
	}
}
