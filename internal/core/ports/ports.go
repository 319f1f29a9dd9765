package ports

import (
	"github.com/lcalzada-xor/netsim/internal/core/domain"
)

// Facade is the uniform per-kind radio contract. One instance exists per
// chip kind; the scene controller drives lifecycle and patches, the
// packet hub drives traffic.
//
// Reset and Patch may be called while the scene lock is held; facade
// implementations must not call back into the scene from them.
type Facade interface {
	// Add allocates per-chip substate and returns the facade id for the
	// new endpoint. deviceID is retained for spatial lookups.
	Add(chipID domain.ChipID, deviceID domain.DeviceID) domain.FacadeID

	// Remove tears down the endpoint. Unknown ids log and no-op.
	Remove(facadeID domain.FacadeID)

	// Reset returns the chip to its default ON state with zero counters.
	Reset(facadeID domain.FacadeID)

	// Patch applies the kind-specific part of a chip patch. Idempotent.
	Patch(facadeID domain.FacadeID, patch domain.ChipPatch)

	// Get snapshots the kind-specific substate, counters included.
	Get(facadeID domain.FacadeID) domain.ChipSnapshot

	// HandleRequest forwards an inbound peer frame to the radio.
	HandleRequest(facadeID domain.FacadeID, packet []byte, packetType domain.HCIPacketType)
}

// SessionWriter is the outbound half of a peer session as seen by the
// packet hub. Writes on a closed session are dropped.
type SessionWriter interface {
	Write(kind domain.ChipKind, packetType domain.HCIPacketType, packet []byte) error
}

// ResponseSink receives frames emitted by facades on their way back to
// the owning session. Implemented by the packet hub.
type ResponseSink interface {
	HandleResponse(kind domain.ChipKind, facadeID domain.FacadeID, packet []byte, packetType domain.HCIPacketType)
}

// DistanceProvider exposes the scene's spatial queries to facades
// computing RSSI. The zero distance answer is (0, true) for a device
// paired with itself.
type DistanceProvider interface {
	GetDistance(a, b domain.DeviceID) (float32, bool)
}

// CaptureTap observes every request and response passing through the
// packet hub.
type CaptureTap interface {
	Tap(kind domain.ChipKind, facadeID domain.FacadeID, packet []byte, dir domain.Direction, packetType domain.HCIPacketType)
}

// EventStore records lifecycle events for post-hoc inspection. The scene
// never reads it back; in-memory state stays authoritative.
type EventStore interface {
	RecordEvent(kind, deviceGUID, detail string)
	RecordCapture(deviceGUID string, chipID domain.ChipID, path string)
}

// ScenePublisher pushes device-list snapshots to external consumers
// (message brokers, UIs).
type ScenePublisher interface {
	PublishDevices(devices []domain.DeviceView)
}
