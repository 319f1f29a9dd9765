// Package packet defines the wire messages of the PacketStreamer
// service, the bidirectional stream each peer opens against the
// simulator. Messages travel as JSON under a registered gRPC codec; no
// generated marshalling is involved.
package packet

// ChipKind mirrors the simulator's chip kinds on the wire.
type ChipKind int32

const (
	ChipKindUnspecified ChipKind = 0
	ChipKindBluetooth   ChipKind = 1
	ChipKindWifi        ChipKind = 2
	ChipKindUWB         ChipKind = 3
)

// HCIPacketType carries the HCI UART packet indicator.
type HCIPacketType int32

const (
	HCIPacketUnspecified HCIPacketType = 0
	HCIPacketCommand     HCIPacketType = 1
	HCIPacketACL         HCIPacketType = 2
	HCIPacketSCO         HCIPacketType = 3
	HCIPacketEvent       HCIPacketType = 4
	HCIPacketISO         HCIPacketType = 5
)

// ChipInfo describes the chip a peer wants to register.
type ChipInfo struct {
	Kind         ChipKind `json:"kind"`
	ID           string   `json:"id,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	ProductName  string   `json:"productName,omitempty"`
}

// InitialInfo is the mandatory first frame of every stream.
type InitialInfo struct {
	Name string   `json:"name"`
	Chip ChipInfo `json:"chip"`
}

// HCIPacket is a Bluetooth frame with its packet type indicator.
type HCIPacket struct {
	PacketType HCIPacketType `json:"packetType"`
	Packet     []byte        `json:"packet"`
}

// StreamPacketsRequest is the peer-to-simulator envelope. Exactly one
// field is set.
type StreamPacketsRequest struct {
	InitialInfo *InitialInfo `json:"initialInfo,omitempty"`
	HCIPacket   *HCIPacket   `json:"hciPacket,omitempty"`
	Packet      []byte       `json:"packet,omitempty"`
}

// StreamPacketsResponse is the simulator-to-peer envelope. Bluetooth
// kinds use HCIPacket, everything else the raw Packet bytes.
type StreamPacketsResponse struct {
	HCIPacket *HCIPacket `json:"hciPacket,omitempty"`
	Packet    []byte     `json:"packet,omitempty"`
}
