package domain

// DeviceID identifies a Device. Assigned once per process, never reused.
type DeviceID uint32

// ChipID identifies a Chip across all kinds. Never reused.
type ChipID uint32

// FacadeID identifies a chip endpoint inside its kind's facade. Unique
// within a kind, never reused.
type FacadeID uint32

// ChipKind selects the radio facade a chip belongs to.
type ChipKind int32

const (
	ChipKindUnspecified ChipKind = iota
	ChipKindBluetooth
	ChipKindWifi
	ChipKindUWB
)

func (k ChipKind) String() string {
	switch k {
	case ChipKindBluetooth:
		return "BLUETOOTH"
	case ChipKindWifi:
		return "WIFI"
	case ChipKindUWB:
		return "UWB"
	default:
		return "UNSPECIFIED"
	}
}

// RadioState models the tri-state of a radio. Unknown is only meaningful
// in patches, where it means "leave as is".
type RadioState int32

const (
	RadioStateUnknown RadioState = iota
	RadioStateOn
	RadioStateOff
)

func (s RadioState) String() string {
	switch s {
	case RadioStateOn:
		return "ON"
	case RadioStateOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// Position is a device's location in the scene, meters from the origin.
type Position struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Orientation is a device's attitude in degrees.
type Orientation struct {
	Pitch float32 `json:"pitch"`
	Roll  float32 `json:"roll"`
	Yaw   float32 `json:"yaw"`
}

// Device is a virtual emulator instance. Chips lists owned chip ids in
// insertion order; chip records live in the scene's chip table.
type Device struct {
	ID          DeviceID
	GUID        string
	Name        string
	Visible     bool
	Position    Position
	Orientation Orientation
	Chips       []ChipID
}

// Chip is a virtual radio endpoint owned by a Device. Kind-specific
// substate (radio states, counters) is owned by the kind's facade and is
// only visible here through snapshots.
type Chip struct {
	ID           ChipID
	DeviceID     DeviceID
	Kind         ChipKind
	FacadeID     FacadeID
	Name         string
	Manufacturer string
	ProductName  string
	CaptureOn    bool
}

// RadioSnapshot is the per-radio view a facade exposes: state plus
// monotonic traffic counters.
type RadioSnapshot struct {
	State   RadioState `json:"state"`
	TxCount uint64     `json:"txCount"`
	RxCount uint64     `json:"rxCount"`
}

// BluetoothSnapshot carries both BT radios.
type BluetoothSnapshot struct {
	Classic   RadioSnapshot `json:"classic"`
	LowEnergy RadioSnapshot `json:"lowEnergy"`
}

// ChipSnapshot is the kind-tagged view of a chip's facade substate.
// Exactly one of Bluetooth or Radio is set, matching the chip's kind.
type ChipSnapshot struct {
	Bluetooth *BluetoothSnapshot `json:"bt,omitempty"`
	Radio     *RadioSnapshot     `json:"radio,omitempty"`
}

// ChipView is a chip as reported by List/GetDevices.
type ChipView struct {
	ID           ChipID       `json:"chipId"`
	Kind         ChipKind     `json:"kind"`
	FacadeID     FacadeID     `json:"facadeId"`
	Name         string       `json:"name,omitempty"`
	Manufacturer string       `json:"manufacturer,omitempty"`
	ProductName  string       `json:"productName,omitempty"`
	CaptureOn    bool         `json:"capture"`
	State        ChipSnapshot `json:"state"`
}

// DeviceView is a device snapshot with its chips resolved, in insertion
// order.
type DeviceView struct {
	ID          DeviceID    `json:"deviceId"`
	GUID        string      `json:"guid"`
	Name        string      `json:"name"`
	Visible     bool        `json:"visible"`
	Position    Position    `json:"position"`
	Orientation Orientation `json:"orientation"`
	Chips       []ChipView  `json:"chips"`
}
