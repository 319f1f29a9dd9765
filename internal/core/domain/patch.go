package domain

// RadioPatch updates a single radio's state. RadioStateUnknown leaves the
// state untouched.
type RadioPatch struct {
	State RadioState `json:"state"`
}

// BluetoothPatch updates either or both BT radios.
type BluetoothPatch struct {
	Classic   *RadioPatch `json:"classic,omitempty"`
	LowEnergy *RadioPatch `json:"lowEnergy,omitempty"`
}

// ChipPatch addresses one chip of the patched device, either by ChipID or
// by (Kind, position among that device's chips of the same kind).
type ChipPatch struct {
	ID        ChipID          `json:"chipId,omitempty"`
	Kind      ChipKind        `json:"kind,omitempty"`
	Capture   *bool           `json:"capture,omitempty"`
	Bluetooth *BluetoothPatch `json:"bt,omitempty"`
	Radio     *RadioPatch     `json:"radio,omitempty"`
}

// DevicePatch is a partial update of a device. The target is matched by
// Name first, then GUID; first match in insertion order wins. Nil fields
// are left untouched.
type DevicePatch struct {
	Name        string       `json:"name,omitempty"`
	GUID        string       `json:"guid,omitempty"`
	Position    *Position    `json:"position,omitempty"`
	Orientation *Orientation `json:"orientation,omitempty"`
	Visible     *bool        `json:"visible,omitempty"`
	Chips       []ChipPatch  `json:"chips,omitempty"`
}
