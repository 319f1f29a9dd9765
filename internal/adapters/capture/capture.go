// Package capture writes per-chip packet traffic to pcap files. It
// implements both the scene's capture controller (open/close on patch)
// and the hub's tap (one record per request/response).
package capture

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/lcalzada-xor/netsim/internal/core/domain"
	"github.com/lcalzada-xor/netsim/internal/core/ports"
	"github.com/lcalzada-xor/netsim/internal/telemetry"
)

const snapLen = 65536

// Link types per DLT registry: HCI H4 framing for Bluetooth, 802.11 for
// WiFi, a user DLT for UWB.
const (
	linkTypeHciH4     = layers.LinkType(187)
	linkTypeIEEE80211 = layers.LinkType(105)
	linkTypeUser0     = layers.LinkType(147)
)

type sinkKey struct {
	kind     domain.ChipKind
	facadeID domain.FacadeID
}

type sink struct {
	mu     sync.Mutex
	file   *os.File
	writer *pcapgo.Writer
	kind   domain.ChipKind
	failed bool
}

// Manager owns every open capture sink, keyed by facade endpoint. Sinks
// are opened by the scene (capture=ON) and written by the hub tap.
type Manager struct {
	dir    string
	events ports.EventStore

	mu    sync.RWMutex
	sinks map[sinkKey]*sink
}

func NewManager(dir string, events ports.EventStore) *Manager {
	return &Manager{
		dir:    dir,
		events: events,
		sinks:  make(map[sinkKey]*sink),
	}
}

// Start opens a fresh pcap sink for the chip. An existing file with the
// same name is kept; the new capture gets a -N suffix instead.
func (m *Manager) Start(chip domain.Chip, deviceGUID string) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("capture dir: %w", err)
	}
	path := m.capturePath(deviceGUID, chip.Kind)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("open capture file: %w", err)
	}

	writer := pcapgo.NewWriter(file)
	if err := writer.WriteFileHeader(snapLen, linkTypeFor(chip.Kind)); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("pcap header: %w", err)
	}

	m.mu.Lock()
	m.sinks[sinkKey{chip.Kind, chip.FacadeID}] = &sink{
		file:   file,
		writer: writer,
		kind:   chip.Kind,
	}
	m.mu.Unlock()

	if m.events != nil {
		m.events.RecordCapture(deviceGUID, chip.ID, path)
	}
	log.Printf("capture: started %s", path)
	return nil
}

// Stop closes and releases the sink, if any.
func (m *Manager) Stop(kind domain.ChipKind, facadeID domain.FacadeID) {
	m.mu.Lock()
	s, ok := m.sinks[sinkKey{kind, facadeID}]
	if ok {
		delete(m.sinks, sinkKey{kind, facadeID})
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	s.file.Close()
	s.mu.Unlock()
}

// StopAll releases every open sink, for daemon shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sinks := m.sinks
	m.sinks = make(map[sinkKey]*sink)
	m.mu.Unlock()
	for _, s := range sinks {
		s.mu.Lock()
		s.file.Close()
		s.mu.Unlock()
	}
}

// Tap records one frame iff the chip's capture is on at this moment.
// Bluetooth frames get their H4 indicator byte restored so the file is
// a valid HCI H4 capture.
func (m *Manager) Tap(kind domain.ChipKind, facadeID domain.FacadeID, packet []byte, _ domain.Direction, packetType domain.HCIPacketType) {
	m.mu.RLock()
	s, ok := m.sinks[sinkKey{kind, facadeID}]
	m.mu.RUnlock()
	if !ok {
		return
	}

	record := packet
	if kind == domain.ChipKindBluetooth {
		record = make([]byte, 0, len(packet)+1)
		record = append(record, byte(packetType))
		record = append(record, packet...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return
	}
	info := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(record),
		Length:        len(record),
	}
	if err := s.writer.WritePacket(info, record); err != nil {
		log.Printf("capture: write failed for %s facade %d: %v", kind, facadeID, err)
		s.failed = true
		s.file.Close()
		return
	}
	telemetry.CaptureBytes.WithLabelValues(kind.String()).Add(float64(len(record)))
}

// capturePath builds "<dir>/<guid>-<kind>.pcap", appending -N until the
// name is free.
func (m *Manager) capturePath(deviceGUID string, kind domain.ChipKind) string {
	base := fmt.Sprintf("%s-%s", deviceGUID, kindSuffix(kind))
	path := filepath.Join(m.dir, base+".pcap")
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(m.dir, fmt.Sprintf("%s-%d.pcap", base, n))
	}
}

func kindSuffix(kind domain.ChipKind) string {
	switch kind {
	case domain.ChipKindBluetooth:
		return "hci"
	case domain.ChipKindWifi:
		return "wifi"
	case domain.ChipKindUWB:
		return "uwb"
	default:
		return "raw"
	}
}

func linkTypeFor(kind domain.ChipKind) layers.LinkType {
	switch kind {
	case domain.ChipKindBluetooth:
		return linkTypeHciH4
	case domain.ChipKindWifi:
		return linkTypeIEEE80211
	default:
		return linkTypeUser0
	}
}
