package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lcalzada-xor/netsim/internal/core/domain"
	"github.com/lcalzada-xor/netsim/internal/telemetry"
)

var longPollTimeout = 15 * time.Second

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/v1/devices", s.handleGetDevices).Methods(http.MethodGet)
	r.HandleFunc("/v1/devices", s.handlePatchDevice).Methods(http.MethodPatch)
	r.HandleFunc("/v1/devices/reset", s.handleReset).Methods(http.MethodPut)
	r.HandleFunc("/v1/capture", s.handleSetCapture).Methods(http.MethodPut)
	r.HandleFunc("/v1/register-updates", s.handleRegisterUpdates).Methods(http.MethodGet)
	r.HandleFunc("/v1/updates-ws", s.ws.handleWebSocket).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"version": telemetry.Version})
}

func (s *Server) handleGetDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.Scene.List())
}

func (s *Server) handlePatchDevice(w http.ResponseWriter, r *http.Request) {
	var patch domain.DevicePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "malformed patch: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Scene.PatchDevice(patch); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.Scene.Reset()
	w.WriteHeader(http.StatusOK)
}

// captureRequest targets either one chip by id or a whole device; a
// device-level request fans out to every chip the device owns.
type captureRequest struct {
	DeviceName string        `json:"deviceName,omitempty"`
	GUID       string        `json:"guid,omitempty"`
	ChipID     domain.ChipID `json:"chipId,omitempty"`
	Capture    bool          `json:"capture"`
}

func (s *Server) handleSetCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request: "+err.Error(), http.StatusBadRequest)
		return
	}

	patch := domain.DevicePatch{Name: req.DeviceName, GUID: req.GUID}
	on := req.Capture
	if req.ChipID != 0 {
		patch.Chips = []domain.ChipPatch{{ID: req.ChipID, Capture: &on}}
	} else {
		for _, dev := range s.Scene.List() {
			if (req.DeviceName != "" && dev.Name == req.DeviceName) ||
				(req.DeviceName == "" && req.GUID != "" && dev.GUID == req.GUID) {
				for _, chip := range dev.Chips {
					patch.Chips = append(patch.Chips, domain.ChipPatch{ID: chip.ID, Capture: &on})
				}
				break
			}
		}
	}

	if err := s.Scene.PatchDevice(patch); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleRegisterUpdates long-polls: the response is the device list,
// sent when the scene changes or the poll times out.
func (s *Server) handleRegisterUpdates(w http.ResponseWriter, r *http.Request) {
	changed := make(chan struct{}, 1)
	id := s.Bus.Register(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer s.Bus.Unregister(id)

	select {
	case <-changed:
	case <-time.After(longPollTimeout):
	case <-r.Context().Done():
		return
	}
	writeJSON(w, s.Scene.List())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encode response: %v", err)
	}
}
