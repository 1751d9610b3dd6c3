package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nerrad567/ems-console/internal/device"
	"github.com/nerrad567/ems-console/internal/events"
	"github.com/nerrad567/ems-console/internal/infrastructure/influxdb"
	"github.com/nerrad567/ems-console/internal/push"
	"github.com/nerrad567/ems-console/internal/register"
)

// handleStats returns the dashboard counters and records them as a metrics point.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.console.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "compute stats")
		return
	}

	s.recorder.WriteStats(influxdb.StatsPoint{
		TotalDevices:     st.TotalDevices,
		ConnectedDevices: st.ConnectedDevices,
		TotalRegisters:   st.TotalRegisters,
		ActiveRegisters:  st.ActiveRegisters,
	})
	writeJSON(w, http.StatusOK, st)
}

// pushRequest selects what to push. No deviceIds means every device; no
// token means the configured push token.
type pushRequest struct {
	DeviceIDs []string `json:"deviceIds"`
	Token     string   `json:"token"`
}

// handlePush sends device configurations to the backend. Each device is
// attempted once; partial failure still answers 200 with the per-device errors.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if s.pusher == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "push is not configured")
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req pushRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeBadRequest(w, "invalid JSON body: "+err.Error())
			return
		}
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		token = s.pushCfg.Token
	}
	if token == "" {
		s.writeServiceError(w, r, push.ErrNoToken, "push")
		return
	}

	ctx := r.Context()
	items, err := s.pushItems(r, req.DeviceIDs)
	if err != nil {
		s.writeServiceError(w, r, err, "push")
		return
	}

	res := s.pusher.PushAll(ctx, token, items)
	s.recorder.WritePushResult(res.Succeeded, res.Failed)
	if err := s.events.Publish(ctx, events.New(events.PushCompleted, res)); err != nil {
		s.logger.Warn("publishing push result failed", "error", err)
	}

	s.logger.Info("configuration pushed",
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"by", username(r),
	)
	writeJSON(w, http.StatusOK, res)
}

// pushItems pairs each selected device with its registers, in the order
// requested (or stored order when ids is empty).
func (s *Server) pushItems(r *http.Request, ids []string) ([]push.Item, error) {
	ctx := r.Context()

	devices, err := s.console.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	regs, err := s.console.ListRegisters(ctx)
	if err != nil {
		return nil, err
	}

	byDevice := make(map[string][]register.Register, len(devices))
	for _, reg := range regs {
		byDevice[reg.DeviceID] = append(byDevice[reg.DeviceID], reg)
	}

	selected := devices
	if len(ids) > 0 {
		index := make(map[string]device.Device, len(devices))
		for _, d := range devices {
			index[d.ID] = d
		}
		selected = make([]device.Device, 0, len(ids))
		for _, id := range ids {
			d, ok := index[id]
			if !ok {
				return nil, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
			}
			selected = append(selected, d)
		}
	}

	items := make([]push.Item, 0, len(selected))
	for _, d := range selected {
		items = append(items, push.Item{Device: d, Registers: byDevice[d.ID]})
	}
	return items, nil
}

// handleSerialPorts lists the serial ports available for RTU devices.
func (s *Server) handleSerialPorts(w http.ResponseWriter, r *http.Request) {
	ports, err := s.serialPorts()
	if err != nil {
		s.writeServiceError(w, r, err, "list serial ports")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ports": ports})
}
