package handler

import (
	"net/http"
	"strings"

	"signage-fleet-server/internal/service"
	"signage-fleet-server/pkg/response"
)

// DeviceSessionHandler serves requests made by paired devices themselves.
type DeviceSessionHandler struct {
	devices   *service.DeviceService
	pairing   *service.PairingService
	playlists *service.PlaylistService
}

func NewDeviceSessionHandler(devices *service.DeviceService, pairing *service.PairingService, playlists *service.PlaylistService) *DeviceSessionHandler {
	return &DeviceSessionHandler{
		devices:   devices,
		pairing:   pairing,
		playlists: playlists,
	}
}

func (h *DeviceSessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	device, ok := currentDevice(w, r)
	if !ok {
		return
	}

	profile, err := h.devices.Describe(r.Context(), device)
	if err != nil {
		writeDeviceError(w, r, err)
		return
	}
	response.Success(w, profile)
}

func (h *DeviceSessionHandler) SocketTicket(w http.ResponseWriter, r *http.Request) {
	device, ok := currentDevice(w, r)
	if !ok {
		return
	}

	ticket, err := h.pairing.IssueSocketTicket(r.Context(), device.ID)
	if err != nil {
		writeDeviceError(w, r, err)
		return
	}
	response.Success(w, ticket)
}

func (h *DeviceSessionHandler) Playlist(w http.ResponseWriter, r *http.Request) {
	device, ok := currentDevice(w, r)
	if !ok {
		return
	}

	res, err := h.playlists.ResolveCached(r.Context(), device.Identity())
	if err != nil {
		writeDeviceError(w, r, err)
		return
	}

	w.Header().Set("ETag", res.ETag)
	w.Header().Set("Cache-Control", "no-store")
	if etagMatches(r.Header.Get("If-None-Match"), res.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	response.Success(w, res.Playlist)
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
