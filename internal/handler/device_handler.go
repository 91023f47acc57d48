package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/service"
	"signage-fleet-server/pkg/response"
)

type DeviceHandler struct {
	service  *service.DeviceService
	validate *validator.Validate
}

func NewDeviceHandler(service *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *DeviceHandler) Create(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	var req domain.CreateDeviceRequest
	if err := decode(r, h.validate, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	created, err := h.service.Create(r.Context(), op, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, created)
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	devices, err := h.service.List(r.Context(), op)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, devices)
}

func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	device, err := h.service.Get(r.Context(), op, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, device)
}

func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	var req domain.UpdateDeviceRequest
	if err := decode(r, h.validate, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	device, err := h.service.Update(r.Context(), op, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, device)
}

func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), op, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	response.Message(w, "Device deleted successfully")
}

func (h *DeviceHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	if err := h.service.Revoke(r.Context(), op, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	response.Message(w, "Device revoked successfully")
}

func (h *DeviceHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	device, err := h.service.Reactivate(r.Context(), op, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, device)
}

func (h *DeviceHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	online, err := h.service.ForceRefresh(r.Context(), op, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, map[string]bool{"online": online})
}

// RefreshCompany reloads every online device of a company. Superadmins name
// the company with ?company_id=.
func (h *DeviceHandler) RefreshCompany(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	reached, err := h.service.ForceRefreshCompany(r.Context(), op, r.URL.Query().Get("company_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, map[string]int{"devices_reached": reached})
}
