package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/middleware"
	"signage-fleet-server/internal/service"
	"signage-fleet-server/pkg/response"
)

type PairingHandler struct {
	service  *service.PairingService
	validate *validator.Validate
	secure   bool
}

func NewPairingHandler(service *service.PairingService, secureCookies bool) *PairingHandler {
	return &PairingHandler{
		service:  service,
		validate: validator.New(),
		secure:   secureCookies,
	}
}

func (h *PairingHandler) Pair(w http.ResponseWriter, r *http.Request) {
	var req domain.PairRequest
	if err := decode(r, h.validate, &req); err != nil {
		response.DeviceError(w, http.StatusBadRequest, err.Error(), "INVALID_REQUEST", response.ActionIgnore)
		return
	}

	pair, err := h.service.PairWithSecret(r.Context(), &req)
	h.respond(w, r, pair, err)
}

func (h *PairingHandler) PairWithCode(w http.ResponseWriter, r *http.Request) {
	var req domain.PairCodeRequest
	if err := decode(r, h.validate, &req); err != nil {
		response.DeviceError(w, http.StatusBadRequest, err.Error(), "INVALID_REQUEST", response.ActionIgnore)
		return
	}

	pair, err := h.service.PairWithCode(r.Context(), req.Code)
	h.respond(w, r, pair, err)
}

func (h *PairingHandler) PairWithLink(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	pair, err := h.service.PairWithLink(r.Context(), token)
	h.respond(w, r, pair, err)
}

func (h *PairingHandler) respond(w http.ResponseWriter, r *http.Request, pair *domain.TokenPair, err error) {
	if err != nil {
		writeDeviceError(w, r, err)
		return
	}
	middleware.SetSessionCookies(w, pair, h.secure)
	response.Success(w, pair)
}

func (h *PairingHandler) IssuePairingCode(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	code, err := h.service.IssuePairingCode(r.Context(), op, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, code)
}

func (h *PairingHandler) IssueMagicLink(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	link, err := h.service.IssueMagicLink(r.Context(), op, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, link)
}
