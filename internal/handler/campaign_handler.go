package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/service"
	"signage-fleet-server/pkg/response"
)

type CampaignHandler struct {
	service  *service.CampaignService
	validate *validator.Validate
}

func NewCampaignHandler(service *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	var req domain.CampaignRequest
	if err := decode(r, h.validate, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	campaign, err := h.service.Create(r.Context(), op, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, campaign)
}

func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	campaigns, err := h.service.List(r.Context(), op)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, campaigns)
}

func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	campaign, err := h.service.Get(r.Context(), op, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, campaign)
}

func (h *CampaignHandler) Update(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	var req domain.CampaignRequest
	if err := decode(r, h.validate, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	campaign, err := h.service.Update(r.Context(), op, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, campaign)
}

func (h *CampaignHandler) Delete(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), op, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	response.Message(w, "Campaign deleted successfully")
}
