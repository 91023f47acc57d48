package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/service"
	"signage-fleet-server/pkg/response"
)

type CompanyHandler struct {
	service  *service.CompanyService
	validate *validator.Validate
}

func NewCompanyHandler(service *service.CompanyService) *CompanyHandler {
	return &CompanyHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *CompanyHandler) Create(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	var req domain.CompanyRequest
	if err := decode(r, h.validate, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	company, err := h.service.Create(r.Context(), op, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, company)
}

func (h *CompanyHandler) List(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	companies, err := h.service.List(r.Context(), op)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, companies)
}

func (h *CompanyHandler) Get(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	company, err := h.service.Get(r.Context(), op, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, company)
}

func (h *CompanyHandler) Update(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	var req domain.CompanyRequest
	if err := decode(r, h.validate, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	company, err := h.service.Update(r.Context(), op, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, company)
}

func (h *CompanyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), op, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	response.Message(w, "Company deleted successfully")
}

func (h *CompanyHandler) CreateSector(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	var req domain.SectorRequest
	if err := decode(r, h.validate, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	sector, err := h.service.CreateSector(r.Context(), op, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, sector)
}

func (h *CompanyHandler) DeleteSector(w http.ResponseWriter, r *http.Request) {
	op, ok := currentOperator(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	if err := h.service.DeleteSector(r.Context(), op, vars["id"], vars["sectorId"]); err != nil {
		writeError(w, r, err)
		return
	}
	response.Message(w, "Sector deleted successfully")
}
