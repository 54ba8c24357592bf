package handler

import (
	"net/http"
	"strings"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/http/response"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
	"github.com/sandeepkv93/clinical-records-service/internal/service"
)

type AuditHandler struct {
	audit *service.AuditService
}

func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	entityID, err := queryUint(r, "entityId")
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	userID, err := queryUint(r, "userId")
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	action := domain.AuditAction(strings.ToUpper(r.URL.Query().Get("action")))
	if action != "" && !action.Valid() {
		response.FromError(w, r, apperr.ValidationField("action", "unknown audit action"))
		return
	}
	result, err := h.audit.List(r.Context(), repository.AuditListQuery{
		PageRequest: page,
		EntityName:  r.URL.Query().Get("entityName"),
		EntityID:    entityID,
		UserID:      userID,
		Action:      action,
	})
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}
