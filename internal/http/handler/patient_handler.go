package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/http/response"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
	"github.com/sandeepkv93/clinical-records-service/internal/service"
)

type PatientHandler struct {
	patients *service.PatientService
}

func NewPatientHandler(patients *service.PatientService) *PatientHandler {
	return &PatientHandler{patients: patients}
}

func validatePatient(p *domain.Patient) error {
	return validation.ValidateStruct(p,
		validation.Field(&p.FirstName, validation.Required, validation.Length(1, 128)),
		validation.Field(&p.LastName, validation.Required, validation.Length(1, 128)),
		validation.Field(&p.DocumentNumber, validation.Required, validation.Length(1, 64)),
		validation.Field(&p.BirthDate, validation.Required, validation.By(notInFuture)),
		validation.Field(&p.Email, is.Email, validation.Length(0, 255)),
	)
}

func notInFuture(value any) error {
	t, ok := value.(time.Time)
	if ok && t.After(time.Now()) {
		return errors.New("must not be in the future")
	}
	return nil
}

func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p domain.Patient
	if err := decodeJSON(r, &p, false); err != nil {
		response.FromError(w, r, err)
		return
	}
	if err := validatePatient(&p); err != nil {
		response.FromError(w, r, validationError(err))
		return
	}
	created, err := h.patients.Create(r.Context(), &p)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, created)
}

func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	summary, err := h.patients.Get(r.Context(), id)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, summary)
}

func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	result, err := h.patients.List(r.Context(), repository.PatientListQuery{
		PageRequest:    page,
		Search:         r.URL.Query().Get("search"),
		IncludeDeleted: queryBool(r, "includeDeleted"),
	})
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

// Update merges the JSON body onto the stored patient, so omitted fields keep
// their values.
func (h *PatientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.FromError(w, r, apperr.Validation("unreadable request body", nil))
		return
	}
	updated, err := h.patients.Update(r.Context(), id, func(p *domain.Patient) error {
		if err := json.Unmarshal(body, p); err != nil {
			return apperr.Validation("malformed JSON body", nil)
		}
		return validationError(validatePatient(p))
	})
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, updated)
}

func (h *PatientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if err := h.patients.Delete(r.Context(), id); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, nil)
}

func (h *PatientHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	restored, err := h.patients.Restore(r.Context(), id)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, restored)
}
