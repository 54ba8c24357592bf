package handler

import (
	"encoding/json"
	"io"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/http/response"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
	"github.com/sandeepkv93/clinical-records-service/internal/service"
)

// RecordHandler serves one family of patient-dependent records.
type RecordHandler[T any, PT repository.Record[T]] struct {
	records  *service.RecordService[T, PT]
	validate func(PT) error
}

func NewRecordHandler[T any, PT repository.Record[T]](records *service.RecordService[T, PT], validate func(PT) error) *RecordHandler[T, PT] {
	return &RecordHandler[T, PT]{records: records, validate: validate}
}

func ValidateExam(e *domain.Exam) error {
	return validation.ValidateStruct(e,
		validation.Field(&e.PatientID, validation.Required),
		validation.Field(&e.TestType, validation.Required, validation.Length(1, 128)),
	)
}

func ValidateNotification(n *domain.Notification) error {
	return validation.ValidateStruct(n,
		validation.Field(&n.PatientID, validation.Required),
		validation.Field(&n.Channel, validation.Required, validation.In("email", "sms", "phone", "letter")),
		validation.Field(&n.Message, validation.Required),
	)
}

func ValidateObservation(o *domain.Observation) error {
	return validation.ValidateStruct(o,
		validation.Field(&o.PatientID, validation.Required),
		validation.Field(&o.Note, validation.Required),
	)
}

func ValidateTreatment(t *domain.Treatment) error {
	return validation.ValidateStruct(t,
		validation.Field(&t.PatientID, validation.Required),
		validation.Field(&t.Medication, validation.Required, validation.Length(1, 128)),
		validation.Field(&t.Dosage, validation.Length(0, 128)),
	)
}

func (h *RecordHandler[T, PT]) Create(w http.ResponseWriter, r *http.Request) {
	rec := PT(new(T))
	if err := decodeJSON(r, rec, false); err != nil {
		response.FromError(w, r, err)
		return
	}
	if rec.RecordID() != 0 {
		response.FromError(w, r, apperr.ValidationField("id", "must not be set"))
		return
	}
	if err := h.validate(rec); err != nil {
		response.FromError(w, r, validationError(err))
		return
	}
	created, err := h.records.Create(r.Context(), rec)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, created)
}

func (h *RecordHandler[T, PT]) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	rec, err := h.records.Get(r.Context(), id)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, rec)
}

// ListByPatient is mounted under /patients/{id}.
func (h *RecordHandler[T, PT]) ListByPatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathID(r, "id")
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	items, err := h.records.ListByPatient(r.Context(), patientID, queryBool(r, "includeDeleted"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, items)
}

func (h *RecordHandler[T, PT]) Update(w http.ResponseWriter, r *http.Request) {
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
	updated, err := h.records.Update(r.Context(), id, func(rec PT) error {
		if err := json.Unmarshal(body, rec); err != nil {
			return apperr.Validation("malformed JSON body", nil)
		}
		return validationError(h.validate(rec))
	})
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, updated)
}

func (h *RecordHandler[T, PT]) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if err := h.records.Delete(r.Context(), id); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, nil)
}

func (h *RecordHandler[T, PT]) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	rec, err := h.records.Restore(r.Context(), id)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, rec)
}
