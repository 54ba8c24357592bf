// Package handler adapts HTTP requests onto the service layer. Handlers
// decode and validate input, call exactly one use-case and render the result
// through the response envelope.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
)

// decodeJSON reads one JSON value into dst. An empty body leaves dst
// untouched when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return apperr.Validation("request body is required", nil)
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return nil
			}
			return apperr.Validation("request body is required", nil)
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body too large", nil)
		}
		return apperr.Validation("malformed JSON body", nil)
	}
	return nil
}

// validationError converts ozzo-validation output into a ValidationError
// carrying one message per field.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		for field, ferr := range fieldErrs {
			if ferr != nil {
				fields[field] = ferr.Error()
			}
		}
		return apperr.Validation("request validation failed", fields)
	}
	return apperr.Validation(err.Error(), nil)
}

func pathID(r *http.Request, name string) (uint, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.ValidationField(name, "must be a positive integer")
	}
	return uint(id), nil
}

func queryUint(r *http.Request, name string) (uint, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperr.ValidationField(name, "must be a non-negative integer")
	}
	return uint(v), nil
}

func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func pageRequest(r *http.Request) (repository.PageRequest, error) {
	page, err := queryUint(r, "page")
	if err != nil {
		return repository.PageRequest{}, err
	}
	size, err := queryUint(r, "pageSize")
	if err != nil {
		return repository.PageRequest{}, err
	}
	return repository.PageRequest{Page: int(page), PageSize: int(size)}, nil
}
