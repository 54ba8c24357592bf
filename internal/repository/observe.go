package repository

import (
	"context"
	"errors"

	"github.com/sandeepkv93/clinical-records-service/internal/observability"
)

// observe records the outcome of a repository call and passes err through.
func observe(ctx context.Context, repo, op string, err error) error {
	outcome := "success"
	switch {
	case err == nil:
	case isNotFound(err):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	observability.RecordRepositoryOperation(ctx, repo, op, outcome)
	return err
}

func isNotFound(err error) bool {
	for _, target := range []error{
		ErrSessionNotFound, ErrUserNotFound, ErrRoleNotFound,
		ErrResetTokenNotFound, ErrResetTokenNotValid, ErrRecordNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
