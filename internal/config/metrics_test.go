package config

import (
	"errors"
	"fmt"
	"testing"
)

func TestLoadErrorClass(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "ok", err: nil, want: "ok"},
		{name: "parse", err: fmt.Errorf("%w: %w", ErrParse, errors.New("JWT_ACCESS_TTL: invalid duration")), want: "parse"},
		{name: "invalid", err: fmt.Errorf("%w: %w", ErrInvalid, errors.New("DATABASE_URL is required")), want: "invalid"},
		{name: "other", err: errors.New("disk on fire"), want: "other"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := loadErrorClass(tc.err); got != tc.want {
				t.Fatalf("loadErrorClass()=%q want %q", got, tc.want)
			}
		})
	}
}

func TestProblemCountFollowsJoinedValidationErrors(t *testing.T) {
	joined := errors.Join(errors.New("a"), errors.New("b"), errors.New("c"))
	if got := problemCount(fmt.Errorf("%w: %w", ErrInvalid, joined)); got != 3 {
		t.Fatalf("expected 3 problems, got %d", got)
	}
	if got := problemCount(nil); got != 0 {
		t.Fatalf("expected 0 problems for nil, got %d", got)
	}
	if got := problemCount(errors.New("single")); got != 1 {
		t.Fatalf("expected 1 problem, got %d", got)
	}
}

func TestEnvLabelBoundsCardinality(t *testing.T) {
	for in, want := range map[string]string{
		" Production ": "production",
		"":             "unset",
		"qa-eu-7":      "other",
		"test":         "test",
	} {
		if got := envLabel(in); got != want {
			t.Fatalf("envLabel(%q)=%q want %q", in, got, want)
		}
	}
}
