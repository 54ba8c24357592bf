package service

import "slices"

type RBACAuthorizer interface {
	HasPermission(permissions []string, required string) bool
}

// RBACService checks permission codes of the form "verb:resource".
type RBACService struct{}

func NewRBACService() *RBACService { return &RBACService{} }

func (s *RBACService) HasPermission(permissions []string, required string) bool {
	return required != "" && slices.Contains(permissions, required)
}
