package service

import (
	"context"

	"fintech-id/internal/identity/models"
	dErrors "fintech-id/pkg/domain-errors"
)

// CheckRegistration returns the phone when no client is registered with it.
func (s *Service) CheckRegistration(ctx context.Context, req models.PhoneRequest) (string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}
	exists, err := s.store.PhoneExists(ctx, req.MobilePhone)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to check mobile phone")
	}
	if exists {
		return "", dErrors.New(dErrors.CodeConflict, msgPhoneTaken)
	}
	return req.MobilePhone, nil
}
