package models

import (
	"regexp"
	"strings"

	dErrors "fintech-id/pkg/domain-errors"
)

var phonePattern = regexp.MustCompile(`^7\d{10}$`)

// VerifyRequest is the payload of POST /auth/users/otp/verification.
type VerifyRequest struct {
	MobilePhone string `json:"mobilePhone"`
	OTPCode     string `json:"otpCode"`
}

func (r *VerifyRequest) Normalize() {
	r.MobilePhone = strings.TrimSpace(r.MobilePhone)
	r.OTPCode = strings.TrimSpace(r.OTPCode)
}

func (r *VerifyRequest) Validate() error {
	if r.MobilePhone == "" {
		return dErrors.New(dErrors.CodeValidation, "mobile phone cannot be empty")
	}
	if !phonePattern.MatchString(r.MobilePhone) {
		return dErrors.New(dErrors.CodeValidation, "invalid mobile phone number")
	}
	if r.OTPCode == "" {
		return dErrors.New(dErrors.CodeValidation, "otp code cannot be empty")
	}
	return nil
}
