package models

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "fintech-id/pkg/domain-errors"
)

const (
	MinAge             = 18
	MaxAge             = 120
	MinPassportAge     = 14
	MinPasswordLength  = 8
	MaxNameLength      = 30
	MaxLocationLength  = 100
	MaxHullLength      = 7
	MinEmailLength     = 5
	MaxEmailLength     = 31
	MaxPassportLength  = 10
	passwordSpecials   = "@$!%*?&/."
	invalidPhoneMsg    = "invalid mobile phone number"
	invalidRequestMsg  = "invalid request data"
	passwordPatternMsg = "password must contain at least one lowercase letter, one uppercase letter, one digit and one symbol"
)

var (
	phonePattern      = regexp.MustCompile(`^7\d{10}$`)
	emailPattern      = regexp.MustCompile(`^[\w.%+-]+@[\w.-]+\.(com|ru)$`)
	passportPattern   = regexp.MustCompile(`^\d{10}$`)
	departmentPattern = regexp.MustCompile(`^\d{6}$`)
	postCodePattern   = regexp.MustCompile(`^\d{6}$`)
)

// AddressFields are the address attributes of a registration request.
type AddressFields struct {
	Country  string `json:"country"`
	City     string `json:"city"`
	Street   string `json:"street"`
	House    string `json:"house"`
	Hull     string `json:"hull,omitempty"`
	Flat     string `json:"flat,omitempty"`
	PostCode string `json:"postCode"`
}

// RegistrationRequest is the payload of POST /public/users/registration.
// The registration address is flattened into the top level. ActualAddress is
// optional and defaults to the registration address.
type RegistrationRequest struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	MiddleName     string `json:"middleName,omitempty"`
	MobilePhone    string `json:"mobilePhone"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	PassportNumber string `json:"passportNumber"`
	IssuedBy       string `json:"issuedBy"`
	IssueDate      Date   `json:"issueDate"`
	DepartmentCode string `json:"departmentCode"`
	BirthDate      Date   `json:"birthDate"`
	AddressFields
	ActualAddress *AddressFields `json:"actualAddress,omitempty"`
}

// Normalize trims surrounding whitespace from every text field.
func (r *RegistrationRequest) Normalize() {
	for _, f := range []*string{
		&r.FirstName, &r.LastName, &r.MiddleName, &r.MobilePhone, &r.Email,
		&r.PassportNumber, &r.IssuedBy, &r.DepartmentCode,
	} {
		*f = strings.TrimSpace(*f)
	}
	r.AddressFields.normalize()
	if r.ActualAddress != nil {
		r.ActualAddress.normalize()
	}
}

// Validate checks every field and returns the first violation as a
// validation error. today anchors the age and issue date rules.
func (r *RegistrationRequest) Validate(today time.Time) error {
	v := &validator{}

	v.check(!r.IssueDate.IsZero(), "issue date cannot be empty")
	v.check(!r.BirthDate.IsZero(), "birth date cannot be empty")
	v.notBlank(r.FirstName, "first name cannot be empty")
	v.notBlank(r.LastName, "last name cannot be empty")
	v.notBlank(r.MobilePhone, "mobile phone cannot be empty")
	v.notBlank(r.Email, "email cannot be empty")
	v.notBlank(r.Password, "password cannot be empty")
	v.notBlank(r.PassportNumber, "passport number cannot be empty")
	v.notBlank(r.IssuedBy, "issued by cannot be empty")
	v.notBlank(r.DepartmentCode, "department code cannot be empty")
	r.AddressFields.requireFields(v, "")

	v.maxLen(r.FirstName, MaxNameLength, "first name cannot exceed 30 characters")
	v.maxLen(r.LastName, MaxNameLength, "last name cannot exceed 30 characters")
	v.maxLen(r.MiddleName, MaxNameLength, "middle name cannot exceed 30 characters")
	v.check(inRange(r.Email, MinEmailLength, MaxEmailLength), "email must be between 5 and 31 characters")
	v.check(utf8.RuneCountInString(r.Password) >= MinPasswordLength, "password must be at least 8 characters")
	v.maxLen(r.IssuedBy, MaxLocationLength, "issued by cannot exceed 100 characters")
	r.AddressFields.checkSizes(v, "")

	v.match(phonePattern, r.MobilePhone, invalidPhoneMsg)
	v.match(emailPattern, r.Email, "email must end with .com or .ru")
	v.check(strongPassword(r.Password), passwordPatternMsg)
	v.match(passportPattern, r.PassportNumber, "passport number must be 10 digits")
	v.match(departmentPattern, r.DepartmentCode, "department code must be 6 digits")
	v.match(postCodePattern, r.PostCode, "post code must be 6 digits")

	if r.ActualAddress != nil {
		r.ActualAddress.requireFields(v, "actual address ")
		r.ActualAddress.checkSizes(v, "actual address ")
		v.match(postCodePattern, r.ActualAddress.PostCode, "actual address post code must be 6 digits")
	}

	if v.err != nil {
		return v.err
	}

	now := DateOf(today)
	age := r.BirthDate.YearsUntil(now)
	v.check(age >= MinAge && age <= MaxAge, "age must be between 18 and 120 years")
	minIssue := r.BirthDate.AddYears(MinPassportAge)
	v.check(!r.IssueDate.Before(minIssue.Time) && !r.IssueDate.After(now.Time),
		"passport issue date must be no earlier than birth date plus 14 years and no later than today")
	return v.err
}

// RegistrationAddress returns the registration address fields.
func (r *RegistrationRequest) RegistrationAddress() AddressFields {
	return r.AddressFields
}

// ResolvedActualAddress returns the actual address, falling back to the
// registration address when none was given.
func (r *RegistrationRequest) ResolvedActualAddress() AddressFields {
	if r.ActualAddress == nil {
		return r.AddressFields
	}
	return *r.ActualAddress
}

// AuthorizationRequest is the payload of POST /public/users/authorization.
// Empty PassportNumber or MobilePhone means absent.
type AuthorizationRequest struct {
	Password       string `json:"password"`
	PassportNumber string `json:"passportNumber,omitempty"`
	MobilePhone    string `json:"mobilePhone,omitempty"`
}

func (r *AuthorizationRequest) Normalize() {
	r.PassportNumber = strings.TrimSpace(r.PassportNumber)
	r.MobilePhone = strings.TrimSpace(r.MobilePhone)
}

// Validate checks field shapes. The presence of at least one key is checked
// by the pipeline, not here.
func (r *AuthorizationRequest) Validate() error {
	v := &validator{}
	v.notBlank(r.Password, "password cannot be empty")
	v.check(strongPassword(r.Password), passwordPatternMsg)
	v.check(utf8.RuneCountInString(r.Password) >= MinPasswordLength, "password must be at least 8 characters")
	v.maxLen(r.PassportNumber, MaxPassportLength, "passport number cannot exceed 10 characters")
	if r.MobilePhone != "" {
		v.match(phonePattern, r.MobilePhone, invalidPhoneMsg)
	}
	return v.err
}

// PhoneRequest carries a single mobile phone. Used by check-registration and
// OTP creation.
type PhoneRequest struct {
	MobilePhone string `json:"mobilePhone"`
}

func (r *PhoneRequest) Normalize() {
	r.MobilePhone = strings.TrimSpace(r.MobilePhone)
}

func (r *PhoneRequest) Validate() error {
	v := &validator{}
	v.notBlank(r.MobilePhone, "mobile phone cannot be empty")
	v.match(phonePattern, r.MobilePhone, invalidRequestMsg)
	return v.err
}

// PhoneResponse echoes a mobile phone back to the caller.
type PhoneResponse struct {
	MobilePhone string `json:"mobilePhone"`
}

// RegistrationResponse is returned after a successful registration.
type RegistrationResponse struct {
	ID string `json:"id"`
}

// AuthorizationResponse is returned after a successful login.
type AuthorizationResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId"`
}

// AuthorizationResult is the outcome of the authorization pipeline.
type AuthorizationResult struct {
	AccessToken  string
	RefreshToken string
	ClientID     uuid.UUID
}

func (f *AddressFields) normalize() {
	for _, s := range []*string{&f.Country, &f.City, &f.Street, &f.House, &f.Hull, &f.Flat, &f.PostCode} {
		*s = strings.TrimSpace(*s)
	}
}

func (f *AddressFields) requireFields(v *validator, prefix string) {
	v.notBlank(f.Country, prefix+"country cannot be empty")
	v.notBlank(f.City, prefix+"city cannot be empty")
	v.notBlank(f.Street, prefix+"street cannot be empty")
	v.notBlank(f.House, prefix+"house cannot be empty")
	v.notBlank(f.PostCode, prefix+"post code cannot be empty")
}

func (f *AddressFields) checkSizes(v *validator, prefix string) {
	v.maxLen(f.Country, MaxLocationLength, prefix+"country cannot exceed 100 characters")
	v.maxLen(f.City, MaxLocationLength, prefix+"city cannot exceed 100 characters")
	v.maxLen(f.Street, MaxLocationLength, prefix+"street cannot exceed 100 characters")
	v.maxLen(f.Hull, MaxHullLength, prefix+"hull cannot exceed 7 characters")
}

// validator keeps the first failure only.
type validator struct {
	err error
}

func (v *validator) check(ok bool, msg string) {
	if v.err == nil && !ok {
		v.err = dErrors.New(dErrors.CodeValidation, msg)
	}
}

func (v *validator) notBlank(s, msg string) {
	v.check(strings.TrimSpace(s) != "", msg)
}

func (v *validator) maxLen(s string, n int, msg string) {
	v.check(utf8.RuneCountInString(s) <= n, msg)
}

func (v *validator) match(re *regexp.Regexp, s, msg string) {
	v.check(re.MatchString(s), msg)
}

func inRange(s string, lo, hi int) bool {
	n := utf8.RuneCountInString(s)
	return n >= lo && n <= hi
}

// strongPassword mirrors (?=.*[a-z])(?=.*[A-Z])(?=.*\d)(?=.*[@$!%*?&/.]).{8,}
// which RE2 cannot express.
func strongPassword(p string) bool {
	var lower, upper, digit, special bool
	for _, r := range p {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	return lower && upper && digit && special && utf8.RuneCountInString(p) >= MinPasswordLength
}
