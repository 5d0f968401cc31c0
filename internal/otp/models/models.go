package models

import (
	"crypto/subtle"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is the stored state of one issued code, keyed by phone number.
// It is persisted as "code,attempts".
type Record struct {
	Code     string
	Attempts int
}

func (r Record) Encode() string {
	return r.Code + "," + strconv.Itoa(r.Attempts)
}

func ParseRecord(raw string) (Record, error) {
	code, attempts, ok := strings.Cut(raw, ",")
	if !ok || code == "" {
		return Record{}, fmt.Errorf("malformed otp record %q", raw)
	}
	n, err := strconv.Atoi(attempts)
	if err != nil || n < 0 {
		return Record{}, fmt.Errorf("malformed otp attempts %q", attempts)
	}
	return Record{Code: code, Attempts: n}, nil
}

// Transition tells a store what to do with a record after a check.
type Transition int

const (
	// Keep leaves the record untouched.
	Keep Transition = iota
	// Consume deletes the record.
	Consume
	// Save rewrites the record without touching its remaining lifetime.
	Save
)

func (t Transition) String() string {
	switch t {
	case Keep:
		return "keep"
	case Consume:
		return "consume"
	case Save:
		return "save"
	default:
		return "unknown"
	}
}

// Outcome is the verdict of a single verification.
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeMismatch  Outcome = "mismatch"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeMissing   Outcome = "missing"
)

// Check compares submitted against the record. The attempts ceiling is
// enforced before the comparison, so an exhausted record is never consumed.
func (r Record) Check(submitted string, maxAttempts int) (Record, Transition, Outcome) {
	if r.Attempts >= maxAttempts {
		return r, Keep, OutcomeExhausted
	}
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(r.Code)) == 1 {
		return r, Consume, OutcomeMatched
	}
	r.Attempts++
	return r, Save, OutcomeMismatch
}

// Delivery is what a notifier sends out of band.
type Delivery struct {
	Phone      string `json:"mobilePhone"`
	Code       string `json:"otpCode"`
	TTLSeconds int64  `json:"ttlSeconds"`
}

func NewDelivery(phone, code string, ttl time.Duration) Delivery {
	return Delivery{Phone: phone, Code: code, TTLSeconds: int64(ttl / time.Second)}
}
