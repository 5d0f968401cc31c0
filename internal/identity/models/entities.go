package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuthorizationType is the login method configured on a profile.
type AuthorizationType string

const (
	AuthorizationLogin AuthorizationType = "LOGIN"
	AuthorizationPin   AuthorizationType = "PIN"
)

// Address is a postal address owned by a client, either the registration
// address from the passport or the actual residence.
type Address struct {
	ID        uuid.UUID
	Country   string
	City      string
	Street    string
	House     string
	Hull      string
	Flat      string
	PostCode  string
	UpdatedAt time.Time
}

// PassportData is the identity document of a client. PassportNumber is unique.
type PassportData struct {
	ID             uuid.UUID
	PassportNumber string
	IssuedBy       string
	IssuedDate     time.Time
	DepartmentCode string
	BirthDate      time.Time
}

// Client is the bank customer. MobilePhone is unique.
type Client struct {
	ID                    uuid.UUID
	PassportID            uuid.UUID
	FirstName             string
	LastName              string
	MiddleName            string
	MobilePhone           string
	Verified              bool
	RegistrationAddressID uuid.UUID
	ActualAddressID       uuid.UUID
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// UserProfile holds login credentials and notification preferences.
// Email and ClientID are unique.
type UserProfile struct {
	ID                uuid.UUID
	ClientID          uuid.UUID
	PasswordHash      string `json:"-"`
	SMSEnabled        bool
	PushEnabled       bool
	Email             string
	EmailSubscription bool
	AuthorizationType AuthorizationType
}

// IdentityProjection is the minimal view needed to authenticate a client.
type IdentityProjection struct {
	ID           uuid.UUID
	FirstName    string
	LastName     string
	PasswordHash string
}

// DisplayName joins first and last name with a single space.
func (p IdentityProjection) DisplayName() string {
	return strings.Join([]string{p.FirstName, p.LastName}, " ")
}

// Lookup is the result of resolving an identity. It is either Found or NotFound.
type Lookup interface {
	isLookup()
}

// Found carries the resolved identity.
type Found struct {
	Identity IdentityProjection
}

// NotFound means no identity matched the key.
type NotFound struct{}

func (Found) isLookup()    {}
func (NotFound) isLookup() {}
