package models

import (
	"github.com/google/uuid"
)

// RegistrationState accumulates the entities persisted by each registration
// step. Later steps read ids written by earlier ones.
type RegistrationState struct {
	Passport            *PassportData
	RegistrationAddress *Address
	ActualAddress       *Address
	Client              *Client
	Profile             *UserProfile
}

// AuthorizationState accumulates the authorization pipeline's progress.
type AuthorizationState struct {
	Request      AuthorizationRequest
	Lookup       Lookup
	ClientID     uuid.UUID
	DisplayName  string
	AccessToken  string
	RefreshToken string
}

// Result assembles the pipeline output.
func (s AuthorizationState) Result() AuthorizationResult {
	return AuthorizationResult{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ClientID:     s.ClientID,
	}
}
