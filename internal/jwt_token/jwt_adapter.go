package jwttoken

import (
	authmw "fintech-id/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims converts decoded claims into the middleware view.
func ToMiddlewareClaims(claims *TokenClaims) *authmw.Claims {
	return &authmw.Claims{
		ClientID:    claims.SubjectID,
		DisplayName: claims.DisplayName,
	}
}

// TokenServiceAdapter lets the auth middleware validate tokens without
// importing this package.
type TokenServiceAdapter struct {
	service *TokenService
}

func NewTokenServiceAdapter(service *TokenService) *TokenServiceAdapter {
	return &TokenServiceAdapter{service: service}
}

func (a *TokenServiceAdapter) ValidateToken(tokenString string) (*authmw.Claims, error) {
	claims, err := a.service.Claims(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
