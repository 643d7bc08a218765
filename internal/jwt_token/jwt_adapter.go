package jwttoken

import (
	authmw "medcourier/pkg/platform/middleware/auth"
	"medcourier/pkg/requestcontext"
)

// JWTServiceAdapter exposes JWTService through the middleware's validator port.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (requestcontext.ActorInfo, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return requestcontext.ActorInfo{}, err
	}
	return requestcontext.ActorInfo{ID: claims.Subject, Role: requestcontext.Role(claims.Role)}, nil
}

var _ authmw.TokenValidator = (*JWTServiceAdapter)(nil)
