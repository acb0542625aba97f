package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/pmsystem/pmdash/internal/projects/domain"
)

const (
	CtxClaims = "auth_claims"
)

// ClaimsFrom returns the claims set by the token middleware.
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(CtxClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

// PrincipalFrom returns the authenticated caller, or the zero Principal.
func PrincipalFrom(c *gin.Context) domain.Principal {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return domain.Principal{}
	}
	return claims.Principal()
}
