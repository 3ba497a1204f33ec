package security

import (
	"github.com/gin-gonic/gin"

	"nexus-catalog/internal/utils"
	"nexus-catalog/pkg/response"
)

const claimsKey = "user_claims"

// AuthMiddleware guards routes with bearer tokens.
type AuthMiddleware struct {
	jwt *JWTManager
}

func NewAuthMiddleware(jwtManager *JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwtManager}
}

// RequireAuth rejects requests without a valid token and stores the claims
// on the context.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Fail(c, utils.NewErrorBuilder(utils.ErrCodeUnauthorized).WithMessage(err.Error()).Build())
			return
		}
		claims, err := am.jwt.ValidateToken(token)
		if err != nil {
			response.Fail(c, utils.NewErrorBuilder(utils.ErrCodeInvalidToken).
				WithMessage("Invalid or expired token").
				Build())
			return
		}
		c.Set(claimsKey, claims)
		c.Set("user_id", claims.Subject)
		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func (am *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Fail(c, utils.NewErrorBuilder(utils.ErrCodeUnauthorized).Build())
			return
		}
		if !claims.HasRole(role) {
			response.Fail(c, utils.NewErrorBuilder(utils.ErrCodeForbidden).
				WithMessage("Insufficient privileges").
				WithDetails("role '" + role + "' is required").
				Build())
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by RequireAuth.
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
