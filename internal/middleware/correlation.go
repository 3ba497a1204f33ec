package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nexus-catalog/pkg/response"
)

const CorrelationIDHeader = "X-Correlation-ID"

type correlationKey struct{}

// CorrelationID propagates the X-Correlation-ID header, generating one when
// the client sent none.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(response.CorrelationIDKey, id)
		c.Header(CorrelationIDHeader, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), correlationKey{}, id))
		c.Next()
	}
}

// CorrelationIDFrom returns the correlation id stored in ctx.
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
