package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID is the request ID header, inbound and outbound.
const HeaderRequestID = "X-Request-ID"

// ContextKeyRequestID is the Gin context key the response envelope reads.
const ContextKeyRequestID = "request_id"

// RequestIDMiddleware tags every request with an ID, honoring one already
// supplied by the caller so IDs survive proxy hops.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}
