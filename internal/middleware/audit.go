package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vivadrive/organization-api/internal/audit"
	"github.com/vivadrive/organization-api/internal/safego"
)

// auditShipTimeout bounds how long a slow destination may hold an entry.
const auditShipTimeout = 5 * time.Second

// AuditMiddleware ships an audit.LogEntry for every successful organization
// mutation. Reads, OPTIONS and failed requests are not recorded.
// Shipping runs in the background so the response is never delayed.
func AuditMiddleware(shipper audit.Shipper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if shipper == nil || c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		action := auditAction(c.Request.Method)
		if action == "" {
			return
		}

		entry := &audit.LogEntry{
			Timestamp:    time.Now().UTC(),
			Action:       action,
			ResourceType: "organization",
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			RequestID:    c.GetString(RequestIDKey),
			StatusCode:   c.Writer.Status(),
		}
		if id, ok := c.Get(CreatedIDKey); ok {
			if v, ok := id.(string); ok {
				entry.ResourceID = v
			}
		}
		if user, err := CurrentUser(c); err == nil {
			entry.UserID = user.ID
			entry.Username = user.Username
		}

		// gin recycles the context once the handler chain returns.
		logger := Logger(c)
		safego.Go("audit-ship", func() {
			ctx, cancel := context.WithTimeout(context.Background(), auditShipTimeout)
			defer cancel()
			if err := shipper.Ship(ctx, entry); err != nil {
				logger.Error("failed to ship audit log", "action", entry.Action, "error", err)
			}
		})
	}
}

// CreatedIDKey lets a create handler report the id it assigned, since the
// route itself carries none.
const CreatedIDKey = "audit_resource_id"

func auditAction(method string) string {
	switch method {
	case http.MethodPost:
		return "organization.created"
	case http.MethodPut, http.MethodPatch:
		return "organization.updated"
	case http.MethodDelete:
		return "organization.deleted"
	default:
		return ""
	}
}
