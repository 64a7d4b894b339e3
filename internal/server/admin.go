package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/authguard/internal/alert"
	"github.com/vyrodovalexey/authguard/internal/audit"
	"github.com/vyrodovalexey/authguard/internal/auth"
	"github.com/vyrodovalexey/authguard/internal/observability"
	"github.com/vyrodovalexey/authguard/internal/principal"
)

// DefaultStatsWindow is the audit statistics range when none is given.
const DefaultStatsWindow = 24 * time.Hour

// TokenRevoker revokes signed tokens.
type TokenRevoker interface {
	Revoke(ctx context.Context, raw string) (bool, error)
}

// AlertEngine is the part of alert.Engine the admin API uses.
type AlertEngine interface {
	Stats() alert.Stats
	Reset()
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type revokeRequest struct {
	Token string `json:"token" binding:"required"`
}

type revokeResponse struct {
	Revoked bool `json:"revoked"`
}

type admin struct {
	audit    audit.Store
	recorder auth.AuditRecorder
	alerts   AlertEngine
	revoker  TokenRevoker
	usage    *principal.UsageRegistry
	logger   observability.Logger
	now      func() time.Time
}

func (a *admin) register(g *gin.RouterGroup) {
	g.GET("/audit/stats", a.auditStats)
	g.GET("/alerts/stats", a.alertStats)
	g.POST("/alerts/reset", a.alertReset)
	g.POST("/tokens/revoke", a.revokeToken)
	g.GET("/usage", a.usageStats)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: "BAD_REQUEST", Message: msg})
}

func notConfigured(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, errorBody{Error: "NOT_CONFIGURED", Message: what + " is not enabled"})
}

// parseRange reads from and to as RFC 3339, defaulting to the last
// DefaultStatsWindow.
func parseRange(c *gin.Context, now time.Time) (from, to time.Time, err error) {
	to = now
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return from, to, errors.New("to must be an RFC 3339 timestamp")
		}
	}
	from = to.Add(-DefaultStatsWindow)
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return from, to, errors.New("from must be an RFC 3339 timestamp")
		}
	}
	if !from.Before(to) {
		return from, to, errors.New("from must be before to")
	}
	return from, to, nil
}

func (a *admin) auditStats(c *gin.Context) {
	if a.audit == nil {
		notConfigured(c, "audit")
		return
	}
	from, to, err := parseRange(c, a.now())
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	stats, err := audit.ComputeStatistics(c.Request.Context(), a.audit, from, to)
	if err != nil {
		a.logger.WithContext(c.Request.Context()).Error("audit statistics failed", observability.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody{Error: auth.CodeInternalError, Message: "failed to compute statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *admin) alertStats(c *gin.Context) {
	if a.alerts == nil {
		notConfigured(c, "alerting")
		return
	}
	c.JSON(http.StatusOK, a.alerts.Stats())
}

func (a *admin) alertReset(c *gin.Context) {
	if a.alerts == nil {
		notConfigured(c, "alerting")
		return
	}
	a.alerts.Reset()
	a.logger.WithContext(c.Request.Context()).Info("alert state reset", observability.String("by", callerID(c)))
	c.Status(http.StatusNoContent)
}

func (a *admin) revokeToken(c *gin.Context) {
	if a.revoker == nil {
		notConfigured(c, "signed token revocation")
		return
	}
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body must be {\"token\": \"...\"}")
		return
	}

	ctx := c.Request.Context()
	revoked, err := a.revoker.Revoke(ctx, req.Token)
	if err != nil {
		var authErr *auth.Error
		if errors.As(err, &authErr) && authErr.Kind == auth.KindInvalidCredential {
			badRequest(c, "token is malformed")
			return
		}
		a.logger.WithContext(ctx).Error("token revocation failed", observability.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody{Error: auth.CodeInternalError, Message: "failed to revoke token"})
		return
	}

	if revoked && a.recorder != nil {
		a.recorder.Record(ctx, audit.Event{
			Type:      audit.EventJWTRevoked,
			UserID:    callerID(c),
			ClientIP:  auth.ClientIP(c.Request),
			UserAgent: c.Request.UserAgent(),
			Timestamp: a.now(),
			Resource:  c.Request.URL.Path,
			Action:    audit.ActionJWTRevoke,
			Success:   true,
		})
	}
	c.JSON(http.StatusOK, revokeResponse{Revoked: revoked})
}

func (a *admin) usageStats(c *gin.Context) {
	if a.usage == nil {
		notConfigured(c, "usage tracking")
		return
	}
	c.JSON(http.StatusOK, a.usage.Snapshot())
}

func callerID(c *gin.Context) string {
	if p, ok := auth.PrincipalFromContext(c.Request.Context()); ok {
		return p.ID
	}
	return ""
}
