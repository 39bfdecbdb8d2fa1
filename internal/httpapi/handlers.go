package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cafesys/internal/audit"
	"cafesys/internal/auth"
	"cafesys/internal/credits"
	"cafesys/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CreditService is the part of credits.Service the API exposes.
type CreditService interface {
	ManualRefill(ctx context.Context, entered string, userID int64) (credits.Balance, error)
	ManualImport(ctx context.Context, entered string, userID int64) (credits.Balance, error)
	UsedBy(ctx context.Context, userID int64) (credits.History, error)
	IsUsed(ctx context.Context, entered string, kind credits.CodeKind, lookupBy string) (bool, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Credits CreditService
	Tokens  TokenRefresher
}

// TokenRefresher is implemented by auth.Manager.
type TokenRefresher interface {
	Refresh(refreshToken string, now time.Time) (auth.TokenPair, error)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken issues a new token pair for a valid refresh token. Public.
func (h Handlers) RefreshToken(c *gin.Context) {
	if h.Tokens == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, err := h.Tokens.Refresh(strings.TrimSpace(req.RefreshToken), time.Now())
	if err != nil {
		logger.FromGin(c).Debug("refresh rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

type redeemRequest struct {
	Code string `json:"code"`
}

// Refill redeems a balance code for the caller.
func (h Handlers) Refill(c *gin.Context) {
	h.redeem(c, func(ctx context.Context, code string, uid int64) (credits.Balance, error) {
		return h.Credits.ManualRefill(ctx, code, uid)
	})
}

// Import moves an old coffee card onto the caller's balance.
func (h Handlers) Import(c *gin.Context) {
	h.redeem(c, func(ctx context.Context, code string, uid int64) (credits.Balance, error) {
		return h.Credits.ManualImport(ctx, code, uid)
	})
}

func (h Handlers) redeem(c *gin.Context, fn func(ctx context.Context, code string, uid int64) (credits.Balance, error)) {
	if h.Credits == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "credits not configured"})
		return
	}
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "code required"})
		return
	}

	bal, err := fn(requestContext(c), req.Code, uid)
	if err != nil {
		if errors.Is(err, credits.ErrBadCode) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid code"})
			return
		}
		logger.FromGin(c).Error("redemption failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "redemption failed"})
		return
	}
	c.JSON(http.StatusOK, bal)
}

// History lists the caller's redeemed codes and imported cards.
func (h Handlers) History(c *gin.Context) {
	if h.Credits == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "credits not configured"})
		return
	}
	uid, ok := userID(c)
	if !ok {
		return
	}
	hist, err := h.Credits.UsedBy(requestContext(c), uid)
	if err != nil {
		logger.FromGin(c).Error("history lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, hist)
}

// CodeStatus tells board members whether a code is still redeemable.
// RBAC: board or admin.
func (h Handlers) CodeStatus(c *gin.Context) {
	if h.Credits == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "credits not configured"})
		return
	}
	uid, ok := userID(c)
	if !ok {
		return
	}
	kind, ok := credits.ParseCodeKind(c.Query("kind"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown kind"})
		return
	}

	code := c.Param("code")
	used, err := h.Credits.IsUsed(requestContext(c), code, kind, "user:"+strconv.FormatInt(uid, 10))
	if err != nil {
		logger.FromGin(c).Error("code lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "code lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "used": used})
}

func userID(c *gin.Context) (int64, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user required"})
		return 0, false
	}
	return uid, true
}

// requestContext carries the request logger and client IP into services.
func requestContext(c *gin.Context) context.Context {
	ctx := logger.With(c.Request.Context(), logger.FromGin(c))
	return audit.WithClientIP(ctx, c.ClientIP())
}
