package telephony

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cafesys/pkg/logger"
)

// DefaultElksIPs are the addresses 46elks sends webhooks from.
var DefaultElksIPs = []string{
	"62.109.57.12",
	"212.112.190.140",
	"176.10.154.199",
	"2001:9b0:2:902::199",
}

// SourceVerifier accepts webhook requests only from the provider's addresses.
type SourceVerifier struct {
	Enabled    bool
	AllowedIPs []string
}

// Allowed reports whether a request may proceed. The first X-Forwarded-For
// entry takes precedence over the socket address.
func (v SourceVerifier) Allowed(remoteAddr, forwardedFor string) bool {
	if !v.Enabled {
		return true
	}
	ip := sourceIP(remoteAddr, forwardedFor)
	if ip == "" {
		return false
	}
	parsed := net.ParseIP(ip)
	for _, a := range v.AllowedIPs {
		if a == ip {
			return true
		}
		if parsed != nil && parsed.Equal(net.ParseIP(a)) {
			return true
		}
	}
	return false
}

// Middleware aborts requests from unknown sources with 403.
func (v SourceVerifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.Allowed(c.Request.RemoteAddr, c.GetHeader("X-Forwarded-For")) {
			logger.FromGin(c).Warn("webhook from unknown source",
				"remote_addr", c.Request.RemoteAddr,
				"forwarded_for", c.GetHeader("X-Forwarded-For"),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func sourceIP(remoteAddr, forwardedFor string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(remoteAddr)
}
