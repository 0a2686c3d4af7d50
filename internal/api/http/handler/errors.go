package handler

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pixelframe/playerhub/internal/cert"
	"github.com/pixelframe/playerhub/internal/commands"
	"github.com/pixelframe/playerhub/internal/players"
	"github.com/pixelframe/playerhub/internal/ratelimit"
)

// writeError maps service errors to HTTP statuses. Anything unrecognised is
// a 500 with a generic message.
func writeError(ctx *gin.Context, err error) {
	var rl *ratelimit.Error
	if errors.As(err, &rl) {
		secs := int(math.Ceil(rl.RetryAfter.Seconds()))
		ctx.Header("Retry-After", strconv.Itoa(secs))
		ctx.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "scope": rl.Scope, "retry_after": secs})
		return
	}

	switch {
	case errors.Is(err, players.ErrNotFound),
		errors.Is(err, players.ErrInvalidCode),
		errors.Is(err, commands.ErrPostNotFound),
		errors.Is(err, commands.ErrOwnerNotFound),
		errors.Is(err, commands.ErrNoPlayers):
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, players.ErrInvalidName),
		errors.Is(err, commands.ErrInvalidPayload),
		errors.Is(err, commands.ErrUnknownCommand):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, players.ErrCodeAlreadyUsed),
		errors.Is(err, players.ErrDeviceLimitReached):
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, cert.ErrRenewalNotDue):
		ctx.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
	case errors.Is(err, players.ErrAuthenticationFailed):
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
	case errors.Is(err, cert.ErrCAUnavailable):
		slog.Error("Certificate authority unavailable", "path", ctx.FullPath(), "error", err)
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "certificate authority unavailable"})
	default:
		slog.Error("Request failed", "path", ctx.FullPath(), "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
