package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pixelframe/playerhub/internal/cert"
	"github.com/pixelframe/playerhub/internal/players"
)

const maxCertificateSize = 16 << 10

type RevocationSource interface {
	CRLPEM() (string, error)
	CACertPEM() (string, error)
	VerifyClientCertificate(certPEM string) (string, error)
}

// PlayerAuthenticator resolves a certificate's Common Name to a live player.
type PlayerAuthenticator interface {
	Authenticate(ctx context.Context, playerID string) (*players.Player, error)
}

type AdminHandler struct {
	ca      RevocationSource
	players PlayerAuthenticator
}

func NewAdminHandler(ca RevocationSource, identities PlayerAuthenticator) *AdminHandler {
	return &AdminHandler{ca: ca, players: identities}
}

// CRL serves the current revocation list so the broker can refresh it.
func (h *AdminHandler) CRL(ctx *gin.Context) {
	crl, err := h.ca.CRLPEM()
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.Data(http.StatusOK, "application/x-pem-file", []byte(crl))
}

func (h *AdminHandler) CACert(ctx *gin.Context) {
	pem, err := h.ca.CACertPEM()
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.Data(http.StatusOK, "application/x-pem-file", []byte(pem))
}

// VerifyCertificate is the broker auth hook: it takes a client certificate
// PEM as the request body and answers with the player key it identifies.
// The key must still belong to a registered player.
func (h *AdminHandler) VerifyCertificate(ctx *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxCertificateSize))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	playerKey, err := h.ca.VerifyClientCertificate(string(body))
	if err != nil {
		if errors.Is(err, cert.ErrCertificateRevoked) || errors.Is(err, cert.ErrInvalidCertificate) {
			ctx.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		writeError(ctx, err)
		return
	}

	if _, err := h.players.Authenticate(ctx.Request.Context(), playerKey); err != nil {
		if errors.Is(err, players.ErrAuthenticationFailed) {
			ctx.JSON(http.StatusForbidden, gin.H{"error": "certificate does not belong to a registered player"})
			return
		}
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"player_key": playerKey})
}
