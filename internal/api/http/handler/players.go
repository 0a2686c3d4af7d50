package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pixelframe/playerhub/internal/api/http/dto"
	"github.com/pixelframe/playerhub/internal/api/http/middleware"
	"github.com/pixelframe/playerhub/internal/players"
)

type PlayerService interface {
	Provision(ctx context.Context, model, firmware string) (*players.Provisioned, error)
	Credentials(ctx context.Context, playerID string) (*players.CredentialBundle, error)
	Register(ctx context.Context, code, ownerID, name string) (*players.Player, error)
	ListOwned(ctx context.Context, ownerID string) ([]players.Player, error)
	Remove(ctx context.Context, playerID, ownerID string) error
	RenewCertificate(ctx context.Context, playerID, ownerID string) (*players.Player, error)
}

type PlayerHandler struct {
	players PlayerService
	broker  dto.BrokerInfo
}

func NewPlayerHandler(svc PlayerService, brokerHost string, brokerPort int) *PlayerHandler {
	return &PlayerHandler{
		players: svc,
		broker:  dto.BrokerInfo{Host: brokerHost, Port: brokerPort},
	}
}

// Provision is called by a factory-fresh player. The returned player key is
// its only credential until registration.
func (h *PlayerHandler) Provision(ctx *gin.Context) {
	var req dto.ProvisionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prov, err := h.players.Provision(ctx.Request.Context(), req.DeviceModel, req.FirmwareVersion)
	if err != nil {
		writeError(ctx, err)
		return
	}

	slog.Info("Player provisioned via HTTP", "player_id", prov.PlayerID, "client_ip", ctx.ClientIP())
	ctx.JSON(http.StatusCreated, dto.ProvisionResponse{
		PlayerKey:                 prov.PlayerID,
		RegistrationCode:          prov.RegistrationCode,
		RegistrationCodeExpiresAt: prov.ExpiresAt,
		Broker:                    h.broker,
	})
}

func (h *PlayerHandler) Credentials(ctx *gin.Context) {
	bundle, err := h.players.Credentials(ctx.Request.Context(), ctx.Param("player_key"))
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.CredentialsResponse{
		PlayerKey: bundle.PlayerID,
		CACertPEM: bundle.CACertPEM,
		CertPEM:   bundle.CertPEM,
		KeyPEM:    bundle.KeyPEM,
		ExpiresAt: bundle.ExpiresAt,
		Broker:    dto.BrokerInfo{Host: bundle.BrokerHost, Port: bundle.BrokerPort},
	})
}

func (h *PlayerHandler) Register(ctx *gin.Context) {
	var req dto.RegisterPlayerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.players.Register(ctx.Request.Context(), req.RegistrationCode, middleware.AccountID(ctx), req.Name)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, toPlayerResponse(p))
}

func (h *PlayerHandler) List(ctx *gin.Context) {
	list, err := h.players.ListOwned(ctx.Request.Context(), middleware.AccountID(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}

	resp := dto.ListPlayersResponse{Players: make([]dto.PlayerResponse, len(list)), Count: len(list)}
	for i := range list {
		resp.Players[i] = toPlayerResponse(&list[i])
	}
	ctx.JSON(http.StatusOK, resp)
}

func (h *PlayerHandler) Delete(ctx *gin.Context) {
	if err := h.players.Remove(ctx.Request.Context(), ctx.Param("id"), middleware.AccountID(ctx)); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *PlayerHandler) RenewCertificate(ctx *gin.Context) {
	p, err := h.players.RenewCertificate(ctx.Request.Context(), ctx.Param("id"), middleware.AccountID(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toPlayerResponse(p))
}

func toPlayerResponse(p *players.Player) dto.PlayerResponse {
	return dto.PlayerResponse{
		ID:                 p.ID,
		Name:               p.Name,
		DeviceModel:        p.DeviceModel,
		FirmwareVersion:    p.FirmwareVersion,
		RegistrationStatus: string(p.RegistrationStatus),
		ConnectionStatus:   string(p.ConnectionStatus),
		LastSeenAt:         p.LastSeenAt,
		CurrentPostID:      p.CurrentPostID,
		CertSerialNumber:   p.CertSerialNumber,
		CertExpiresAt:      p.CertExpiresAt,
		RegisteredAt:       p.RegisteredAt,
	}
}
