package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pixelframe/playerhub/internal/api/http/dto"
	"github.com/pixelframe/playerhub/internal/api/http/middleware"
	"github.com/pixelframe/playerhub/internal/commandlog"
	"github.com/pixelframe/playerhub/internal/commands"
)

type CommandService interface {
	Dispatch(ctx context.Context, ownerID, playerID, commandType string, payload json.RawMessage) (*commands.Result, error)
	DispatchAll(ctx context.Context, ownerID, commandType string, payload json.RawMessage) (*commands.BatchResult, error)
}

type CommandLogReader interface {
	ListForPlayer(ctx context.Context, playerID string, limit int) ([]commandlog.Entry, error)
}

type CommandHandler struct {
	commands CommandService
	log      CommandLogReader
}

func NewCommandHandler(svc CommandService, log CommandLogReader) *CommandHandler {
	return &CommandHandler{commands: svc, log: log}
}

func (h *CommandHandler) Dispatch(ctx *gin.Context) {
	var req dto.CommandRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.commands.Dispatch(ctx.Request.Context(), middleware.AccountID(ctx), ctx.Param("id"), req.CommandType, req.Payload)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, res)
}

func (h *CommandHandler) DispatchAll(ctx *gin.Context) {
	var req dto.CommandRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.commands.DispatchAll(ctx.Request.Context(), middleware.AccountID(ctx), req.CommandType, req.Payload)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, res)
}

// History serves the command log of one player to operators.
func (h *CommandHandler) History(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))

	entries, err := h.log.ListForPlayer(ctx.Request.Context(), ctx.Param("id"), limit)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := dto.CommandLogResponse{PlayerID: ctx.Param("id"), Entries: make([]dto.CommandLogEntry, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = dto.CommandLogEntry{
			ID:          e.ID,
			CommandType: e.CommandType,
			Payload:     e.Payload,
			CreatedAt:   e.CreatedAt,
		}
	}
	ctx.JSON(http.StatusOK, resp)
}
