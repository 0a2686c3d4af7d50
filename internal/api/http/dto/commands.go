package dto

import (
	"encoding/json"
	"time"
)

type CommandRequest struct {
	CommandType string          `json:"command_type" binding:"required"`
	Payload     json.RawMessage `json:"payload"`
}

type CommandLogEntry struct {
	ID          int64           `json:"id"`
	CommandType string          `json:"command_type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

type CommandLogResponse struct {
	PlayerID string            `json:"player_id"`
	Entries  []CommandLogEntry `json:"entries"`
}
