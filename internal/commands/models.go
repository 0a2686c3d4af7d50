package commands

import (
	"encoding/json"
	"errors"
	"time"
)

const (
	TypeSwapNext      = "swap_next"
	TypeSwapBack      = "swap_back"
	TypeShowArtwork   = "show_artwork"
	TypePlayChannel   = "play_channel"
	TypeSetBrightness = "set_brightness"
)

var (
	ErrUnknownCommand = errors.New("unknown command type")
	ErrInvalidPayload = errors.New("invalid command payload")
	ErrPostNotFound   = errors.New("post not found")
	ErrNoPlayers      = errors.New("no registered players")
	ErrOwnerNotFound  = errors.New("owner account not found")
)

// Command is the message published on a player's command topic.
type Command struct {
	ID        string          `json:"command_id"`
	Type      string          `json:"command_type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

type Result struct {
	CommandID string `json:"command_id"`
	PlayerID  string `json:"player_id"`
	Published bool   `json:"published"`
}

type Skipped struct {
	PlayerID string `json:"player_id"`
	Reason   string `json:"reason"`
}

type BatchResult struct {
	Dispatched []Result  `json:"dispatched"`
	Skipped    []Skipped `json:"skipped"`
}
