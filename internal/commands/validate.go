package commands

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pixelframe/playerhub/internal/content"
)

type showArtworkPayload struct {
	PostID int64 `json:"post_id"`
}

type playChannelPayload struct {
	Channel content.Channel `json:"channel"`
}

type setBrightnessPayload struct {
	Level *int `json:"level"`
}

// validated is a command ready for dispatch.
type validated struct {
	commandType string
	payload     json.RawMessage
	postID      int64
}

func parse(commandType string, raw json.RawMessage) (*validated, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = json.RawMessage("{}")
	}

	s := &validated{commandType: commandType}
	var normalized any
	switch commandType {
	case TypeSwapNext, TypeSwapBack:
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil || len(m) != 0 {
			return nil, fmt.Errorf("%w: %s takes no payload", ErrInvalidPayload, commandType)
		}
		normalized = struct{}{}

	case TypeShowArtwork:
		var p showArtworkPayload
		if err := json.Unmarshal(raw, &p); err != nil || p.PostID <= 0 {
			return nil, fmt.Errorf("%w: post_id must be a positive integer", ErrInvalidPayload)
		}
		s.postID = p.PostID
		normalized = p

	case TypePlayChannel:
		var p playChannelPayload
		if err := json.Unmarshal(raw, &p); err != nil || !p.Channel.Valid() {
			return nil, fmt.Errorf("%w: channel must be all, promoted or user", ErrInvalidPayload)
		}
		normalized = p

	case TypeSetBrightness:
		var p setBrightnessPayload
		if err := json.Unmarshal(raw, &p); err != nil || p.Level == nil || *p.Level < 0 || *p.Level > 100 {
			return nil, fmt.Errorf("%w: level must be between 0 and 100", ErrInvalidPayload)
		}
		normalized = p

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, commandType)
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command payload: %w", err)
	}
	s.payload = data
	return s, nil
}
