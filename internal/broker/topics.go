package broker

import (
	"strings"
)

type Channel string

const (
	ChannelRequest  Channel = "request"
	ChannelResponse Channel = "response"
	ChannelCommand  Channel = "command"
	ChannelView     Channel = "view"
	ChannelViewAck  Channel = "view/ack"
	ChannelStatus   Channel = "status"
)

// Topics builds and parses {ns}/player/{id}/... topic names.
type Topics struct {
	Namespace string
}

func NewTopics(namespace string) Topics {
	return Topics{Namespace: strings.Trim(namespace, "/")}
}

func (t Topics) player(playerID string) string {
	return t.Namespace + "/player/" + playerID
}

func (t Topics) Request(playerID, requestID string) string {
	return t.player(playerID) + "/request/" + requestID
}

func (t Topics) Response(playerID, requestID string) string {
	return t.player(playerID) + "/response/" + requestID
}

func (t Topics) Command(playerID string) string {
	return t.player(playerID) + "/command"
}

func (t Topics) View(playerID string) string {
	return t.player(playerID) + "/view"
}

func (t Topics) ViewAck(playerID string) string {
	return t.player(playerID) + "/view/ack"
}

func (t Topics) Status(playerID string) string {
	return t.player(playerID) + "/status"
}

func (t Topics) RequestFilter() string {
	return t.Request("+", "+")
}

func (t Topics) ViewFilter() string {
	return t.View("+")
}

func (t Topics) StatusFilter() string {
	return t.Status("+")
}

// Route is the parsed form of a player topic.
type Route struct {
	PlayerID  string
	Channel   Channel
	RequestID string
}

// Parse splits topic into its route. It rejects topics outside the
// namespace, wildcard characters and empty segments.
func (t Topics) Parse(topic string) (Route, bool) {
	prefix := t.Namespace + "/player/"
	if !strings.HasPrefix(topic, prefix) {
		return Route{}, false
	}
	if strings.ContainsAny(topic, "+#") {
		return Route{}, false
	}

	parts := strings.Split(strings.TrimPrefix(topic, prefix), "/")
	if len(parts) < 2 || parts[0] == "" {
		return Route{}, false
	}

	r := Route{PlayerID: parts[0]}
	switch {
	case len(parts) == 3 && (parts[1] == string(ChannelRequest) || parts[1] == string(ChannelResponse)) && parts[2] != "":
		r.Channel = Channel(parts[1])
		r.RequestID = parts[2]
	case len(parts) == 3 && parts[1] == "view" && parts[2] == "ack":
		r.Channel = ChannelViewAck
	case len(parts) == 2 && (parts[1] == string(ChannelCommand) || parts[1] == string(ChannelView) || parts[1] == string(ChannelStatus)):
		r.Channel = Channel(parts[1])
	default:
		return Route{}, false
	}
	return r, true
}
