package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	dynsecTopic     = "$CONTROL/dynamic-security/v1"
	defaultRoleName = "player"
)

var ErrAdminPublishFailed = errors.New("broker admin command not acknowledged")

// Admin manages player credentials through the Mosquitto dynamic-security
// control topic. The broker maps the certificate Common Name to the client
// username, so usernames are player keys.
type Admin struct {
	pub      Publisher
	roleName string
}

func NewAdmin(pub Publisher) *Admin {
	return &Admin{pub: pub, roleName: defaultRoleName}
}

type dynsecRole struct {
	RoleName string `json:"rolename"`
}

type dynsecCommand struct {
	Command  string       `json:"command"`
	Username string       `json:"username"`
	Roles    []dynsecRole `json:"roles,omitempty"`
}

type dynsecRequest struct {
	Commands []dynsecCommand `json:"commands"`
}

// AddPlayer creates the broker client entry for playerKey.
func (a *Admin) AddPlayer(ctx context.Context, playerKey string) error {
	return a.send(ctx, dynsecCommand{
		Command:  "createClient",
		Username: playerKey,
		Roles:    []dynsecRole{{RoleName: a.roleName}},
	})
}

// DisconnectPlayer disables the client, which kicks any live session.
func (a *Admin) DisconnectPlayer(ctx context.Context, playerKey string) error {
	return a.send(ctx, dynsecCommand{Command: "disableClient", Username: playerKey})
}

func (a *Admin) RemovePlayer(ctx context.Context, playerKey string) error {
	return a.send(ctx, dynsecCommand{Command: "deleteClient", Username: playerKey})
}

func (a *Admin) send(ctx context.Context, cmd dynsecCommand) error {
	payload, err := json.Marshal(dynsecRequest{Commands: []dynsecCommand{cmd}})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", cmd.Command, err)
	}
	if !a.pub.Publish(ctx, dynsecTopic, payload, QoSAtLeastOnce, false) {
		return fmt.Errorf("%s %s: %w", cmd.Command, cmd.Username, ErrAdminPublishFailed)
	}
	return nil
}
