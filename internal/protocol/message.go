// Package protocol implements the JSON batch protocol spoken by the game
// server: request envelopes carrying one or more commands, response envelopes
// carrying one result per command, and the status code taxonomy used to
// interpret those results.
package protocol

import (
	"fmt"
	"strings"
)

// SkipTimestamp is stamped into time-sensitive commands instead of the
// computed server time when timestamp emission is suppressed.
const SkipTimestamp int64 = 0

// Command is a single unit of work inside a request batch.
type Command struct {
	Action    string `json:"action"`
	Args      any    `json:"args"`
	RequestID int    `json:"requestId"`
	Time      int64  `json:"time"`
	Token     string `json:"token,omitempty"`

	timed bool
}

// NewCommand creates a command that never carries a timestamp.
func NewCommand(action string, args any) *Command {
	return &Command{Action: action, Args: args}
}

// NewTimedCommand creates a command that is stamped with the current server
// time whenever its batch is time-sensitive.
func NewTimedCommand(action string, args any) *Command {
	return &Command{Action: action, Args: args, timed: true}
}

// NeedsTime reports whether the command expects a timestamp.
func (c *Command) NeedsTime() bool {
	return c.timed
}

// Message is the request envelope sent to the batch endpoint.
// AuthKey, LastLoginTime and the per-command token/time fields are
// (re)stamped by the session right before every send attempt.
type Message struct {
	AuthKey       string     `json:"authKey,omitempty"`
	LastLoginTime int64      `json:"lastLoginTime,omitempty"`
	Commands      []*Command `json:"commands"`

	timed bool
}

// NewMessage builds a batch that is not time-sensitive. Request IDs are
// assigned in order starting from 1.
func NewMessage(commands ...*Command) *Message {
	for i, c := range commands {
		c.RequestID = i + 1
	}
	return &Message{Commands: commands}
}

// NewTimedMessage builds a time-sensitive batch.
func NewTimedMessage(commands ...*Command) *Message {
	m := NewMessage(commands...)
	m.timed = true
	return m
}

// NeedsTime reports whether the batch is time-sensitive.
func (m *Message) NeedsTime() bool {
	return m.timed
}

// Actions returns a comma separated list of the batch's actions, for logs
// and error messages.
func (m *Message) Actions() string {
	names := make([]string, 0, len(m.Commands))
	for _, c := range m.Commands {
		names = append(names, c.Action)
	}
	return strings.Join(names, ",")
}

// Response is the envelope returned by the batch endpoint. It carries one
// result per command of the request, in request order.
type Response[T any] struct {
	ProtocolVersion int         `json:"protocolVersion,omitempty"`
	ServerTime      int64       `json:"serverTimestamp,omitempty"`
	Data            []Result[T] `json:"data"`
}

// Result is the outcome of a single command.
type Result[T any] struct {
	RequestID int        `json:"requestId"`
	Status    StatusCode `json:"status"`
	Result    T          `json:"result"`
}

// First returns the result of the first command. The first entry governs
// the outcome of the whole batch.
func (r *Response[T]) First() (Result[T], error) {
	if len(r.Data) == 0 {
		var zero Result[T]
		return zero, ErrEmptyResponse
	}
	return r.Data[0], nil
}

func (m *Message) String() string {
	return fmt.Sprintf("batch[%s]", m.Actions())
}
