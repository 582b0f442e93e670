// Package fakeserver is a scripted in-memory game server for tests. It
// implements connector.Sender and http.Handler.
package fakeserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/swctools/swctools/internal/protocol"
)

// Canned values returned by the default handlers.
const (
	GeneratedPlayerID = "generated-player"
	GeneratedSecret   = "generated-secret"
	LastLoginTime     = int64(1700000000)

	// StatusUnknownAction answers actions without a handler. It is fatal.
	StatusUnknownAction protocol.StatusCode = 1900
)

// DefaultBuildings is the base returned by the default login handler.
var DefaultBuildings = []protocol.Building{
	{Key: "bld-hq", UID: "factionHQ1", X: 0, Z: 0},
	{Key: "bld-wall-1", UID: "rebelWall1", X: 4, Z: -2},
}

// Call describes one command received by the server.
type Call struct {
	Message *protocol.Message
	Command *protocol.Command
	// N is the 1-based number of times this action has been received.
	N int
}

// Arg returns a string argument of the command, or "".
func (c Call) Arg(key string) string {
	args, ok := c.Command.Args.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := args[key].(string)
	return s
}

// Handler answers a command with a status and a result.
type Handler func(call Call) (protocol.StatusCode, any)

// Server is the fake game server.
type Server struct {
	mu           sync.Mutex
	codec        protocol.JSONCodec
	handlers     map[string]Handler
	counts       map[string]int
	messages     []*protocol.Message
	transportErr error
}

// New creates a server whose generate/auth/login actions succeed. Auth
// tokens are "token-N" for the N-th auth call; login times grow by one
// second per login.
func New() *Server {
	f := &Server{
		handlers: make(map[string]Handler),
		counts:   make(map[string]int),
	}

	f.Handle(protocol.ActionGeneratePlayer, func(Call) (protocol.StatusCode, any) {
		return protocol.StatusSuccess, protocol.GeneratedPlayer{PlayerID: GeneratedPlayerID, Secret: GeneratedSecret}
	})
	f.Handle(protocol.ActionGetAuthToken, func(c Call) (protocol.StatusCode, any) {
		return protocol.StatusSuccess, fmt.Sprintf("token-%d", c.N)
	})
	f.Handle(protocol.ActionPlayerLogin, func(c Call) (protocol.StatusCode, any) {
		return protocol.StatusSuccess, protocol.Player{
			PlayerID: c.Arg("playerId"),
			Name:     "Tester",
			Liveness: protocol.Liveness{LastLoginTime: LastLoginTime + int64(c.N)},
			PlayerModel: protocol.PlayerModel{
				Map: protocol.Map{Buildings: DefaultBuildings},
			},
		}
	})

	return f
}

// Handle installs h for action, replacing any previous handler.
func (f *Server) Handle(action string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[action] = h
}

// Sequence answers action with statuses in order (with no result), then
// with StatusSuccess and result for every later call.
func (f *Server) Sequence(action string, result any, statuses ...protocol.StatusCode) {
	f.Handle(action, func(c Call) (protocol.StatusCode, any) {
		if c.N <= len(statuses) {
			return statuses[c.N-1], nil
		}
		return protocol.StatusSuccess, result
	})
}

// Always answers action with status on every call.
func (f *Server) Always(action string, status protocol.StatusCode) {
	f.Handle(action, func(Call) (protocol.StatusCode, any) {
		return status, nil
	})
}

// FailTransport makes every following Send fail with err. Pass nil to heal.
func (f *Server) FailTransport(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transportErr = err
}

// Send implements connector.Sender.
func (f *Server) Send(_ context.Context, payload []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.transportErr != nil {
		return nil, f.transportErr
	}

	var msg protocol.Message
	if err := f.codec.Decode(payload, &msg); err != nil {
		return nil, fmt.Errorf("fakeserver: malformed request: %w", err)
	}
	f.messages = append(f.messages, &msg)

	resp := protocol.Response[any]{ProtocolVersion: 1}
	for _, cmd := range msg.Commands {
		f.counts[cmd.Action]++
		status, result := StatusUnknownAction, any(nil)
		if h, ok := f.handlers[cmd.Action]; ok {
			status, result = h(Call{Message: &msg, Command: cmd, N: f.counts[cmd.Action]})
		}
		resp.Data = append(resp.Data, protocol.Result[any]{
			RequestID: cmd.RequestID,
			Status:    status,
			Result:    result,
		})
	}

	return f.codec.Encode(resp)
}

// ServeHTTP serves the batch endpoint over HTTP.
func (f *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, err := f.Send(r.Context(), body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

// Calls returns how many times action was received.
func (f *Server) Calls(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[action]
}

// Messages returns every received batch whose first command is action.
func (f *Server) Messages(action string) []*protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*protocol.Message
	for _, m := range f.messages {
		if len(m.Commands) > 0 && m.Commands[0].Action == action {
			out = append(out, m)
		}
	}
	return out
}

// Total returns the number of batches received.
func (f *Server) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}
