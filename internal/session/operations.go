package session

import (
	"context"

	"github.com/swctools/swctools/internal/protocol"
)

// LoginSnapshot returns the player state captured by the latest login.
func (s *Session) LoginSnapshot(ctx context.Context) (*protocol.Player, error) {
	if err := s.EnsureLive(ctx); err != nil {
		return nil, err
	}
	return s.st.login, nil
}

// OwnBuildings returns the buildings on the player's home base as of the
// latest login.
func (s *Session) OwnBuildings(ctx context.Context) ([]protocol.Building, error) {
	player, err := s.LoginSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return player.PlayerModel.Map.Buildings, nil
}

// WarParticipant returns the player's squad war participation.
func (s *Session) WarParticipant(ctx context.Context) (*protocol.WarParticipant, error) {
	if err := s.EnsureLive(ctx); err != nil {
		return nil, err
	}
	msg := protocol.NewTimedMessage(protocol.GetWarParticipant(s.st.identity.PlayerID))
	participant, err := execute[protocol.WarParticipant](ctx, s, msg)
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

// VisitNeighbor loads another player's base.
func (s *Session) VisitNeighbor(ctx context.Context, neighborID string) (*protocol.Player, error) {
	if err := s.EnsureLive(ctx); err != nil {
		return nil, err
	}
	msg := protocol.NewMessage(protocol.VisitNeighbor(s.st.identity.PlayerID, neighborID))
	wrapper, err := execute[protocol.PlayerWrapper](ctx, s, msg)
	if err != nil {
		return nil, err
	}
	return &wrapper.Player, nil
}

// SearchSquads finds squads by name.
func (s *Session) SearchSquads(ctx context.Context, term string) ([]protocol.Squad, error) {
	if err := s.EnsureLive(ctx); err != nil {
		return nil, err
	}
	msg := protocol.NewTimedMessage(protocol.SearchSquads(s.st.identity.PlayerID, term))
	squads, err := execute[[]protocol.Squad](ctx, s, msg)
	if err != nil {
		return nil, err
	}
	if squads == nil {
		squads = []protocol.Squad{}
	}
	return squads, nil
}

// SquadDetails returns the public details of a squad.
func (s *Session) SquadDetails(ctx context.Context, squadID string) (*protocol.SquadDetails, error) {
	if err := s.EnsureLive(ctx); err != nil {
		return nil, err
	}
	msg := protocol.NewTimedMessage(protocol.GetSquadDetails(s.st.identity.PlayerID, squadID))
	details, err := execute[protocol.SquadDetails](ctx, s, msg)
	if err != nil {
		return nil, err
	}
	return &details, nil
}

// UpdateLayout moves home base buildings and returns the resulting
// buildings keyed by id.
func (s *Session) UpdateLayout(ctx context.Context, positions map[string]protocol.Position) (map[string]protocol.Building, error) {
	if err := s.EnsureLive(ctx); err != nil {
		return nil, err
	}
	msg := protocol.NewTimedMessage(protocol.UpdateLayout(s.st.identity.PlayerID, positions))
	return execute[map[string]protocol.Building](ctx, s, msg)
}

// UpdateWarLayout moves war base buildings and returns the resulting
// buildings keyed by id.
func (s *Session) UpdateWarLayout(ctx context.Context, positions map[string]protocol.Position) (map[string]protocol.Building, error) {
	if err := s.EnsureLive(ctx); err != nil {
		return nil, err
	}
	msg := protocol.NewTimedMessage(protocol.UpdateWarLayout(s.st.identity.PlayerID, positions))
	return execute[map[string]protocol.Building](ctx, s, msg)
}
