package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/swctools/swctools/internal/db"
	"github.com/swctools/swctools/internal/events"
	"github.com/swctools/swctools/internal/protocol"
	"github.com/swctools/swctools/internal/session"
)

// layoutRequest is the body of the layout endpoints.
type layoutRequest struct {
	Positions map[string]protocol.Position `json:"positions"`
}

func (s *Server) handlePlayer(c *gin.Context) {
	s.call(c, func(ctx context.Context, sess *session.Session) (any, error) {
		return sess.LoginSnapshot(ctx)
	})
}

func (s *Server) handleBuildings(c *gin.Context) {
	s.call(c, func(ctx context.Context, sess *session.Session) (any, error) {
		return sess.OwnBuildings(ctx)
	})
}

func (s *Server) handleVisitNeighbor(c *gin.Context) {
	neighborID := c.Param("id")
	s.call(c, func(ctx context.Context, sess *session.Session) (any, error) {
		player, err := sess.VisitNeighbor(ctx, neighborID)
		if err != nil {
			return nil, err
		}
		s.archiveResult(ctx, db.SnapshotNeighbor, neighborID, sess.Identity().PlayerID, player)
		return player, nil
	})
}

func (s *Server) handleSearchSquads(c *gin.Context) {
	term := strings.TrimSpace(c.Query("q"))
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}
	s.call(c, func(ctx context.Context, sess *session.Session) (any, error) {
		return sess.SearchSquads(ctx, term)
	})
}

func (s *Server) handleSquadDetails(c *gin.Context) {
	squadID := c.Param("id")
	s.call(c, func(ctx context.Context, sess *session.Session) (any, error) {
		details, err := sess.SquadDetails(ctx, squadID)
		if err != nil {
			return nil, err
		}
		s.archiveResult(ctx, db.SnapshotSquad, squadID, sess.Identity().PlayerID, details)
		return details, nil
	})
}

func (s *Server) handleWarParticipant(c *gin.Context) {
	s.call(c, func(ctx context.Context, sess *session.Session) (any, error) {
		war, err := sess.WarParticipant(ctx)
		if err != nil {
			return nil, err
		}
		s.archiveResult(ctx, db.SnapshotWar, war.ID, sess.Identity().PlayerID, war)
		return war, nil
	})
}

func (s *Server) handleUpdateLayout(c *gin.Context) {
	positions, ok := bindLayout(c)
	if !ok {
		return
	}
	s.call(c, func(ctx context.Context, sess *session.Session) (any, error) {
		return sess.UpdateLayout(ctx, positions)
	})
}

func (s *Server) handleUpdateWarLayout(c *gin.Context) {
	positions, ok := bindLayout(c)
	if !ok {
		return
	}
	s.call(c, func(ctx context.Context, sess *session.Session) (any, error) {
		return sess.UpdateWarLayout(ctx, positions)
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	s.call(c, func(ctx context.Context, sess *session.Session) (any, error) {
		if err := sess.Refresh(ctx); err != nil {
			return nil, err
		}
		return sess.Status(), nil
	})
}

func (s *Server) handleListSnapshots(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot archive not configured"})
		return
	}

	limit := db.DefaultSnapshotLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	snapshots, err := s.archive.ListSnapshots(c.Query("kind"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

func bindLayout(c *gin.Context) (map[string]protocol.Position, bool) {
	var req layoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return nil, false
	}
	if len(req.Positions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "positions must not be empty"})
		return nil, false
	}
	return req.Positions, true
}

// archiveResult stores a fetched result when an archive is configured.
// Failures are logged and never fail the request.
func (s *Server) archiveResult(ctx context.Context, kind, subjectID, playerID string, payload any) {
	if s.archive == nil {
		return
	}
	id, err := s.archive.SaveSnapshot(kind, subjectID, playerID, payload)
	if err != nil {
		log.Warn().Err(err).Str("kind", kind).Str("subject", subjectID).Msg("failed to archive result")
		return
	}
	if s.eventBus != nil {
		s.eventBus.Emit(ctx, events.Event{
			Type:    events.EventSnapshotCollected,
			Source:  "api",
			Payload: events.SnapshotPayload{ID: id, Kind: kind, SubjectID: subjectID},
		})
	}
}
