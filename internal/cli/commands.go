// Package cli implements the interactive command-line interface. Commands run
// against the shared session through the same serializing runner used by
// the API and the background workers.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/swctools/swctools/internal/config"
	"github.com/swctools/swctools/internal/db"
	"github.com/swctools/swctools/internal/events"
	"github.com/swctools/swctools/internal/protocol"
	"github.com/swctools/swctools/internal/session"
)

// SnapshotLister is the subset of db.Store used by the CLI.
type SnapshotLister interface {
	ListSnapshots(kind string, limit int) ([]db.Snapshot, error)
}

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	runner   session.Runner
	archive  SnapshotLister
	eventBus *events.EventBus

	in  io.Reader
	out io.Writer
}

// NewCLI creates a new CLI handler. cfg and archive may be nil.
func NewCLI(cfg *config.Config, runner session.Runner, archive SnapshotLister, eventBus *events.EventBus, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		cfg:      cfg,
		runner:   runner,
		archive:  archive,
		eventBus: eventBus,
		in:       in,
		out:      out,
	}
}

// Start begins the interactive CLI loop. It returns on EOF, on quit or when
// ctx is cancelled.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nswctools CLI ready. Type 'help' for available commands.")
	fmt.Fprintln(c.out, "─────────────────────────────────────────────────────")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "swctools> ")

		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		if cmd == "quit" || cmd == "exit" || cmd == "q" {
			fmt.Fprintln(c.out, "Shutting down swctools...")
			c.eventBus.Emit(ctx, events.Event{
				Type:   events.EventShutdown,
				Source: "cli",
			})
			return
		}

		if err := c.execute(ctx, cmd, parts[1:]); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "refresh":
		return c.cmdRefresh(ctx)
	case "player":
		return c.cmdPlayer(ctx)
	case "buildings", "b":
		return c.cmdBuildings(ctx)
	case "neighbor":
		return c.cmdNeighbor(ctx, args)
	case "squads":
		return c.cmdSearchSquads(ctx, args)
	case "squad":
		return c.cmdSquad(ctx, args)
	case "war":
		return c.cmdWar(ctx)
	case "drift":
		return c.cmdDrift(args)
	case "skipts":
		return c.cmdSkipTimestamp(args)
	case "snapshots":
		return c.cmdSnapshots(args)
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, "\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(c.out, "║                    swctools CLI Commands                     ║")
	fmt.Fprintln(c.out, "╠══════════════════════════════════════════════════════════════╣")
	fmt.Fprintln(c.out, "║  status             Show session status                      ║")
	fmt.Fprintln(c.out, "║  refresh            Re-authenticate and log in again         ║")
	fmt.Fprintln(c.out, "║  player             Show the login snapshot                  ║")
	fmt.Fprintln(c.out, "║  buildings          List buildings on the own base           ║")
	fmt.Fprintln(c.out, "║  neighbor <id>      Visit another player's base              ║")
	fmt.Fprintln(c.out, "║  squads <term>      Search squads by name                    ║")
	fmt.Fprintln(c.out, "║  squad <id>         Show public squad details                ║")
	fmt.Fprintln(c.out, "║  war                Show the current war participant         ║")
	fmt.Fprintln(c.out, "║  drift [n]          Show or set the clock drift offset       ║")
	fmt.Fprintln(c.out, "║  skipts on|off      Toggle timestamp omission                ║")
	fmt.Fprintln(c.out, "║  snapshots [kind]   List archived snapshots                  ║")
	fmt.Fprintln(c.out, "║  quit               Shutdown swctools                        ║")
	fmt.Fprintln(c.out, "║  help               Show this help message                   ║")
	fmt.Fprintln(c.out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(c.out)
}

func (c *CLI) printStatus() {
	st := c.runner.Status()
	lastLogin := "-"
	if st.LastLoginTime > 0 {
		lastLogin = time.Unix(st.LastLoginTime, 0).UTC().Format(time.RFC3339)
	}

	fmt.Fprintf(c.out, "\n  Player ID:      %s\n", orDash(st.PlayerID))
	fmt.Fprintf(c.out, "  Live:           %v\n", st.Live)
	fmt.Fprintf(c.out, "  Authenticated:  %v\n", st.Authenticated)
	fmt.Fprintf(c.out, "  Last Login:     %s\n", lastLogin)
	fmt.Fprintf(c.out, "  Drift Offset:   %+d\n", st.DriftOffset)
	fmt.Fprintf(c.out, "  Skip Timestamp: %v\n", st.SkipTimestamp)
	fmt.Fprintf(c.out, "  Retry Count:    %d\n\n", st.RetryCount)
}

func (c *CLI) cmdRefresh(ctx context.Context) error {
	err := c.runner.Do(func(s *session.Session) error {
		return s.Refresh(ctx)
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Session refreshed")
	return nil
}

func (c *CLI) cmdPlayer(ctx context.Context) error {
	var player *protocol.Player
	err := c.runner.Do(func(s *session.Session) error {
		var err error
		player, err = s.LoginSnapshot(ctx)
		return err
	})
	if err != nil {
		return err
	}
	c.printPlayer(player)
	return nil
}

func (c *CLI) cmdBuildings(ctx context.Context) error {
	var buildings []protocol.Building
	err := c.runner.Do(func(s *session.Session) error {
		var err error
		buildings, err = s.OwnBuildings(ctx)
		return err
	})
	if err != nil {
		return err
	}
	c.renderBuildings(buildings)
	return nil
}

func (c *CLI) cmdNeighbor(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: neighbor <player id>")
	}
	var player *protocol.Player
	err := c.runner.Do(func(s *session.Session) error {
		var err error
		player, err = s.VisitNeighbor(ctx, args[0])
		return err
	})
	if err != nil {
		return err
	}
	c.printPlayer(player)
	c.renderBuildings(player.PlayerModel.Map.Buildings)
	return nil
}

func (c *CLI) cmdSearchSquads(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: squads <search term>")
	}
	term := strings.Join(args, " ")

	var squads []protocol.Squad
	err := c.runner.Do(func(s *session.Session) error {
		var err error
		squads, err = s.SearchSquads(ctx, term)
		return err
	})
	if err != nil {
		return err
	}
	if len(squads) == 0 {
		fmt.Fprintf(c.out, "No squads found for '%s'\n", term)
		return nil
	}

	tw := c.table("ID", "Name", "Faction", "Members", "Level", "Open")
	for _, sq := range squads {
		tw.Append([]string{
			sq.ID,
			sq.Name,
			orDash(sq.Faction),
			strconv.Itoa(sq.MemberCount),
			strconv.Itoa(sq.Level),
			strconv.FormatBool(sq.OpenEnroll),
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdSquad(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: squad <squad id>")
	}
	var details *protocol.SquadDetails
	err := c.runner.Do(func(s *session.Session) error {
		var err error
		details, err = s.SquadDetails(ctx, args[0])
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  Squad:   %s (%s)\n", details.Name, details.ID)
	fmt.Fprintf(c.out, "  Level:   %d\n", details.Level)
	fmt.Fprintf(c.out, "  Faction: %s\n\n", orDash(details.Faction))

	tw := c.table("Player ID", "Name", "Officer", "HQ", "Score")
	for _, m := range details.Members {
		tw.Append([]string{
			m.PlayerID,
			m.Name,
			strconv.FormatBool(m.Officer),
			strconv.Itoa(m.HQLevel),
			strconv.Itoa(m.Score),
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdWar(ctx context.Context) error {
	var war *protocol.WarParticipant
	err := c.runner.Do(func(s *session.Session) error {
		var err error
		war, err = s.WarParticipant(ctx)
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  Participant:    %s (%s)\n", war.Name, war.ID)
	fmt.Fprintf(c.out, "  Score:          %d\n", war.Score)
	fmt.Fprintf(c.out, "  Turns Left:     %d\n", war.TurnsLeft)
	fmt.Fprintf(c.out, "  Victory Points: %d\n\n", war.VictoryPoint)
	c.renderBuildings(war.WarMap.Buildings)
	return nil
}

func (c *CLI) cmdDrift(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(c.out, "Drift offset: %+d\n", c.runner.Status().DriftOffset)
		return nil
	}

	offset, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid drift offset: %s", args[0])
	}
	c.runner.Do(func(s *session.Session) error {
		s.SetDriftOffset(offset)
		return nil
	})
	c.persist(func(sc *config.ServerConfig) { sc.DriftOffset = offset })

	fmt.Fprintf(c.out, "Drift offset set to %+d\n", offset)
	return nil
}

func (c *CLI) cmdSkipTimestamp(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: skipts on|off")
	}

	var skip bool
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		skip = true
	case "off", "false", "0":
		skip = false
	default:
		return fmt.Errorf("invalid value: %s", args[0])
	}
	c.runner.Do(func(s *session.Session) error {
		s.SetSkipTimestamp(skip)
		return nil
	})
	c.persist(func(sc *config.ServerConfig) { sc.SkipTimestamp = skip })

	fmt.Fprintf(c.out, "Skip timestamp: %v\n", skip)
	return nil
}

func (c *CLI) cmdSnapshots(args []string) error {
	if c.archive == nil {
		return errors.New("snapshot archive not configured")
	}
	kind := ""
	if len(args) > 0 {
		kind = args[0]
	}

	snapshots, err := c.archive.ListSnapshots(kind, db.DefaultSnapshotLimit)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Fprintln(c.out, "No snapshots archived")
		return nil
	}

	tw := c.table("ID", "Kind", "Subject", "Player", "Captured", "Size")
	for _, s := range snapshots {
		tw.Append([]string{
			strconv.FormatInt(s.ID, 10),
			s.Kind,
			s.SubjectID,
			s.PlayerID,
			s.CapturedAt.Local().Format(time.DateTime),
			fmt.Sprintf("%dB", len(s.Payload)),
		})
	}
	tw.Render()
	return nil
}

// persist applies fn to the saved server config. Failures only log: the
// running session already has the new value.
func (c *CLI) persist(fn func(*config.ServerConfig)) {
	if c.cfg == nil {
		return
	}
	sc := c.cfg.GetServer()
	fn(&sc)
	c.cfg.SetServer(sc)
	if err := c.cfg.Save(); err != nil {
		log.Warn().Err(err).Msg("failed to save configuration")
	}
}

func (c *CLI) printPlayer(p *protocol.Player) {
	fmt.Fprintf(c.out, "\n  Player:     %s (%s)\n", orDash(p.Name), p.PlayerID)
	fmt.Fprintf(c.out, "  Faction:    %s\n", orDash(p.PlayerModel.Faction))
	fmt.Fprintf(c.out, "  Squad:      %s\n", orDash(p.PlayerModel.GuildInfo.GuildName))
	fmt.Fprintf(c.out, "  Buildings:  %d\n\n", len(p.PlayerModel.Map.Buildings))
}

func (c *CLI) renderBuildings(buildings []protocol.Building) {
	tw := c.table("UID", "Key", "X", "Z")
	for _, b := range buildings {
		tw.Append([]string{b.UID, b.Key, strconv.Itoa(b.X), strconv.Itoa(b.Z)})
	}
	tw.Render()
}

func (c *CLI) table(header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
