package protocol

// Command actions understood by the batch endpoint.
const (
	ActionGeneratePlayer    = "auth.preauth.generatePlayer"
	ActionGetAuthToken      = "auth.getAuthToken"
	ActionPlayerLogin       = "player.login"
	ActionVisitNeighbor     = "player.neighbor.visit"
	ActionSearchSquads      = "guild.search.byName"
	ActionGetSquadDetails   = "guild.get.public"
	ActionGetWarParticipant = "guild.war.getParticipant"
	ActionUpdateLayout      = "player.building.multimove"
	ActionUpdateWarLayout   = "guild.war.base.save"
)

// PlayerArgs is the argument block shared by every player-scoped command.
type PlayerArgs struct {
	PlayerID string `json:"playerId"`
}

type authTokenArgs struct {
	PlayerID string `json:"playerId"`
	Secret   string `json:"secret"`
}

type neighborArgs struct {
	PlayerID   string `json:"playerId"`
	NeighborID string `json:"neighborId"`
}

type searchSquadsArgs struct {
	PlayerID   string `json:"playerId"`
	SearchTerm string `json:"searchTerm"`
}

type squadArgs struct {
	PlayerID string `json:"playerId"`
	GuildID  string `json:"guildId"`
}

type layoutArgs struct {
	PlayerID  string              `json:"playerId"`
	Positions map[string]Position `json:"positions"`
}

// GeneratePlayer asks the server for a brand new identity.
func GeneratePlayer() *Command {
	return NewCommand(ActionGeneratePlayer, struct{}{})
}

// GetAuthToken exchanges an identity for an auth token.
func GetAuthToken(playerID, secret string) *Command {
	return NewCommand(ActionGetAuthToken, authTokenArgs{PlayerID: playerID, Secret: secret})
}

// PlayerLogin fetches the player's full state.
func PlayerLogin(playerID string) *Command {
	return NewCommand(ActionPlayerLogin, PlayerArgs{PlayerID: playerID})
}

func VisitNeighbor(playerID, neighborID string) *Command {
	return NewTimedCommand(ActionVisitNeighbor, neighborArgs{PlayerID: playerID, NeighborID: neighborID})
}

func SearchSquads(playerID, term string) *Command {
	return NewTimedCommand(ActionSearchSquads, searchSquadsArgs{PlayerID: playerID, SearchTerm: term})
}

func GetSquadDetails(playerID, squadID string) *Command {
	return NewTimedCommand(ActionGetSquadDetails, squadArgs{PlayerID: playerID, GuildID: squadID})
}

func GetWarParticipant(playerID string) *Command {
	return NewTimedCommand(ActionGetWarParticipant, PlayerArgs{PlayerID: playerID})
}

// UpdateLayout moves buildings on the home base. Positions are keyed by
// building id.
func UpdateLayout(playerID string, positions map[string]Position) *Command {
	return NewTimedCommand(ActionUpdateLayout, layoutArgs{PlayerID: playerID, Positions: positions})
}

// UpdateWarLayout moves buildings on the war base.
func UpdateWarLayout(playerID string, positions map[string]Position) *Command {
	return NewTimedCommand(ActionUpdateWarLayout, layoutArgs{PlayerID: playerID, Positions: positions})
}
