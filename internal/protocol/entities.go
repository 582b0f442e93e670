package protocol

// GeneratedPlayer is the identity handed out by the server when a new
// player is generated.
type GeneratedPlayer struct {
	PlayerID string `json:"playerId"`
	Secret   string `json:"secret"`
}

// Player is the full player state returned at login.
type Player struct {
	PlayerID    string      `json:"playerId"`
	Name        string      `json:"name"`
	Liveness    Liveness    `json:"liveness"`
	PlayerModel PlayerModel `json:"playerModel"`
}

// Liveness holds the server-side login bookkeeping.
type Liveness struct {
	LastLoginTime   int64  `json:"lastLoginTime"`
	LastUpdatedTime int64  `json:"lastUpdatedTime,omitempty"`
	Timezone        string `json:"timeZone,omitempty"`
}

// PlayerModel is the persistent part of a player.
type PlayerModel struct {
	Faction   string    `json:"faction,omitempty"`
	GuildInfo GuildInfo `json:"guildInfo"`
	Map       Map       `json:"map"`
}

// GuildInfo links a player to their squad.
type GuildInfo struct {
	GuildID   string `json:"guildId,omitempty"`
	GuildName string `json:"guildName,omitempty"`
}

// Map is a player base.
type Map struct {
	Buildings []Building `json:"buildings"`
}

// Building is a single structure on a base.
type Building struct {
	Key string `json:"key"`
	UID string `json:"uid"`
	X   int    `json:"x"`
	Z   int    `json:"z"`
}

// Position is a building placement used by layout updates.
type Position struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// PlayerWrapper is returned by neighbor visits.
type PlayerWrapper struct {
	Player Player `json:"player"`
}

// Squad is a search result entry.
type Squad struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Faction     string `json:"faction,omitempty"`
	MemberCount int    `json:"memberCount"`
	Level       int    `json:"level"`
	Rank        int    `json:"rank,omitempty"`
	OpenEnroll  bool   `json:"openEnrollment"`
}

// SquadDetails is the public view of a squad.
type SquadDetails struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Faction     string        `json:"faction,omitempty"`
	Level       int           `json:"level"`
	Members     []SquadMember `json:"members"`
}

// SquadMember is a member entry inside SquadDetails.
type SquadMember struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Officer  bool   `json:"isOfficer"`
	HQLevel  int    `json:"hqLevel"`
	Score    int    `json:"score"`
}

// WarParticipant is the current player's squad war state.
type WarParticipant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Score        int    `json:"score"`
	TurnsLeft    int    `json:"turns"`
	VictoryPoint int    `json:"victoryPoints"`
	WarMap       Map    `json:"warMap"`
}
