// internal/protocol/payloads.go
package protocol

import (
	"github.com/overture-games/mandate/internal/engine"
	"github.com/overture-games/mandate/internal/models"
)

// --- client to server ---

// ResumeRequest is the optional resume block inside a HELLO payload. The
// resume token must be the one issued in HELLO_OK for the player being
// resumed.
type ResumeRequest struct {
	RoomID       string `json:"room_id"`
	LastEventSeq uint64 `json:"last_event_seq"`
	ResumeToken  string `json:"resume_token,omitempty"`
}

type HelloPayload struct {
	ClientBuild string         `json:"client_build,omitempty"`
	Resume      *ResumeRequest `json:"resume,omitempty"`
}

type JoinRoomPayload struct {
	RoomID     string `json:"room_id,omitempty"`
	InviteCode string `json:"invite_code,omitempty"`
}

type SetReadyPayload struct {
	// Ready defaults to true when omitted.
	Ready *bool `json:"ready,omitempty"`
}

type PlayCardPayload struct {
	CardInstanceID string `json:"card_instance_id"`
	DistrictID     string `json:"district_id"`
	SlotIndex      int    `json:"slot_index"`
}

type DeclareCrisisPayload struct {
	CardInstanceID string            `json:"card_instance_id"`
	DeclaredColor  models.AssetColor `json:"declared_color"`
	DeclaredValue  models.AssetValue `json:"declared_value"`
}

// --- server to client ---

type HelloOKPayload struct {
	PlayerID     string `json:"player_id"`
	ServerTimeMS int64  `json:"server_time_ms"`
	ResumeToken  string `json:"resume_token,omitempty"`
}

type AckPayload struct {
	ReasonCode ReasonCode `json:"reason_code,omitempty"`
	Details    string     `json:"details,omitempty"`
}

// PlayerSummary is the lobby view of one room member.
type PlayerSummary struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Ready       bool   `json:"ready"`
	Loaded      bool   `json:"loaded"`
	IsHost      bool   `json:"is_host"`
}

type RoomStatePayload struct {
	RoomPhase    string          `json:"room_phase"`
	InviteCode   string          `json:"invite_code"`
	Players      []PlayerSummary `json:"players"`
	HostPlayerID string          `json:"host_player_id"`
	PlayerCount  int             `json:"player_count"`
	MaxPlayers   int             `json:"max_players"`
}

type ReadyCheckStartedPayload struct{}

type ReadyCheckCanceledPayload struct{}

type MatchLoadingBeginPayload struct {
	AssetManifestVersion string `json:"asset_manifest_version"`
}

type MatchStartedPayload struct {
	MatchID string                 `json:"match_id"`
	Seats   map[models.Seat]string `json:"seats"`
}

type RoundStartedPayload struct {
	RoundID       string              `json:"round_id"`
	RoundIndex    int                 `json:"round_index"`
	StartingSeat  models.Seat         `json:"starting_seat"`
	ActiveSeat    models.Seat         `json:"active_seat"`
	DrawPileCount int                 `json:"draw_pile_count"`
	HandCounts    map[models.Seat]int `json:"hand_counts"`
}

type TurnStartedPayload struct {
	ActiveSeat models.Seat `json:"active_seat"`
	TurnNumber int         `json:"turn_number"`
}

type TurnEndedPayload struct {
	Seat       models.Seat `json:"seat"`
	TurnNumber int         `json:"turn_number"`
	Source     string      `json:"source,omitempty"`
}

// SourceAuto marks events produced by a timer-driven stand-in action rather
// than a client intent.
const SourceAuto = "AUTO"

type CardPlayedPayload struct {
	Seat       models.Seat          `json:"seat"`
	DistrictID string               `json:"district_id"`
	SlotIndex  int                  `json:"slot_index"`
	Card       *models.CardInstance `json:"card"`
	HandCounts map[models.Seat]int  `json:"hand_counts"`
	Source     string               `json:"source,omitempty"`
}

type CardDrawnPayload struct {
	Seat          models.Seat         `json:"seat"`
	DrawPileCount int                 `json:"draw_pile_count"`
	HandCounts    map[models.Seat]int `json:"hand_counts"`
	Source        string              `json:"source,omitempty"`
}

type DistrictClaimedPayload struct {
	DistrictID    string               `json:"district_id"`
	Winner        models.Seat          `json:"winner"`
	WinningConfig engine.Configuration `json:"winning_config"`
	ClaimedCounts map[models.Seat]int  `json:"claimed_counts"`
}

type CrisisDeclarationRequiredPayload struct {
	Seat           models.Seat `json:"seat"`
	CardInstanceID string      `json:"card_instance_id"`
	DeadlineMS     int64       `json:"deadline_ms"`
}

type CrisisDeclaredPayload struct {
	Seat           models.Seat       `json:"seat"`
	CardInstanceID string            `json:"card_instance_id"`
	DeclaredColor  models.AssetColor `json:"declared_color"`
	DeclaredValue  models.AssetValue `json:"declared_value"`
	Source         string            `json:"source,omitempty"`
}

// HandSnapshotPayload is delivered to exactly one session, never broadcast.
type HandSnapshotPayload struct {
	Hand []*models.CardInstance `json:"hand"`
}

type RoundEndedPayload struct {
	Winner        models.Seat         `json:"winner"`
	ClaimedCounts map[models.Seat]int `json:"claimed_counts"`
	MatchScore    map[models.Seat]int `json:"match_score"`
}

// MatchResultPayload terminates a match. Winner is null only for the
// perfect-tiebreak-tie outcome.
type MatchResultPayload struct {
	Winner     *models.Seat        `json:"winner"`
	MatchScore map[models.Seat]int `json:"match_score"`
	Tiebreak   *string             `json:"tiebreak"`
	Reason     string              `json:"reason,omitempty"`
}

type PlayerDisconnectedPayload struct {
	Seat models.Seat `json:"seat"`
}

type PlayerReconnectedPayload struct {
	Seat models.Seat `json:"seat"`
}

type PlayerForfeitedPayload struct {
	Seat   models.Seat `json:"seat"`
	Reason string      `json:"reason"`
}

// --- full state snapshot ---

type SideState struct {
	Cards [3]*models.CardInstance `json:"cards"`
}

type DistrictState struct {
	DistrictID    string                    `json:"district_id"`
	DistrictIndex int                       `json:"district_index"`
	Status        string                    `json:"status"`
	ClaimedBy     *models.Seat              `json:"claimed_by"`
	Sides         map[models.Seat]SideState `json:"sides"`
}

type RoundState struct {
	RoundID       string              `json:"round_id"`
	RoundIndex    int                 `json:"round_index"`
	Phase         string              `json:"phase"`
	ActiveSeat    models.Seat         `json:"active_seat"`
	TurnNumber    int                 `json:"turn_number"`
	DrawPileCount int                 `json:"draw_pile_count"`
	HandCounts    map[models.Seat]int `json:"hand_counts"`
	Districts     []DistrictState     `json:"districts"`
	ClaimedCounts map[models.Seat]int `json:"claimed_counts"`
}

type MatchState struct {
	MatchID           string                 `json:"match_id"`
	Phase             string                 `json:"phase"`
	MatchScore        map[models.Seat]int    `json:"match_score"`
	RoundIndex        int                    `json:"round_index"`
	Seats             map[models.Seat]string `json:"seats"`
	DistrictsWonTotal map[models.Seat]int    `json:"districts_won_total"`
}

// SnapshotPayload is the FULL_SNAPSHOT body: the lobby view plus, when a
// match is running, the public match and round state. The recipient's own
// hand still arrives separately via HAND_SNAPSHOT.
type SnapshotPayload struct {
	RoomPhase    string          `json:"room_phase"`
	InviteCode   string          `json:"invite_code"`
	Players      []PlayerSummary `json:"players"`
	HostPlayerID string          `json:"host_player_id"`
	YourPlayerID string          `json:"your_player_id"`
	PlayerCount  int             `json:"player_count"`
	MaxPlayers   int             `json:"max_players"`
	Match        *MatchState     `json:"match,omitempty"`
	Round        *RoundState     `json:"round,omitempty"`
}
