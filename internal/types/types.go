package types

import (
	"time"

	"github.com/npezzotti/go-watchparty/internal/seatmap"
)

type Party struct {
	Id           string          `json:"id"`
	Code         string          `json:"code"`
	Title        string          `json:"title"`
	ContentType  string          `json:"contentType,omitempty"`
	ContentUrl   string          `json:"contentUrl,omitempty"`
	Visibility   string          `json:"visibility"`
	MaxSeats     int             `json:"maxSeats"`
	Theme        string          `json:"theme,omitempty"`
	Status       string          `json:"status"`
	CurrentIndex int             `json:"currentIndex"`
	MicLocked    bool            `json:"micLocked"`
	SeatLocked   bool            `json:"seatLocked"`
	SeatMap      seatmap.SeatMap `json:"seatMap"`
	Participants []Participant   `json:"participants"`
	Playback     Playback        `json:"playback"`
	Playlist     []PlaylistItem  `json:"playlist"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type Participant struct {
	Id          string    `json:"id"`
	SeatId      string    `json:"seatId"`
	DisplayName string    `json:"displayName"`
	IsHost      bool      `json:"isHost"`
	Muted       bool      `json:"muted"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type PlaylistItem struct {
	Id          string `json:"id"`
	OrderIndex  int    `json:"orderIndex"`
	ContentType string `json:"contentType"`
	ContentUrl  string `json:"contentUrl"`
	Title       string `json:"title,omitempty"`
}

// Playback is the authoritative playback position as of UpdatedAt.
type Playback struct {
	Playing      bool      `json:"playing"`
	CurrentTime  float64   `json:"currentTime"`
	CurrentIndex int       `json:"currentIndex"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PositionAt extrapolates the playback offset in seconds to now. A paused
// stream stays where it is. Clock skew between machines is not corrected;
// a receiver clock behind UpdatedAt is treated as zero elapsed time.
func (p Playback) PositionAt(now time.Time) float64 {
	if !p.Playing {
		return p.CurrentTime
	}

	elapsed := now.Sub(p.UpdatedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	return p.CurrentTime + elapsed
}

type ChatMessage struct {
	Id          string    `json:"id"`
	Text        string    `json:"text"`
	SeatId      string    `json:"seatId"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Reaction struct {
	Emoji       string `json:"emoji"`
	SeatId      string `json:"seatId"`
	DisplayName string `json:"displayName"`
}

type Presence struct {
	ParticipantId string `json:"participantId"`
	SeatId        string `json:"seatId,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
	IsHost        bool   `json:"isHost"`
	Muted         bool   `json:"muted"`
	Left          bool   `json:"left"`
}

type SeatUpdate struct {
	ParticipantId string `json:"participantId"`
	SeatId        string `json:"seatId"`
	DisplayName   string `json:"displayName"`
}

type SeatReservation struct {
	ParticipantId string `json:"participantId"`
	SeatId        string `json:"seatId"`
}

type LockState struct {
	Locked bool `json:"locked"`
}

type MuteState struct {
	ParticipantId string `json:"participantId"`
	Muted         bool   `json:"muted"`
}

type Kick struct {
	Code          string `json:"code"`
	ParticipantId string `json:"participantId"`
}

type GameLaunch struct {
	Game string `json:"game"`
}

type PartyEnded struct {
	Code string `json:"code"`
}

type PlaylistUpdate struct {
	Items        []PlaylistItem `json:"items"`
	CurrentIndex int            `json:"currentIndex"`
}

type VoiceCredentials struct {
	Token      string `json:"token"`
	RoomName   string `json:"roomName"`
	Url        string `json:"url,omitempty"`
	MicLocked  bool   `json:"micLocked"`
	SeatLocked bool   `json:"seatLocked"`
}

type PartySummary struct {
	Code       string `json:"code"`
	Title      string `json:"title"`
	Theme      string `json:"theme,omitempty"`
	MaxSeats   int    `json:"maxSeats"`
	SeatsTaken int    `json:"seatsTaken"`
}

type CreatedParty struct {
	Code          string `json:"code"`
	PartyId       string `json:"partyId"`
	HostSeat      string `json:"hostSeat"`
	ParticipantId string `json:"participantId"`
}
