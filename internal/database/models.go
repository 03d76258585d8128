package database

import "time"

type PartyStatus string

const (
	StatusLive  PartyStatus = "live"
	StatusEnded PartyStatus = "ended"

	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

type Party struct {
	Id           string      `db:"id"`
	Code         string      `db:"code"`
	Title        string      `db:"title"`
	ContentType  string      `db:"content_type"`
	ContentUrl   string      `db:"content_url"`
	Visibility   string      `db:"visibility"`
	MaxSeats     int         `db:"max_seats"`
	Theme        string      `db:"theme"`
	Status       PartyStatus `db:"status"`
	CurrentIndex int         `db:"current_index"`
	MicLocked    bool        `db:"mic_locked"`
	SeatLocked   bool        `db:"seat_locked"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (p Party) Ended() bool {
	return p.Status == StatusEnded
}

type Participant struct {
	Id          string     `db:"id"`
	PartyId     string     `db:"party_id"`
	SeatId      string     `db:"seat_id"`
	DisplayName string     `db:"display_name"`
	IsHost      bool       `db:"is_host"`
	Muted       bool       `db:"muted"`
	JoinedAt    time.Time  `db:"joined_at"`
	LeftAt      *time.Time `db:"left_at"`
}

// Present reports whether the participant still occupies their seat.
func (p Participant) Present() bool {
	return p.LeftAt == nil
}

type PlaylistItem struct {
	Id          string `db:"id"`
	PartyId     string `db:"party_id"`
	OrderIndex  int    `db:"order_index"`
	ContentType string `db:"content_type"`
	ContentUrl  string `db:"content_url"`
	Title       string `db:"title"`
}

type PlaybackState struct {
	PartyId     string    `db:"party_id"`
	Playing     bool      `db:"playing"`
	CurrentTime float64   `db:"current_offset"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type Message struct {
	Id            string    `db:"id"`
	PartyId       string    `db:"party_id"`
	ParticipantId string    `db:"participant_id"`
	SeatId        string    `db:"seat_id"`
	DisplayName   string    `db:"display_name"`
	Text          string    `db:"text"`
	CreatedAt     time.Time `db:"created_at"`
}

type PartySummary struct {
	Code       string `db:"code"`
	Title      string `db:"title"`
	Theme      string `db:"theme"`
	MaxSeats   int    `db:"max_seats"`
	SeatsTaken int    `db:"seats_taken"`
}

type PlaylistItemParams struct {
	ContentType string
	ContentUrl  string
	Title       string
}

type CreatePartyParams struct {
	Code       string
	Title      string
	Visibility string
	MaxSeats   int
	Theme      string
	HostSeat   string
	HostName   string
	Playlist   []PlaylistItemParams
}

type ReserveSeatParams struct {
	PartyId     string
	SeatId      string
	DisplayName string
}

type SetPlaybackParams struct {
	PartyId     string
	Playing     bool
	CurrentTime float64
	// CurrentIndex is left untouched when nil.
	CurrentIndex *int
}

type CreateMessageParams struct {
	PartyId       string
	ParticipantId string
	SeatId        string
	DisplayName   string
	Text          string
}
