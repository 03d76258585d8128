package types

import (
	"github.com/npezzotti/go-watchparty/internal/database"
	"github.com/npezzotti/go-watchparty/internal/seatmap"
)

func NewParticipant(p database.Participant) Participant {
	return Participant{
		Id:          p.Id,
		SeatId:      p.SeatId,
		DisplayName: p.DisplayName,
		IsHost:      p.IsHost,
		Muted:       p.Muted,
		JoinedAt:    p.JoinedAt,
	}
}

func NewPresence(p database.Participant, left bool) Presence {
	return Presence{
		ParticipantId: p.Id,
		SeatId:        p.SeatId,
		DisplayName:   p.DisplayName,
		IsHost:        p.IsHost,
		Muted:         p.Muted,
		Left:          left,
	}
}

func NewPlaylist(items []database.PlaylistItem) []PlaylistItem {
	out := make([]PlaylistItem, 0, len(items))
	for _, item := range items {
		out = append(out, PlaylistItem{
			Id:          item.Id,
			OrderIndex:  item.OrderIndex,
			ContentType: item.ContentType,
			ContentUrl:  item.ContentUrl,
			Title:       item.Title,
		})
	}
	return out
}

func NewPlayback(state database.PlaybackState, currentIndex int) Playback {
	return Playback{
		Playing:      state.Playing,
		CurrentTime:  state.CurrentTime,
		CurrentIndex: currentIndex,
		UpdatedAt:    state.UpdatedAt,
	}
}

func NewChatMessage(m database.Message) ChatMessage {
	return ChatMessage{
		Id:          m.Id,
		Text:        m.Text,
		SeatId:      m.SeatId,
		DisplayName: m.DisplayName,
		CreatedAt:   m.CreatedAt,
	}
}

func NewChatMessages(messages []database.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, NewChatMessage(m))
	}
	return out
}

func NewPartySummaries(parties []database.PartySummary) []PartySummary {
	out := make([]PartySummary, 0, len(parties))
	for _, p := range parties {
		out = append(out, PartySummary{
			Code:       p.Code,
			Title:      p.Title,
			Theme:      p.Theme,
			MaxSeats:   p.MaxSeats,
			SeatsTaken: p.SeatsTaken,
		})
	}
	return out
}

// NewPartySnapshot assembles the full room view served on page load.
func NewPartySnapshot(
	party database.Party,
	participants []database.Participant,
	playback database.PlaybackState,
	playlist []database.PlaylistItem,
) Party {
	present := make([]Participant, 0, len(participants))
	for _, p := range participants {
		present = append(present, NewParticipant(p))
	}

	return Party{
		Id:           party.Id,
		Code:         party.Code,
		Title:        party.Title,
		ContentType:  party.ContentType,
		ContentUrl:   party.ContentUrl,
		Visibility:   party.Visibility,
		MaxSeats:     party.MaxSeats,
		Theme:        party.Theme,
		Status:       string(party.Status),
		CurrentIndex: party.CurrentIndex,
		MicLocked:    party.MicLocked,
		SeatLocked:   party.SeatLocked,
		SeatMap:      seatmap.Build(party.MaxSeats),
		Participants: present,
		Playback:     NewPlayback(playback, party.CurrentIndex),
		Playlist:     NewPlaylist(playlist),
		CreatedAt:    party.CreatedAt,
	}
}
