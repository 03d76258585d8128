package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	partyColumns = "id, code, title, content_type, content_url, visibility, max_seats, theme, " +
		"status, current_index, mic_locked, seat_locked, created_at, updated_at"
	participantColumns = "id, party_id, seat_id, display_name, is_host, muted, joined_at, left_at"
	playlistColumns    = "id, party_id, order_index, content_type, content_url, title"
	messageColumns     = "id, party_id, participant_id, seat_id, display_name, text, created_at"

	insertParticipantQuery = "INSERT INTO participants (id, party_id, seat_id, display_name, is_host, joined_at) " +
		"VALUES ($1, $2, $3, $4, $5, $6) RETURNING " + participantColumns
	listPlaylistQuery = "SELECT " + playlistColumns + " FROM playlist_items " +
		"WHERE party_id = $1 ORDER BY order_index"
)

func (r *PgPartyRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.conn.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM parties WHERE code = $1)", code)
	return exists, err
}

func (r *PgPartyRepository) CreateParty(ctx context.Context, params CreatePartyParams) (Party, Participant, error) {
	var (
		party Party
		host  Participant
		now   = time.Now().UTC()
	)

	var contentType, contentUrl string
	if len(params.Playlist) > 0 {
		contentType = params.Playlist[0].ContentType
		contentUrl = params.Playlist[0].ContentUrl
	}

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &party,
			"INSERT INTO parties (id, code, title, content_type, content_url, visibility, max_seats, theme, "+
				"status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10) "+
				"RETURNING "+partyColumns,
			uuid.NewString(),
			params.Code,
			params.Title,
			contentType,
			contentUrl,
			params.Visibility,
			params.MaxSeats,
			params.Theme,
			StatusLive,
			now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrCodeTaken
			}
			return fmt.Errorf("insert party: %w", err)
		}

		if err := tx.GetContext(ctx, &host, insertParticipantQuery,
			uuid.NewString(), party.Id, params.HostSeat, params.HostName, true, now,
		); err != nil {
			return fmt.Errorf("insert host: %w", err)
		}

		for i, item := range params.Playlist {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO playlist_items (id, party_id, order_index, content_type, content_url, title) "+
					"VALUES ($1, $2, $3, $4, $5, $6)",
				uuid.NewString(), party.Id, i, item.ContentType, item.ContentUrl, item.Title,
			); err != nil {
				return fmt.Errorf("insert playlist item: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO playback_states (party_id, playing, current_offset, updated_at) VALUES ($1, FALSE, 0, $2)",
			party.Id, now,
		); err != nil {
			return fmt.Errorf("insert playback: %w", err)
		}

		return nil
	})

	return party, host, err
}

func (r *PgPartyRepository) GetPartyByCode(ctx context.Context, code string) (Party, error) {
	var party Party
	err := r.conn.GetContext(ctx, &party, "SELECT "+partyColumns+" FROM parties WHERE code = $1 LIMIT 1", code)
	if errors.Is(err, sql.ErrNoRows) {
		return party, ErrNotFound
	}
	return party, err
}

func (r *PgPartyRepository) ListPublicParties(ctx context.Context, limit int) ([]PartySummary, error) {
	parties := []PartySummary{}
	err := r.conn.SelectContext(ctx, &parties,
		"SELECT p.code, p.title, p.theme, p.max_seats, "+
			"(SELECT count(*) FROM participants pa WHERE pa.party_id = p.id AND pa.left_at IS NULL) AS seats_taken "+
			"FROM parties p WHERE p.visibility = $1 AND p.status = $2 "+
			"ORDER BY p.created_at DESC LIMIT $3",
		VisibilityPublic, StatusLive, limit,
	)
	return parties, err
}

func (r *PgPartyRepository) EndParty(ctx context.Context, partyId string) error {
	return r.execOne(ctx,
		"UPDATE parties SET status = $2, updated_at = $3 WHERE id = $1",
		partyId, StatusEnded, time.Now().UTC(),
	)
}

func (r *PgPartyRepository) SetMicLocked(ctx context.Context, partyId string, locked bool) error {
	return r.execOne(ctx,
		"UPDATE parties SET mic_locked = $2, updated_at = $3 WHERE id = $1",
		partyId, locked, time.Now().UTC(),
	)
}

func (r *PgPartyRepository) SetSeatLocked(ctx context.Context, partyId string, locked bool) error {
	return r.execOne(ctx,
		"UPDATE parties SET seat_locked = $2, updated_at = $3 WHERE id = $1",
		partyId, locked, time.Now().UTC(),
	)
}

func (r *PgPartyRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *PgPartyRepository) GetPresentParticipant(ctx context.Context, partyId, participantId string) (Participant, error) {
	var p Participant
	err := r.conn.GetContext(ctx, &p,
		"SELECT "+participantColumns+" FROM participants "+
			"WHERE party_id = $1 AND id = $2 AND left_at IS NULL LIMIT 1",
		partyId, participantId,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

func (r *PgPartyRepository) ListPresentParticipants(ctx context.Context, partyId string) ([]Participant, error) {
	participants := []Participant{}
	err := r.conn.SelectContext(ctx, &participants,
		"SELECT "+participantColumns+" FROM participants "+
			"WHERE party_id = $1 AND left_at IS NULL ORDER BY joined_at",
		partyId,
	)
	return participants, err
}

func (r *PgPartyRepository) ReserveSeat(ctx context.Context, params ReserveSeatParams) (Participant, error) {
	var p Participant
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var taken bool
		if err := tx.GetContext(ctx, &taken,
			"SELECT EXISTS(SELECT 1 FROM participants WHERE party_id = $1 AND seat_id = $2 AND left_at IS NULL)",
			params.PartyId, params.SeatId,
		); err != nil {
			return err
		}
		if taken {
			return ErrSeatTaken
		}

		// a concurrent insert that passed the check above trips the partial unique index
		err := tx.GetContext(ctx, &p, insertParticipantQuery,
			uuid.NewString(), params.PartyId, params.SeatId, params.DisplayName, false, time.Now().UTC(),
		)
		if isUniqueViolation(err) {
			return ErrSeatTaken
		}
		return err
	})

	return p, err
}

func (r *PgPartyRepository) MarkParticipantLeft(ctx context.Context, partyId, participantId string) (bool, error) {
	res, err := r.conn.ExecContext(ctx,
		"UPDATE participants SET left_at = $3 WHERE party_id = $1 AND id = $2 AND left_at IS NULL",
		partyId, participantId, time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PgPartyRepository) SetParticipantMuted(ctx context.Context, partyId, participantId string, muted bool) (bool, error) {
	res, err := r.conn.ExecContext(ctx,
		"UPDATE participants SET muted = $3 "+
			"WHERE party_id = $1 AND id = $2 AND left_at IS NULL AND NOT is_host",
		partyId, participantId, muted,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PgPartyRepository) GetPlayback(ctx context.Context, partyId string) (PlaybackState, error) {
	var state PlaybackState
	err := r.conn.GetContext(ctx, &state,
		"SELECT party_id, playing, current_offset, updated_at FROM playback_states WHERE party_id = $1",
		partyId,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return state, ErrNotFound
	}
	return state, err
}

func (r *PgPartyRepository) SetPlayback(ctx context.Context, params SetPlaybackParams) (PlaybackState, int, error) {
	var (
		state PlaybackState
		index int
	)

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &state,
			"INSERT INTO playback_states (party_id, playing, current_offset, updated_at) VALUES ($1, $2, $3, $4) "+
				"ON CONFLICT (party_id) DO UPDATE SET playing = EXCLUDED.playing, "+
				"current_offset = EXCLUDED.current_offset, updated_at = EXCLUDED.updated_at "+
				"RETURNING party_id, playing, current_offset, updated_at",
			params.PartyId, params.Playing, params.CurrentTime, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("upsert playback: %w", err)
		}

		if params.CurrentIndex == nil {
			return tx.GetContext(ctx, &index, "SELECT current_index FROM parties WHERE id = $1", params.PartyId)
		}

		var count int
		if err := tx.GetContext(ctx, &count,
			"SELECT count(*) FROM playlist_items WHERE party_id = $1", params.PartyId,
		); err != nil {
			return err
		}

		return tx.GetContext(ctx, &index,
			"UPDATE parties SET current_index = $2, updated_at = $3 WHERE id = $1 RETURNING current_index",
			params.PartyId, clampIndex(*params.CurrentIndex, count), time.Now().UTC(),
		)
	})
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}

	return state, index, err
}

func (r *PgPartyRepository) ListPlaylist(ctx context.Context, partyId string) ([]PlaylistItem, error) {
	items := []PlaylistItem{}
	err := r.conn.SelectContext(ctx, &items, listPlaylistQuery, partyId)
	return items, err
}

func (r *PgPartyRepository) ReorderPlaylist(ctx context.Context, partyId string, orderedIds []string) ([]PlaylistItem, error) {
	items := []PlaylistItem{}
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var ids []string
		if err := tx.SelectContext(ctx, &ids,
			"SELECT id FROM playlist_items WHERE party_id = $1 FOR UPDATE", partyId,
		); err != nil {
			return err
		}
		if !validOrder(ids, orderedIds) {
			return ErrInvalidOrder
		}

		// order_index uniqueness is deferred to commit, so rows can swap positions freely
		if _, err := tx.ExecContext(ctx,
			"UPDATE playlist_items p SET order_index = o.ord - 1 "+
				"FROM unnest($2::text[]) WITH ORDINALITY AS o(id, ord) "+
				"WHERE p.party_id = $1 AND p.id = o.id",
			partyId, pq.Array(orderedIds),
		); err != nil {
			return fmt.Errorf("reorder playlist: %w", err)
		}

		return tx.SelectContext(ctx, &items, listPlaylistQuery, partyId)
	})

	return items, err
}

func (r *PgPartyRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	var m Message
	err := r.conn.GetContext(ctx, &m,
		"INSERT INTO messages (id, party_id, participant_id, seat_id, display_name, text, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+messageColumns,
		uuid.NewString(),
		params.PartyId,
		params.ParticipantId,
		params.SeatId,
		params.DisplayName,
		params.Text,
		time.Now().UTC(),
	)
	return m, err
}

func (r *PgPartyRepository) ListRecentMessages(ctx context.Context, partyId string, limit int) ([]Message, error) {
	messages := []Message{}
	err := r.conn.SelectContext(ctx, &messages,
		"SELECT "+messageColumns+" FROM ("+
			"SELECT "+messageColumns+" FROM messages WHERE party_id = $1 ORDER BY created_at DESC LIMIT $2"+
			") recent ORDER BY created_at ASC",
		partyId, limit,
	)
	return messages, err
}
