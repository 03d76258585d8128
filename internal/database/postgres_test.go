package database

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func newPgTestRepository(t *testing.T) *PgPartyRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("watchparty"),
		postgres.WithUsername("watchparty"),
		postgres.WithPassword("watchparty"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	repo, err := NewPgPartyRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.Migrate())
	return repo
}

func TestPgPartyRepository(t *testing.T) {
	repo := newPgTestRepository(t)
	ctx := context.Background()

	party, host := createTestParty(t, repo, "PGTEST")
	assert.True(t, host.IsHost)

	_, _, err := repo.CreateParty(ctx, CreatePartyParams{Code: "PGTEST", Title: "dup", MaxSeats: 12, Visibility: VisibilityPrivate})
	assert.ErrorIs(t, err, ErrCodeTaken)

	t.Run("concurrent seat reservation", func(t *testing.T) {
		const attempts = 10
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.ReserveSeat(ctx, ReserveSeatParams{PartyId: party.Id, SeatId: "C-3", DisplayName: "guest"})
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}()
		}
		wg.Wait()

		var ok int
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, ErrSeatTaken)
		}
		assert.Equal(t, 1, ok)
	})

	t.Run("reorder playlist", func(t *testing.T) {
		items, err := repo.ListPlaylist(ctx, party.Id)
		require.NoError(t, err)
		require.Len(t, items, 2)

		reordered, err := repo.ReorderPlaylist(ctx, party.Id, []string{items[1].Id, items[0].Id})
		require.NoError(t, err)
		require.Len(t, reordered, 2)
		assert.Equal(t, items[1].Id, reordered[0].Id)
		assert.Equal(t, 0, reordered[0].OrderIndex)
		assert.Equal(t, 1, reordered[1].OrderIndex)

		_, err = repo.ReorderPlaylist(ctx, party.Id, []string{items[0].Id, items[0].Id})
		assert.ErrorIs(t, err, ErrInvalidOrder)
	})

	t.Run("playback", func(t *testing.T) {
		idx := 1
		state, current, err := repo.SetPlayback(ctx, SetPlaybackParams{PartyId: party.Id, Playing: true, CurrentTime: 12.5, CurrentIndex: &idx})
		require.NoError(t, err)
		assert.True(t, state.Playing)
		assert.Equal(t, 12.5, state.CurrentTime)
		assert.Equal(t, 1, current)

		got, err := repo.GetPlayback(ctx, party.Id)
		require.NoError(t, err)
		assert.Equal(t, 12.5, got.CurrentTime)
	})

	t.Run("messages", func(t *testing.T) {
		for _, text := range []string{"first", "second"} {
			_, err := repo.CreateMessage(ctx, CreateMessageParams{
				PartyId: party.Id, ParticipantId: host.Id, SeatId: host.SeatId, DisplayName: host.DisplayName, Text: text,
			})
			require.NoError(t, err)
		}

		messages, err := repo.ListRecentMessages(ctx, party.Id, 50)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "first", messages[0].Text)
	})

	t.Run("end party", func(t *testing.T) {
		require.NoError(t, repo.EndParty(ctx, party.Id))
		got, err := repo.GetPartyByCode(ctx, "PGTEST")
		require.NoError(t, err)
		assert.True(t, got.Ended())
		assert.ErrorIs(t, repo.EndParty(ctx, "missing"), ErrNotFound)
	})
}
