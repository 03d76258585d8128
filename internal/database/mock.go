package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockPartyRepository struct {
	mock.Mock
}

func (m *MockPartyRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockPartyRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}
func (m *MockPartyRepository) CreateParty(ctx context.Context, params CreatePartyParams) (Party, Participant, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Party), args.Get(1).(Participant), args.Error(2)
}
func (m *MockPartyRepository) GetPartyByCode(ctx context.Context, code string) (Party, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(Party), args.Error(1)
}
func (m *MockPartyRepository) ListPublicParties(ctx context.Context, limit int) ([]PartySummary, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]PartySummary), args.Error(1)
}
func (m *MockPartyRepository) EndParty(ctx context.Context, partyId string) error {
	args := m.Called(ctx, partyId)
	return args.Error(0)
}
func (m *MockPartyRepository) SetMicLocked(ctx context.Context, partyId string, locked bool) error {
	args := m.Called(ctx, partyId, locked)
	return args.Error(0)
}
func (m *MockPartyRepository) SetSeatLocked(ctx context.Context, partyId string, locked bool) error {
	args := m.Called(ctx, partyId, locked)
	return args.Error(0)
}
func (m *MockPartyRepository) GetPresentParticipant(ctx context.Context, partyId, participantId string) (Participant, error) {
	args := m.Called(ctx, partyId, participantId)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockPartyRepository) ListPresentParticipants(ctx context.Context, partyId string) ([]Participant, error) {
	args := m.Called(ctx, partyId)
	return args.Get(0).([]Participant), args.Error(1)
}
func (m *MockPartyRepository) ReserveSeat(ctx context.Context, params ReserveSeatParams) (Participant, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockPartyRepository) MarkParticipantLeft(ctx context.Context, partyId, participantId string) (bool, error) {
	args := m.Called(ctx, partyId, participantId)
	return args.Bool(0), args.Error(1)
}
func (m *MockPartyRepository) SetParticipantMuted(ctx context.Context, partyId, participantId string, muted bool) (bool, error) {
	args := m.Called(ctx, partyId, participantId, muted)
	return args.Bool(0), args.Error(1)
}
func (m *MockPartyRepository) GetPlayback(ctx context.Context, partyId string) (PlaybackState, error) {
	args := m.Called(ctx, partyId)
	return args.Get(0).(PlaybackState), args.Error(1)
}
func (m *MockPartyRepository) SetPlayback(ctx context.Context, params SetPlaybackParams) (PlaybackState, int, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(PlaybackState), args.Int(1), args.Error(2)
}
func (m *MockPartyRepository) ListPlaylist(ctx context.Context, partyId string) ([]PlaylistItem, error) {
	args := m.Called(ctx, partyId)
	return args.Get(0).([]PlaylistItem), args.Error(1)
}
func (m *MockPartyRepository) ReorderPlaylist(ctx context.Context, partyId string, orderedIds []string) ([]PlaylistItem, error) {
	args := m.Called(ctx, partyId, orderedIds)
	if items, ok := args.Get(0).([]PlaylistItem); ok {
		return items, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockPartyRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockPartyRepository) ListRecentMessages(ctx context.Context, partyId string, limit int) ([]Message, error) {
	args := m.Called(ctx, partyId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
