// Package voice issues voice room credentials and manages room membership
// on the external voice provider.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/npezzotti/go-watchparty/internal/database"
	"github.com/npezzotti/go-watchparty/internal/roomcode"
	"github.com/npezzotti/go-watchparty/internal/types"
)

const removeParticipantPath = "/twirp/livekit.RoomService/RemoveParticipant"

var (
	ErrNotConfigured       = errors.New("voice is not configured")
	ErrInvalidCode         = errors.New("invalid party code")
	ErrPartyUnavailable    = errors.New("party not found or has ended")
	ErrParticipantNotFound = errors.New("participant is not in this party")
)

type Config struct {
	Url       string
	ApiKey    string
	ApiSecret string
	TokenTTL  time.Duration
	Timeout   time.Duration
}

func (c Config) Enabled() bool {
	return c.Url != "" && c.ApiKey != "" && c.ApiSecret != ""
}

type Service struct {
	log     zerolog.Logger
	repo    database.PartyRepository
	issuer  *Issuer
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewService returns a service that reports ErrNotConfigured from every
// call when cfg is incomplete.
func NewService(cfg Config, repo database.PartyRepository, log zerolog.Logger) *Service {
	s := &Service{
		log:     log.With().Str("module", "voice").Logger(),
		repo:    repo,
		url:     cfg.Url,
		timeout: cfg.Timeout,
		client:  &http.Client{},
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	if cfg.Enabled() {
		ttl := cfg.TokenTTL
		if ttl <= 0 {
			ttl = 6 * time.Hour
		}
		s.issuer = NewIssuer(cfg.ApiKey, cfg.ApiSecret, ttl)
	}

	return s
}

// Issue returns join credentials for a present participant of a live party.
// The party code doubles as the provider room name and the participant ID
// as the provider identity.
func (s *Service) Issue(ctx context.Context, rawCode, participantId string) (types.VoiceCredentials, error) {
	code, ok := roomcode.Parse(rawCode)
	if !ok {
		return types.VoiceCredentials{}, ErrInvalidCode
	}

	party, err := s.repo.GetPartyByCode(ctx, code)
	if errors.Is(err, database.ErrNotFound) || (err == nil && party.Ended()) {
		return types.VoiceCredentials{}, ErrPartyUnavailable
	} else if err != nil {
		return types.VoiceCredentials{}, fmt.Errorf("get party: %w", err)
	}

	participant, err := s.repo.GetPresentParticipant(ctx, party.Id, participantId)
	if errors.Is(err, database.ErrNotFound) {
		return types.VoiceCredentials{}, ErrParticipantNotFound
	} else if err != nil {
		return types.VoiceCredentials{}, fmt.Errorf("get participant: %w", err)
	}

	if s.issuer == nil {
		return types.VoiceCredentials{}, ErrNotConfigured
	}

	token, err := s.issuer.JoinToken(party.Code, participant.Id, ParticipantMetadata{
		SeatId:      participant.SeatId,
		DisplayName: participant.DisplayName,
		IsHost:      participant.IsHost,
	})
	if err != nil {
		return types.VoiceCredentials{}, fmt.Errorf("sign token: %w", err)
	}

	return types.VoiceCredentials{
		Token:      token,
		RoomName:   party.Code,
		Url:        s.url,
		MicLocked:  party.MicLocked,
		SeatLocked: party.SeatLocked,
	}, nil
}

type removeParticipantRequest struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

// RemoveParticipant disconnects identity from the provider room. The call
// is bounded by the configured timeout.
func (s *Service) RemoveParticipant(ctx context.Context, room, identity string) error {
	if s.issuer == nil {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	token, err := s.issuer.AdminToken(room)
	if err != nil {
		return fmt.Errorf("sign admin token: %w", err)
	}

	body, err := json.Marshal(removeParticipantRequest{Room: room, Identity: identity})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL()+removeParticipantPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remove participant: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	s.log.Debug().Str("room", room).Str("identity", identity).Msg("removed participant from voice room")
	return nil
}

// apiURL maps the client websocket URL onto the provider's HTTP API.
func (s *Service) apiURL() string {
	u := strings.TrimRight(s.url, "/")
	switch {
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	}
	return u
}
