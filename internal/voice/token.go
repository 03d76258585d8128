package voice

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VideoGrant scopes what a token holder may do inside a voice room.
type VideoGrant struct {
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	RoomAdmin    bool   `json:"roomAdmin,omitempty"`
	Room         string `json:"room,omitempty"`
	CanPublish   *bool  `json:"canPublish,omitempty"`
	CanSubscribe *bool  `json:"canSubscribe,omitempty"`
}

type AccessClaims struct {
	Name     string      `json:"name,omitempty"`
	Metadata string      `json:"metadata,omitempty"`
	Video    *VideoGrant `json:"video,omitempty"`
	jwt.RegisteredClaims
}

// ParticipantMetadata is exposed by the provider to the other room members.
type ParticipantMetadata struct {
	SeatId      string `json:"seatId"`
	DisplayName string `json:"displayName"`
	IsHost      bool   `json:"isHost"`
}

type Issuer struct {
	apiKey    string
	apiSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewIssuer(apiKey, apiSecret string, ttl time.Duration) *Issuer {
	return &Issuer{
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		ttl:       ttl,
		now:       time.Now,
	}
}

// JoinToken grants identity publish and subscribe rights in room.
func (i *Issuer) JoinToken(room, identity string, meta ParticipantMetadata) (string, error) {
	metadata, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	allow := true
	return i.sign(identity, &AccessClaims{
		Name:     meta.DisplayName,
		Metadata: string(metadata),
		Video: &VideoGrant{
			RoomJoin:     true,
			Room:         room,
			CanPublish:   &allow,
			CanSubscribe: &allow,
		},
	})
}

// AdminToken authorizes room service calls against room.
func (i *Issuer) AdminToken(room string) (string, error) {
	return i.sign("", &AccessClaims{
		Video: &VideoGrant{RoomAdmin: true, Room: room},
	})
}

func (i *Issuer) sign(identity string, claims *AccessClaims) (string, error) {
	now := i.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    i.apiKey,
		Subject:   identity,
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.apiSecret)
}

// Verify parses a token signed by this issuer.
func (i *Issuer) Verify(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.apiSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.apiKey),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, err
	}

	return claims, nil
}
