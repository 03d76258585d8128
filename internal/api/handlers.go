package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/npezzotti/go-watchparty/internal/roomcode"
	"github.com/npezzotti/go-watchparty/internal/server"
	"github.com/npezzotti/go-watchparty/internal/types"
)

const maxBodyBytes = 1 << 20

type ParticipantRequest struct {
	ParticipantId string `json:"participantId"`
}

type ReserveSeatRequest struct {
	SeatId      string `json:"seatId"`
	DisplayName string `json:"displayName"`
}

type SetPlaybackRequest struct {
	ParticipantId string  `json:"participantId"`
	Playing       bool    `json:"playing"`
	CurrentTime   float64 `json:"currentTime"`
	CurrentIndex  *int    `json:"currentIndex,omitempty"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

func (s *App) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Error().Err(errResp).Msg("request failed")
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *App) decodeJson(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, NewBadRequestError())
		return false
	}
	return true
}

func (s *App) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *App) listParties(w http.ResponseWriter, r *http.Request) {
	parties, err := s.cs.ListPublicParties(r.Context())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, parties)
}

func (s *App) createParty(w http.ResponseWriter, r *http.Request) {
	var req CreatePartyRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	params, errResp := req.params()
	if errResp != nil {
		s.writeError(w, errResp)
		return
	}

	created, err := s.cs.CreateParty(r.Context(), params)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, created)
}

func (s *App) getParty(w http.ResponseWriter, r *http.Request) {
	snap, err := s.cs.Snapshot(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, NewCoordinatorError(err))
		return
	}

	s.writeJson(w, http.StatusOK, snap)
}

func (s *App) endParty(w http.ResponseWriter, r *http.Request) {
	var req ParticipantRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	code := chi.URLParam(r, "code")
	if err := s.cs.EndParty(r.Context(), code, req.ParticipantId); err != nil {
		s.writeError(w, NewCoordinatorError(err))
		return
	}

	s.writeJson(w, http.StatusOK, types.PartyEnded{Code: roomcode.Normalize(code)})
}

func (s *App) reserveSeat(w http.ResponseWriter, r *http.Request) {
	var req ReserveSeatRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	p, err := s.cs.ReserveSeat(r.Context(), chi.URLParam(r, "code"), req.SeatId, req.DisplayName)
	if err != nil {
		s.writeError(w, NewCoordinatorError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, types.SeatReservation{
		ParticipantId: p.Id,
		SeatId:        p.SeatId,
	})
}

func (s *App) getPlayback(w http.ResponseWriter, r *http.Request) {
	playback, err := s.cs.Playback(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, NewCoordinatorError(err))
		return
	}

	s.writeJson(w, http.StatusOK, playback)
}

func (s *App) setPlayback(w http.ResponseWriter, r *http.Request) {
	var req SetPlaybackRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	playback, err := s.cs.SetPlaybackAsHost(r.Context(), chi.URLParam(r, "code"), req.ParticipantId, server.PlaybackPayload{
		Playing:      req.Playing,
		CurrentTime:  req.CurrentTime,
		CurrentIndex: req.CurrentIndex,
	})
	if err != nil {
		s.writeError(w, NewCoordinatorError(err))
		return
	}

	s.writeJson(w, http.StatusOK, playback)
}

func (s *App) getMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.cs.RecentMessages(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, NewCoordinatorError(err))
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("error upgrading connection")
		return
	}

	if err := s.cs.ServeConn(conn); err != nil {
		s.log.Error().Err(err).Msg("failed to serve connection")
		conn.Close()
	}
}
