package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/npezzotti/go-watchparty/internal/server"
)

func TestNewCoordinatorError(t *testing.T) {
	tcases := []struct {
		name            string
		err             error
		expectedCode    int
		expectedMessage string
	}{
		{"validation", server.ErrUnknownSeat, http.StatusBadRequest, server.ErrUnknownSeat.Error()},
		{"forbidden", server.ErrNotHost, http.StatusForbidden, server.ErrNotHost.Error()},
		{"not found", server.ErrPartyNotFound, http.StatusNotFound, server.ErrPartyNotFound.Error()},
		{"conflict", server.ErrSeatTaken, http.StatusConflict, server.ErrSeatTaken.Error()},
		{"wrapped conflict", fmt.Errorf("reserve: %w", server.ErrSeatTaken), http.StatusConflict, "reserve: " + server.ErrSeatTaken.Error()},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			apiErr := NewCoordinatorError(tc.err)
			assert.Equal(t, tc.expectedCode, apiErr.StatusCode)
			assert.Equal(t, tc.expectedMessage, apiErr.Message)
			assert.ErrorIs(t, apiErr, tc.err)
		})
	}
}
