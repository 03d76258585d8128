package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/npezzotti/go-watchparty/internal/testutil"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(testutil.TestLogger(t))

	r.Bind("c1", Binding{Code: "ABC123", PartyId: "p1", ParticipantId: "u1"})
	r.Bind("c2", Binding{Code: "ABC123", PartyId: "p1", ParticipantId: "u1"})
	r.Bind("c3", Binding{Code: "ABC123", PartyId: "p1"})

	b, ok := r.Get("c1")
	assert.True(t, ok)
	assert.Equal(t, "u1", b.ParticipantId)

	assert.ElementsMatch(t, []string{"c1", "c2"}, r.ConnsForParticipant("ABC123", "u1"))
	assert.Empty(t, r.ConnsForParticipant("XYZ789", "u1"))

	prev, ok := r.ClearParticipant("c1")
	assert.True(t, ok)
	assert.Equal(t, "u1", prev.ParticipantId, "expected the binding as it was before clearing")

	b, _ = r.Get("c1")
	assert.Empty(t, b.ParticipantId)
	assert.Equal(t, "ABC123", b.Code, "expected the room binding to survive")
	assert.Equal(t, []string{"c2"}, r.ConnsForParticipant("ABC123", "u1"))

	removed, ok := r.Remove("c2")
	assert.True(t, ok)
	assert.Equal(t, "u1", removed.ParticipantId)

	_, ok = r.Get("c2")
	assert.False(t, ok)

	_, ok = r.Remove("c2")
	assert.False(t, ok)
	_, ok = r.ClearParticipant("missing")
	assert.False(t, ok)
}
