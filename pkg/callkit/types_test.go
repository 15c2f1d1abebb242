package callkit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("Incoming")
	require.NoError(t, err)
	assert.Equal(t, DirectionIncoming, d)

	d, err = ParseDirection("out")
	require.NoError(t, err)
	assert.Equal(t, DirectionOutgoing, d)

	_, err = ParseDirection("sideways")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestParseCause(t *testing.T) {
	c, err := ParseCause("")
	require.NoError(t, err)
	assert.Equal(t, CauseLocal, c)

	c, err = ParseCause("MISSED")
	require.NoError(t, err)
	assert.Equal(t, CauseMissed, c)

	_, err = ParseCause("aliens")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, "DisconnectCause(42)", DisconnectCause(42).String())
}

func TestMetadataPayload(t *testing.T) {
	meta := Metadata{CallerName: "Alice", Handle: "+100", Extra: map[string]any{ExtraCallID: "x"}}
	p := meta.payload("c1")

	assert.Equal(t, "c1", p["id"])
	assert.Equal(t, "Alice", p["nameCaller"])
	assert.Equal(t, "+100", p["handle"])

	p["extra"].(map[string]any)[ExtraCallID] = "mutated"
	assert.Equal(t, "x", meta.Extra[ExtraCallID], "Полезная нагрузка не разделяет карту с метаданными")

	assert.True(t, meta.matchesAltID("x"))
	assert.False(t, meta.matchesAltID(""))
	assert.False(t, Metadata{}.matchesAltID("x"))
}

func TestCallError(t *testing.T) {
	err := newNotFoundError("c9")

	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.Contains(t, err.Error(), "SESSION_NOT_FOUND")
	assert.Contains(t, err.Error(), "c9")
	assert.Equal(t, "[LIFECYCLE:CLOSED] coordinator is closed", newClosedError().Error())
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.Nil(t, NewMetrics(nil, "callkit"))
	assert.NotPanics(t, func() {
		m.setSessions(1)
		m.transition(StateRinging, StateActive)
		m.eventEmitted(EventAccept)
		m.routeRequested("speaker", true)
		m.osCallFailed("leg_set_active")
	})
}
