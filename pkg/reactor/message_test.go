package reactor_test

import (
	"testing"

	"github.com/mozaicserver/mozaic/pkg/reactor"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Value string
}

func TestMessageBorrowMatchesExactType(t *testing.T) {
	msg := reactor.NewMessage(samplePayload{Value: "hi"})

	got, ok := reactor.Borrow[samplePayload](msg)
	require.True(t, ok)
	require.Equal(t, "hi", got.Value)

	_, ok = reactor.Borrow[string](msg)
	require.False(t, ok, "borrowing as the wrong type must fail, not panic")
}

func TestTagOfMatchesNewMessageTag(t *testing.T) {
	msg := reactor.NewMessage(samplePayload{})
	require.Equal(t, reactor.TagOf[samplePayload](), msg.Tag())
}

type registerFrame struct {
	Player int `json:"player"`
}

func TestStructuredMessageRoundTrip(t *testing.T) {
	sm, err := reactor.NewStructuredMessage("register", registerFrame{Player: 10})
	require.NoError(t, err)
	require.Equal(t, "register", sm.TypeID)

	wire, err := sm.MarshalJSON()
	require.NoError(t, err)

	var decoded reactor.StructuredMessage
	require.NoError(t, decoded.UnmarshalJSON(wire))
	require.Equal(t, "register", decoded.TypeID)

	var frame registerFrame
	require.NoError(t, decoded.Decode(&frame))
	require.Equal(t, 10, frame.Player)
}

func TestStructuredMessageWireCarriesTypeIDField(t *testing.T) {
	sm, err := reactor.NewStructuredMessage("data", registerFrame{Player: 3})
	require.NoError(t, err)

	wire, err := sm.MarshalJSON()
	require.NoError(t, err)
	require.Contains(t, string(wire), `"type_id":"data"`)
	require.Contains(t, string(wire), `"player":3`)
}
