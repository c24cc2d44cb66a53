package reply

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/rconbridge/internal/testutil/testlog"
)

func TestDecode(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name string
		raw  string
		want Result
	}{
		{name: "empty", raw: "", want: Success(nil)},
		{name: "whitespace", raw: " \n\t", want: Success(nil)},
		{name: "success prefix", raw: "Success: Entity stone-furnace placed", want: Success("Entity stone-furnace placed")},
		{name: "failed prefix", raw: "Failed: Cannot place stone-furnace due to collision", want: Failure("Cannot place stone-furnace due to collision")},
		{name: "failure prefix", raw: "Failure:  no path ", want: Failure("no path")},
		{name: "lua table is not json", raw: "{x = 1, y = 2}", want: Passthrough("{x = 1, y = 2}")},
		{name: "free text", raw: "hello", want: Passthrough("hello")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decode(tc.raw))
		})
	}
}

func TestDecodeJSONKeepsNumberLiterals(t *testing.T) {
	testlog.Start(t)
	got := Decode(`[{"name":"stone-furnace","position":{"x":10.5,"y":-3}}]`)
	require.Equal(t, KindSuccess, got.Kind)
	list, ok := got.Value.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	pos := list[0].(map[string]any)["position"].(map[string]any)
	assert.Equal(t, json.Number("10.5"), pos["x"])
	assert.Equal(t, json.Number("-3"), pos["y"])
}

func TestDecodeJSONBeatsPrefixes(t *testing.T) {
	testlog.Start(t)
	got := Decode(`"Failed: quoted"`)
	assert.Equal(t, Success("Failed: quoted"), got)
}

func TestPassthroughClassification(t *testing.T) {
	testlog.Start(t)
	assert.True(t, errors.Is(Decode("???").Err(), ErrDecodeAmbiguous))
	assert.NoError(t, Decode("Failed: x").Err())
	assert.Equal(t, "passthrough", KindPassthrough.String())
}

func TestParsePosition(t *testing.T) {
	testlog.Start(t)
	got, err := ParsePosition("{x = 12.5, y = -3}")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"x": 12.5, "y": -3}, got)

	got, err = ParsePosition("  x=1,y=2 ")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"x": 1, "y": 2}, got)
}

func TestParsePositionRejectsMalformed(t *testing.T) {
	testlog.Start(t)
	for _, raw := range []string{
		"",
		"{}",
		"{x = 1, y}",
		"{x = 1 = 2}",
		"{= 1}",
		"{x = abc}",
		"{x = 1, y = {z = 2}}",
		"{x = 1, y = 2",
		"{x = NaN}",
	} {
		t.Run(raw, func(t *testing.T) {
			got, err := ParsePosition(raw)
			assert.ErrorIs(t, err, ErrMalformedPosition)
			assert.Nil(t, got)
		})
	}
}
