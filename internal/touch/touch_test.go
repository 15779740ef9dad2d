package touch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiny-dfr/tiny-dfr/internal/layer"
	"github.com/tiny-dfr/tiny-dfr/internal/widget"
)

const (
	width  = 2008
	height = 60
)

type keyEvent struct {
	code    int
	pressed bool
}

type recorder struct {
	events []keyEvent
	err    error
}

func (r *recorder) Emit(code int, pressed bool) error {
	r.events = append(r.events, keyEvent{code, pressed})
	return r.err
}

// twoLayers builds a primary layer with keys 1..3 and a function layer
// with keys 11..13.
func twoLayers(t *testing.T) []*layer.Layer {
	t.Helper()
	build := func(base int) *layer.Layer {
		ws := []widget.Widget{
			widget.NewText("a", base+1),
			widget.NewText("b", base+2),
			widget.NewText("c", base+3),
		}
		l, err := layer.New(ws, nil)
		require.NoError(t, err)
		return l
	}
	return []*layer.Layer{build(0), build(10)}
}

func TestTable(t *testing.T) {
	tab := NewTable()
	_, replaced := tab.Begin(3, Session{Layer: 0, Widget: 1})
	assert.False(t, replaced)
	tab.Begin(1, Session{Layer: 1, Widget: 0})

	prev, replaced := tab.Begin(3, Session{Layer: 0, Widget: 2})
	assert.True(t, replaced)
	assert.Equal(t, Session{Layer: 0, Widget: 1}, prev)
	assert.Equal(t, 2, tab.Len())
	assert.Equal(t, []int{1, 3}, tab.Slots())

	s, ok := tab.End(3)
	require.True(t, ok)
	assert.Equal(t, 2, s.Widget)
	_, ok = tab.End(3)
	assert.False(t, ok)

	tab.Clear()
	assert.Zero(t, tab.Len())
}

func TestPressAndRelease(t *testing.T) {
	layers := twoLayers(t)
	rec := &recorder{}
	r := NewRouter(rec, width, height)

	require.NoError(t, r.Down(layers, 0, 0, 100, 30))
	assert.True(t, layers[0].Widget(0).Active())
	require.NoError(t, r.Motion(layers, 0, 120, 31))
	require.NoError(t, r.Up(layers, 0))

	assert.Equal(t, []keyEvent{{1, true}, {1, false}}, rec.events)
	assert.Zero(t, r.Sessions().Len())
}

func TestSlideOffEmitsOneKeyUp(t *testing.T) {
	layers := twoLayers(t)
	rec := &recorder{}
	r := NewRouter(rec, width, height)

	require.NoError(t, r.Down(layers, 0, 0, 100, 30))
	// Into the gap, then over the neighbour, then further.
	for _, x := range []float64{660, 700, 900, 1200} {
		require.NoError(t, r.Motion(layers, 0, x, 30))
	}
	require.NoError(t, r.Up(layers, 0))

	assert.Equal(t, []keyEvent{{1, true}, {1, false}}, rec.events)
	assert.False(t, layers[0].Widget(1).Active(), "hovered widget stays idle")
}

func TestSlideBackPressesAgain(t *testing.T) {
	layers := twoLayers(t)
	rec := &recorder{}
	r := NewRouter(rec, width, height)

	require.NoError(t, r.Down(layers, 0, 0, 100, 30))
	require.NoError(t, r.Motion(layers, 0, 100, 59))
	require.NoError(t, r.Motion(layers, 0, 100, 30))

	assert.Equal(t, []keyEvent{{1, true}, {1, false}, {1, true}}, rec.events)
}

func TestSessionSurvivesLayerSwitch(t *testing.T) {
	layers := twoLayers(t)
	rec := &recorder{}
	r := NewRouter(rec, width, height)

	require.NoError(t, r.Down(layers, 0, 0, 100, 30))
	// The function layer becomes active while the finger is down.
	require.NoError(t, r.Down(layers, 1, 1, 1900, 30))
	require.NoError(t, r.Up(layers, 0))
	require.NoError(t, r.Up(layers, 1))

	assert.Equal(t, []keyEvent{{1, true}, {13, true}, {1, false}, {13, false}}, rec.events)
	assert.False(t, layers[0].Widget(0).Active())
}

func TestUpWithoutDownIsNoop(t *testing.T) {
	layers := twoLayers(t)
	rec := &recorder{}
	r := NewRouter(rec, width, height)

	require.NoError(t, r.Up(layers, 4))
	require.NoError(t, r.Motion(layers, 4, 100, 30))
	assert.Empty(t, rec.events)
}

func TestDownInGapStartsNothing(t *testing.T) {
	layers := twoLayers(t)
	rec := &recorder{}
	r := NewRouter(rec, width, height)

	require.NoError(t, r.Down(layers, 0, 0, 665, 30))
	assert.Zero(t, r.Sessions().Len())
	assert.Empty(t, rec.events)
}

func TestReusedSlotReleasesPrevious(t *testing.T) {
	layers := twoLayers(t)
	rec := &recorder{}
	r := NewRouter(rec, width, height)

	require.NoError(t, r.Down(layers, 0, 2, 100, 30))
	require.NoError(t, r.Down(layers, 0, 2, 1900, 30))

	assert.Equal(t, []keyEvent{{1, true}, {1, false}, {3, true}}, rec.events)
	assert.Equal(t, 1, r.Sessions().Len())
}

func TestEmitErrorPropagates(t *testing.T) {
	layers := twoLayers(t)
	boom := errors.New("uinput gone")
	r := NewRouter(&recorder{err: boom}, width, height)

	err := r.Down(layers, 0, 0, 100, 30)
	assert.ErrorIs(t, err, boom)
}
