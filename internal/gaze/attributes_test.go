package gaze

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementStateDelayInheritance(t *testing.T) {
	f := newFixture(t)
	leaf := f.button.add("leaf", 110, 110, 120, 120, false)

	assert.Equal(t, time.Second, f.p.ElementStateDelay(leaf, Dwell))

	f.p.SetElementStateDelay(f.button, Dwell, ms(700))
	assert.Equal(t, ms(700), f.p.ElementStateDelay(f.button, Dwell))
	assert.Equal(t, ms(700), f.p.ElementStateDelay(leaf, Dwell))
	assert.Equal(t, time.Second, f.p.ElementStateDelay(f.other, Dwell))

	f.p.ClearElementStateDelay(f.button, Dwell)
	assert.Equal(t, time.Second, f.p.ElementStateDelay(leaf, Dwell))

	f.p.ClearElementStateDelay(f.root, Dwell)
	assert.Equal(t, DefaultDwellDelay, f.p.ElementStateDelay(leaf, Dwell))
}

func TestUnsetDurationIsIgnored(t *testing.T) {
	f := newFixture(t)

	f.p.Store().SetValue(f.button, KeyExit, UnsetDuration)
	assert.Equal(t, ms(500), f.p.ElementStateDelay(f.button, Exit))

	f.p.Store().SetValue(f.button, KeyExit, "not a duration")
	assert.Equal(t, ms(500), f.p.ElementStateDelay(f.button, Exit))
}

func TestHistoryWindowGrowsWithDelays(t *testing.T) {
	f := newFixture(t)
	before := f.p.MaxHistoryTime()

	f.p.SetElementStateDelay(f.button, DwellRepeat, 5*time.Second)
	assert.Equal(t, 10*time.Second, f.p.MaxHistoryTime())

	// shorter delays never shrink the window
	f.p.SetElementStateDelay(f.other, Dwell, ms(100))
	assert.Equal(t, 10*time.Second, f.p.MaxHistoryTime())
	assert.Greater(t, f.p.MaxHistoryTime(), before)
}

func TestStateWithoutDelayPanics(t *testing.T) {
	f := newFixture(t)
	assert.Panics(t, func() { f.p.ElementStateDelay(f.button, PreEnter) })
	assert.Panics(t, func() { DefaultDelays().For(PreEnter) })
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	n := newTestNode("n", 0, 0, 1, 1)

	_, ok := s.Value(n, KeyFixation)
	assert.False(t, ok)
	_, ok = s.Value(nil, KeyFixation)
	assert.False(t, ok)

	s.SetValue(n, KeyFixation, ms(10))
	v, ok := s.Value(n, KeyFixation)
	require.True(t, ok)
	assert.Equal(t, ms(10), v)

	s.ClearValue(n, KeyFixation)
	_, ok = s.Value(n, KeyFixation)
	assert.False(t, ok)
	assert.Empty(t, s.values)

	s.ClearValue(n, KeyDwell)
}

func TestEnablementAndRepeatAccessors(t *testing.T) {
	s := NewMemoryStore()
	n := newTestNode("n", 0, 0, 1, 1)

	assert.Equal(t, Inherited, GazeEnabled(s, n))
	SetGazeEnabled(s, n, Disabled)
	assert.Equal(t, Disabled, GazeEnabled(s, n))

	assert.Zero(t, MaxRepeatCount(s, n))
	SetMaxRepeatCount(s, n, 3)
	assert.Equal(t, 3, MaxRepeatCount(s, n))

	assert.Nil(t, ElementEventsOf(s, n))
}

func TestParseEnablement(t *testing.T) {
	tests := []struct {
		input   string
		want    Enablement
		wantErr bool
	}{
		{"", Inherited, false},
		{"inherited", Inherited, false},
		{"enabled", Enabled, false},
		{"disabled", Disabled, false},
		{"sometimes", Inherited, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEnablement(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.input != "" {
				assert.Equal(t, tt.input, got.String())
			}
		})
	}
}

func TestStateNames(t *testing.T) {
	for s := Exit; s <= DwellRepeat; s++ {
		parsed, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	assert.Equal(t, "PointerState(42)", PointerState(42).String())
	_, err := ParseState("Hover")
	assert.Error(t, err)
}
