package gaze

import (
	"strconv"
	"time"
)

// Setting keys understood by Pointer.LoadSettings and Cursor.LoadSettings.
// Delay values are integer counts of hardware ticks (microseconds).
const (
	SettingFixationDelay    = "GazePointer.FixationDelay"
	SettingDwellDelay       = "GazePointer.DwellDelay"
	SettingRepeatDelay      = "GazePointer.RepeatDelay"
	SettingEnterExitDelay   = "GazePointer.EnterExitDelay"
	SettingGazeIdleTime     = "GazePointer.GazeIdleTime"
	SettingCursorRadius     = "GazeCursor.CursorRadius"
	SettingCursorVisibility = "GazeCursor.CursorVisibility"
)

// Settings is a flat key-value configuration. Missing keys leave the
// current values untouched.
type Settings map[string]any

// Int returns the integer value of key. Numeric values of any width and
// decimal strings are accepted.
func (s Settings) Int(key string) (int64, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Bool returns the boolean value of key.
func (s Settings) Bool(key string) (bool, bool) {
	v, ok := s[key]
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	default:
		return false, false
	}
}

// Ticks returns the value of key converted from hardware ticks.
func (s Settings) Ticks(key string) (time.Duration, bool) {
	n, ok := s.Int(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * TickDuration, true
}
