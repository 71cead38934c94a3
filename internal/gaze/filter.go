package gaze

import "time"

// GazeSample is a position with its timestamp.
type GazeSample struct {
	Position  Point
	Timestamp time.Duration
}

// Filter smooths raw samples before they are resolved to targets.
type Filter interface {
	Update(s GazeSample) GazeSample
	LoadSettings(settings Settings)
}

// NullFilter passes samples through unchanged.
type NullFilter struct{}

// Update returns s.
func (NullFilter) Update(s GazeSample) GazeSample { return s }

// LoadSettings does nothing.
func (NullFilter) LoadSettings(Settings) {}
