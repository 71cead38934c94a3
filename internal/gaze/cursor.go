package gaze

// DefaultCursorRadius is the cursor radius in pixels when none is set.
const DefaultCursorRadius = 6

// Cursor is the gaze cursor state. Drawing it is left to the host.
type Cursor struct {
	Position  Point
	IsEntered bool
	IsVisible bool
	Radius    int
}

func newCursor() *Cursor {
	return &Cursor{IsVisible: true, Radius: DefaultCursorRadius}
}

// LoadSettings applies GazeCursor.* keys.
func (c *Cursor) LoadSettings(settings Settings) {
	if v, ok := settings.Int(SettingCursorRadius); ok {
		c.Radius = int(v)
	}
	if v, ok := settings.Bool(SettingCursorVisibility); ok {
		c.IsVisible = v
	}
}
