package gaze

import "slices"

// AddRoot registers root for hit testing. Roots added later are tried
// first, so overlays shadow what they cover. Adding the first root
// subscribes to the input source.
func (p *Pointer) AddRoot(root Element) {
	if slices.Contains(p.roots, root) {
		return
	}
	p.roots = slices.Insert(p.roots, 0, root)
	if len(p.roots) == 1 {
		p.shuttingDown = false
		p.subscribe()
	}
}

// RemoveRoot unregisters root. Removing the last root unsubscribes from
// the input source, stops the eyes-off timer and resets all tracking.
func (p *Pointer) RemoveRoot(root Element) {
	i := slices.Index(p.roots, root)
	if i < 0 {
		return
	}
	p.roots = slices.Delete(p.roots, i, i+1)
	if len(p.roots) > 0 {
		return
	}
	p.shuttingDown = true
	p.cursor.IsEntered = false
	p.unsubscribe()
	p.stopEyesOff()
	p.Reset()
}

// Roots returns the registered roots, newest first.
func (p *Pointer) Roots() []Element {
	return slices.Clone(p.roots)
}

// InputHandler returns the handler the pointer subscribes to its input
// source with. Hosts without an InputSource can feed it directly.
func (p *Pointer) InputHandler() InputHandler {
	return inputHandler{p: p}
}

func (p *Pointer) subscribe() {
	if p.source == nil || p.sourceSub != nil {
		return
	}
	sub := p.source.Subscribe(p.InputHandler())
	p.sourceSub = &sub
}

func (p *Pointer) unsubscribe() {
	if p.sourceSub == nil {
		return
	}
	p.sourceSub.Cancel()
	p.sourceSub = nil
}

type inputHandler struct {
	p *Pointer
}

// GazeEntered after an exit with an earlier timestamp than the last sample
// means the tracker clock started over.
func (h inputHandler) GazeEntered(timestamp uint64) {
	h.p.log.Debug("gaze entered", "timestamp", timestamp)
	if !h.p.cursor.IsEntered && !h.p.shuttingDown {
		if at := TicksToDuration(timestamp); at < h.p.lastTimestamp {
			h.p.restartClock(at)
		}
	}
	h.p.cursor.IsEntered = true
}

func (h inputHandler) GazeMoved(points []GazePoint) {
	if h.p.shuttingDown {
		return
	}
	for _, pt := range points {
		if pt.Position == nil {
			h.p.log.Debug("sample without position dropped", "timestamp", pt.Timestamp)
			h.p.observer.SampleDropped("no_position")
			continue
		}
		h.p.cursor.IsEntered = true
		if err := h.p.ProcessGazePoint(TicksToDuration(pt.Timestamp), *pt.Position); err != nil {
			h.p.log.Debug("sample rejected", "timestamp", pt.Timestamp, "error", err)
		}
	}
}

func (h inputHandler) GazeExited(timestamp uint64) {
	h.p.log.Debug("gaze exited", "timestamp", timestamp)
	h.p.cursor.IsEntered = false
}
