// Package input turns SDL2 events into globe camera controls.
package input

import (
	"github.com/veandco/go-sdl2/sdl"
)

// EventType identifies a processed event.
type EventType int

const (
	EventNone EventType = iota
	EventQuit
	EventWindowResize
	EventKeyDown
	EventKeyUp
	EventMouseDrag
	EventMouseWheel
)

// Event represents a processed input event.
type Event struct {
	Type   EventType
	Key    sdl.Scancode
	Width  int
	Height int
	DX, DY float32
	Wheel  float32
	Button uint8
}

// Camera is the part of the globe camera the controls drive.
type Camera interface {
	HandleDrag(dx, dy float32)
	HandleRotate(heading, tilt float32)
	HandleZoom(delta float32)
	HandleMovement(forward, right, up float32)
}

// Input polls SDL events once per frame.
type Input struct {
	events  []Event
	buttons map[uint8]bool
}

// New creates a new input handler.
func New() *Input {
	return &Input{
		events:  make([]Event, 0, 16),
		buttons: make(map[uint8]bool),
	}
}

// Update polls SDL events. It returns true when the window should close.
func (i *Input) Update() bool {
	i.events = i.events[:0]

	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			i.events = append(i.events, Event{Type: EventQuit})
			return true

		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
				i.events = append(i.events, Event{
					Type:   EventWindowResize,
					Width:  int(e.Data1),
					Height: int(e.Data2),
				})
			}

		case *sdl.KeyboardEvent:
			typ := EventKeyUp
			if e.Type == sdl.KEYDOWN {
				typ = EventKeyDown
			}
			if e.Keysym.Scancode == sdl.SCANCODE_ESCAPE && typ == EventKeyDown {
				i.events = append(i.events, Event{Type: EventQuit})
				return true
			}
			i.events = append(i.events, Event{Type: typ, Key: e.Keysym.Scancode})

		case *sdl.MouseButtonEvent:
			i.buttons[e.Button] = e.Type == sdl.MOUSEBUTTONDOWN

		case *sdl.MouseMotionEvent:
			for _, b := range []uint8{sdl.BUTTON_LEFT, sdl.BUTTON_RIGHT} {
				if i.buttons[b] {
					i.events = append(i.events, Event{
						Type:   EventMouseDrag,
						DX:     float32(e.XRel),
						DY:     float32(e.YRel),
						Button: b,
					})
				}
			}

		case *sdl.MouseWheelEvent:
			i.events = append(i.events, Event{Type: EventMouseWheel, Wheel: float32(e.Y)})
		}
	}
	return false
}

// Events returns the events from the last Update.
func (i *Input) Events() []Event {
	return i.events
}

// IsKeyPressed checks if a specific key was pressed this frame.
func (i *Input) IsKeyPressed(scancode sdl.Scancode) bool {
	for _, e := range i.events {
		if e.Type == EventKeyDown && e.Key == scancode {
			return true
		}
	}
	return false
}

// Drive applies this frame's events and held keys to cam. Left drag pans,
// right drag turns and tilts, the wheel zooms, WASD moves and QE climbs.
func (i *Input) Drive(cam Camera) {
	for _, e := range i.events {
		switch e.Type {
		case EventMouseDrag:
			if e.Button == sdl.BUTTON_LEFT {
				cam.HandleDrag(e.DX, e.DY)
			} else {
				cam.HandleRotate(e.DX, e.DY)
			}
		case EventMouseWheel:
			cam.HandleZoom(e.Wheel)
		}
	}

	keys := sdl.GetKeyboardState()
	axis := func(pos, neg sdl.Scancode) float32 {
		return float32(keys[pos]) - float32(keys[neg])
	}
	forward := axis(sdl.SCANCODE_W, sdl.SCANCODE_S)
	right := axis(sdl.SCANCODE_D, sdl.SCANCODE_A)
	up := axis(sdl.SCANCODE_E, sdl.SCANCODE_Q)
	if forward != 0 || right != 0 || up != 0 {
		cam.HandleMovement(forward, right, up)
	}
}
