package session

import (
	"fmt"
	"time"
)

// PointerKind is the type of a framebuffer pointer event.
type PointerKind string

const (
	PointerTap  PointerKind = "tap"
	PointerDown PointerKind = "down"
	PointerMove PointerKind = "move"
	PointerUp   PointerKind = "up"
)

func (k PointerKind) valid() bool {
	switch k {
	case PointerTap, PointerDown, PointerMove, PointerUp:
		return true
	}
	return false
}

// Framebuffer geometry of the synthetic device screen.
const (
	FramebufferWidth  = 1080
	FramebufferHeight = 2340
)

// Pointer is one pointer event in framebuffer coordinates.
type Pointer struct {
	X    int         `json:"x"`
	Y    int         `json:"y"`
	Kind PointerKind `json:"kind"`
}

// Validate checks the event kind and that it lies on the screen.
func (p Pointer) Validate() error {
	if !p.Kind.valid() {
		return fmt.Errorf("%w: unknown pointer kind %q", ErrInvalidRequest, p.Kind)
	}
	if p.X < 0 || p.Y < 0 || p.X >= FramebufferWidth || p.Y >= FramebufferHeight {
		return fmt.Errorf("%w: pointer (%d,%d) outside %dx%d", ErrInvalidRequest, p.X, p.Y, FramebufferWidth, FramebufferHeight)
	}
	return nil
}

func (p Pointer) String() string {
	return fmt.Sprintf("%s at (%d,%d)", p.Kind, p.X, p.Y)
}

// frameLine describes the n-th synthetic frame update.
func frameLine(n uint64, at time.Time) string {
	return fmt.Sprintf("frame %d %dx%d @ %s", n, FramebufferWidth, FramebufferHeight, at.UTC().Format(time.TimeOnly))
}
