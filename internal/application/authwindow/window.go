package authwindow

import (
	"context"
	"errors"
	"net/url"
)

var (
	// ErrCrossOrigin is returned by Window.Location while the window shows a
	// page whose address the opener may not read
	ErrCrossOrigin = errors.New("authwindow: window address not readable")
	// ErrWindowClosed is returned once the user has closed the window
	ErrWindowClosed = errors.New("authwindow: window closed")
	// ErrPopupBlocked is returned by Opener.Open when no window could be created
	ErrPopupBlocked = errors.New("authwindow: popup blocked")
)

// Geometry places the consent window on screen
type Geometry struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// Centered returns a width x height window centered on the screen. The
// window never starts off screen.
func Centered(screenWidth, screenHeight, width, height int) Geometry {
	left := (screenWidth - width) / 2
	top := (screenHeight - height) / 2
	return Geometry{Left: max(left, 0), Top: max(top, 0), Width: width, Height: height}
}

// Opener creates top-level consent windows
type Opener interface {
	Open(ctx context.Context, address string, geometry Geometry) (Window, error)
}

// Window is an open consent window
type Window interface {
	// Location returns the current address. It fails with ErrCrossOrigin while
	// the provider's page is shown and with ErrWindowClosed after the user
	// closed the window.
	Location(ctx context.Context) (*url.URL, error)
	// Close closes the window; closing an already closed window is not an error
	Close(ctx context.Context) error
}
