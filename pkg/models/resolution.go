package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Resolution is a frame size in pixels. It encodes as "WIDTHxHEIGHT" in JSON.
type Resolution struct {
	Width  int
	Height int
}

// Standard broadcast resolutions
var (
	Resolution1080p = Resolution{Width: 1920, Height: 1080}
	Resolution720p  = Resolution{Width: 1280, Height: 720}
	Resolution480p  = Resolution{Width: 854, Height: 480}

	// VerticalResolution is the fixed portrait frame forced by vertical mode
	VerticalResolution = Resolution{Width: 720, Height: 1280}
)

// ParseResolution parses a "WIDTHxHEIGHT" string such as "1280x720"
func ParseResolution(s string) (Resolution, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return Resolution{}, fmt.Errorf("invalid resolution %q: want WIDTHxHEIGHT", s)
	}

	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution width %q: %w", parts[0], err)
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution height %q: %w", parts[1], err)
	}

	res := Resolution{Width: width, Height: height}
	if !res.Valid() {
		return Resolution{}, fmt.Errorf("invalid resolution %q: dimensions must be positive", s)
	}

	return res, nil
}

// String returns the resolution as WIDTHxHEIGHT
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// IsZero reports whether no resolution was set
func (r Resolution) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

// Valid reports whether both dimensions are positive
func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// Portrait reports whether the frame is taller than it is wide
func (r Resolution) Portrait() bool {
	return r.Height > r.Width
}

// MarshalText encodes the resolution as WIDTHxHEIGHT
func (r Resolution) MarshalText() ([]byte, error) {
	if r.IsZero() {
		return []byte{}, nil
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a WIDTHxHEIGHT string; an empty string leaves the zero value
func (r *Resolution) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*r = Resolution{}
		return nil
	}

	parsed, err := ParseResolution(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
