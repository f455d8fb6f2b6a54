// Package core provides the shared types for uibridge: platform kinds,
// element bounds and the error taxonomy used across the location and
// interaction layers.
package core

import "strings"

// Platform identifies the automation backend attribute schema.
type Platform string

// Platform values
const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformUnknown Platform = ""
)

// ParsePlatform normalizes a platformName capability value.
// Anything other than iOS/Android maps to PlatformUnknown.
func ParsePlatform(name string) Platform {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ios":
		return PlatformIOS
	case "android":
		return PlatformAndroid
	default:
		return PlatformUnknown
	}
}

// Bounds represents element position and size in screen pixels.
// The zero value (and any non-positive size) marks an element that
// could not be measured; see Valid.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the center point of the bounds.
func (b Bounds) Center() (int, int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Contains checks if a point is within the bounds.
func (b Bounds) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.Width && y >= b.Y && y < b.Y+b.Height
}

// Valid reports whether the bounds describe an on-screen rectangle:
// positive size and non-negative origin. Parsing failures degrade to
// invalid bounds instead of errors, which keeps a single bad node from
// aborting a whole snapshot scan.
func (b Bounds) Valid() bool {
	return b.Width > 0 && b.Height > 0 && b.X >= 0 && b.Y >= 0
}

// Area returns the covered surface in square pixels.
func (b Bounds) Area() int {
	return b.Width * b.Height
}
