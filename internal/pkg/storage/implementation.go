// Package storage connects a single storage to the levels of a graded
// carrier and gates every access point by the storage content.
package storage

import (
	"strings"

	"github.com/ohowland/mtress/internal/pkg/modelerr"
)

// Implementation selects how access points are gated.
type Implementation int

const (
	// Strict switches access points with one binary per point and step.
	Strict Implementation = iota
	// Flexible interpolates the content between levels with an SOS2 set.
	Flexible
)

func (i Implementation) String() string {
	switch i {
	case Strict:
		return "strict"
	case Flexible:
		return "flexible"
	}
	return "unknown"
}

// ParseImplementation reads "strict" or "flexible", ignoring case.
func ParseImplementation(s string) (Implementation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "flexible":
		return Flexible, nil
	}
	return Strict, modelerr.Configurationf("", "unknown multiplexer implementation %q", s)
}

// Direction of an access point as seen from the storage.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}
