package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Filter is the resampling kernel used when scaling. The zero value is
// FilterNearest.
type Filter int

const (
	FilterNearest Filter = iota
	FilterBilinear
	FilterBicubic
	FilterLanczos
)

var filterNames = [...]string{
	FilterNearest:  "NEAREST",
	FilterBilinear: "BILINEAR",
	FilterBicubic:  "BICUBIC",
	FilterLanczos:  "LANCZOS",
}

// UnknownFilterError is returned by ParseFilter for names outside the
// supported set. It is a warning: the accompanying Filter is usable.
type UnknownFilterError struct {
	Name string
}

func (e *UnknownFilterError) Error() string {
	return fmt.Sprintf("unknown resample filter %q, using NEAREST", e.Name)
}

// ParseFilter resolves a filter name case-insensitively. Unknown names
// yield FilterNearest together with an *UnknownFilterError.
func ParseFilter(name string) (Filter, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for f, n := range filterNames {
		if n == upper {
			return Filter(f), nil
		}
	}
	return FilterNearest, &UnknownFilterError{Name: name}
}

func (f Filter) String() string {
	if f < 0 || int(f) >= len(filterNames) {
		return fmt.Sprintf("Filter(%d)", int(f))
	}
	return filterNames[f]
}

func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON rejects unknown names instead of silently falling back,
// since a message carrying one was not produced by ParseFilter.
func (f *Filter) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return fmt.Errorf("failed to unmarshal filter: %w", err)
	}
	parsed, err := ParseFilter(name)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
