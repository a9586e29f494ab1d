// Package apiversion models the "major.minor" API version carried by every
// request envelope.
package apiversion

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Version is an API version. Versions are totally ordered by (Major, Minor).
type Version struct {
	Major int
	Minor int
}

// New creates a Version.
func New(major, minor int) Version {
	return Version{Major: major, Minor: minor}
}

// Parse parses a "major.minor" string. Both parts must be non-negative
// decimal integers without sign or leading zeros ("1.10" is fine, "01.1" is not).
func Parse(s string) (Version, error) {
	majorStr, minorStr, ok := strings.Cut(s, ".")
	if !ok {
		return Version{}, fmt.Errorf("api version %q: expected \"major.minor\"", s)
	}
	major, err := parsePart(majorStr)
	if err != nil {
		return Version{}, fmt.Errorf("api version %q: major: %w", s, err)
	}
	minor, err := parsePart(minorStr)
	if err != nil {
		return Version{}, fmt.Errorf("api version %q: minor: %w", s, err)
	}
	return Version{Major: major, Minor: minor}, nil
}

// MustParse is like Parse but panics on error.
// Use only for version literals known at build time.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func parsePart(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("leading zero in %q", s)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
	}
	return strconv.Atoi(s)
}

// String returns the "major.minor" form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1, 0 or +1 depending on whether v is lower than, equal
// to, or higher than other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major < other.Major:
		return -1
	case v.Major > other.Major:
		return 1
	case v.Minor < other.Minor:
		return -1
	case v.Minor > other.Minor:
		return 1
	}
	return 0
}

// Less reports whether v is lower than other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// MarshalJSON encodes the version as a "major.minor" string.
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON decodes a "major.minor" string.
func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("api version: %w", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
