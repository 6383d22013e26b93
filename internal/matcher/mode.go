package matcher

import (
	"fmt"
	"strings"
)

// Library matching policy.
type Mode int

const (
	Normal Mode = iota // Newest API version wins; ties go to the device.
	Image              // The image copy wins whenever it exists.
	Host               // The device copy always wins.
)

var modeNames = [...]string{
	Normal: "normal",
	Image:  "image",
	Host:   "host",
}

// Returns all mode names, in declaration order.
func ModeNames() []string {
	return modeNames[:]
}

// Parses a mode name. Matching is case-sensitive.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return Mode(m), nil
		}
	}
	return 0, fmt.Errorf("%w: %q (want one of %s)", ErrInvalidMode, s, strings.Join(modeNames[:], ", "))
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Where a library is taken from.
type Origin int

const (
	FromImage Origin = iota // Copy shipped in the image rootfs.
	FromHost                // Copy installed on the device, bind mounted.
)

func (o Origin) String() string {
	if o == FromHost {
		return "host"
	}
	return "image"
}

func (o Origin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Origin) UnmarshalText(text []byte) error {
	switch string(text) {
	case "image":
		*o = FromImage
	case "host":
		*o = FromHost
	default:
		return fmt.Errorf("unknown library origin %q", text)
	}
	return nil
}
