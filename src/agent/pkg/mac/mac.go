// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package mac provides link-layer address helpers shared by the registry,
// the bus client and the shaping backends.
package mac

import (
	"errors"
	"fmt"
	"strconv"
)

// Addr is a 6 byte link-layer address. The zero value marks an empty
// client slot and is never a valid client address.
type Addr [6]byte

// Zero is the empty-slot sentinel.
var Zero Addr

var (
	// ErrInvalidAddress is returned for strings that are not aa:bb:cc:dd:ee:ff
	ErrInvalidAddress = errors.New("invalid MAC address")

	// ErrZeroAddress is returned when a parsed address is all zeroes
	ErrZeroAddress = errors.New("zero MAC address")
)

// Parse parses the colon separated hex form used by hostapd.
// Both upper and lower case digits are accepted.
func Parse(s string) (Addr, error) {
	var a Addr

	if len(s) != 17 {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	for i := 0; i < 6; i++ {
		off := i * 3
		if i < 5 && s[off+2] != ':' {
			return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}

		b, err := strconv.ParseUint(s[off:off+2], 16, 8)
		if err != nil {
			return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		a[i] = byte(b)
	}

	return a, nil
}

// ParseClient parses s and additionally rejects the zero address,
// which can never be stored in a client slot.
func ParseClient(s string) (Addr, error) {
	a, err := Parse(s)
	if err != nil {
		return a, err
	}
	if a.IsZero() {
		return a, fmt.Errorf("%w: %q", ErrZeroAddress, s)
	}
	return a, nil
}

// IsZero reports whether a is the empty-slot sentinel.
func (a Addr) IsZero() bool {
	return a == Zero
}

// String returns the lower case colon separated form.
func (a Addr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		a[0], a[1], a[2], a[3], a[4], a[5])
}

// MarshalText implements encoding.TextMarshaler so addresses render as
// strings in API responses.
func (a Addr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Addr) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
