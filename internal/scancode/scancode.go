// Package scancode produces and reads the payload printed in a book's QR code.
//
// A payload looks like LIB:<uuid>:<check>, where check is the first eight hex
// characters of the BLAKE2b-256 digest of the uuid. Librarians may also type
// the bare uuid by hand, so Decode accepts both forms.
package scancode

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	prefix      = "LIB"
	separator   = ":"
	checkLength = 8
)

var ErrInvalidCode = errors.New("invalid scan code")

// Encode returns the scannable payload for a book id.
func Encode(id uuid.UUID) string {
	return prefix + separator + id.String() + separator + checksum(id)
}

// Decode extracts the book id from a payload or a bare uuid.
func Decode(code string) (uuid.UUID, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return uuid.Nil, ErrInvalidCode
	}

	if !strings.HasPrefix(strings.ToUpper(code), prefix+separator) {
		id, err := uuid.Parse(code)
		if err != nil || id == uuid.Nil {
			return uuid.Nil, ErrInvalidCode
		}
		return id, nil
	}

	parts := strings.Split(code, separator)
	if len(parts) != 3 {
		return uuid.Nil, ErrInvalidCode
	}

	id, err := uuid.Parse(parts[1])
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidCode
	}
	if !strings.EqualFold(parts[2], checksum(id)) {
		return uuid.Nil, ErrInvalidCode
	}
	return id, nil
}

func checksum(id uuid.UUID) string {
	sum := blake2b.Sum256(id[:])
	return hex.EncodeToString(sum[:])[:checkLength]
}
