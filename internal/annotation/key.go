// Package annotation holds the client-side annotation state of an editing session:
// message keys, the mark set, the group registry and the divider state machine.
//
// Nothing in this package is safe for concurrent use; callers serialize access
// (see session.Session).
package annotation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedKey is returned when a string is not of the form "<chunk>:<position>".
var ErrMalformedKey = errors.New("malformed message key")

// MessageKey addresses a message by its chunk index and position inside the chunk.
// Keys are positional: they stay valid only while the chunk content is unchanged.
type MessageKey struct {
	Chunk    int
	Position int
}

// KeyOf builds a key. Bounds are the caller's responsibility.
func KeyOf(chunk, position int) MessageKey {
	return MessageKey{Chunk: chunk, Position: position}
}

// String returns the canonical "{chunk}:{position}" form.
func (k MessageKey) String() string {
	return strconv.Itoa(k.Chunk) + ":" + strconv.Itoa(k.Position)
}

// Less orders keys by chunk, then position.
func (k MessageKey) Less(o MessageKey) bool {
	if k.Chunk != o.Chunk {
		return k.Chunk < o.Chunk
	}
	return k.Position < o.Position
}

// ParseKey parses the canonical form. Both parts must be non-negative decimal integers.
func ParseKey(s string) (MessageKey, error) {
	chunkPart, posPart, ok := strings.Cut(s, ":")
	if !ok {
		return MessageKey{}, fmt.Errorf("%w: %q", ErrMalformedKey, s)
	}
	chunk, err := parseIndex(chunkPart)
	if err != nil {
		return MessageKey{}, fmt.Errorf("%w: %q", ErrMalformedKey, s)
	}
	pos, err := parseIndex(posPart)
	if err != nil {
		return MessageKey{}, fmt.Errorf("%w: %q", ErrMalformedKey, s)
	}
	return KeyOf(chunk, pos), nil
}

func parseIndex(s string) (int, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}

func (k MessageKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MessageKey) UnmarshalText(b []byte) error {
	parsed, err := ParseKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
