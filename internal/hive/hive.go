// Package hive generates and validates CodeHive identifiers: room
// codes and per-session device ids.
package hive

import (
	"fmt"
	"regexp"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// codeAlphabet is the 31-character room-code alphabet. Ambiguous
// characters (I, L, O, 0, 1) are excluded.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// deviceAlphabet is the URL-safe alphabet used for device ids.
const deviceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

var roomCodeRe = regexp.MustCompile(`^HIVE-[ABCDEFGHJKMNPQRSTUVWXYZ23456789]{6}$`)

// GenerateRoomCode returns a fresh room code of the form HIVE-XXXXXX.
// The suffix is drawn from a CSPRNG via nanoid.
func GenerateRoomCode() string {
	suffix, err := gonanoid.Generate(codeAlphabet, 6)
	if err != nil {
		panic(fmt.Sprintf("generate room code: %v", err))
	}
	return "HIVE-" + suffix
}

// IsValidRoomCode reports whether s is a well-formed room code.
// Matching is case-sensitive upper.
func IsValidRoomCode(s string) bool {
	return roomCodeRe.MatchString(s)
}

// GenerateDeviceID returns a 16-character URL-safe device id. Device
// ids are per agent session, not per machine.
func GenerateDeviceID() string {
	id, err := gonanoid.Generate(deviceAlphabet, 16)
	if err != nil {
		panic(fmt.Sprintf("generate device id: %v", err))
	}
	return id
}
