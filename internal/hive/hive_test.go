package hive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRoomCodeFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := GenerateRoomCode()
		assert.True(t, IsValidRoomCode(code), "generated code %q must validate", code)
	}
}

func TestIsValidRoomCode(t *testing.T) {
	valid := []string{"HIVE-ABCDEF", "HIVE-234567", "HIVE-ZZZZZZ"}
	for _, c := range valid {
		assert.True(t, IsValidRoomCode(c), c)
	}

	invalid := []string{
		"",
		"HIVE-",
		"HIVE-ABCDE",    // too short
		"HIVE-ABCDEFG",  // too long
		"hive-ABCDEF",   // lowercase prefix
		"HIVE-abcdef",   // lowercase suffix
		"HIVE-ABCDE0",   // 0 not in alphabet
		"HIVE-ABCDE1",   // 1 not in alphabet
		"HIVE-ABCDEI",   // I not in alphabet
		"HIVE-ABCDEL",   // L not in alphabet
		"HIVE-ABCDEO",   // O not in alphabet
		"XHIVE-ABCDEF",  // junk prefix
		"HIVE-ABCDEF\n", // trailing junk
	}
	for _, c := range invalid {
		assert.False(t, IsValidRoomCode(c), "%q must not validate", c)
	}
}

func TestGenerateDeviceID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := GenerateDeviceID()
		assert.Len(t, id, 16)
		assert.False(t, strings.ContainsAny(id, " /+=\n"), "id must be URL-safe: %q", id)
		assert.False(t, seen[id], "ids must not repeat")
		seen[id] = true
	}
}
