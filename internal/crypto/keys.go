package crypto

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for deriving the room key from its passphrase.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // KB
	argon2Threads = 4
)

// DeriveRoomKey derives the 32-byte AES key for a room from its shared
// passphrase. The room id doubles as salt so two rooms with the same
// passphrase still get distinct keys. The server never sees either input.
func DeriveRoomKey(passphrase, roomID string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if roomID == "" {
		return nil, fmt.Errorf("room id cannot be empty")
	}

	return argon2.IDKey([]byte(passphrase), []byte(roomID), argon2Time, argon2Memory, argon2Threads, KeySize), nil
}
