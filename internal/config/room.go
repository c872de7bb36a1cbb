package config

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

// RoomLength is the fixed number of digits in a room name.
const RoomLength = 7

var roomPattern = regexp.MustCompile(`^[0-9]{7}$`)

// ValidRoom reports whether room has the namespace shape the relay accepts.
func ValidRoom(room string) bool {
	return roomPattern.MatchString(room)
}

// NewRoom returns a random numeric room name of RoomLength digits.
func NewRoom() string {
	digits := make([]byte, RoomLength)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}

// EnsureRoom keeps a valid configured room or replaces it with a fresh one.
// It reports whether a new room was generated.
func (c *Config) EnsureRoom() bool {
	if ValidRoom(c.Room) {
		return false
	}
	c.Room = NewRoom()
	return true
}
