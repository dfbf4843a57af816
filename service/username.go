package service

import (
	"hash/fnv"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/layer-3/walletauth/core"
)

var adjectives = [...]string{
	"Spicy", "Salty", "Greasy", "Sneaky", "Shadow", "Turbo", "Rugged", "Jaded", "DeFi",
	"Ape", "Wagmi", "Moon", "Bearish", "Bullish", "Degenerate", "Stinky", "Giga", "Lunar",
}

var animals = [...]string{
	"Unicorn", "Llama", "Penguin", "Shark", "Panda", "Narwhal", "Badger", "Crab", "Monkey",
	"Mongoose", "Cobra", "Cheetah", "Falcon", "Otter", "Yak", "Ferret", "Dragon", "Gopher",
}

const (
	MinUsernameLength = 3
	MaxUsernameLength = 64
)

// GenerateUsername derives a username such as 0xStinkyUnicorn8c60 from a wallet
// address. Attempt 0 is the canonical name; later attempts salt the hash.
func GenerateUsername(address string, attempt int) string {
	addr := strings.ToLower(address)

	h := fnv.New32a()
	h.Write([]byte(addr))
	if attempt > 0 {
		h.Write([]byte(":" + strconv.Itoa(attempt)))
	}
	seed := h.Sum32()

	adjective := adjectives[seed%uint32(len(adjectives))]
	animal := animals[(seed>>8)%uint32(len(animals))]

	last4 := addr
	if len(addr) > 4 {
		last4 = addr[len(addr)-4:]
	}
	return "0x" + adjective + animal + last4
}

// ValidateUsername checks a user supplied username and returns it trimmed
func ValidateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return "", core.ErrInvalidUsername
	}
	return username, nil
}
