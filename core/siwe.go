package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	siweHeaderSuffix = " wants you to sign in with your Ethereum account:"
	siweTimeLayout   = "2006-01-02T15:04:05.000Z07:00"

	// MinNonceLength is the shortest nonce a sign-in message may carry
	MinNonceLength = 8
)

// SignInMessage is a Sign-In-With-Ethereum (EIP-4361) challenge
type SignInMessage struct {
	Scheme         string
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
	RequestID      string
	Resources      []string
}

// ParseSignInMessage parses the text form of a sign-in message.
// All failures wrap ErrMalformedMessage.
func ParseSignInMessage(raw string) (*SignInMessage, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return nil, malformed("message too short")
	}

	m := &SignInMessage{}

	origin, ok := strings.CutSuffix(lines[0], siweHeaderSuffix)
	if !ok {
		return nil, malformed("missing sign-in header")
	}
	if scheme, rest, found := strings.Cut(origin, "://"); found {
		m.Scheme = scheme
		origin = rest
	}
	if origin == "" {
		return nil, malformed("empty domain")
	}
	m.Domain = origin

	if !strings.HasPrefix(lines[1], "0x") || !common.IsHexAddress(lines[1]) {
		return nil, malformed("invalid address line")
	}
	m.Address = lines[1]

	i := 2
	for i < len(lines) && lines[i] == "" {
		i++
	}
	if i < len(lines) && !strings.HasPrefix(lines[i], "URI: ") {
		m.Statement = lines[i]
		i++
	}

	seen := make(map[string]bool)
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			continue
		}
		if line == "Resources:" {
			for i+1 < len(lines) && strings.HasPrefix(lines[i+1], "- ") {
				m.Resources = append(m.Resources, strings.TrimPrefix(lines[i+1], "- "))
				i++
			}
			continue
		}

		key, value, found := strings.Cut(line, ": ")
		if !found {
			return nil, malformed(fmt.Sprintf("unexpected line %q", line))
		}
		if seen[key] {
			return nil, malformed(fmt.Sprintf("duplicate field %q", key))
		}
		seen[key] = true

		switch key {
		case "URI":
			m.URI = value
		case "Version":
			m.Version = value
		case "Chain ID":
			id, err := strconv.ParseInt(value, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("chain id %q: %w", value, ErrInvalidChainID)
			}
			m.ChainID = id
		case "Nonce":
			m.Nonce = value
		case "Issued At":
			t, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return nil, malformed("invalid issued-at")
			}
			m.IssuedAt = t
		case "Expiration Time":
			t, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return nil, malformed("invalid expiration time")
			}
			m.ExpirationTime = &t
		case "Not Before":
			t, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return nil, malformed("invalid not-before")
			}
			m.NotBefore = &t
		case "Request ID":
			m.RequestID = value
		default:
			return nil, malformed(fmt.Sprintf("unknown field %q", key))
		}
	}

	switch {
	case m.URI == "":
		return nil, malformed("missing URI")
	case m.Version != "1":
		return nil, malformed("unsupported version")
	case m.ChainID == 0:
		return nil, fmt.Errorf("missing chain id: %w", ErrInvalidChainID)
	case !validNonce(m.Nonce):
		return nil, malformed("invalid nonce field")
	case m.IssuedAt.IsZero():
		return nil, malformed("missing issued-at")
	}

	return m, nil
}

// Format renders the message in the exact text form a wallet signs
func (m *SignInMessage) Format() string {
	var b strings.Builder
	if m.Scheme != "" {
		b.WriteString(m.Scheme + "://")
	}
	b.WriteString(m.Domain + siweHeaderSuffix + "\n")
	b.WriteString(m.Address + "\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "URI: %s\nVersion: %s\nChain ID: %d\nNonce: %s\nIssued At: %s",
		m.URI, m.Version, m.ChainID, m.Nonce, m.IssuedAt.UTC().Format(siweTimeLayout))

	if m.ExpirationTime != nil {
		b.WriteString("\nExpiration Time: " + m.ExpirationTime.UTC().Format(siweTimeLayout))
	}
	if m.NotBefore != nil {
		b.WriteString("\nNot Before: " + m.NotBefore.UTC().Format(siweTimeLayout))
	}
	if m.RequestID != "" {
		b.WriteString("\nRequest ID: " + m.RequestID)
	}
	if len(m.Resources) > 0 {
		b.WriteString("\nResources:")
		for _, r := range m.Resources {
			b.WriteString("\n- " + r)
		}
	}
	return b.String()
}

// ValidAt reports whether t falls inside the message's optional validity window
func (m *SignInMessage) ValidAt(t time.Time) bool {
	if m.ExpirationTime != nil && !t.Before(*m.ExpirationTime) {
		return false
	}
	if m.NotBefore != nil && t.Before(*m.NotBefore) {
		return false
	}
	return true
}

func validNonce(s string) bool {
	if len(s) < MinNonceLength {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

func malformed(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrMalformedMessage)
}
