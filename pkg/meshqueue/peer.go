package meshqueue

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ShortIDLen is the number of characters of a PeerID shown in logs.
const ShortIDLen = 4

// Peer identity errors.
var (
	ErrEmptyPeerID   = errors.New("empty peer id")
	ErrInvalidPeerID = errors.New("invalid peer id")
)

// PeerID is a stable identity of a remote node: its public key in hex.
type PeerID string

// ParsePeerID validates a hex-encoded compressed secp256k1 public key and
// returns it in canonical lower-case form.
func ParsePeerID(s string) (PeerID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", ErrEmptyPeerID
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	if len(raw) != secp256k1.PubKeyBytesLenCompressed {
		return "", fmt.Errorf("%w: %d bytes, want %d", ErrInvalidPeerID, len(raw), secp256k1.PubKeyBytesLenCompressed)
	}
	if _, err := secp256k1.ParsePubKey(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	return PeerID(s), nil
}

// Short returns the truncated form used in log lines.
func (p PeerID) Short() string {
	if len(p) <= ShortIDLen {
		return string(p)
	}
	return string(p[:ShortIDLen])
}

// String returns the full identity.
func (p PeerID) String() string {
	return string(p)
}
