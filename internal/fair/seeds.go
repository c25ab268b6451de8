// Package fair derives game outcomes from a server seed, a client seed and a
// nonce. Every derivation is a pure function of its inputs so that a player
// holding the revealed server seed can replay it.
package fair

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

const (
	serverSeedBytes = 32
	clientSeedBytes = 16
)

// Seeds is the triple every outcome is derived from.
type Seeds struct {
	ServerSeed     string `json:"server_seed,omitempty"`
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          int64  `json:"nonce"`
}

// NewSeeds draws a fresh server seed and, when clientSeed is empty, a fresh
// client seed.
func NewSeeds(clientSeed string, nonce int64) (Seeds, error) {
	serverSeed, err := GenerateServerSeed()
	if err != nil {
		return Seeds{}, err
	}
	if clientSeed == "" {
		clientSeed, err = GenerateClientSeed()
		if err != nil {
			return Seeds{}, err
		}
	}
	return Seeds{
		ServerSeed:     serverSeed,
		ServerSeedHash: HashSeed(serverSeed),
		ClientSeed:     clientSeed,
		Nonce:          nonce,
	}, nil
}

// Public returns a copy with the server seed removed.
func (s Seeds) Public() Seeds {
	s.ServerSeed = ""
	return s
}

func GenerateServerSeed() (string, error) {
	return randomHex(serverSeedBytes)
}

func GenerateClientSeed() (string, error) {
	return randomHex(clientSeedBytes)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate seed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashSeed is the commitment published before an outcome is revealed.
func HashSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// VerifyServerSeedHash reports whether seed hashes to the published commitment.
func VerifyServerSeedHash(seed, hash string) bool {
	return hmac.Equal([]byte(HashSeed(seed)), []byte(hash))
}

// digest is HMAC-SHA256 keyed by serverSeed over message.
func digest(serverSeed, message string) []byte {
	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write([]byte(message))
	return h.Sum(nil)
}

func nonceDigest(serverSeed, clientSeed string, nonce int64) []byte {
	return digest(serverSeed, clientSeed+strconv.FormatInt(nonce, 10))
}

// byteStream yields digest bytes and extends itself with SHA-256 of the
// previous block once exhausted.
type byteStream struct {
	block []byte
	pos   int
}

func newByteStream(seed []byte) *byteStream {
	return &byteStream{block: seed}
}

func (s *byteStream) next(n int) []byte {
	if s.pos+n > len(s.block) {
		sum := sha256.Sum256(s.block)
		s.block = sum[:]
		s.pos = 0
	}
	out := s.block[s.pos : s.pos+n]
	s.pos += n
	return out
}
