package cryptox

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
)

const (
	// SaltLength is the number of salt characters carried at the head of
	// every token.
	SaltLength = 16
	// KeyLength is the size of the derived keystream in bytes.
	KeyLength = 32
	// KeyIterations is the number of mixing rounds applied to the keystream.
	KeyIterations = 1000

	saltAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
)

// ErrEmptySecret is returned by NewCodec when no secret is configured.
var ErrEmptySecret = errors.New("token secret is empty")

var base32Lookup = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(base32Alphabet); i++ {
		t[base32Alphabet[i]] = int8(i)
	}
	return t
}()

// Codec turns backend message ids into opaque URL-safe tokens and back.
//
// The transform is obfuscation, not encryption: the keystream is derived by
// a fixed additive mixing function and nothing authenticates the payload.
// Decoding a token with the wrong secret yields garbage rather than an error.
// The arithmetic must stay as is, otherwise previously issued links break.
//
// A Codec holds no mutable state and is safe for concurrent use.
type Codec struct {
	secret []byte
	intn   func(n int) int
}

// NewCodec returns a Codec keyed with secret.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Codec{secret: []byte(secret), intn: rand.IntN}, nil
}

// Encode obfuscates idText with a fresh random salt and returns the token.
func (c *Codec) Encode(idText string) string {
	return c.encodeWithSalt(idText, c.newSalt())
}

// EncodeID is Encode for the decimal form of id.
func (c *Codec) EncodeID(id int64) string {
	return c.Encode(strconv.FormatInt(id, 10))
}

// Decode reverses Encode. It fails with common.ErrInvalidToken when the
// token holds a symbol outside A-Z2-7 or is too short to carry a salt.
func (c *Codec) Decode(token string) (string, error) {
	raw, err := base32Decode(token)
	if err != nil {
		return "", err
	}
	if len(raw) < SaltLength {
		return "", fmt.Errorf("%w: %d bytes, need at least %d", common.ErrInvalidToken, len(raw), SaltLength)
	}

	salt, encoded := raw[:SaltLength], raw[SaltLength:]
	key := deriveKey(c.secret, salt)

	return string(xorKey(encoded, key)), nil
}

// DecodeID decodes token and parses the result as a positive message id.
func (c *Codec) DecodeID(token string) (int64, error) {
	text, err := c.Decode(token)
	if err != nil {
		return 0, err
	}

	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: not a message id", common.ErrInvalidToken)
	}
	return id, nil
}

func (c *Codec) newSalt() []byte {
	salt := make([]byte, SaltLength)
	for i := range salt {
		salt[i] = saltAlphabet[c.intn(len(saltAlphabet))]
	}
	return salt
}

func (c *Codec) encodeWithSalt(idText string, salt []byte) string {
	key := deriveKey(c.secret, salt)

	buf := make([]byte, 0, len(salt)+len(idText))
	buf = append(buf, salt...)
	buf = append(buf, xorKey([]byte(idText), key)...)

	return base32Encode(buf)
}

// deriveKey seeds the keystream from secret and salt, then runs the mixing
// rounds. All arithmetic is mod 256 through byte overflow.
func deriveKey(secret, salt []byte) [KeyLength]byte {
	var key [KeyLength]byte
	for i := range key {
		key[i] = secret[i%len(secret)] + salt[i%len(salt)]
	}
	for j := 0; j < KeyIterations; j++ {
		for i := range key {
			key[i] += secret[i%len(secret)] + salt[i%len(salt)]
		}
	}
	return key
}

func xorKey(data []byte, key [KeyLength]byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%KeyLength]
	}
	return out
}

// base32Encode packs 5 bits per symbol, most significant first. A trailing
// partial group is zero padded; no pad character is written.
func base32Encode(data []byte) string {
	out := make([]byte, 0, (len(data)*8+4)/5)

	var buffer uint32
	bitsLeft := 0
	for _, b := range data {
		buffer = buffer<<8 | uint32(b)
		bitsLeft += 8
		for bitsLeft >= 5 {
			out = append(out, base32Alphabet[(buffer>>(bitsLeft-5))&31])
			bitsLeft -= 5
		}
	}
	if bitsLeft > 0 {
		out = append(out, base32Alphabet[(buffer<<(5-bitsLeft))&31])
	}

	return string(out)
}

// base32Decode emits a byte every time 8 bits have accumulated; leftover
// padding bits are dropped.
func base32Decode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s)*5/8)

	var buffer uint32
	bitsLeft := 0
	for i := 0; i < len(s); i++ {
		v := base32Lookup[s[i]]
		if v < 0 {
			return nil, fmt.Errorf("%w: symbol %q at %d", common.ErrInvalidToken, s[i], i)
		}
		buffer = buffer<<5 | uint32(v)
		bitsLeft += 5
		if bitsLeft >= 8 {
			out = append(out, byte(buffer>>(bitsLeft-8)))
			bitsLeft -= 8
		}
	}

	return out, nil
}
