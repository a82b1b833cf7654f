package hub

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/twofish"
)

// SUDP wraps UDP search results in Twofish-CBC encryption, the documented
// cipher for the SUDP ADC extension. Each datagram is
// IV || ciphertext, with the IV randomly generated per message and the
// key being the shared secret negotiated via the hub's INF message.
type SUDP struct {
	block cipher.Block
}

// NewSUDP derives a Twofish cipher from key (16, 24, or 32 bytes).
func NewSUDP(key []byte) (*SUDP, error) {
	block, err := twofish.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("sudp: %w", err)
	}
	return &SUDP{block: block}, nil
}

// Encrypt pads plaintext to a block-size multiple (zero padding, per the
// ADC SUDP extension, which recovers the original length from the
// enclosed RES message's own framing rather than a padding scheme) and
// returns iv || ciphertext.
func (s *SUDP) Encrypt(plaintext []byte) ([]byte, error) {
	iv := make([]byte, twofish.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	padded := pad(plaintext, twofish.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(s.block, iv).CryptBlocks(out, padded)
	return append(iv, out...), nil
}

// Decrypt reverses Encrypt; the caller trims trailing zero padding.
func (s *SUDP) Decrypt(data []byte) ([]byte, error) {
	if len(data) < 2*twofish.BlockSize {
		return nil, errors.New("sudp: datagram too short")
	}
	iv, ciphertext := data[:twofish.BlockSize], data[twofish.BlockSize:]
	if len(ciphertext)%twofish.BlockSize != 0 {
		return nil, errors.New("sudp: ciphertext not block-aligned")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(s.block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

func pad(data []byte, blockSize int) []byte {
	rem := len(data) % blockSize
	if rem == 0 {
		return data
	}
	return append(data, make([]byte, blockSize-rem)...)
}
