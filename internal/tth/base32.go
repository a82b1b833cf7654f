package tth

import "encoding/base32"

// String returns the base32 (RFC 4648, no padding) representation used on
// the wire in ADC commands (TR parameter, CID-like tokens) and filelists.
func (v Value) String() string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(v[:])
}

// ParseValue decodes a base32 TTH string back into a Value.
func ParseValue(s string) (Value, error) {
	b, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil {
		return Value{}, err
	}
	var v Value
	copy(v[:], b)
	return v, nil
}
