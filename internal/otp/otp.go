package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"strings"
	"time"
)

// Defaults applied by ParseURI when the provisioning URI omits the
// corresponding parameter.
const (
	DefaultAlgorithm = SHA1
	DefaultDigits    = 6
	DefaultPeriod    = 30
)

type Algorithm int

const (
	SHA1 Algorithm = iota
	SHA256
	SHA512
)

func (a Algorithm) String() string {
	switch a {
	case SHA256:
		return "SHA256"
	case SHA512:
		return "SHA512"
	default:
		return "SHA1"
	}
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case SHA256:
		return sha256.New()
	case SHA512:
		return sha512.New()
	default:
		return sha1.New()
	}
}

// Spec is a validated one-time-password specification. It is immutable
// once produced by ParseURI.
type Spec struct {
	Secret    []byte
	Issuer    string
	Name      string
	Algorithm Algorithm
	Digits    int
	Period    int
}

var pow10 = [...]uint32{1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000}

// CodeAt computes the RFC 6238 code for the given Unix time.
//
// The counter is floor(now/period) encoded as an 8-byte big-endian
// integer; the HMAC digest is dynamically truncated (RFC 4226 §5.3)
// and reduced mod 10^digits.
func (s Spec) CodeAt(nowUnix int64) string {
	counter := uint64(nowUnix / int64(s.Period))

	mac := hmac.New(s.Algorithm.newHash, s.Secret)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	off := sum[len(sum)-1] & 0xf
	trunc := uint32(sum[off]&0x7f)<<24 |
		uint32(sum[off+1])<<16 |
		uint32(sum[off+2])<<8 |
		uint32(sum[off+3])

	return fmt.Sprintf("%0*d", s.Digits, trunc%pow10[s.Digits])
}

// Code computes the code valid at now.
func (s Spec) Code(now time.Time) string {
	return s.CodeAt(now.Unix())
}

// Generation returns the time-step index identifying the validity
// window of the code at now. The code is constant for all instants
// sharing one generation.
func (s Spec) Generation(now time.Time) int64 {
	return now.Unix() / int64(s.Period)
}

// Remaining returns the seconds left until the current generation
// rolls over, with sub-second precision for progress display.
func (s Spec) Remaining(now time.Time) float64 {
	period := int64(s.Period) * int64(time.Second)
	elapsed := now.UnixNano() % period
	return float64(period-elapsed) / float64(time.Second)
}

// Mask is the placeholder shown in place of a hidden code.
func (s Spec) Mask() string {
	return strings.Repeat("*", s.Digits)
}
