package otp

import (
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Parse errors. Each malformed provisioning URI maps to exactly one of
// these, wrapped with the offending detail.
var (
	ErrInvalidScheme    = errors.New("not an otpauth URI")
	ErrUnsupportedType  = errors.New("not a supported OTP type")
	ErrMissingSecret    = errors.New("no secret found in URI")
	ErrInvalidSecret    = errors.New("secret is not valid base32")
	ErrInvalidAlgorithm = errors.New("algorithm must be SHA1, SHA256 or SHA512")
	ErrInvalidDigits    = errors.New("digits may only be 6, 7 or 8")
	ErrInvalidPeriod    = errors.New("period must be a positive integer")
	ErrUnknownParameter = errors.New("unknown parameter")
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// ParseURI parses an otpauth:// provisioning URI into a Spec.
//
// See https://github.com/google/google-authenticator/wiki/Key-Uri-Format.
// Only the totp type is supported. The issuer query parameter wins over
// an issuer prefix in the label. The counter and image parameters are
// accepted and ignored; any other unrecognized parameter is an error.
func ParseURI(raw string) (Spec, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidScheme, err)
	}
	if u.Scheme != "otpauth" {
		return Spec{}, fmt.Errorf("%w: scheme %q", ErrInvalidScheme, u.Scheme)
	}
	if u.Host != "totp" {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnsupportedType, u.Host)
	}

	spec := Spec{
		Algorithm: DefaultAlgorithm,
		Digits:    DefaultDigits,
		Period:    DefaultPeriod,
	}

	// The label is "issuer:name" or just "name". u.Path is already
	// percent-decoded, so a %3A separator arrives here as ':'.
	label := strings.TrimPrefix(u.Path, "/")
	if issuer, name, ok := strings.Cut(label, ":"); ok {
		spec.Issuer = issuer
		spec.Name = name
	} else {
		spec.Name = label
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrUnknownParameter, err)
	}

	for key, values := range query {
		// Repeated keys: the last occurrence wins.
		value := values[len(values)-1]
		switch key {
		case "secret":
			spec.Secret, err = DecodeSecret(value)
			if err != nil {
				return Spec{}, err
			}
		case "issuer":
			spec.Issuer = value
		case "algorithm":
			switch value {
			case "SHA1":
				spec.Algorithm = SHA1
			case "SHA256":
				spec.Algorithm = SHA256
			case "SHA512":
				spec.Algorithm = SHA512
			default:
				return Spec{}, fmt.Errorf("%w: %q", ErrInvalidAlgorithm, value)
			}
		case "digits":
			n, err := strconv.Atoi(value)
			if err != nil || n < 6 || n > 8 {
				return Spec{}, fmt.Errorf("%w: %q", ErrInvalidDigits, value)
			}
			spec.Digits = n
		case "period":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return Spec{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, value)
			}
			spec.Period = n
		case "counter", "image":
			// Accepted for compatibility, unused for the totp type.
		default:
			return Spec{}, fmt.Errorf("%w: %q", ErrUnknownParameter, key)
		}
	}

	if len(spec.Secret) == 0 {
		return Spec{}, ErrMissingSecret
	}

	return spec, nil
}

// DecodeSecret decodes a base32 secret as transmitted in provisioning
// URIs: case-insensitive, padding optional.
func DecodeSecret(s string) ([]byte, error) {
	normalized := strings.ToUpper(strings.TrimRight(s, "="))
	b, err := b32.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return b, nil
}

// EncodeSecret is the inverse of DecodeSecret (unpadded upper-case
// base32, the form authenticator apps expect).
func EncodeSecret(secret []byte) string {
	return b32.EncodeToString(secret)
}

// URI serializes the Spec back into a provisioning URI with all
// parameters explicit. ParseURI(s.URI()) recovers s exactly.
func (s Spec) URI() string {
	label := url.PathEscape(s.Name)
	if s.Issuer != "" {
		label = url.PathEscape(s.Issuer) + ":" + label
	}

	v := url.Values{}
	v.Set("secret", EncodeSecret(s.Secret))
	if s.Issuer != "" {
		v.Set("issuer", s.Issuer)
	}
	v.Set("algorithm", s.Algorithm.String())
	v.Set("digits", strconv.Itoa(s.Digits))
	v.Set("period", strconv.Itoa(s.Period))

	return "otpauth://totp/" + label + "?" + v.Encode()
}
