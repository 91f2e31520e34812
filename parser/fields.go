package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// MaxNMEALen bounds a sentence, terminator excluded.
	MaxNMEALen = 160
	// MaxNMEAParams bounds the number of comma separated fields kept.
	MaxNMEAParams = 32
)

var errEmptyField = errors.New("empty field")

// Fields are the comma separated parameters following the tag. Reading past
// the end yields "", a device that truncates trailing fields looks the same as
// one that leaves them empty.
type Fields []string

// ValidateAndExtract splits a payload (tag included, no '$' and no checksum)
// into at most MaxNMEAParams fields with surrounding blanks removed. Fields
// beyond the limit are dropped.
func ValidateAndExtract(payload string) Fields {
	parts := strings.SplitN(payload, ",", MaxNMEAParams+1)
	if len(parts) > MaxNMEAParams {
		parts = parts[:MaxNMEAParams]
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func (f Fields) Str(i int) string {
	if i < 0 || i >= len(f) {
		return ""
	}
	return f[i]
}

// Float parses field i. It returns an error wrapping ErrMalformedField when
// the field is present but not a finite number. NaN and Inf are malformed.
func (f Fields) Float(i int) (float64, error) {
	s := f.Str(i)
	if s == "" {
		return 0, errEmptyField
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: field %d %q", ErrMalformedField, i, s)
	}
	return v, nil
}

func (f Fields) Int(i int) (int, error) {
	s := f.Str(i)
	if s == "" {
		return 0, errEmptyField
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: field %d %q", ErrMalformedField, i, s)
	}
	return v, nil
}

// Hex parses field i as an unsigned hexadecimal number of at most bits bits.
func (f Fields) Hex(i int, bits int) (uint64, error) {
	s := f.Str(i)
	if s == "" {
		return 0, errEmptyField
	}
	v, err := strconv.ParseUint(s, 16, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: field %d %q", ErrMalformedField, i, s)
	}
	return v, nil
}

// ParseAltitude converts an altitude field and its unit to metres. Units other
// than feet are taken as metres.
func ParseAltitude(value string, unit string) (float64, error) {
	v, err := Fields{value}.Float(0)
	if err != nil {
		return 0, err
	}
	if strings.EqualFold(unit, "F") {
		v *= feetToMetres
	}
	return v, nil
}
