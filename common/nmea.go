/*
	Copyright (c) 2022 R. van Twisk
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.
	nmea.go: NMEA 0183 checksum helpers
*/

package common

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/adrianmo/go-nmea"
)

// SplitNMEA splits a sentence into its payload (between '$' and '*') and the
// checksum digits. Blanks around the checksum digits are tolerated. ok is false
// when the line has no '$' start, no '*' or fewer than two checksum digits.
func SplitNMEA(s string) (payload string, checksum string, ok bool) {
	s = strings.TrimRight(s, "\r\n")
	start := strings.IndexByte(s, '$')
	if start < 0 {
		return "", "", false
	}
	star := strings.LastIndexByte(s, '*')
	if star < start {
		return "", "", false
	}
	checksum = strings.TrimSpace(s[star+1:])
	if len(checksum) < 2 {
		return "", "", false
	}
	return s[start+1 : star], checksum[:2], true
}

// NMEAChecksum is the XOR of every byte of payload, as two upper case hex digits.
func NMEAChecksum(payload string) string {
	return nmea.Checksum(payload)
}

// ValidateNMEAChecksum determines if a string is a properly formatted NMEA sentence with a valid checksum.
//
// If the input string is valid, output is the input stripped of the "$" token and checksum, along with a boolean 'true'
// If the input string is the incorrect format, the checksum is missing/invalid, or checksum calculation fails, an error string and
// boolean 'false' are returned
func ValidateNMEAChecksum(s string) (string, bool) {
	payload, cs, ok := SplitNMEA(s)
	if !ok {
		return "Missing checksum", false
	}

	want, err := strconv.ParseUint(cs, 16, 8)
	if err != nil {
		return "Invalid checksum", false
	}

	got, _ := strconv.ParseUint(NMEAChecksum(payload), 16, 8)
	if got != want {
		return fmt.Sprintf("Checksum failed. Calculated %#X; expected %#X", got, want), false
	}

	return payload, true
}

// MakeNMEACmd frames cmd as a complete sentence ready to be written to a device.
func MakeNMEACmd(cmd string) []byte {
	return []byte(AppendNmeaChecksum("$"+cmd) + "\r\n")
}

// AppendNmeaChecksum appends "*XX" to a sentence with or without its leading '$'.
func AppendNmeaChecksum(s string) string {
	payload := strings.TrimPrefix(s, "$")
	return fmt.Sprintf("%s*%s", s, NMEAChecksum(payload))
}
