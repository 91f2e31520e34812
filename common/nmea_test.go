package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNMEAChecksum_OK(t *testing.T) {
	payload, ok := ValidateNMEAChecksum("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A")
	require.True(t, ok, payload)
	assert.Equal(t, "GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W", payload)
}

func TestValidateNMEAChecksum_Mismatch(t *testing.T) {
	_, ok := ValidateNMEAChecksum("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*00")
	assert.False(t, ok)
}

func TestValidateNMEAChecksum_Malformed(t *testing.T) {
	for _, line := range []string{
		"",
		"GPRMC,123519*6A",
		"$GPRMC,123519",
		"$GPRMC,123519*6",
		"$GPRMC,123519*ZZ",
	} {
		_, ok := ValidateNMEAChecksum(line)
		assert.False(t, ok, line)
	}
}

func TestValidateNMEAChecksum_BlanksAroundDigits(t *testing.T) {
	line := AppendNmeaChecksum("$PGRMZ,1200,f,3")
	star := len(line) - 2
	spaced := line[:star] + " " + line[star:] + " \r\n"
	_, ok := ValidateNMEAChecksum(spaced)
	assert.True(t, ok, spaced)
}

func TestAppendNmeaChecksum_RoundTrip(t *testing.T) {
	for _, payload := range []string{
		"GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,",
		"PFLAU,3,1,2,1,0,,0,,",
		"X",
	} {
		line := AppendNmeaChecksum("$" + payload)
		got, ok := ValidateNMEAChecksum(line)
		require.True(t, ok, line)
		assert.Equal(t, payload, got)
	}
}

func TestMakeNMEACmd(t *testing.T) {
	cmd := string(MakeNMEACmd("PFLAC,R,RADIOID"))
	assert.Equal(t, "\r\n", cmd[len(cmd)-2:])
	_, ok := ValidateNMEAChecksum(cmd)
	assert.True(t, ok)
}
