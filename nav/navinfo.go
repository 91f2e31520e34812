/*
	Copyright (c) 2022 R. van Twisk
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.
	navinfo.go: Navigation state shared between the parsers of every connected device
*/

package nav

import (
	"time"

	"github.com/b3nn0/flightlink/common"
	"github.com/b3nn0/flightlink/flarm"
)

// A baro source that has not reported for this long gives way to any other.
const BaroStaleAfter = 5 * time.Second

// NavInfo is the navigation record. Units are SI: metres, m/s, degrees.
type NavInfo struct {
	// Fix
	Latitude        float64
	Longitude       float64
	Altitude        float64 // GPS altitude MSL
	GeoidSeparation float64
	Speed           float64 // ground speed
	TrackBearing    float64 // degrees true
	MagVariation    float64 // degrees, east positive

	Time       float64 // seconds since UTC midnight of the last applied fix
	Year       int
	Month      int
	Day        int
	NAVWarning bool      // true while there is no valid fix
	FixSource  string    // connection that delivered the current fix
	FixUpdated time.Time // clock time of the last fix from FixSource

	FixQuality     int // GGA quality
	FixMode        int // GSA 1 none, 2 2D, 3 3D
	SatellitesUsed int
	HDOP           float64
	VDOP           float64
	PDOP           float64

	// Barometric altitude and its arbitrated source
	BaroAltitude          float64
	BaroAltitudeAvailable bool
	BaroSourceType        int
	BaroSourceName        string
	BaroLastUpdate        time.Time

	MagneticHeading          float64
	MagneticHeadingAvailable bool

	Vario          float64
	VarioAvailable bool

	IndicatedAirspeed float64
	TrueAirspeed      float64
	AirspeedAvailable bool

	OutsideAirTemperature          float64
	OutsideAirTemperatureAvailable bool

	// FLARM status from PFLAU and PFLAV
	FlarmAvailable     bool
	FlarmRX            int
	FlarmTX            bool
	FlarmGPSStatus     int
	FlarmAlarmLevel    int
	FlarmAlarmBearing  float64
	FlarmAlarmDistance float64
	FlarmAlarmID       uint32
	FlarmHardware      string
	FlarmSoftware      string
	FlarmObstacleDB    string

	Traffic flarm.Table
}

func NewNavInfo(trafficCapacity int) NavInfo {
	return NavInfo{
		NAVWarning: true,
		Traffic:    flarm.NewTable(trafficCapacity),
	}
}

// Clone returns a deep copy, traffic table included.
func (n *NavInfo) Clone() NavInfo {
	c := *n
	c.Traffic = n.Traffic.Clone()
	return c
}

// UpdateBaroSource stores alt as the barometric altitude when source may
// provide it: nothing provides it yet, source already does, or the current
// source went quiet for longer than BaroStaleAfter. It reports whether alt was
// taken.
func (n *NavInfo) UpdateBaroSource(source string, baroType int, alt float64, now time.Time) bool {
	if n.BaroAltitudeAvailable && n.BaroSourceName != "" && n.BaroSourceName != source {
		if now.Sub(n.BaroLastUpdate) <= BaroStaleAfter {
			return false
		}
	}
	n.BaroAltitude = alt
	n.BaroAltitudeAvailable = true
	n.BaroSourceName = source
	n.BaroSourceType = baroType
	n.BaroLastUpdate = now
	return true
}

// DropBaroSource forgets the baro altitude if source owns it.
func (n *NavInfo) DropBaroSource(source string) {
	if n.BaroSourceName != source {
		return
	}
	n.BaroAltitudeAvailable = false
	n.BaroSourceName = ""
	n.BaroSourceType = common.BARO_TYPE_NONE
}

// FixHeldByOther reports whether a source other than source holds a fix that
// is younger than maxAge at now. Only the holder writes position and time
// until its fix goes stale.
func (n *NavInfo) FixHeldByOther(source string, now time.Time, maxAge time.Duration) bool {
	if n.NAVWarning || n.FixSource == "" || n.FixSource == source {
		return false
	}
	return now.Sub(n.FixUpdated) <= maxAge
}

// DropFixSource revokes the fix if source delivered it.
func (n *NavInfo) DropFixSource(source string) {
	if n.FixSource != source {
		return
	}
	n.NAVWarning = true
	n.FixSource = ""
}
