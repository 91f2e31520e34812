package parser

import (
	"math"

	"github.com/b3nn0/flightlink/common"
	"github.com/b3nn0/flightlink/nav"
)

// $PGRMZ,1234,f,3*xx  pressure altitude, unit, fix type
func (p *Parser) parsePGRMZ(src string, f Fields, info *nav.NavInfo) {
	alt, err := ParseAltitude(f.Str(0), f.Str(1))
	if err != nil {
		if err != errEmptyField {
			p.stats.MalformedFields.Inc()
		}
		return
	}
	now := p.clock.Now()
	if info.UpdateBaroSource(src, common.BARO_TYPE_NMEA, alt, now) {
		if !p.rmzAvailable {
			p.sink.StatusMessage(common.MSG_INFO, src, "baro altitude available")
		}
		p.rmzAvailable = true
		p.rmzSource = src
		p.lastRMZ = now
	}
}

// $HCHDG,101.1,,,7.1,W*3C  magnetic heading, deviation, variation
func (p *Parser) parseHCHDG(src string, f Fields, info *nav.NavInfo) {
	var heading float64
	if !p.floatField(f, 0, &heading) {
		return
	}
	info.MagneticHeading = math.Mod(heading+360, 360)
	info.MagneticHeadingAvailable = true
}

// $PTAS1,xxx,yyy,zzzzz,aaa*CS  Tasman vario
//
//	xxx   current vario, knots*10 offset by 200
//	yyy   average vario, same encoding
//	zzzzz barometric altitude in feet offset by 2000
//	aaa   true airspeed in knots
func (p *Parser) parsePTAS1(src string, f Fields, info *nav.NavInfo) {
	var v float64
	if p.floatField(f, 0, &v) {
		info.Vario = (v - 200) / 10 * knotsToMs
		info.VarioAvailable = true
	}
	if p.floatField(f, 2, &v) {
		info.UpdateBaroSource(src, common.BARO_TYPE_NMEA, (v-2000)*feetToMetres, p.clock.Now())
	}
	if p.floatField(f, 3, &v) {
		info.TrueAirspeed = v * knotsToMs
		info.AirspeedAvailable = true
		p.tasAvailable = true
	}
}

// $PLKAS,ias*CS  indicated airspeed in dm/s, true airspeed is derived from
// the ISA density at the current altitude.
func (p *Parser) parsePLKAS(src string, f Fields, info *nav.NavInfo) {
	var v float64
	if !p.floatField(f, 0, &v) {
		return
	}
	ias := v / 10
	if ias <= 1 {
		return
	}
	alt := info.Altitude
	if info.BaroAltitudeAvailable {
		alt = info.BaroAltitude
	}
	info.IndicatedAirspeed = ias
	info.TrueAirspeed = ias * airDensityRatio(alt)
	info.AirspeedAvailable = true
}

// airDensityRatio is sqrt(rho0/rho) in the ISA troposphere at alt metres.
func airDensityRatio(alt float64) float64 {
	k := 1 - 2.25577e-5*alt
	if k <= 0 {
		return 1
	}
	return math.Pow(k, -4.2559/2)
}
