package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/adrianmo/go-nmea"
	"github.com/b3nn0/flightlink/nav"
)

// fixTime reads a hhmmss[.sss] field as seconds since UTC midnight.
func (p *Parser) fixTime(f Fields, i int) (float64, bool) {
	s := f.Str(i)
	if s == "" {
		return 0, false
	}
	hhmmss, frac, _ := strings.Cut(s, ".")
	t, err := nmea.ParseTime(hhmmss)
	if err != nil || !t.Valid {
		p.stats.MalformedFields.Inc()
		return 0, false
	}
	secs := float64(t.Hour*3600 + t.Minute*60 + t.Second)
	if frac != "" {
		v, err := strconv.ParseFloat("0."+frac, 64)
		if err != nil {
			p.stats.MalformedFields.Inc()
			return 0, false
		}
		secs += v
	}
	return secs, true
}

// latLon reads the ddmm.mmm,N,dddmm.mmm,E group starting at field i.
func (p *Parser) latLon(f Fields, i int) (float64, float64, bool) {
	if f.Str(i) == "" || f.Str(i+2) == "" {
		return 0, 0, false
	}
	lat, err1 := nmea.ParseGPS(f.Str(i) + " " + f.Str(i+1))
	lon, err2 := nmea.ParseGPS(f.Str(i+2) + " " + f.Str(i+3))
	if err1 != nil || err2 != nil || !finite(lat) || !finite(lon) {
		p.stats.MalformedFields.Inc()
		return 0, 0, false
	}
	return lat, lon, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (p *Parser) date(f Fields, i int, info *nav.NavInfo) {
	if f.Str(i) == "" {
		return
	}
	d, err := nmea.ParseDate(f.Str(i))
	if err != nil || !d.Valid || d.MM < 1 || d.MM > 12 || d.DD < 1 || d.DD > 31 {
		p.stats.MalformedFields.Inc()
		return
	}
	info.Day = d.DD
	info.Month = d.MM
	if d.YY < 80 {
		info.Year = 2000 + d.YY
	} else {
		info.Year = 1900 + d.YY
	}
	p.dateValid = true
}

// $GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47
func (p *Parser) parseGGA(src string, f Fields, info *nav.NavInfo) {
	p.ggaAvailable = true
	if !p.mayWriteFix(src, info) {
		return
	}

	t, hasTime := p.fixTime(f, 0)
	if hasTime && !p.timeHasAdvanced(t) {
		return
	}

	quality := 0
	if p.intField(f, 5, &quality) {
		info.FixQuality = quality
	}
	if p.intField(f, 6, &p.nSatellites) {
		info.SatellitesUsed = p.nSatellites
	}
	p.floatField(f, 7, &info.HDOP)

	if quality == 0 {
		return
	}
	p.floatField(f, 8, &info.Altitude)
	p.floatField(f, 10, &info.GeoidSeparation)

	lat, lon, ok := p.latLon(f, 1)
	if !ok {
		return
	}
	info.Latitude = lat
	info.Longitude = lon
	if hasTime {
		info.Time = t
	}
	p.markFix(src, info)
}

// $GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A
func (p *Parser) parseRMC(src string, f Fields, info *nav.NavInfo) {
	p.rmcAvailable = true
	if !p.mayWriteFix(src, info) {
		return
	}

	t, hasTime := p.fixTime(f, 0)
	if hasTime && !p.timeHasAdvanced(t) {
		return
	}
	p.date(f, 8, info)

	var variation float64
	if p.floatField(f, 9, &variation) {
		if f.Str(10) == "W" {
			variation = -variation
		}
		info.MagVariation = variation
	}

	if f.Str(1) != "A" {
		return
	}

	var knots float64
	if p.floatField(f, 6, &knots) {
		info.Speed = knots * knotsToMs
	}
	// Some receivers leave the course empty when standing still.
	p.floatField(f, 7, &info.TrackBearing)

	lat, lon, ok := p.latLon(f, 2)
	if !ok {
		return
	}
	info.Latitude = lat
	info.Longitude = lon
	if hasTime {
		info.Time = t
	}
	p.markFix(src, info)
}

// $GPGLL,4916.45,N,12311.12,W,225444,A*31
// Position only, used when neither GGA nor RMC is present.
func (p *Parser) parseGLL(src string, f Fields, info *nav.NavInfo) {
	if p.ggaAvailable || p.rmcAvailable || !p.mayWriteFix(src, info) {
		return
	}
	t, hasTime := p.fixTime(f, 4)
	if hasTime && !p.timeHasAdvanced(t) {
		return
	}
	if f.Str(5) != "A" {
		return
	}
	lat, lon, ok := p.latLon(f, 0)
	if !ok {
		return
	}
	info.Latitude = lat
	info.Longitude = lon
	if hasTime {
		info.Time = t
	}
	p.markFix(src, info)
}

// $GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1*39
func (p *Parser) parseGSA(src string, f Fields, info *nav.NavInfo) {
	if !p.mayWriteFix(src, info) {
		return
	}
	p.intField(f, 1, &info.FixMode)
	p.floatField(f, 14, &info.PDOP)
	if !p.ggaAvailable {
		p.floatField(f, 15, &info.HDOP)
	}
	p.floatField(f, 16, &info.VDOP)
}

// $GPVTG,054.7,T,034.4,M,005.5,N,010.2,K*48
// Only used when no RMC is present, RMC carries the same data.
func (p *Parser) parseVTG(src string, f Fields, info *nav.NavInfo) {
	if p.rmcAvailable || !p.mayWriteFix(src, info) {
		return
	}
	p.floatField(f, 0, &info.TrackBearing)

	var speed float64
	if p.floatField(f, 4, &speed) {
		info.Speed = speed * knotsToMs
	} else if p.floatField(f, 6, &speed) {
		info.Speed = speed * kmhToMs
	}
}
