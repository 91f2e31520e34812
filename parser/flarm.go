package parser

import (
	"errors"
	"math"

	"github.com/b3nn0/flightlink/common"
	"github.com/b3nn0/flightlink/flarm"
	"github.com/b3nn0/flightlink/nav"
	geo "github.com/kellydunn/golang-geo"
)

// PFLAA offsets beyond this are not a valid report.
const maxRelativeDistance = 32767

// anchor fixes the metres to degrees scale of the local tangent plane at
// lat, lon.
func (p *Parser) anchor(lat, lon float64) {
	origin := geo.NewPoint(lat, lon)
	north := origin.PointAtDistanceAndBearing(1, 0)
	east := origin.PointAtDistanceAndBearing(1, 90)
	p.latPerMetre = (north.Lat() - lat) / 1000
	p.lonPerMetre = (east.Lng() - lon) / 1000
	p.anchored = true
}

// NorthingToLatitude converts a northward offset in metres into degrees of latitude.
func (p *Parser) NorthingToLatitude(north float64) float64 {
	return north * p.latPerMetre
}

// EastingToLongitude converts an eastward offset in metres into degrees of longitude.
func (p *Parser) EastingToLongitude(east float64) float64 {
	return east * p.lonPerMetre
}

func (p *Parser) markFlarm(src string, info *nav.NavInfo) {
	if !p.isFlarm {
		p.sink.StatusMessage(common.MSG_INFO, src, "FLARM detected")
	}
	p.isFlarm = true
	info.FlarmAvailable = true
}

// $PFLAU,<RX>,<TX>,<GPS>,<Power>,<AlarmLevel>,<RelativeBearing>,<AlarmType>,<RelativeVertical>,<RelativeDistance>,<ID>
func (p *Parser) parsePFLAU(src string, f Fields, info *nav.NavInfo) {
	p.markFlarm(src, info)

	p.intField(f, 0, &info.FlarmRX)
	var tx int
	if p.intField(f, 1, &tx) {
		info.FlarmTX = tx != 0
	}
	p.intField(f, 2, &info.FlarmGPSStatus)
	p.intField(f, 4, &info.FlarmAlarmLevel)
	p.floatField(f, 5, &info.FlarmAlarmBearing)
	p.floatField(f, 8, &info.FlarmAlarmDistance)

	if id, err := f.Hex(9, 24); err == nil {
		info.FlarmAlarmID = uint32(id)
	} else if errors.Is(err, ErrMalformedField) {
		p.stats.MalformedFields.Inc()
	}
}

// $PFLAA,<AlarmLevel>,<RelativeNorth>,<RelativeEast>,<RelativeVertical>,<IDType>,<ID>,<Track>,<TurnRate>,<GroundSpeed>,<ClimbRate>,<AcftType>
func (p *Parser) parsePFLAA(src string, f Fields, info *nav.NavInfo) {
	p.markFlarm(src, info)

	id, err := f.Hex(5, 24)
	if err != nil || id == 0 {
		p.stats.MalformedFields.Inc()
		return
	}

	var r flarm.Report
	ok := p.relative(f, 1, &r.RelativeNorth)
	ok = p.relative(f, 2, &r.RelativeEast) && ok
	ok = p.relative(f, 3, &r.RelativeVertical) && ok
	if !ok {
		return
	}

	p.intField(f, 0, &r.AlarmLevel)
	p.intField(f, 4, &r.IDType)
	p.floatField(f, 6, &r.Track)
	p.floatField(f, 7, &r.TurnRate)
	p.floatField(f, 8, &r.Speed)
	p.floatField(f, 9, &r.ClimbRate)
	if t, err := f.Hex(10, 8); err == nil {
		r.AircraftType = int(t)
	}

	if !p.anchored && !info.NAVWarning {
		p.anchor(info.Latitude, info.Longitude)
	}
	if p.anchored {
		r.Latitude = info.Latitude + p.NorthingToLatitude(r.RelativeNorth)
		r.Longitude = info.Longitude + p.EastingToLongitude(r.RelativeEast)
	}
	r.Altitude = info.Altitude + r.RelativeVertical

	if _, err := info.Traffic.Upsert(uint32(id), r, p.clock.Now()); err != nil {
		p.stats.TrafficDropped.Inc()
	}
}

// relative reads a metre offset that must be present and within range.
func (p *Parser) relative(f Fields, i int, dst *float64) bool {
	v, err := f.Float(i)
	if err != nil || math.Abs(v) > maxRelativeDistance {
		p.stats.MalformedFields.Inc()
		return false
	}
	*dst = v
	return true
}

// $PFLAV,<QueryType>,<HwVersion>,<SwVersion>,<ObstVersion>
func (p *Parser) parsePFLAV(src string, f Fields, info *nav.NavInfo) {
	p.markFlarm(src, info)
	if s := f.Str(1); s != "" {
		info.FlarmHardware = s
	}
	if s := f.Str(2); s != "" {
		info.FlarmSoftware = s
	}
	if s := f.Str(3); s != "" {
		info.FlarmObstacleDB = s
	}
}
