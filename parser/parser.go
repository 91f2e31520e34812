/*
	Copyright (c) 2022 R. van Twisk
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.
	parser.go: NMEA sentence validation, dispatch and per-connection state
*/

package parser

import (
	"errors"
	"fmt"
	"time"

	"github.com/b3nn0/flightlink/common"
	"github.com/b3nn0/flightlink/nav"
	"go.uber.org/atomic"
)

var (
	ErrTooLong          = errors.New("parser: sentence too long")
	ErrChecksumMismatch = errors.New("parser: checksum mismatch")
	// ErrMalformedField marks a field that is present but unreadable. It never
	// rejects a sentence, the other fields still apply.
	ErrMalformedField = errors.New("parser: malformed field")
)

const (
	// A fix older than this revokes GPS validity.
	GPSValidTimeout = 6000 * time.Millisecond
	// A PGRMZ source quiet for this long no longer provides the baro altitude.
	RMZTimeout = 5 * time.Second
	// Seconds a fix time may step back before it is taken as a day rollover.
	rolloverThreshold = 12 * 3600

	knotsToMs    = 0.514444
	kmhToMs      = 1 / 3.6
	feetToMetres = 0.3048
)

type Options struct {
	// VerifyChecksum rejects sentences with a missing or wrong checksum.
	VerifyChecksum bool
	Clock          common.Clock
	Sink           common.StatusSink
}

func DefaultOptions() Options {
	return Options{VerifyChecksum: true}
}

// Stats are cumulative parser counters.
type Stats struct {
	Accepted        atomic.Uint64
	ChecksumErrors  atomic.Uint64
	TooLong         atomic.Uint64
	MalformedFields atomic.Uint64
	UnknownTags     atomic.Uint64
	TrafficDropped  atomic.Uint64
}

type handler func(p *Parser, src string, f Fields, info *nav.NavInfo)

// Talker independent standard sentences, keyed without the talker id.
var standardHandlers = map[string]handler{
	"GGA": (*Parser).parseGGA,
	"RMC": (*Parser).parseRMC,
	"GLL": (*Parser).parseGLL,
	"GSA": (*Parser).parseGSA,
	"VTG": (*Parser).parseVTG,
}

// Proprietary and vendor sentences, keyed by the full tag.
var proprietaryHandlers = map[string]handler{
	"PGRMZ": (*Parser).parsePGRMZ,
	"HCHDG": (*Parser).parseHCHDG,
	"PTAS1": (*Parser).parsePTAS1,
	"PLKAS": (*Parser).parsePLKAS,
	"PFLAU": (*Parser).parsePFLAU,
	"PFLAA": (*Parser).parsePFLAA,
	"PFLAV": (*Parser).parsePFLAV,
}

// Parser turns sentences from one connection into updates of a NavInfo. It
// is not safe for concurrent use, callers serialise through nav.State.
type Parser struct {
	verifyChecksum bool
	clock          common.Clock
	sink           common.StatusSink
	stats          Stats

	connected    bool
	ggaAvailable bool
	rmcAvailable bool
	tasAvailable bool
	dateValid    bool
	nSatellites  int
	isFlarm      bool

	lastTime     float64
	gpsValid     bool
	fixSource    string
	lastValidFix time.Time
	fixThisCycle bool

	rmzAvailable bool
	rmzSource    string
	lastRMZ      time.Time

	anchored    bool
	latPerMetre float64
	lonPerMetre float64
}

func New(opts Options) *Parser {
	p := &Parser{
		verifyChecksum: opts.VerifyChecksum,
		clock:          opts.Clock,
		sink:           opts.Sink,
	}
	if p.clock == nil {
		p.clock = common.SystemClock{}
	}
	if p.sink == nil {
		p.sink = common.NopSink{}
	}
	return p
}

func (p *Parser) Stats() *Stats { return &p.stats }

// Reset forgets everything learned from the connection. Counters are kept.
func (p *Parser) Reset() {
	p.connected = false
	p.ggaAvailable = false
	p.rmcAvailable = false
	p.tasAvailable = false
	p.dateValid = false
	p.nSatellites = 0
	p.isFlarm = false
	p.lastTime = 0
	p.gpsValid = false
	p.fixSource = ""
	p.lastValidFix = time.Time{}
	p.fixThisCycle = false
	p.rmzAvailable = false
	p.rmzSource = ""
	p.lastRMZ = time.Time{}
	p.anchored = false
	p.latPerMetre = 0
	p.lonPerMetre = 0
}

// The getters below read connection state owned by the goroutine that feeds
// the parser. Callers outside it must hold the nav.State lock.

func (p *Parser) Connected() bool { return p.connected }
func (p *Parser) DateValid() bool { return p.dateValid }
func (p *Parser) Satellites() int { return p.nSatellites }
func (p *Parser) IsFlarm() bool { return p.isFlarm }
func (p *Parser) RMZAvailable() bool { return p.rmzAvailable }

// Checksum reports whether line carries a valid checksum, or true when
// verification is turned off.
func (p *Parser) Checksum(line string) bool {
	if !p.verifyChecksum {
		return true
	}
	_, ok := common.ValidateNMEAChecksum(line)
	return ok
}

// payload returns the sentence between '$' and '*', verifying the checksum
// when enabled.
func (p *Parser) payload(line string) (string, error) {
	if p.verifyChecksum {
		payload, ok := common.ValidateNMEAChecksum(line)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrChecksumMismatch, payload)
		}
		return payload, nil
	}
	if payload, _, ok := common.SplitNMEA(line); ok {
		return payload, nil
	}
	for i := 0; i < len(line); i++ {
		if line[i] == '$' {
			return line[i+1:], nil
		}
	}
	return "", fmt.Errorf("%w: no sentence start", ErrChecksumMismatch)
}

// dispatchKey maps a tag to its handler key: the talker id of G* sentences
// is dropped, every other tag is used whole.
func dispatchKey(tag string) string {
	if _, ok := proprietaryHandlers[tag]; ok {
		return tag
	}
	if len(tag) == 5 && tag[0] == 'G' {
		return tag[2:]
	}
	return tag
}

// ParseSentence validates line and applies it to info. A nil error means the
// sentence was accepted, unknown tags included. On error info is untouched.
func (p *Parser) ParseSentence(src string, line string, info *nav.NavInfo) error {
	if len(line) > MaxNMEALen {
		p.stats.TooLong.Inc()
		return ErrTooLong
	}
	payload, err := p.payload(line)
	if err != nil {
		p.stats.ChecksumErrors.Inc()
		return err
	}

	f := ValidateAndExtract(payload)
	p.stats.Accepted.Inc()
	p.connected = true

	key := dispatchKey(f.Str(0))
	h, ok := proprietaryHandlers[key]
	if !ok {
		h, ok = standardHandlers[key]
	}
	if !ok {
		p.stats.UnknownTags.Inc()
		return nil
	}
	h(p, src, f[1:], info)
	return nil
}

// floatField stores field i of f into dst. An empty field leaves dst alone, a
// malformed one is counted and leaves dst alone too.
func (p *Parser) floatField(f Fields, i int, dst *float64) bool {
	v, err := f.Float(i)
	if err != nil {
		if errors.Is(err, ErrMalformedField) {
			p.stats.MalformedFields.Inc()
		}
		return false
	}
	*dst = v
	return true
}

func (p *Parser) intField(f Fields, i int, dst *int) bool {
	v, err := f.Int(i)
	if err != nil {
		if errors.Is(err, ErrMalformedField) {
			p.stats.MalformedFields.Inc()
		}
		return false
	}
	*dst = v
	return true
}

// timeHasAdvanced accepts t when it is not older than the last fix time. A
// step back of more than rolloverThreshold is a midnight rollover and is
// accepted as the new reference, any smaller step back is rejected.
func (p *Parser) timeHasAdvanced(t float64) bool {
	if t < p.lastTime && p.lastTime-t <= rolloverThreshold {
		return false
	}
	p.lastTime = t
	return true
}

// mayWriteFix reports whether src may update the fix in info. While another
// connection holds a valid fix, its position and time are left alone.
func (p *Parser) mayWriteFix(src string, info *nav.NavInfo) bool {
	return !info.FixHeldByOther(src, p.clock.Now(), GPSValidTimeout)
}

// markFix records a valid position fix from src. src becomes the owner of the
// fix in info until another source reports one.
func (p *Parser) markFix(src string, info *nav.NavInfo) {
	now := p.clock.Now()
	p.gpsValid = true
	p.fixSource = src
	p.lastValidFix = now
	p.fixThisCycle = true
	info.NAVWarning = false
	info.FixSource = src
	info.FixUpdated = now
	if !p.anchored {
		p.anchor(info.Latitude, info.Longitude)
	}
}

// GPSValid reports whether a valid fix arrived within GPSValidTimeout.
func (p *Parser) GPSValid() bool {
	return p.gpsValid && p.clock.Now().Sub(p.lastValidFix) <= GPSValidTimeout
}

// CheckGPSValid expires a stale fix. info is only revoked when this parser
// delivered its fix, a connection without GPS never touches another's.
func (p *Parser) CheckGPSValid(info *nav.NavInfo) bool {
	if p.GPSValid() {
		return true
	}
	p.gpsValid = false
	if info.FixSource == p.fixSource {
		info.DropFixSource(p.fixSource)
	}
	return false
}

// CheckRMZ drops a PGRMZ baro altitude that went quiet.
func (p *Parser) CheckRMZ(info *nav.NavInfo) {
	if !p.rmzAvailable {
		return
	}
	if p.clock.Now().Sub(p.lastRMZ) > RMZTimeout {
		p.rmzAvailable = false
		info.DropBaroSource(p.rmzSource)
		p.sink.StatusMessage(common.MSG_WARNING, p.rmzSource, "baro altitude lost")
	}
}

// EndCycle closes an update cycle and reports whether a fix arrived in it.
func (p *Parser) EndCycle() bool {
	fix := p.fixThisCycle
	p.fixThisCycle = false
	return fix
}
