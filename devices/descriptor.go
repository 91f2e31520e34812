/*
	Copyright (c) 2022 R. van Twisk
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.
	descriptor.go: Per connection device with an optional sentence override
*/

package devices

import (
	"errors"

	"github.com/b3nn0/flightlink/common"
	"github.com/b3nn0/flightlink/nav"
	"github.com/b3nn0/flightlink/parser"
	"go.uber.org/atomic"
)

// AltitudeConverter maps a QNE (standard pressure) altitude to a calibrated one.
type AltitudeConverter func(qne float64) float64

// IdentityAltitude leaves the altitude unchanged. Used when no QNH is known.
func IdentityAltitude(qne float64) float64 { return qne }

// NMEAHandler inspects line before the generic parser. Returning true claims
// the sentence and the generic parser never sees it.
type NMEAHandler func(d *Descriptor, line string, info *nav.NavInfo) bool

// Descriptor is the device attached to one port for one session.
type Descriptor struct {
	Name      string // display name
	Driver    string // registry key
	Source    string // port name, tags status messages and baro ownership
	ParseNMEA NMEAHandler
	QNEToQNH  AltitudeConverter
	Sink      common.StatusSink
	Parser    *parser.Parser
	Clock     common.Clock

	handled        atomic.Uint64
	checksumErrors atomic.Uint64
}

// NewDescriptor builds a bare descriptor around p. Drivers fill in Name and
// ParseNMEA when installed.
func NewDescriptor(source string, p *parser.Parser, opts parser.Options) *Descriptor {
	d := &Descriptor{
		Source:   source,
		QNEToQNH: IdentityAltitude,
		Sink:     opts.Sink,
		Parser:   p,
		Clock:    opts.Clock,
	}
	if d.Sink == nil {
		d.Sink = common.NopSink{}
	}
	if d.Clock == nil {
		d.Clock = common.SystemClock{}
	}
	return d
}

// ParseLine offers line to the device override first, then to the parser.
func (d *Descriptor) ParseLine(line string, info *nav.NavInfo) error {
	if d.ParseNMEA != nil && d.ParseNMEA(d, line, info) {
		d.handled.Inc()
		return nil
	}
	if d.Parser == nil {
		return errors.New("devices: descriptor without parser")
	}
	return d.Parser.ParseSentence(d.Source, line, info)
}

// Handled counts sentences claimed by the override.
func (d *Descriptor) Handled() uint64 { return d.handled.Load() }

// ChecksumErrors counts claimed sentences that were dropped for their checksum.
func (d *Descriptor) ChecksumErrors() uint64 { return d.checksumErrors.Load() }

// checksum verifies line through the parser so the parser's checksum option
// applies to overrides too.
func (d *Descriptor) checksum(line string) bool {
	if d.Parser != nil && d.Parser.Checksum(line) {
		return true
	}
	d.checksumErrors.Inc()
	return false
}

// fields splits a claimed sentence into the parameters after the tag.
func fields(line string) parser.Fields {
	payload, _, ok := common.SplitNMEA(line)
	if !ok {
		for i := 0; i < len(line); i++ {
			if line[i] == '$' {
				payload = line[i+1:]
				break
			}
		}
	}
	f := parser.ValidateAndExtract(payload)
	if len(f) == 0 {
		return nil
	}
	return f[1:]
}
