package devices

import (
	"strings"

	"github.com/b3nn0/flightlink/common"
	"github.com/b3nn0/flightlink/nav"
)

const OGNTrackerDriver = "OGN Tracker"

func installOGNTracker(d *Descriptor) {
	d.Name = OGNTrackerDriver

	seen := false
	d.ParseNMEA = func(d *Descriptor, line string, info *nav.NavInfo) bool {
		line = strings.TrimSpace(line)
		var claimed bool
		switch {
		case strings.HasPrefix(line, "$POGNB"):
			claimed = true
			if d.checksum(line) {
				parsePOGNB(d, line, info)
			}
		case strings.HasPrefix(line, "$POGNR"):
			claimed = true
		}
		if claimed && !seen {
			seen = true
			d.Sink.StatusMessage(common.MSG_INFO, d.Source, "OGN Tracker detected")
		}
		return claimed
	}
}

// OGN Tracker pressure data:
// $POGNB,22.0,+29.1,100972.3,3.8,+29.4,+87.2,-0.04,+32.6,*6B
// The fifth parameter is the pressure altitude in metres, the seventh the
// climb rate in m/s.
func parsePOGNB(d *Descriptor, line string, info *nav.NavInfo) {
	f := fields(line)
	alt, err := f.Float(4)
	if err != nil {
		return
	}
	vspeed, err := f.Float(6)
	if err != nil {
		return
	}
	if info.UpdateBaroSource(d.Source, common.BARO_TYPE_OGNTRACKER, d.QNEToQNH(alt), d.Clock.Now()) {
		info.Vario = vspeed
		info.VarioAvailable = true
	}
}
