package devices

import (
	"math"
	"strings"

	"github.com/b3nn0/flightlink/common"
	"github.com/b3nn0/flightlink/nav"
)

const PosiGraphDriver = "PosiGraph"

// PosiGraph loggers send no GGA. The only vendor sentence is $GPWIN, the
// Winpilot sentence carrying the baro altitude.
func installPosiGraph(d *Descriptor) {
	d.Name = "PosiGraph Logger"
	d.ParseNMEA = parsePosiGraph
}

func parsePosiGraph(d *Descriptor, line string, info *nav.NavInfo) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$GPWIN") {
		return false
	}
	if !d.checksum(line) {
		return true
	}
	parseGPWIN(d, line, info)
	return true
}

// $GPWIN ,01900 , 0 , 5159 , 0 , 0 , 0 , 0 , 0 , 0 , 0 * 6B
// The third parameter is the QNE altitude in decimetres.
func parseGPWIN(d *Descriptor, line string, info *nav.NavInfo) {
	dm, err := fields(line).Float(2)
	if err != nil {
		return
	}
	alt := d.QNEToQNH(math.Round(dm / 10))
	info.UpdateBaroSource(d.Source, common.BARO_TYPE_LOGGER, alt, d.Clock.Now())
}
