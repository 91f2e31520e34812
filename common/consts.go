package common

// Transport types accepted by the port factory.
const (
	PORT_TYPE_SERIAL       = "serial"
	PORT_TYPE_SERIAL_BUGST = "serial-bugst"
	PORT_TYPE_TCP          = "tcp"
	PORT_TYPE_TCP_SERVER   = "tcp-server"
	PORT_TYPE_BLE          = "ble"
	PORT_TYPE_VIRTUAL      = "virtual"
)

// Default TCP port a feeder can connect to (e.g. OGN Tracker over wifi)
const DEFAULT_TCP_LISTEN_PORT = 30011

// Sources of the barometric altitude, in the order they are usually preferred
const (
	BARO_TYPE_NONE       = 0 // No baro present
	BARO_TYPE_NMEA       = 1 // NMEA provider that reports $PGRMZ (SoftRF, FLARM)
	BARO_TYPE_OGNTRACKER = 2 // OGN Tracker with baro pressure ($POGNB)
	BARO_TYPE_LOGGER     = 3 // Logger reporting QNE altitude in a vendor sentence
	BARO_TYPE_LK8EX      = 4 // $PLKAS vario feed
)

func BaroTypeName(t int) string {
	switch t {
	case BARO_TYPE_NMEA:
		return "nmea"
	case BARO_TYPE_OGNTRACKER:
		return "ogn"
	case BARO_TYPE_LOGGER:
		return "logger"
	case BARO_TYPE_LK8EX:
		return "lk8ex"
	}
	return "none"
}

// MsgType is the severity of a status message
type MsgType int

const (
	MSG_INFO MsgType = iota
	MSG_WARNING
	MSG_ERROR
)

func (m MsgType) String() string {
	switch m {
	case MSG_WARNING:
		return "warning"
	case MSG_ERROR:
		return "error"
	}
	return "info"
}
