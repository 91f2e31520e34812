package comport

import (
	"fmt"

	"github.com/b3nn0/flightlink/common"
	"github.com/b3nn0/flightlink/config"
)

// NewTransport builds the transport a port configuration asks for. It does
// not open it.
func NewTransport(cfg config.Port) (Transport, error) {
	var t Transport
	switch cfg.Type {
	case common.PORT_TYPE_SERIAL, "":
		t = NewSerialTransport(cfg.Device, cfg.Baud, cfg.AutoBaud)
	case common.PORT_TYPE_SERIAL_BUGST:
		t = NewBugstSerialTransport(cfg.Device, cfg.Baud)
	case common.PORT_TYPE_TCP:
		t = NewTCPClientTransport(cfg.Address)
	case common.PORT_TYPE_TCP_SERVER:
		t = NewTCPServerTransport(cfg.ListenPort)
	case common.PORT_TYPE_BLE:
		t = NewBLETransport(cfg.MAC)
	case common.PORT_TYPE_VIRTUAL:
		t = NewVirtualTransport(cfg.Name)
	default:
		return nil, fmt.Errorf("unknown port type %q", cfg.Type)
	}
	if cfg.RxTimeout > 0 {
		if err := t.SetRxTimeout(cfg.RxTimeout); err != nil {
			return nil, err
		}
	}
	return t, nil
}
