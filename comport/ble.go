/*
	Copyright (c) 2021 R. van Twisk
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	ble.go: Bluetooth LE serial transport for HM-10 style GATT bridges
*/

package comport

import (
	"fmt"
	"sync"
	"time"

	"github.com/b3nn0/flightlink/common"
	"go.uber.org/atomic"
	"tinygo.org/x/bluetooth"
)

var (
	HM_10_CONF, _ = bluetooth.ParseUUID("0000ffe0-0000-1000-8000-00805f9b34fb")
	BLE_RX, _     = bluetooth.ParseUUID("0000ffe1-0000-1000-8000-00805f9b34fb")
)

// WATCHDOG for the blue device, if we do not receive data for this long the link is dropped and dialed again
const WATCHDOG_RECEIVE_TIMER = 3000 * time.Millisecond

// GATT writes are limited to the default ATT payload
const bleWriteChunk = 20

// BLETransport reads a serial stream from notifications on the HM-10
// characteristic and writes back to it.
type BLETransport struct {
	mac     string
	adapter *bluetooth.Adapter

	rx      chan []byte
	cancel  chan struct{}
	pending []byte // only touched by Read
	dropped atomic.Uint64

	mu         sync.Mutex
	connected  bool
	closed     bool
	rxTimeout  time.Duration
	char       bluetooth.DeviceCharacteristic
	disconnect func() error
	wd         *common.Watchdog
}

func NewBLETransport(mac string) *BLETransport {
	return &BLETransport{
		mac:       mac,
		adapter:   bluetooth.DefaultAdapter,
		rx:        make(chan []byte, 128),
		cancel:    make(chan struct{}, 1),
		rxTimeout: DefaultRxTimeout,
	}
}

func (b *BLETransport) Name() string { return "ble:" + b.mac }

// Dropped counts notifications lost because the reader fell behind.
func (b *BLETransport) Dropped() uint64 { return b.dropped.Load() }

func (b *BLETransport) Open() error {
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("enable bluetooth adapter: %w", err)
	}
	b.mu.Lock()
	b.closed = false
	b.mu.Unlock()
	return b.connect()
}

// connect attaches to the device and subscribes to its rx characteristic.
func (b *BLETransport) connect() error {
	address, err := bluetooth.ParseMAC(b.mac)
	if err != nil {
		return err
	}
	device, err := b.adapter.Connect(bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: address}}, bluetooth.ConnectionParams{})
	if err != nil {
		return err
	}

	fail := func(err error) error {
		device.Disconnect()
		return err
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{HM_10_CONF})
	if err != nil {
		return fail(err)
	}
	if len(services) == 0 {
		return fail(fmt.Errorf("%s: no HM-10 service", b.mac))
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{BLE_RX})
	if err != nil {
		return fail(err)
	}
	if len(chars) == 0 {
		return fail(fmt.Errorf("%s: no rx characteristic", b.mac))
	}

	wd := common.NewWatchdog(WATCHDOG_RECEIVE_TIMER)
	char := chars[0]
	err = char.EnableNotifications(func(value []byte) {
		wd.Poke()
		// The callback may run on the stack's event loop, never block it.
		select {
		case b.rx <- append([]byte(nil), value...):
		default:
			b.dropped.Inc()
		}
	})
	if err != nil {
		wd.Stop()
		return fail(err)
	}
	wd.Poke()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.char = char
	b.wd = wd
	b.disconnect = func() error { return device.Disconnect() }
	b.connected = true
	return nil
}

func (b *BLETransport) drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return
	}
	b.connected = false
	b.wd.Stop()
	b.disconnect()
}

func (b *BLETransport) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.drop()
	b.CancelWaitEvent()
	return nil
}

func (b *BLETransport) state() (connected bool, closed bool, timeout time.Duration, wd *common.Watchdog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected, b.closed, b.rxTimeout, b.wd
}

func (b *BLETransport) Read(p []byte) (int, error) {
	connected, closed, timeout, wd := b.state()
	if closed {
		return 0, ErrPortUnavailable
	}
	if !connected {
		if err := b.connect(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrLinkLost, err)
		}
		_, _, timeout, wd = b.state()
	}
	if len(b.pending) == 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case chunk := <-b.rx:
			b.pending = chunk
		case <-wd.C:
			b.drop()
			return 0, ErrLinkLost
		case <-b.cancel:
			return 0, nil
		case <-timer.C:
			return 0, nil
		}
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

func (b *BLETransport) Write(p []byte) (int, error) {
	b.mu.Lock()
	char, connected := b.char, b.connected
	b.mu.Unlock()
	if !connected {
		return 0, ErrPortUnavailable
	}
	written := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > bleWriteChunk {
			chunk = chunk[:bleWriteChunk]
		}
		n, err := char.WriteWithoutResponse(chunk)
		written += n
		if err != nil {
			return written, err
		}
		p = p[len(chunk):]
	}
	return written, nil
}

func (b *BLETransport) Flush() error { return nil }

// Purge drops queued notifications.
func (b *BLETransport) Purge() error {
	for {
		select {
		case <-b.rx:
		default:
			return nil
		}
	}
}

func (b *BLETransport) CancelWaitEvent() {
	select {
	case b.cancel <- struct{}{}:
	default:
	}
}

func (b *BLETransport) SetRxTimeout(d time.Duration) error {
	b.mu.Lock()
	b.rxTimeout = d
	b.mu.Unlock()
	return nil
}

func (b *BLETransport) SetBaudrate(int) error { return nil }
func (b *BLETransport) Baudrate() int         { return 0 }

func (b *BLETransport) IsReady() bool {
	connected, _, _, _ := b.state()
	return connected
}
