/*
	Copyright (c) 2022 R. van Twisk
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.
	main.go: flightlink, NMEA telemetry and FLARM traffic from serial, TCP and BLE devices
*/

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/b3nn0/flightlink/comport"
	"github.com/b3nn0/flightlink/config"
	"github.com/b3nn0/flightlink/devices"
	"github.com/b3nn0/flightlink/logger"
	"github.com/b3nn0/flightlink/metrics"
)

func main() {
	configPath := flag.String("config", "/etc/flightlink.yaml", "configuration file")
	listPorts := flag.Bool("list", false, "list serial ports and exit")
	listDrivers := flag.Bool("drivers", false, "list device drivers and exit")
	flag.Parse()

	if *listPorts {
		ports, err := comport.ListSerialPorts()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}
	if *listDrivers {
		for _, d := range devices.Names() {
			fmt.Println(d)
		}
		return
	}

	if err := run(*configPath); err != nil {
		l := logger.Component("main")
		l.Error().Err(err).Msg("flightlink stopped")
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Setup(cfg.Log); err != nil {
		return err
	}
	log := logger.Component("main")

	m, err := NewManager(cfg, nil)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := m.Start(ctx); err != nil {
		return err
	}

	if cfg.Metrics.Listen != "" {
		reg, err := metrics.NewRegistry(m.Collector())
		if err != nil {
			return err
		}
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metrics.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Str("listen", cfg.Metrics.Listen).Msg("metrics endpoint")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			srv.Shutdown(sctx)
		}()
	}

	log.Info().Int("ports", len(cfg.Ports)).Msg("flightlink started")
	m.Run(ctx)
	log.Info().Msg("flightlink stopped")
	return nil
}
