/*
	Copyright (c) 2022 R. van Twisk
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.
	collector.go: Prometheus view of port, parser and navigation counters
*/

package metrics

import (
	"sync"

	"github.com/b3nn0/flightlink/comport"
	"github.com/b3nn0/flightlink/nav"
	"github.com/b3nn0/flightlink/parser"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flightlink"

var (
	portLabels = []string{"port"}

	rxBytesDesc   = prometheus.NewDesc(namespace+"_port_rx_bytes_total", "Bytes received.", portLabels, nil)
	txBytesDesc   = prometheus.NewDesc(namespace+"_port_tx_bytes_total", "Bytes sent.", portLabels, nil)
	rxErrorsDesc  = prometheus.NewDesc(namespace+"_port_rx_errors_total", "Failed reads.", portLabels, nil)
	txErrorsDesc  = prometheus.NewDesc(namespace+"_port_tx_errors_total", "Failed writes.", portLabels, nil)
	linesDesc     = prometheus.NewDesc(namespace+"_port_lines_total", "Assembled lines.", portLabels, nil)
	overflowsDesc = prometheus.NewDesc(namespace+"_port_overflows_total", "Lines discarded for exceeding the maximum length.", portLabels, nil)
	portUpDesc    = prometheus.NewDesc(namespace+"_port_up", "1 when the port is open and healthy.", portLabels, nil)

	sentencesDesc = prometheus.NewDesc(namespace+"_parser_sentences_total", "Sentences by outcome.", []string{"port", "result"}, nil)
	malformedDesc = prometheus.NewDesc(namespace+"_parser_malformed_fields_total", "Fields present but unreadable.", portLabels, nil)
	droppedDesc   = prometheus.NewDesc(namespace+"_traffic_dropped_total", "Traffic reports dropped on a full table.", portLabels, nil)

	trafficDesc = prometheus.NewDesc(namespace+"_traffic_targets", "Targets in the traffic table.", nil, nil)
	fixDesc     = prometheus.NewDesc(namespace+"_gps_fix", "1 while a valid fix is held.", nil, nil)
	baroDesc    = prometheus.NewDesc(namespace+"_baro_altitude_meters", "Barometric altitude, absent without a source.", []string{"source"}, nil)
)

type source struct {
	port   *comport.ComPort
	parser *parser.Parser
}

// Collector exports the counters of every registered port and a few gauges
// of the navigation state.
type Collector struct {
	state *nav.State

	mu      sync.Mutex
	sources []source
}

func NewCollector(state *nav.State) *Collector {
	return &Collector{state: state}
}

// Add registers port and its parser. p may be nil.
func (c *Collector) Add(port *comport.ComPort, p *parser.Parser) {
	c.mu.Lock()
	c.sources = append(c.sources, source{port: port, parser: p})
	c.mu.Unlock()
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		rxBytesDesc, txBytesDesc, rxErrorsDesc, txErrorsDesc, linesDesc, overflowsDesc, portUpDesc,
		sentencesDesc, malformedDesc, droppedDesc,
		trafficDesc, fixDesc, baroDesc,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	sources := append([]source(nil), c.sources...)
	c.mu.Unlock()

	for _, s := range sources {
		name := s.port.Name()
		st := s.port.Stats().Snapshot()
		counter := func(d *prometheus.Desc, v uint64, labels ...string) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), append([]string{name}, labels...)...)
		}
		counter(rxBytesDesc, st.RxBytes)
		counter(txBytesDesc, st.TxBytes)
		counter(rxErrorsDesc, st.RxErrors)
		counter(txErrorsDesc, st.TxErrors)
		counter(linesDesc, st.Lines)
		counter(overflowsDesc, st.Overflows)

		up := 0.0
		if s.port.Status() == comport.PortOpenOK {
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(portUpDesc, prometheus.GaugeValue, up, name)

		if s.parser == nil {
			continue
		}
		ps := s.parser.Stats()
		counter(sentencesDesc, ps.Accepted.Load(), "accepted")
		counter(sentencesDesc, ps.ChecksumErrors.Load(), "checksum")
		counter(sentencesDesc, ps.TooLong.Load(), "too_long")
		counter(sentencesDesc, ps.UnknownTags.Load(), "unknown")
		counter(malformedDesc, ps.MalformedFields.Load())
		counter(droppedDesc, ps.TrafficDropped.Load())
	}

	if c.state == nil {
		return
	}
	info := c.state.Snapshot()
	ch <- prometheus.MustNewConstMetric(trafficDesc, prometheus.GaugeValue, float64(info.Traffic.Count()))
	fix := 0.0
	if !info.NAVWarning {
		fix = 1
	}
	ch <- prometheus.MustNewConstMetric(fixDesc, prometheus.GaugeValue, fix)
	if info.BaroAltitudeAvailable {
		ch <- prometheus.MustNewConstMetric(baroDesc, prometheus.GaugeValue, info.BaroAltitude, info.BaroSourceName)
	}
}
