package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/b3nn0/flightlink/common"
	"github.com/b3nn0/flightlink/comport"
	"github.com/b3nn0/flightlink/nav"
	"github.com/b3nn0/flightlink/parser"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, c *Collector) map[string]*dto.MetricFamily {
	t.Helper()
	reg, err := NewRegistry(c)
	require.NoError(t, err)
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]*dto.MetricFamily{}
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestCollector(t *testing.T) {
	state := nav.NewState(10)
	p := parser.New(parser.DefaultOptions())
	state.Update(func(info *nav.NavInfo) {
		require.NoError(t, p.ParseSentence("virt", "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47", info))
		require.NoError(t, p.ParseSentence("virt", common.AppendNmeaChecksum("$PFLAA,0,100,100,10,2,DDA85C,0,0,0,0,1"), info))
		require.Error(t, p.ParseSentence("virt", "$GPGGA,1*00", info))
		require.True(t, info.UpdateBaroSource("virt", common.BARO_TYPE_NMEA, 321, time.Now()))
	})

	v := comport.NewVirtualTransport("virt")
	port := comport.New(0, "", v, nil)
	require.NoError(t, port.Initialize())
	t.Cleanup(func() { port.Close() })
	require.True(t, port.WriteString("hello"))

	c := NewCollector(state)
	c.Add(port, p)
	m := gather(t, c)

	require.Contains(t, m, "flightlink_port_tx_bytes_total")
	assert.Equal(t, 5.0, m["flightlink_port_tx_bytes_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, m["flightlink_port_up"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 1.0, m["flightlink_traffic_targets"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 1.0, m["flightlink_gps_fix"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 321.0, m["flightlink_baro_altitude_meters"].GetMetric()[0].GetGauge().GetValue())

	results := map[string]float64{}
	for _, metric := range m["flightlink_parser_sentences_total"].GetMetric() {
		for _, l := range metric.GetLabel() {
			if l.GetName() == "result" {
				results[l.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{"accepted": 2, "checksum": 1, "too_long": 0, "unknown": 0}, results)
}

func TestHandler(t *testing.T) {
	c := NewCollector(nav.NewState(10))
	reg, err := NewRegistry(c)
	require.NoError(t, err)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "flightlink_gps_fix 0"))
}
