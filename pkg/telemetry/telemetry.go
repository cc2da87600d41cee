// Package telemetry exposes the read-only counters of §6 both as plain
// snapshot values and as a prometheus.Collector, directly adapted from
// the teacher's pkg/exporter.TCPInfoCollector: a mutex-protected
// registry of live instances (there, net.Conn; here, *port.Port) walked
// once per Collect call.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"

	"github.com/openptp/ptpcore"
	"github.com/openptp/ptpcore/pkg/dataset"
	"github.com/openptp/ptpcore/pkg/port"
)

// Snapshot is one port's telemetry at the instant it was read — the
// allocation-free-adjacent read path the port state machine's own
// callers use when they don't want a full Prometheus scrape (§6).
type Snapshot struct {
	PortIdentity ptpcore.PortIdentity
	State        dataset.PortState
	Counters     port.Counters
}

// Collector aggregates every registered port's Counters into a
// prometheus.Collector. Registration is dynamic (Add/Remove), matching
// the teacher's Add(conn)/Remove(conn) shape in pkg/exporter/exporter.go
// rather than a fixed set known at construction.
type Collector struct {
	mu        sync.Mutex
	ports     map[ptpcore.PortIdentity]*port.Port
	sessionID xid.ID

	announcesRx     *prometheus.Desc
	syncsRx         *prometheus.Desc
	bmcaSelections  *prometheus.Desc
	bmcaPassiveWins *prometheus.Desc
	offsetsComputed *prometheus.Desc
	parseErrors     *prometheus.Desc
	holdoverEntries *prometheus.Desc
	portState       *prometheus.Desc
}

// NewCollector constructs an empty Collector, tagged with a fresh xid so
// every metric it emits in this process's lifetime carries the same
// session label — the same "opaque correlation label" role xid.New()
// plays for the estimator's in-flight cycles (pkg/estimator).
func NewCollector() *Collector {
	sessionID := xid.New()
	constLabels := prometheus.Labels{"session": sessionID.String()}
	labels := []string{"port"}

	return &Collector{
		ports:     make(map[ptpcore.PortIdentity]*port.Port),
		sessionID: sessionID,
		announcesRx: prometheus.NewDesc(
			"ptp_announces_received_total", "Announce messages received on this port.", labels, constLabels),
		syncsRx: prometheus.NewDesc(
			"ptp_syncs_received_total", "Sync messages received on this port.", labels, constLabels),
		bmcaSelections: prometheus.NewDesc(
			"ptp_bmca_selections_total", "BMCA decision runs on this port.", labels, constLabels),
		bmcaPassiveWins: prometheus.NewDesc(
			"ptp_bmca_passive_wins_total", "BMCA runs on this port that resulted in PASSIVE.", labels, constLabels),
		offsetsComputed: prometheus.NewDesc(
			"ptp_offsets_computed_total", "Offset/delay estimates completed on this port.", labels, constLabels),
		parseErrors: prometheus.NewDesc(
			"ptp_parse_errors_total", "Malformed messages dropped at ingress on this port.", labels, constLabels),
		holdoverEntries: prometheus.NewDesc(
			"ptp_holdover_entries_total", "Times this port's servo entered HOLDOVER after a HAL clock fault.", labels, constLabels),
		portState: prometheus.NewDesc(
			"ptp_port_state", "Current port state machine state, as the dataset.PortState ordinal.", labels, constLabels),
	}
}

// SessionID returns the collector's session identifier.
func (c *Collector) SessionID() xid.ID { return c.sessionID }

// Add registers p so its counters are included in future Collect calls.
func (c *Collector) Add(p *port.Port) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ports[p.Identity()] = p
}

// Remove unregisters the port with the given identity, e.g. when a
// hot-unpluggable interface is removed.
func (c *Collector) Remove(identity ptpcore.PortIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ports, identity)
}

// Snapshot returns a read-only copy of every registered port's current
// state and counters (§6).
func (c *Collector) Snapshot() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Snapshot, 0, len(c.ports))
	for identity, p := range c.ports {
		out = append(out, Snapshot{
			PortIdentity: identity,
			State:        p.State(),
			Counters:     p.Stats(),
		})
	}
	return out
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.announcesRx
	descs <- c.syncsRx
	descs <- c.bmcaSelections
	descs <- c.bmcaPassiveWins
	descs <- c.offsetsComputed
	descs <- c.parseErrors
	descs <- c.holdoverEntries
	descs <- c.portState
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	for _, snap := range c.Snapshot() {
		label := snap.PortIdentity.String()
		counters := snap.Counters

		metrics <- prometheus.MustNewConstMetric(c.announcesRx, prometheus.CounterValue, float64(counters.AnnouncesRx), label)
		metrics <- prometheus.MustNewConstMetric(c.syncsRx, prometheus.CounterValue, float64(counters.SyncsRx), label)
		metrics <- prometheus.MustNewConstMetric(c.bmcaSelections, prometheus.CounterValue, float64(counters.BMCASelections), label)
		metrics <- prometheus.MustNewConstMetric(c.bmcaPassiveWins, prometheus.CounterValue, float64(counters.BMCAPassiveWins), label)
		metrics <- prometheus.MustNewConstMetric(c.offsetsComputed, prometheus.CounterValue, float64(counters.OffsetsComputed), label)
		metrics <- prometheus.MustNewConstMetric(c.parseErrors, prometheus.CounterValue, float64(counters.ParseErrors), label)
		metrics <- prometheus.MustNewConstMetric(c.holdoverEntries, prometheus.CounterValue, float64(counters.HoldoverEntries), label)
		metrics <- prometheus.MustNewConstMetric(c.portState, prometheus.GaugeValue, float64(snap.State), label)
	}
}
