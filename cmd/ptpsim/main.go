package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/openptp/ptpcore"
	"github.com/openptp/ptpcore/pkg/dataset"
	"github.com/openptp/ptpcore/pkg/engine"
	"github.com/openptp/ptpcore/pkg/halref"
	"github.com/openptp/ptpcore/pkg/servo"
	"github.com/openptp/ptpcore/pkg/telemetry"
)

// portConfig is the JSON shape of one pkg/engine.PortConfig.
type portConfig struct {
	PortNumber             uint16 `json:"port_number"`
	LogAnnounceInterval    int8   `json:"log_announce_interval"`
	LogSyncInterval        int8   `json:"log_sync_interval"`
	LogMinDelayReqInterval int8   `json:"log_min_delay_req_interval"`
	AnnounceReceiptTimeout uint8  `json:"announce_receipt_timeout"`
	DelayMechanism         string `json:"delay_mechanism"` // "E2E" or "P2P"
	TwoStep                bool   `json:"two_step"`
}

// clockConfig is the JSON shape of one pkg/engine.EngineConfig plus its
// ports, one simulated node in the topology.
type clockConfig struct {
	ClockIdentity           string       `json:"clock_identity"` // 16 hex digits
	DomainNumber            uint8        `json:"domain_number"`
	Priority1               uint8        `json:"priority1"`
	Priority2               uint8        `json:"priority2"`
	ClockClass              uint8        `json:"clock_class"`
	ClockAccuracy           uint8        `json:"clock_accuracy"`
	OffsetScaledLogVariance uint16       `json:"offset_scaled_log_variance"`
	SlaveOnly               bool         `json:"slave_only"`
	ForeignMasterCapacity   int          `json:"foreign_master_capacity"`
	Profile                 string       `json:"profile"` // "default" or "gptp"
	FrequencyBoundPPB       uint32       `json:"frequency_bound_ppb"`
	Ports                   []portConfig `json:"ports"`
}

// simConfig is the top-level JSON document cmd/ptpsim loads, matching
// the teacher's preference for encoding/json over a third-party config
// format (wrap.go's JSON-tagged ToMap output).
type simConfig struct {
	TickIntervalMillis int           `json:"tick_interval_ms"`
	MetricsAddr        string        `json:"metrics_addr"`
	Clocks             []clockConfig `json:"clocks"`
}

func defaultConfig() simConfig {
	return simConfig{
		TickIntervalMillis: 100,
		MetricsAddr:        ":9598",
		Clocks: []clockConfig{
			{
				ClockIdentity: "aabbccfffedd0001", DomainNumber: 0,
				Priority1: 128, Priority2: 128, ClockClass: 248, ClockAccuracy: 0xfe,
				OffsetScaledLogVariance: 0xffff, ForeignMasterCapacity: 5, Profile: "default",
				FrequencyBoundPPB: 500_000,
				Ports: []portConfig{
					{PortNumber: 1, LogAnnounceInterval: 1, LogSyncInterval: 0, LogMinDelayReqInterval: 0, AnnounceReceiptTimeout: 3, DelayMechanism: "E2E", TwoStep: true},
				},
			},
			{
				ClockIdentity: "aabbccfffedd0002", DomainNumber: 0,
				Priority1: 200, Priority2: 128, ClockClass: 248, ClockAccuracy: 0xfe,
				OffsetScaledLogVariance: 0xffff, ForeignMasterCapacity: 5, Profile: "default",
				FrequencyBoundPPB: 500_000,
				Ports: []portConfig{
					{PortNumber: 1, LogAnnounceInterval: 1, LogSyncInterval: 0, LogMinDelayReqInterval: 0, AnnounceReceiptTimeout: 3, DelayMechanism: "E2E", TwoStep: true},
				},
			},
		},
	}
}

func loadConfig(path string) (simConfig, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return simConfig{}, fmt.Errorf("ptpsim: open config: %w", err)
	}
	defer f.Close()

	cfg := defaultConfig()
	cfg.Clocks = nil
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return simConfig{}, fmt.Errorf("ptpsim: decode config: %w", err)
	}
	return cfg, nil
}

func parseClockIdentity(s string) (ptpcore.ClockIdentity, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("ptpsim: invalid clock_identity %q: %w", s, err)
	}
	return ptpcore.ClockIdentity(v), nil
}

func parseDelayMechanism(s string) dataset.DelayMechanism {
	if s == "P2P" {
		return dataset.P2P
	}
	return dataset.E2E
}

func parseProfile(s string) engine.Profile {
	if s == "gptp" {
		return engine.ProfileGPTP
	}
	return engine.ProfileDefault
}

// node is one simulated clock: its engine and its own oscillator. The
// halref networks its ports use are attached to the shared medium in
// buildTopology and are not kept here.
type node struct {
	eng   *engine.Engine
	clock *halref.Clock
}

func buildTopology(cfg simConfig, medium *halref.Medium, collector *telemetry.Collector) ([]*node, error) {
	var nodes []*node
	for _, cc := range cfg.Clocks {
		identity, err := parseClockIdentity(cc.ClockIdentity)
		if err != nil {
			return nil, err
		}

		eng, err := engine.New(engine.EngineConfig{
			ClockIdentity: identity,
			DomainNumber:  cc.DomainNumber,
			Priority1:     cc.Priority1,
			Priority2:     cc.Priority2,
			ClockQuality: dataset.ClockQuality{
				ClockClass:              cc.ClockClass,
				ClockAccuracy:           cc.ClockAccuracy,
				OffsetScaledLogVariance: cc.OffsetScaledLogVariance,
			},
			SlaveOnly:             cc.SlaveOnly,
			ForeignMasterCapacity: cc.ForeignMasterCapacity,
			Profile:               parseProfile(cc.Profile),
		})
		if err != nil {
			return nil, fmt.Errorf("ptpsim: build engine for clock %s: %w", cc.ClockIdentity, err)
		}

		clock := halref.NewClock(0, cc.FrequencyBoundPPB)
		for _, pc := range cc.Ports {
			portIdentity := ptpcore.PortIdentity{ClockIdentity: identity, PortNumber: ptpcore.PortNumber(pc.PortNumber)}
			network := medium.Attach(portIdentity, clock)
			timer := halref.NewTimer(clock)
			hal := halref.HAL(network, clock, timer)

			p, err := eng.AddPort(ptpcore.PortNumber(pc.PortNumber), engine.PortConfig{
				LogAnnounceInterval:    pc.LogAnnounceInterval,
				LogSyncInterval:        pc.LogSyncInterval,
				LogMinDelayReqInterval: pc.LogMinDelayReqInterval,
				AnnounceReceiptTimeout: pc.AnnounceReceiptTimeout,
				DelayMechanism:         parseDelayMechanism(pc.DelayMechanism),
				TwoStep:                pc.TwoStep,
				Servo: servo.Config{
					Kp:                   0.7,
					Ki:                   0.3,
					StepThresholdNanos:   100_000_000,
					ConvergenceBandNanos: 100,
					FrequencyBoundPPB:    cc.FrequencyBoundPPB,
				},
			}, hal)
			if err != nil {
				return nil, fmt.Errorf("ptpsim: add port %d on clock %s: %w", pc.PortNumber, cc.ClockIdentity, err)
			}
			collector.Add(p)
		}

		nodes = append(nodes, &node{eng: eng, clock: clock})
	}
	return nodes, nil
}

func main() {
	configPath := flag.String("config", "", "path to a JSON topology config (defaults to a built-in two-node demo)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("ptpsim: %v", err)
	}

	medium := halref.NewMedium()
	collector := telemetry.NewCollector()
	prometheus.MustRegister(collector)

	nodes, err := buildTopology(cfg, medium, collector)
	if err != nil {
		logrus.Fatalf("ptpsim: %v", err)
	}

	now := ptpcore.TimestampFromNanos(0)
	for _, n := range nodes {
		n.eng.InitializeAll(now)
	}
	logrus.Infof("ptpsim: %d clocks initialized, session=%s", len(nodes), collector.SessionID())

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			logrus.Errorf("ptpsim: metrics server: %v", err)
		}
	}()
	logrus.Infof("ptpsim: serving telemetry on %s/metrics", cfg.MetricsAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tick := time.Duration(cfg.TickIntervalMillis) * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var elapsed int64
	for {
		select {
		case <-ctx.Done():
			logrus.Infof("ptpsim: shutting down")
			return
		case <-ticker.C:
			elapsed += tick.Nanoseconds()
			for _, n := range nodes {
				n.clock.Advance(tick.Nanoseconds())
				n.eng.Tick(ptpcore.TimestampFromNanos(elapsed))
			}
		}
	}
}
