// Package engine aggregates one clock's ports into a single container
// (§2): the shared DefaultDS/ParentDS/TimePropertiesDS/CurrentDS plus the
// per-port state machines, driven by one Tick call per cooperative
// scheduling pass (§5). It plays the role the teacher's plain
// struct-and-method style gives a connection pool or listener set,
// generalized here to "the set of ports this clock owns" rather than
// "the set of sockets this process is instrumenting".
package engine

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/openptp/ptpcore"
	"github.com/openptp/ptpcore/pkg/dataset"
	"github.com/openptp/ptpcore/pkg/estimator"
	"github.com/openptp/ptpcore/pkg/port"
	"github.com/openptp/ptpcore/pkg/servo"
)

// Profile names a runtime preset chosen once, at New, which validates and
// logs it; no other engine setting depends on it, and nothing re-checks
// it after New (§9 Open Questions: "profile-selection timing ... should be
// preserved as a runtime choice applied only at initialize").
type Profile int

const (
	ProfileDefault Profile = iota
	ProfileGPTP
)

func (p Profile) String() string {
	if p == ProfileGPTP {
		return "gPTP"
	}
	return "default"
}

// EngineConfig is the clock-wide configuration surface (§6's table).
type EngineConfig struct {
	ClockIdentity         ptpcore.ClockIdentity
	DomainNumber          uint8
	Priority1, Priority2  uint8
	ClockQuality          dataset.ClockQuality
	SlaveOnly             bool
	ForeignMasterCapacity int // >= dataset.MinForeignMasterCapacity
	Profile               Profile
}

// Validate checks the bounds EngineConfig must satisfy before any port
// reaches INITIALIZING (§6, §7).
func (c EngineConfig) Validate() error {
	if c.ForeignMasterCapacity < dataset.MinForeignMasterCapacity {
		return fmt.Errorf("%w: foreign_master_capacity %d below minimum %d", ptpcore.ErrConfigConflict, c.ForeignMasterCapacity, dataset.MinForeignMasterCapacity)
	}
	if c.Profile != ProfileDefault && c.Profile != ProfileGPTP {
		return fmt.Errorf("%w: unknown profile %d", ptpcore.ErrConfigConflict, c.Profile)
	}
	return nil
}

// PortConfig is the per-port configuration surface (§6's table).
type PortConfig struct {
	LogAnnounceInterval    int8
	LogSyncInterval        int8
	LogMinDelayReqInterval int8
	AnnounceReceiptTimeout uint8 // >= 2
	DelayMechanism         dataset.DelayMechanism
	TwoStep                bool
	Servo                  servo.Config

	ForeignMasterWindowMultiplier int64 // default 4 when zero
	EstimatorCapacity             int   // default 2 when zero
	EstimatorCeilingNanos         int64 // default 10 x syncInterval when zero
}

// Engine owns one clock's shared datasets and the ports built against
// them. Ports are added after construction, one per physical or
// simulated network attachment, via AddPort.
type Engine struct {
	cfg EngineConfig

	defaultDS *dataset.DefaultDS
	parentDS  *dataset.ParentDS
	timeProps *dataset.TimePropertiesDS
	currentDS *dataset.CurrentDS

	ports []*port.Port
}

// New validates cfg and constructs an Engine with zero ports. Every bound
// violation is reported here, wrapped in ErrConfigConflict, before any
// port is built (§6).
func New(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	defaultDS := &dataset.DefaultDS{}
	defaultDS.Init(cfg.ClockIdentity, 0, cfg.ClockQuality, cfg.Priority1, cfg.Priority2, ptpcore.DomainNumber(cfg.DomainNumber), cfg.SlaveOnly, false)

	e := &Engine{
		cfg:       cfg,
		defaultDS: defaultDS,
		parentDS:  &dataset.ParentDS{},
		timeProps: &dataset.TimePropertiesDS{},
		currentDS: &dataset.CurrentDS{},
	}
	logrus.Infof("engine: initialized clock %s domain=%d profile=%s", cfg.ClockIdentity, cfg.DomainNumber, cfg.Profile)
	return e, nil
}

// AddPort builds a new port against this engine's shared datasets and the
// given HAL, in INITIALIZING state, and appends it to the engine's port
// set. portNumber must be unique among the engine's existing ports.
func (e *Engine) AddPort(portNumber ptpcore.PortNumber, cfg PortConfig, hal ptpcore.HAL) (*port.Port, error) {
	if portNumber == 0 {
		return nil, fmt.Errorf("%w: port number must be nonzero", ptpcore.ErrConfigConflict)
	}
	identity := ptpcore.PortIdentity{ClockIdentity: e.defaultDS.ClockIdentity, PortNumber: portNumber}
	for _, p := range e.ports {
		if p.Identity() == identity {
			return nil, fmt.Errorf("%w: port number %d already in use", ptpcore.ErrConfigConflict, portNumber)
		}
	}

	delay, err := newDelayMechanism(cfg)
	if err != nil {
		return nil, err
	}
	srv, err := servo.New(cfg.Servo)
	if err != nil {
		return nil, err
	}

	portCfg := port.Config{
		PortDS: dataset.PortDS{
			PortIdentity:           identity,
			LogAnnounceInterval:    cfg.LogAnnounceInterval,
			LogSyncInterval:        cfg.LogSyncInterval,
			LogMinDelayReqInterval: cfg.LogMinDelayReqInterval,
			AnnounceReceiptTimeout: cfg.AnnounceReceiptTimeout,
			VersionNumber:          2,
		},
		ForeignMasterCapacity:         e.cfg.ForeignMasterCapacity,
		ForeignMasterWindowMultiplier: cfg.ForeignMasterWindowMultiplier,
		EstimatorCeilingNanos:         cfg.EstimatorCeilingNanos,
		Delay:                         delay,
	}
	e.defaultDS.TwoStepFlag = e.defaultDS.TwoStepFlag || cfg.TwoStep

	p, err := port.New(portCfg, e.defaultDS, e.parentDS, e.timeProps, e.currentDS, srv, hal)
	if err != nil {
		return nil, err
	}
	e.ports = append(e.ports, p)
	e.defaultDS.NumberPorts = uint16(len(e.ports))
	logrus.Infof("engine: added port %s delay=%s", identity, cfg.DelayMechanism)
	return p, nil
}

func newDelayMechanism(cfg PortConfig) (port.DelayMechanism, error) {
	if cfg.DelayMechanism == dataset.P2P {
		return port.P2PUnsupported{}, nil
	}
	capacity := cfg.EstimatorCapacity
	if capacity == 0 {
		capacity = 2
	}
	ceiling := cfg.EstimatorCeilingNanos
	if ceiling == 0 {
		ceiling = 10 * dataset.PortDS{LogSyncInterval: cfg.LogSyncInterval}.SyncIntervalNanos()
	}
	return port.NewE2EDelayMechanism(estimator.Config{
		Capacity:     capacity,
		CeilingNanos: ceiling,
	})
}

// Ports returns the engine's ports, in the order they were added.
func (e *Engine) Ports() []*port.Port { return e.ports }

// Port looks up a port by identity, or returns nil if none matches.
func (e *Engine) Port(identity ptpcore.PortIdentity) *port.Port {
	for _, p := range e.ports {
		if p.Identity() == identity {
			return p
		}
	}
	return nil
}

// InitializeAll moves every port out of INITIALIZING and into LISTENING
// (§4.1's entry transition), e.g. once the embedding host has finished
// calling AddPort for every physical interface.
func (e *Engine) InitializeAll(now ptpcore.Timestamp) {
	for _, p := range e.ports {
		p.Initialize(now)
	}
}

// Tick drives one scheduling pass (§5) across every owned port, in a
// fixed deterministic order so a given sequence of HAL events always
// replays identically. Ports are independent state machines; nothing
// here serializes one port's send against another's receive beyond this
// ordering.
func (e *Engine) Tick(now ptpcore.Timestamp) {
	for _, p := range e.ports {
		p.Tick(now)
	}
}

// IsGrandmaster reports whether this clock is currently the selected
// grandmaster (§3, §8.7).
func (e *Engine) IsGrandmaster() bool {
	return dataset.IsGrandmaster(*e.defaultDS, *e.parentDS)
}

// DefaultDS returns a snapshot of the engine's DefaultDS.
func (e *Engine) DefaultDS() dataset.DefaultDS { return *e.defaultDS }

// ParentDS returns a snapshot of the engine's ParentDS.
func (e *Engine) ParentDS() dataset.ParentDS { return *e.parentDS }

// CurrentDS returns a snapshot of the engine's CurrentDS.
func (e *Engine) CurrentDS() dataset.CurrentDS { return *e.currentDS }

// TimePropertiesDS returns a snapshot of the engine's TimePropertiesDS.
func (e *Engine) TimePropertiesDS() dataset.TimePropertiesDS { return *e.timeProps }
