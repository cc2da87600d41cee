package port

import (
	"github.com/openptp/ptpcore"
	"github.com/openptp/ptpcore/pkg/dataset"
	"github.com/openptp/ptpcore/pkg/estimator"
)

// DelayMechanism abstracts the delay-measurement strategy a port uses
// (§6 config table's delay_mechanism option). E2E is fully specified;
// P2P is acknowledged as an extension but not specified, so it is given
// a type-safe home that fails loudly rather than silently behaving like
// E2E.
type DelayMechanism interface {
	Kind() dataset.DelayMechanism
	SyncOrigin(seq uint16, t1 ptpcore.Timestamp, correction ptpcore.Duration, now ptpcore.Timestamp) error
	SyncIngress(seq uint16, t2 ptpcore.Timestamp, now ptpcore.Timestamp) error
	DelayReqEgress(seq uint16, t3 ptpcore.Timestamp, now ptpcore.Timestamp) error
	DelayRespIngress(seq uint16, t4 ptpcore.Timestamp, correction ptpcore.Duration, now ptpcore.Timestamp) (estimator.Result, bool, error)
	ExpireOlderThan(now ptpcore.Timestamp) []uint16
	Reset()
}

// E2EDelayMechanism is the §4.3 end-to-end delay/offset estimator,
// wired behind the DelayMechanism interface so a port can be configured
// for E2E without knowing anything about the estimator's internals.
type E2EDelayMechanism struct {
	est *estimator.Estimator
}

// NewE2EDelayMechanism constructs the E2E mechanism from an estimator
// configuration (§4.3, §6).
func NewE2EDelayMechanism(cfg estimator.Config) (*E2EDelayMechanism, error) {
	est, err := estimator.New(cfg)
	if err != nil {
		return nil, err
	}
	return &E2EDelayMechanism{est: est}, nil
}

func (m *E2EDelayMechanism) Kind() dataset.DelayMechanism { return dataset.E2E }

func (m *E2EDelayMechanism) SyncOrigin(seq uint16, t1 ptpcore.Timestamp, correction ptpcore.Duration, now ptpcore.Timestamp) error {
	return m.est.RecordSyncOrigin(seq, t1, correction, now)
}

func (m *E2EDelayMechanism) SyncIngress(seq uint16, t2 ptpcore.Timestamp, now ptpcore.Timestamp) error {
	return m.est.RecordSyncIngress(seq, t2, now)
}

func (m *E2EDelayMechanism) DelayReqEgress(seq uint16, t3 ptpcore.Timestamp, now ptpcore.Timestamp) error {
	return m.est.RecordDelayReqEgress(seq, t3, now)
}

func (m *E2EDelayMechanism) DelayRespIngress(seq uint16, t4 ptpcore.Timestamp, correction ptpcore.Duration, now ptpcore.Timestamp) (estimator.Result, bool, error) {
	return m.est.RecordDelayRespIngress(seq, t4, correction, now)
}

func (m *E2EDelayMechanism) ExpireOlderThan(now ptpcore.Timestamp) []uint16 {
	return m.est.ExpireOlderThan(now)
}

func (m *E2EDelayMechanism) Reset() { m.est.Reset() }

// P2PUnsupported is the stub for the peer-to-peer delay mechanism,
// which spec.md's Design Notes acknowledge as an extension point
// without specifying its semantics. Every operation fails with
// ErrDelayMechanismUnsupported rather than silently approximating E2E
// behavior.
type P2PUnsupported struct{}

func (P2PUnsupported) Kind() dataset.DelayMechanism { return dataset.P2P }

func (P2PUnsupported) SyncOrigin(uint16, ptpcore.Timestamp, ptpcore.Duration, ptpcore.Timestamp) error {
	return ptpcore.ErrDelayMechanismUnsupported
}

func (P2PUnsupported) SyncIngress(uint16, ptpcore.Timestamp, ptpcore.Timestamp) error {
	return ptpcore.ErrDelayMechanismUnsupported
}

func (P2PUnsupported) DelayReqEgress(uint16, ptpcore.Timestamp, ptpcore.Timestamp) error {
	return ptpcore.ErrDelayMechanismUnsupported
}

func (P2PUnsupported) DelayRespIngress(uint16, ptpcore.Timestamp, ptpcore.Duration, ptpcore.Timestamp) (estimator.Result, bool, error) {
	return estimator.Result{}, false, ptpcore.ErrDelayMechanismUnsupported
}

func (P2PUnsupported) ExpireOlderThan(ptpcore.Timestamp) []uint16 { return nil }

func (P2PUnsupported) Reset() {}
