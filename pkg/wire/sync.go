package wire

import (
	"encoding/binary"

	"github.com/openptp/ptpcore"
)

// syncDelayReqBodySize is the Sync/Delay_Req body length (Table 44),
// excluding TLVs.
const syncDelayReqBodySize = timestampWireSize

// SyncMessage is a full Sync packet. In one-step mode OriginTimestamp is
// the precise t1; in two-step mode it is a placeholder and the precise
// t1 arrives in the paired FollowUpMessage (§3 glossary: Two-step).
type SyncMessage struct {
	Header
	OriginTimestamp ptpcore.Timestamp
	TLVs            []TLV
}

func (m *SyncMessage) MarshalBinaryTo(b []byte) (int, error) {
	return marshalSyncLike(&m.Header, m.OriginTimestamp, m.TLVs, b)
}

func unmarshalSyncBody(h *Header, b []byte) (ptpcore.Timestamp, []TLV, error) {
	return unmarshalSyncLike(h, b)
}

// DelayReqMessage is a full Delay_Req packet; same wire shape as Sync
// (Table 44), distinguished only by the header's message type.
type DelayReqMessage struct {
	Header
	OriginTimestamp ptpcore.Timestamp
	TLVs            []TLV
}

func (m *DelayReqMessage) MarshalBinaryTo(b []byte) (int, error) {
	return marshalSyncLike(&m.Header, m.OriginTimestamp, m.TLVs, b)
}

func marshalSyncLike(h *Header, ts ptpcore.Timestamp, tlvs []TLV, b []byte) (int, error) {
	if len(b) < HeaderSize+syncDelayReqBodySize {
		return 0, ptpcore.NewParseError(ptpcore.TooShort, "buffer too small for Sync/Delay_Req")
	}
	marshalHeader(h, b)
	n := HeaderSize
	putTimestamp(b[n:], ts)
	pos := n + syncDelayReqBodySize
	written, err := writeTLVs(tlvs, b[pos:])
	if err != nil {
		return 0, err
	}
	total := pos + written
	binary.BigEndian.PutUint16(b[2:], uint16(total))
	return total, nil
}

func unmarshalSyncLike(h *Header, b []byte) (ptpcore.Timestamp, []TLV, error) {
	if len(b) < syncDelayReqBodySize {
		return ptpcore.Timestamp{}, nil, ptpcore.NewParseError(ptpcore.TooShort, "Sync/Delay_Req body truncated")
	}
	ts := getTimestamp(b)
	tlvLen := int(h.MessageLength) - HeaderSize - syncDelayReqBodySize
	tlvs, err := readTLVs(tlvLen, b[syncDelayReqBodySize:])
	if err != nil {
		return ptpcore.Timestamp{}, nil, err
	}
	return ts, tlvs, nil
}
