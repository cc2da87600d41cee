package wire

import (
	"encoding/binary"

	"github.com/openptp/ptpcore"
)

// delayRespBodySize is the Delay_Resp body length (Table 46).
const delayRespBodySize = timestampWireSize + 10

// DelayRespMessage carries t4 and identifies which port's Delay_Req it
// answers (Table 46).
type DelayRespMessage struct {
	Header
	ReceiveTimestamp       ptpcore.Timestamp
	RequestingPortIdentity ptpcore.PortIdentity
}

func (m *DelayRespMessage) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < HeaderSize+delayRespBodySize {
		return 0, ptpcore.NewParseError(ptpcore.TooShort, "buffer too small for Delay_Resp")
	}
	marshalHeader(&m.Header, b)
	n := HeaderSize
	putTimestamp(b[n:], m.ReceiveTimestamp)
	binary.BigEndian.PutUint64(b[n+10:], uint64(m.RequestingPortIdentity.ClockIdentity))
	binary.BigEndian.PutUint16(b[n+18:], uint16(m.RequestingPortIdentity.PortNumber))
	total := n + delayRespBodySize
	binary.BigEndian.PutUint16(b[2:], uint16(total))
	return total, nil
}

func unmarshalDelayRespBody(m *DelayRespMessage, b []byte) error {
	if len(b) < delayRespBodySize {
		return ptpcore.NewParseError(ptpcore.TooShort, "Delay_Resp body truncated")
	}
	m.ReceiveTimestamp = getTimestamp(b)
	m.RequestingPortIdentity.ClockIdentity = ptpcore.ClockIdentity(binary.BigEndian.Uint64(b[10:]))
	m.RequestingPortIdentity.PortNumber = ptpcore.PortNumber(binary.BigEndian.Uint16(b[18:]))
	return nil
}
