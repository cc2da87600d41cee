package wire

import (
	"github.com/openptp/ptpcore"
)

// Message is any decoded PTP message; callers type-switch on the
// concrete type to reach message-specific fields.
type Message interface {
	messageHeader() *Header
}

func (m *AnnounceMessage) messageHeader() *Header  { return &m.Header }
func (m *SyncMessage) messageHeader() *Header      { return &m.Header }
func (m *DelayReqMessage) messageHeader() *Header  { return &m.Header }
func (m *FollowUpMessage) messageHeader() *Header  { return &m.Header }
func (m *DelayRespMessage) messageHeader() *Header { return &m.Header }

// BinaryMarshalerTo is implemented by every concrete message type.
type BinaryMarshalerTo interface {
	MarshalBinaryTo(b []byte) (int, error)
}

// DecodeMessage validates the common header against domain and runs the
// short-circuiting checks of §4.2, then dispatches to the message-type-
// specific body decoder. The returned Message's concrete type matches the
// header's MessageType.
func DecodeMessage(b []byte, expectDomain ptpcore.DomainNumber) (Message, error) {
	if len(b) < HeaderSize {
		return nil, ptpcore.NewParseError(ptpcore.TooShort, "buffer shorter than common header")
	}
	var h Header
	unmarshalHeader(&h, b)
	if err := validateHeader(&h, b, expectDomain); err != nil {
		return nil, err
	}
	body := b[HeaderSize:int(h.MessageLength)]

	switch h.MessageType {
	case Announce:
		m := &AnnounceMessage{Header: h}
		if err := unmarshalAnnounceBody(m, body); err != nil {
			return nil, err
		}
		return m, nil
	case Sync:
		m := &SyncMessage{Header: h}
		ts, tlvs, err := unmarshalSyncBody(&h, body)
		if err != nil {
			return nil, err
		}
		m.OriginTimestamp, m.TLVs = ts, tlvs
		return m, nil
	case DelayReq:
		m := &DelayReqMessage{Header: h}
		ts, tlvs, err := unmarshalSyncBody(&h, body)
		if err != nil {
			return nil, err
		}
		m.OriginTimestamp, m.TLVs = ts, tlvs
		return m, nil
	case FollowUp:
		m := &FollowUpMessage{Header: h}
		if err := unmarshalFollowUpBody(m, body); err != nil {
			return nil, err
		}
		return m, nil
	case DelayResp:
		m := &DelayRespMessage{Header: h}
		if err := unmarshalDelayRespBody(m, body); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, ptpcore.NewParseError(ptpcore.UnsupportedType, h.MessageType.String())
	}
}

// EncodeMessage marshals m into a freshly allocated 512-byte buffer and
// returns the bytes written; a message whose body and TLVs do not fit
// fails with the marshaler's ParseError.
func EncodeMessage(m BinaryMarshalerTo) ([]byte, error) {
	buf := make([]byte, 512)
	n, err := m.MarshalBinaryTo(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
