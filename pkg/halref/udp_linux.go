//go:build linux

package halref

import (
	"fmt"
	"net"
	"sync"
	"time"
	"unsafe"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"

	"github.com/openptp/ptpcore"
)

// UDPNetwork is the Linux reference transport: PTP event and general
// messages carried over UDP/IPv4 multicast (the wire encoding of §4.2,
// §6), with receive timestamps read from the kernel's SO_TIMESTAMPING
// control messages and transmit timestamps recovered from the socket's
// error queue, the same two-step capture path real PTP hardware/driver
// stacks expose. Grounded on pkg/kernel/kernel_unix.go's build-tag-gated
// unix usage and pkg/exporter/exporter.go's netfd.GetFdFromConn.
type UDPNetwork struct {
	conn *net.UDPConn
	fd   int

	eventAddr   *net.UDPAddr
	generalAddr *net.UDPAddr
	delayAddr   *net.UDPAddr

	mu        sync.Mutex
	nextTx    ptpcore.TxHandle
	pendingTx map[ptpcore.TxHandle]struct{}
}

// UDPHALConfig names the interface NewUDPNetwork binds to. MulticastTTL
// is carried but not applied to the socket. This reference HAL sends and
// receives every message class, event and general alike, through the
// all-nodes group 224.0.1.129 on one socket bound to port 319; port 320
// and a separate peer-delay group are not used.
type UDPHALConfig struct {
	Interface    string
	MulticastTTL int
}

// NewUDPNetwork opens a UDP socket on iface, joins the all-nodes PTP
// multicast group, and enables kernel receive timestamping.
func NewUDPNetwork(cfg UDPHALConfig) (*UDPNetwork, error) {
	iface, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("halref: resolve interface %q: %w", cfg.Interface, err)
	}

	groupAddr := &net.UDPAddr{IP: net.IPv4(224, 0, 1, 129), Port: 319}
	conn, err := net.ListenMulticastUDP("udp4", iface, groupAddr)
	if err != nil {
		return nil, fmt.Errorf("halref: listen multicast: %w", err)
	}

	fd := netfd.GetFdFromConn(conn)
	if err := enableTimestamping(fd); err != nil {
		conn.Close()
		return nil, fmt.Errorf("halref: enable SO_TIMESTAMPING: %w", err)
	}

	return &UDPNetwork{
		conn:        conn,
		fd:          fd,
		eventAddr:   groupAddr,
		generalAddr: groupAddr,
		delayAddr:   groupAddr,
		pendingTx:   make(map[ptpcore.TxHandle]struct{}),
	}, nil
}

func enableTimestamping(fd int) error {
	flags := unix.SOF_TIMESTAMPING_TX_SOFTWARE |
		unix.SOF_TIMESTAMPING_RX_SOFTWARE |
		unix.SOF_TIMESTAMPING_SOFTWARE |
		unix.SOF_TIMESTAMPING_TX_HARDWARE |
		unix.SOF_TIMESTAMPING_RX_HARDWARE |
		unix.SOF_TIMESTAMPING_RAW_HARDWARE
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMPING, flags)
}

func (n *UDPNetwork) destAddr(dest ptpcore.DestinationClass) *net.UDPAddr {
	if dest == ptpcore.AllDelayMeasurement {
		return n.delayAddr
	}
	return n.eventAddr
}

// Send implements ptpcore.Network.
func (n *UDPNetwork) Send(buf []byte, dest ptpcore.DestinationClass) (ptpcore.TxHandle, error) {
	if _, err := n.conn.WriteToUDP(buf, n.destAddr(dest)); err != nil {
		return 0, fmt.Errorf("%w: %v", ptpcore.ErrHalNetwork, err)
	}

	n.mu.Lock()
	n.nextTx++
	handle := n.nextTx
	n.pendingTx[handle] = struct{}{}
	n.mu.Unlock()
	return handle, nil
}

// TryRecv implements ptpcore.Network. It never blocks: a non-blocking
// recvmsg is attempted and EAGAIN/EWOULDBLOCK is reported as ok=false
// rather than an error.
func (n *UDPNetwork) TryRecv() ([]byte, ptpcore.Timestamp, ptpcore.PortIdentity, bool) {
	buf := make([]byte, n.MTU())
	oob := make([]byte, 256)

	nread, noob, _, _, err := unix.Recvmsg(n.fd, buf, oob, unix.MSG_DONTWAIT)
	if err != nil {
		return nil, ptpcore.Timestamp{}, ptpcore.PortIdentity{}, false
	}

	rx, ok := parseTimestamp(oob[:noob])
	if !ok {
		rx = ptpcore.TimestampFromNanos(time.Now().UnixNano())
	}
	// The UDP transport does not itself know the PTP source port
	// identity; that is carried in the decoded message header, which
	// pkg/port reads from the payload rather than from this return
	// value.
	return buf[:nread], rx, ptpcore.PortIdentity{}, true
}

// MTU implements ptpcore.Network.
func (n *UDPNetwork) MTU() int { return 1500 }

// CaptureTxTimestamp implements ptpcore.Timestamping: it drains the
// socket's error queue for a pending transmit timestamp, non-blocking.
// Real hardware/driver stacks deliver these asynchronously, often after
// the Send call returns, hence the two-step Sync/Follow_Up path (§4.1,
// §9 Open Questions).
func (n *UDPNetwork) CaptureTxTimestamp(handle ptpcore.TxHandle) (ptpcore.Timestamp, bool) {
	n.mu.Lock()
	if _, pending := n.pendingTx[handle]; !pending {
		n.mu.Unlock()
		return ptpcore.Timestamp{}, false
	}
	n.mu.Unlock()

	buf := make([]byte, n.MTU())
	oob := make([]byte, 256)
	_, noob, _, _, err := unix.Recvmsg(n.fd, buf, oob, unix.MSG_DONTWAIT|unix.MSG_ERRQUEUE)
	if err != nil {
		return ptpcore.Timestamp{}, false
	}

	ts, ok := parseTimestamp(oob[:noob])
	if !ok {
		return ptpcore.Timestamp{}, false
	}

	n.mu.Lock()
	delete(n.pendingTx, handle)
	n.mu.Unlock()
	return ts, true
}

// parseTimestamp walks the control-message buffer for SCM_TIMESTAMPING,
// preferring the raw hardware timestamp (struct timespec[2]) over the
// software one (timespec[0]) when the kernel reports both, per the
// usual SO_TIMESTAMPING convention.
func parseTimestamp(oob []byte) (ptpcore.Timestamp, bool) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return ptpcore.Timestamp{}, false
	}
	for _, m := range msgs {
		if m.Header.Level != unix.SOL_SOCKET || m.Header.Type != unix.SO_TIMESTAMPING {
			continue
		}
		if len(m.Data) < int(unsafe.Sizeof(unix.ScmTimestamping{})) {
			continue
		}
		st := (*unix.ScmTimestamping)(unsafe.Pointer(&m.Data[0]))
		if st.Ts[2].Sec != 0 || st.Ts[2].Nsec != 0 {
			return ptpcore.Timestamp{Seconds: uint64(st.Ts[2].Sec), Nanoseconds: uint32(st.Ts[2].Nsec)}, true
		}
		if st.Ts[0].Sec != 0 || st.Ts[0].Nsec != 0 {
			return ptpcore.Timestamp{Seconds: uint64(st.Ts[0].Sec), Nanoseconds: uint32(st.Ts[0].Nsec)}, true
		}
	}
	return ptpcore.Timestamp{}, false
}

// Close releases the underlying socket.
func (n *UDPNetwork) Close() error { return n.conn.Close() }
