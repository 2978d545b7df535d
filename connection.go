package prolink

import (
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// remotePortQueryPort is the fixed TCP port every device listens on to hand
// out the port its database server actually accepts connections on (§4.2).
const remotePortQueryPort = 12523

var remotePortQueryMagic = append([]byte{0x11, 0x00, 0x00, 0x00, 0x0f}, append([]byte("RemoteDBServer"), 0x00)...)

// queryRemotePort asks a device which TCP port its database server is
// listening on. This is the first step of establishing a connection,
// grounded on original_source/dbclient.py's getSocket/get_player_port.
func queryRemotePort(ip string) (int, error) {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", ip, remotePortQueryPort), 5*time.Second)
	if err != nil {
		return 0, fmt.Errorf("%w: dialing port query socket: %v", ErrConnectionFailure, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write(remotePortQueryMagic); err != nil {
		return 0, fmt.Errorf("%w: writing port query: %v", ErrConnectionFailure, err)
	}

	reply := make([]byte, 2)
	if _, err := readFull(conn, reply); err != nil {
		return 0, fmt.Errorf("%w: reading port query reply: %v", ErrConnectionFailure, err)
	}
	return int(binary.BigEndian.Uint16(reply)), nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// ConnectionEntry is one sticky per-device TCP connection to a database
// server, plus the bookkeeping the connection pool needs to evict it after
// it has sat idle (§4.2, "connections are kept open and reused... evicted
// after roughly 30 seconds of disuse").
type ConnectionEntry struct {
	conn      net.Conn
	mu        sync.Mutex
	nextTxnID uint32
	ttl       int
}

func newConnectionEntry(conn net.Conn, ttl int) *ConnectionEntry {
	return &ConnectionEntry{conn: conn, nextTxnID: 1, ttl: ttl}
}

func (e *ConnectionEntry) close() {
	e.conn.Close()
}

// sendAndReceive writes one request frame and reads back the reply, retrying
// the read up to retries times while the buffer holds an incomplete message
// (§4.2/§6 — the device may write the reply across several TCP segments).
// done reports whether a parsed message should end the read loop early (used
// for single-reply requests); render streams pass a done that looks for
// menu_footer.
func (e *ConnectionEntry) sendAndReceive(typeName string, args []Argument, retries int, bufSize int, done func([]DBMessage) bool) ([]DBMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	txnID := e.nextTxnID
	e.nextTxnID++

	frame, err := Build(txnID, typeName, args)
	if err != nil {
		return nil, fmt.Errorf("%w: building %s: %v", ErrProtocolFailure, typeName, err)
	}

	e.conn.SetDeadline(time.Now().Add(10 * time.Second))
	if _, err := e.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("%w: writing %s: %v", ErrConnectionFailure, typeName, err)
	}

	var buf []byte
	tmp := make([]byte, bufSize)
	for attempt := 0; attempt < retries; attempt++ {
		n, err := e.conn.Read(tmp)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s reply: %v", ErrConnectionFailure, typeName, err)
		}
		buf = append(buf, tmp[:n]...)

		msgs, _ := ParseMany(buf)
		if len(msgs) > 0 && (done == nil || done(msgs)) {
			return msgs, nil
		}
	}
	return nil, fmt.Errorf("%w: %s reply incomplete after %d reads", ErrParseFailure, typeName, retries)
}

func singleMessageDone(msgs []DBMessage) bool {
	return len(msgs) >= 1
}

func renderStreamDone(msgs []DBMessage) bool {
	for _, m := range msgs {
		if m.TypeName == "menu_footer" {
			return true
		}
	}
	return false
}

// connectionPool holds at most one ConnectionEntry per device number,
// establishing new ones lazily and evicting idle ones on a tick.
type connectionPool struct {
	mu        sync.Mutex
	entries   map[int]*ConnectionEntry
	ttlTicks  int
	ownDevice int
	bufSize   int
	metrics   *Metrics
}

func newConnectionPool(ttlTicks, ownDevice, bufSize int, metrics *Metrics) *connectionPool {
	return &connectionPool{
		entries:   make(map[int]*ConnectionEntry),
		ttlTicks:  ttlTicks,
		ownDevice: ownDevice,
		bufSize:   bufSize,
		metrics:   metrics,
	}
}

// get returns the pooled connection for deviceNumber, establishing one over
// ip if none exists yet.
func (p *connectionPool) get(deviceNumber int, ip string) (*ConnectionEntry, error) {
	p.mu.Lock()
	if e, ok := p.entries[deviceNumber]; ok {
		e.ttl = p.ttlTicks
		p.mu.Unlock()
		return e, nil
	}
	p.mu.Unlock()

	e, err := p.establish(ip)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.entries[deviceNumber] = e
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.SetConnectionsOpen(p.len())
	}
	return e, nil
}

// establish performs the connection handshake of §4.2: probe the
// well-known query port for the real database server port, dial it, send
// the fixed initial packet, then the setup packet carrying our own device
// number. A zero-length reply to either step is treated as a handshake
// failure.
func (p *connectionPool) establish(ip string) (*ConnectionEntry, error) {
	port, err := queryRemotePort(ip)
	if err != nil {
		return nil, err
	}

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", ip, port), 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing database server: %v", ErrConnectionFailure, err)
	}

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	initial := make([]byte, 4)
	binary.BigEndian.PutUint32(initial, 1)
	if _, err := conn.Write(initial); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: writing initial packet: %v", ErrConnectionFailure, err)
	}
	initialReply := make([]byte, 16)
	if n, err := readFull(conn, initialReply); err != nil || n == 0 {
		conn.Close()
		return nil, fmt.Errorf("%w: reading initial packet reply: %v", ErrConnectionFailure, err)
	}

	entry := newConnectionEntry(conn, p.ttlTicks)
	setupFrame, err := Build(0xfffffffe, "setup", []Argument{Int32Arg(int32(p.ownDevice))})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: building setup packet: %v", ErrProtocolFailure, err)
	}
	if _, err := conn.Write(setupFrame); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: writing setup packet: %v", ErrConnectionFailure, err)
	}

	setupReply := make([]byte, 48)
	n, err := readFull(conn, setupReply)
	if err != nil || n == 0 {
		conn.Close()
		return nil, fmt.Errorf("%w: setup packet rejected: %v", ErrConnectionFailure, err)
	}

	log.Printf("prolink: connection established to %s:%d", ip, port)
	return entry, nil
}

// sweep decrements every pooled connection's TTL by one tick, closing and
// evicting any that reach zero (§4.2's idle eviction).
func (p *connectionPool) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for number, e := range p.entries {
		e.ttl--
		if e.ttl <= 0 {
			e.close()
			delete(p.entries, number)
			log.Printf("prolink: connection to device %d evicted after idle timeout", number)
		}
	}
	if p.metrics != nil {
		p.metrics.SetConnectionsOpen(len(p.entries))
	}
}

func (p *connectionPool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// closeAll tears down every pooled connection, for shutdown.
func (p *connectionPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for number, e := range p.entries {
		e.close()
		delete(p.entries, number)
	}
}
