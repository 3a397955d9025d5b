package probe

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/perquyk/snutz/pkg/models"
)

// Hop represents a single hop in a traceroute.
type Hop struct {
	Hop      int     `json:"hop"`
	IP       string  `json:"ip,omitempty"`
	Hostname string  `json:"hostname,omitempty"`
	RTTMs    float64 `json:"rtt_ms"`
	Timeout  bool    `json:"timeout"`
}

// TracerouteMetrics are the measurements of a traceroute run.
type TracerouteMetrics struct {
	Hops      []Hop `json:"hops"`
	Reached   bool  `json:"reached"`
	TotalHops int   `json:"total_hops"`
}

// tracerouteParams are the parameter fields the traceroute runner understands.
type tracerouteParams struct {
	MaxHops      int `json:"max_hops"`
	HopTimeoutMs int `json:"hop_timeout_ms"`
}

// TracerouteRunner performs ICMP traceroutes using raw or unprivileged
// sockets depending on platform support.
type TracerouteRunner struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewTracerouteRunner creates a traceroute runner with the given overall
// timeout per run.
func NewTracerouteRunner(timeout time.Duration, logger *zap.Logger) *TracerouteRunner {
	return &TracerouteRunner{timeout: timeout, logger: logger}
}

// Type implements Runner.
func (t *TracerouteRunner) Type() models.TestType { return models.TestTypeTraceroute }

// Run traces the route to the target, one ICMP Echo probe per TTL.
func (t *TracerouteRunner) Run(ctx context.Context, target string, params json.RawMessage) *Report {
	start := time.Now().UTC()

	maxHops := 30
	hopTimeout := time.Second
	if params != nil {
		var tp tracerouteParams
		if err := json.Unmarshal(params, &tp); err == nil {
			if tp.MaxHops > 0 && tp.MaxHops <= 64 {
				maxHops = tp.MaxHops
			}
			if tp.HopTimeoutMs > 0 {
				hopTimeout = time.Duration(tp.HopTimeoutMs) * time.Millisecond
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	metrics, err := t.trace(ctx, target, maxHops, hopTimeout)
	if err != nil {
		return failed(models.TestTypeTraceroute, target, start, err)
	}

	return &Report{
		TestType:   models.TestTypeTraceroute,
		Target:     target,
		Success:    metrics.Reached,
		StartedAt:  start,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Metrics:    marshalMetrics(metrics),
	}
}

func (t *TracerouteRunner) trace(ctx context.Context, target string, maxHops int, hopTimeout time.Duration) (*TracerouteMetrics, error) {
	targetIP, err := resolveIPv4(ctx, target)
	if err != nil {
		return nil, err
	}

	conn, network, err := openICMPConn()
	if err != nil {
		return nil, fmt.Errorf("open ICMP connection: %w", err)
	}
	defer conn.Close()

	// Unique ICMP identifier from our PID (masked to 16 bits).
	icmpID := os.Getpid() & 0xffff

	metrics := &TracerouteMetrics{Hops: make([]Hop, 0, maxHops)}
	for ttl := 1; ttl <= maxHops; ttl++ {
		select {
		case <-ctx.Done():
			metrics.TotalHops = len(metrics.Hops)
			return metrics, nil
		default:
		}

		hop, reached := t.probeHop(ctx, conn, network, targetIP, ttl, icmpID, hopTimeout)
		metrics.Hops = append(metrics.Hops, hop)

		if reached {
			metrics.Reached = true
			break
		}
	}
	metrics.TotalHops = len(metrics.Hops)

	resolveHopHostnames(metrics.Hops)
	return metrics, nil
}

// resolveIPv4 resolves the target to an IPv4 address.
func resolveIPv4(ctx context.Context, target string) (net.IP, error) {
	ip := net.ParseIP(target)
	if ip == nil {
		addrs, err := net.DefaultResolver.LookupHost(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("resolve target %q: %w", target, err)
		}
		if len(addrs) == 0 {
			return nil, fmt.Errorf("no addresses for target %q", target)
		}
		ip = net.ParseIP(addrs[0])
		if ip == nil {
			return nil, fmt.Errorf("invalid resolved address %q", addrs[0])
		}
	}
	if ip = ip.To4(); ip == nil {
		return nil, fmt.Errorf("only IPv4 targets are supported")
	}
	return ip, nil
}

// openICMPConn opens an ICMP packet connection suitable for the current
// platform: raw socket on Windows, unprivileged udp4 first elsewhere.
func openICMPConn() (*icmp.PacketConn, string, error) {
	if runtime.GOOS == "windows" {
		conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
		return conn, "ip4:icmp", err
	}

	conn, err := icmp.ListenPacket("udp4", "")
	if err == nil {
		return conn, "udp4", nil
	}

	conn, err = icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	return conn, "ip4:icmp", err
}

// probeHop sends a single ICMP Echo Request with the given TTL and waits for
// a response. The TTL doubles as the sequence number.
func (t *TracerouteRunner) probeHop(ctx context.Context, conn *icmp.PacketConn, network string, target net.IP, ttl, id int, timeout time.Duration) (hop Hop, reached bool) {
	hop.Hop = ttl
	seq := ttl

	if err := conn.IPv4PacketConn().SetTTL(ttl); err != nil {
		t.logger.Debug("failed to set TTL", zap.Int("ttl", ttl), zap.Error(err))
		hop.Timeout = true
		return hop, false
	}

	msg := &icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  seq,
			Data: []byte("snutz-traceroute"),
		},
	}
	msgBytes, err := msg.Marshal(nil)
	if err != nil {
		t.logger.Debug("failed to marshal ICMP message", zap.Error(err))
		hop.Timeout = true
		return hop, false
	}

	var dst net.Addr
	if network == "udp4" {
		dst = &net.UDPAddr{IP: target, Port: 0}
	} else {
		dst = &net.IPAddr{IP: target}
	}

	sendTime := time.Now()
	if _, err := conn.WriteTo(msgBytes, dst); err != nil {
		t.logger.Debug("failed to send ICMP probe", zap.Int("ttl", ttl), zap.Error(err))
		hop.Timeout = true
		return hop, false
	}

	deadline := sendTime.Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		t.logger.Debug("failed to set read deadline", zap.Error(err))
		hop.Timeout = true
		return hop, false
	}

	// Read responses until we see one matching our probe or the deadline.
	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			hop.Timeout = true
			return hop, false
		}

		rtt := time.Since(sendTime)

		var peerIP string
		switch p := peer.(type) {
		case *net.UDPAddr:
			peerIP = p.IP.String()
		case *net.IPAddr:
			peerIP = p.IP.String()
		default:
			peerIP = peer.String()
		}

		reply, err := icmp.ParseMessage(1, buf[:n]) // 1 = ICMPv4 protocol number
		if err != nil {
			continue
		}

		switch reply.Type {
		case ipv4.ICMPTypeEchoReply:
			if echoReply, ok := reply.Body.(*icmp.Echo); ok {
				if echoReply.ID == id && echoReply.Seq == seq {
					hop.IP = peerIP
					hop.RTTMs = float64(rtt.Microseconds()) / 1000.0
					return hop, true
				}
			}
		case ipv4.ICMPTypeTimeExceeded:
			// Intermediate router; verify the encapsulated Echo matches.
			if matchesProbe(reply, id, seq) {
				hop.IP = peerIP
				hop.RTTMs = float64(rtt.Microseconds()) / 1000.0
				return hop, false
			}
		case ipv4.ICMPTypeDestinationUnreachable:
			// Can also indicate we hit the target on some systems.
			if matchesProbe(reply, id, seq) {
				hop.IP = peerIP
				hop.RTTMs = float64(rtt.Microseconds()) / 1000.0
				return hop, true
			}
		}

		// Not our packet; keep reading if still within the deadline.
		if time.Now().After(deadline) {
			hop.Timeout = true
			return hop, false
		}
	}
}

// matchesProbe checks whether an ICMP error message (Time Exceeded or
// Destination Unreachable) contains our original Echo Request in its payload.
func matchesProbe(reply *icmp.Message, expectedID, expectedSeq int) bool {
	switch body := reply.Body.(type) {
	case *icmp.TimeExceeded:
		return matchesPayload(body.Data, expectedID, expectedSeq)
	case *icmp.DstUnreach:
		return matchesPayload(body.Data, expectedID, expectedSeq)
	}
	return false
}

// matchesPayload extracts the ICMP Echo ID and Seq from the raw payload of an
// ICMP error message: the original IP header (typically 20 bytes) followed by
// at least 8 bytes of the Echo Request that triggered the error.
func matchesPayload(data []byte, expectedID, expectedSeq int) bool {
	if len(data) < 28 {
		// Need at least 20 (IP header) + 8 (ICMP header with ID + Seq).
		return false
	}

	// The first byte carries the IP header length in its lower 4 bits.
	ihl := int(data[0]&0x0f) * 4
	if ihl < 20 || len(data) < ihl+8 {
		return false
	}

	// After the IP header: type (1), code (1), checksum (2), ID (2), Seq (2).
	icmpData := data[ihl:]
	if icmpData[0] != 8 { // Echo Request
		return false
	}
	id := int(binary.BigEndian.Uint16(icmpData[4:6]))
	seq := int(binary.BigEndian.Uint16(icmpData[6:8]))

	return id == expectedID && seq == expectedSeq
}

// resolveHopHostnames performs reverse DNS lookups on hop IPs (best effort).
func resolveHopHostnames(hops []Hop) {
	for i := range hops {
		if hops[i].IP == "" || hops[i].Timeout {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		names, err := net.DefaultResolver.LookupAddr(ctx, hops[i].IP)
		cancel()
		if err != nil || len(names) == 0 {
			continue
		}
		hostname := names[0]
		if hostname != "" && hostname[len(hostname)-1] == '.' {
			hostname = hostname[:len(hostname)-1]
		}
		hops[i].Hostname = hostname
	}
}
