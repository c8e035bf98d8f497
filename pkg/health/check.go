package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/getmockd/superserver/pkg/protocol"
)

var errNotListening = errors.New("not listening")

// DefaultDialTimeout bounds each TCP connect check.
const DefaultDialTimeout = 5 * time.Second

// Entry is the result of checking one server.
type Entry struct {
	Status      protocol.HealthState `json:"status"`
	Description string               `json:"description,omitempty"`
	// Duration is the check time in milliseconds.
	Duration float64 `json:"duration"`
	Details  any     `json:"details,omitempty"`
}

// Report aggregates every server's entry. Status is the worst entry status.
type Report struct {
	Status protocol.HealthState `json:"status"`
	// TotalDuration is the wall time of the whole check in milliseconds.
	TotalDuration float64          `json:"totalDuration"`
	Entries       map[string]Entry `json:"entries"`
}

// Checker inspects every server in a registry.
type Checker struct {
	registry    *protocol.Registry
	dialTimeout time.Duration
	dialer      func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewChecker creates a Checker over r. A non-positive timeout selects
// DefaultDialTimeout.
func NewChecker(r *protocol.Registry, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	var d net.Dialer
	return &Checker{registry: r, dialTimeout: timeout, dialer: d.DialContext}
}

// Check collects every server's self-reported health, then dials the TCP
// servers concurrently.
func (c *Checker) Check(ctx context.Context) Report {
	start := time.Now()
	statuses := c.registry.HealthAll(ctx)
	servers := c.registry.List()
	entries := make([]Entry, len(servers))

	var g errgroup.Group
	for i, s := range servers {
		g.Go(func() error {
			entries[i] = c.checkServer(ctx, s, statuses[s.Metadata().ID], start)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:  protocol.HealthHealthy,
		Entries: make(map[string]Entry, len(servers)),
	}
	for i, s := range servers {
		report.Entries[s.Metadata().ID] = entries[i]
		report.Status = worst(report.Status, entries[i].Status)
	}
	report.TotalDuration = millis(time.Since(start))
	return report
}

func (c *Checker) checkServer(ctx context.Context, s protocol.Server, hs protocol.HealthStatus, start time.Time) Entry {
	md := s.Metadata()
	e := Entry{Status: hs.Status, Description: hs.Message, Details: hs.Details}

	// Stream servers must also accept a real connection.
	if ss, ok := s.(protocol.StandaloneServer); ok && md.TransportType == protocol.TransportTCP &&
		hs.Status != protocol.HealthUnhealthy {
		if err := c.connect(ctx, ss.Addr()); err != nil {
			e.Status = protocol.HealthUnhealthy
			e.Description = fmt.Sprintf("%s TCP is not accepting connections on %s: %v", md.Protocol, md.Address, err)
		} else if e.Description == "" {
			e.Description = fmt.Sprintf("%s TCP is accepting connections on %s", md.Protocol, ss.Addr())
		}
	}
	if e.Status == "" {
		e.Status = protocol.HealthUnknown
	}
	e.Duration = millis(time.Since(start))
	return e
}

func (c *Checker) connect(ctx context.Context, addr net.Addr) error {
	if addr == nil {
		return errNotListening
	}
	ctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, err := c.dialer(ctx, "tcp", dialTarget(addr))
	if err != nil {
		return err
	}
	return conn.Close()
}

// dialTarget maps wildcard listen addresses onto loopback.
func dialTarget(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || !tcp.IP.IsUnspecified() {
		return addr.String()
	}
	ip := net.IPv4(127, 0, 0, 1)
	if tcp.IP.To4() == nil {
		ip = net.IPv6loopback
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(tcp.Port))
}

var severity = map[protocol.HealthState]int{
	protocol.HealthHealthy:   0,
	protocol.HealthDegraded:  1,
	protocol.HealthUnknown:   2,
	protocol.HealthUnhealthy: 3,
}

func worst(a, b protocol.HealthState) protocol.HealthState {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
