package logging

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// Syslog severity levels (RFC 3164).
const (
	SyslogError   = 3
	SyslogWarning = 4
	SyslogInfo    = 6
)

// Syslog facilities (RFC 3164).
const (
	FacilityKern   = 0
	FacilityUser   = 1
	FacilityDaemon = 3
	FacilityAuth   = 4
	FacilitySyslog = 5
	FacilityLocal0 = 16
	FacilityLocal1 = 17
	FacilityLocal2 = 18
	FacilityLocal3 = 19
	FacilityLocal4 = 20
	FacilityLocal5 = 21
	FacilityLocal6 = 22
	FacilityLocal7 = 23
)

// SyslogClient sends RFC 3164 syslog messages over UDP, TCP, or TLS.
// TCP and TLS streams use octet-counted framing (RFC 6587) and
// reconnect once when a write fails.
type SyslogClient struct {
	mu       sync.Mutex
	conn     net.Conn
	addr     string
	protocol string // "udp", "tcp", "tls"
	tlsCfg   *tls.Config
	hostname string

	Facility    int // defaults to FacilityLocal0
	MinSeverity int // 0 = no filter, else SyslogError(3)/SyslogWarning(4)/SyslogInfo(6)
}

// NewSyslogClient creates a UDP syslog client connected to host:port.
func NewSyslogClient(host string, port int) (*SyslogClient, error) {
	return NewSyslogClientTransport(host, port, "", "udp", nil)
}

// NewSyslogClientTransport creates a syslog client with an explicit
// transport. hostname overrides the HOSTNAME field; empty means the
// local host name. protocol is "udp", "tcp", or "tls"; empty defaults
// to UDP. tlsCfg applies to the tls protocol only.
func NewSyslogClientTransport(host string, port int, hostname, protocol string, tlsCfg *tls.Config) (*SyslogClient, error) {
	if protocol == "" {
		protocol = "udp"
	}
	if hostname == "" {
		hostname, _ = os.Hostname()
		if hostname == "" {
			hostname = "netcli"
		}
	}
	s := &SyslogClient{
		addr:     net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		protocol: protocol,
		tlsCfg:   tlsCfg,
		hostname: hostname,
		Facility: FacilityLocal0,
	}
	if err := s.dial(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SyslogClient) dial() error {
	var conn net.Conn
	var err error
	switch s.protocol {
	case "udp", "tcp":
		conn, err = net.DialTimeout(s.protocol, s.addr, 5*time.Second)
	case "tls":
		d := &net.Dialer{Timeout: 5 * time.Second}
		conn, err = tls.DialWithDialer(d, "tcp", s.addr, s.tlsCfg)
	default:
		return fmt.Errorf("unknown syslog protocol %q", s.protocol)
	}
	if err != nil {
		return fmt.Errorf("dial syslog %s/%s: %w", s.protocol, s.addr, err)
	}
	s.conn = conn
	return nil
}

// Send sends a syslog message with the given severity.
func (s *SyslogClient) Send(severity int, msg string) error {
	body := fmt.Sprintf("<%d>%s %s netclid: %s",
		s.Facility*8+severity, time.Now().Format(time.Stamp), s.hostname, msg)
	frame := body
	if s.protocol != "udp" {
		frame = fmt.Sprintf("%d %s", len(body), body)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		if err := s.dial(); err != nil {
			return err
		}
	}
	_, err := s.conn.Write([]byte(frame))
	if err == nil || s.protocol == "udp" {
		return err
	}

	// Stream broke; reconnect and retry once.
	s.conn.Close()
	s.conn = nil
	if derr := s.dial(); derr != nil {
		return derr
	}
	_, err = s.conn.Write([]byte(frame))
	return err
}

// ShouldSend returns true if the severity passes this client's filter.
// Lower severity number = higher priority (error=3 < warning=4 < info=6).
func (s *SyslogClient) ShouldSend(severity int) bool {
	return s.MinSeverity == 0 || severity <= s.MinSeverity
}

// Close closes the underlying connection.
func (s *SyslogClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// ParseSeverity converts a severity name to its numeric value.
// Returns 0 (no filter) for unrecognized names.
func ParseSeverity(name string) int {
	switch name {
	case "error":
		return SyslogError
	case "warning":
		return SyslogWarning
	case "info":
		return SyslogInfo
	default:
		return 0
	}
}

// ParseFacility converts a facility name to its numeric value.
// Unrecognized names map to local0.
func ParseFacility(name string) int {
	switch name {
	case "kern":
		return FacilityKern
	case "user":
		return FacilityUser
	case "daemon":
		return FacilityDaemon
	case "auth":
		return FacilityAuth
	case "syslog":
		return FacilitySyslog
	case "local0":
		return FacilityLocal0
	case "local1":
		return FacilityLocal1
	case "local2":
		return FacilityLocal2
	case "local3":
		return FacilityLocal3
	case "local4":
		return FacilityLocal4
	case "local5":
		return FacilityLocal5
	case "local6":
		return FacilityLocal6
	case "local7":
		return FacilityLocal7
	default:
		return FacilityLocal0
	}
}
