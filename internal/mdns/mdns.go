// Package mdns advertises and discovers spreads servers on the local
// network via DNS-SD.
//
// The advertisement carries:
//   - Service type: _spreads._tcp
//   - TXT records: version, name and scheme (http or https)
//
// The client's discover command browses for it so the user does not have to
// type the scanner host's address.
package mdns

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service type for spreads servers.
const ServiceType = "_spreads._tcp"

// ProtocolVersion is the push-channel protocol revision advertised in TXT.
const ProtocolVersion = "1"

// DefaultBrowseTimeout bounds Browse when the caller passes zero.
const DefaultBrowseTimeout = 3 * time.Second

// Config holds the advertisement settings.
type Config struct {
	// Port is the HTTP port the server listens on.
	Port int

	// Name is the instance name. Defaults to the hostname.
	Name string

	// Secure advertises https instead of http.
	Secure bool
}

// Advertiser registers a spreads server with DNS-SD.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates an advertiser. Nothing is registered until Start.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{config: cfg}
}

// Start registers the service. Calling Start while running is a no-op.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	name := instanceName(a.config.Name)
	server, err := zeroconf.Register(
		name,
		ServiceType,
		"local.",
		a.config.Port,
		txtRecords(name, a.config.Secure),
		nil, // all interfaces
	)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

// Stop unregisters the service. Safe to call more than once.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning reports whether the service is registered.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

func instanceName(name string) string {
	if name != "" {
		return name
	}
	if hostname, err := os.Hostname(); err == nil {
		return hostname
	}
	return "spreads"
}

func txtRecords(name string, secure bool) []string {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return []string{
		"version=" + ProtocolVersion,
		"name=" + name,
		"scheme=" + scheme,
	}
}

// Server is a discovered spreads server.
type Server struct {
	Name    string
	Host    string
	Port    int
	Scheme  string
	Version string
}

// Origin is the server's HTTP origin, suitable for --server.
func (s Server) Origin() string {
	return s.Scheme + "://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// serverFromEntry converts a resolved entry. IPv4 is preferred.
func serverFromEntry(e *zeroconf.ServiceEntry) Server {
	s := Server{
		Name:   e.Instance,
		Port:   e.Port,
		Scheme: "http",
	}
	switch {
	case len(e.AddrIPv4) > 0:
		s.Host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		s.Host = e.AddrIPv6[0].String()
	default:
		s.Host = strings.TrimSuffix(e.HostName, ".")
	}

	for _, txt := range e.Text {
		key, value, ok := strings.Cut(txt, "=")
		if !ok {
			continue
		}
		switch key {
		case "version":
			s.Version = value
		case "name":
			s.Name = value
		case "scheme":
			if value == "https" {
				s.Scheme = "https"
			}
		}
	}
	return s
}

// Browse lists spreads servers answering within timeout, sorted by name.
// Servers seen more than once are reported once.
func Browse(ctx context.Context, timeout time.Duration) ([]Server, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	var (
		servers []Server
		wg      sync.WaitGroup
	)
	entries := make(chan *zeroconf.ServiceEntry)

	wg.Add(1)
	go func() {
		defer wg.Done()
		seen := make(map[string]bool)
		for entry := range entries {
			s := serverFromEntry(entry)
			if key := s.Origin(); !seen[key] {
				seen[key] = true
				servers = append(servers, s)
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	// zeroconf closes entries once ctx is done.
	<-ctx.Done()
	wg.Wait()

	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers, nil
}
