// ABOUTME: mDNS service discovery for pose servers
// ABOUTME: Advertises _binaural-pose._tcp and browses for it
package discovery

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

// ServiceType is the mDNS service type of pose servers
const ServiceType = "_binaural-pose._tcp"

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	// Path is published as a TXT record so clients know the websocket path.
	Path string
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	logger logrus.FieldLogger

	mu     sync.Mutex
	server *mdns.Server
}

// ServerInfo describes a discovered pose server
type ServerInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// Addr returns host:port
func (s ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config, logger logrus.FieldLogger) *Manager {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	if config.Path == "" {
		config.Path = "/pose"
	}
	return &Manager{
		config: config,
		logger: logger.WithField("component", "discovery"),
	}
}

// Advertise publishes this pose server via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.mu.Lock()
	m.server = server
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"name": m.config.ServiceName,
		"port": m.config.Port,
		"type": ServiceType,
	}).Info("Advertising mDNS service")
	return nil
}

// Browse queries for pose servers until timeout or ctx ends and returns
// what answered
func (m *Manager) Browse(ctx context.Context, timeout time.Duration) ([]ServerInfo, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var found []ServerInfo
	collected := make(chan struct{})

	go func() {
		defer close(collected)
		seen := make(map[string]bool)
		for entry := range entries {
			info, ok := serverFromEntry(entry)
			if !ok || seen[info.Addr()] {
				continue
			}
			seen[info.Addr()] = true
			m.logger.WithFields(logrus.Fields{
				"name": info.Name,
				"addr": info.Addr(),
			}).Info("Discovered pose server")
			found = append(found, info)
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Domain = "local"
	params.Timeout = timeout
	params.Entries = entries
	params.DisableIPv6 = true

	errCh := make(chan error, 1)
	go func() { errCh <- mdns.Query(params) }()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		// Query returns on its own timeout; wait so entries can be closed.
		err = <-errCh
		if err == nil {
			err = ctx.Err()
		}
	}
	close(entries)
	<-collected

	if err != nil {
		return found, fmt.Errorf("mdns query failed: %w", err)
	}
	return found, nil
}

// First browses until the first pose server answers
func (m *Manager) First(ctx context.Context, timeout time.Duration) (ServerInfo, error) {
	servers, err := m.Browse(ctx, timeout)
	if len(servers) > 0 {
		return servers[0], nil
	}
	if err != nil {
		return ServerInfo{}, err
	}
	return ServerInfo{}, fmt.Errorf("no %s service found within %s", ServiceType, timeout)
}

// Stop withdraws the advertisement
func (m *Manager) Stop() {
	m.mu.Lock()
	server := m.server
	m.server = nil
	m.mu.Unlock()
	if server != nil {
		server.Shutdown()
	}
}

// serverFromEntry converts a query answer into a ServerInfo
func serverFromEntry(entry *mdns.ServiceEntry) (ServerInfo, bool) {
	if entry == nil || entry.Port == 0 {
		return ServerInfo{}, false
	}
	info := ServerInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Port: entry.Port,
		Path: "/pose",
	}
	switch {
	case entry.AddrV4 != nil:
		info.Host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		info.Host = entry.AddrV6.String()
	case entry.Host != "":
		info.Host = strings.TrimSuffix(entry.Host, ".")
	default:
		return ServerInfo{}, false
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok && path != "" {
			info.Path = path
		}
	}
	return info, true
}

// getLocalIPs returns local IPv4 addresses of interfaces that are up
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
