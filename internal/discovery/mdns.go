// ABOUTME: mDNS service discovery for relay servers
// ABOUTME: Servers advertise per transport mode; players browse for them
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// Service types per transport mode
const (
	ServiceUDP = "_audiorelay._udp"
	ServiceTCP = "_audiorelay._tcp"
)

// ServiceType returns the mDNS service type for a mode ("udp" or "tcp")
func ServiceType(mode string) (string, error) {
	switch mode {
	case "udp":
		return ServiceUDP, nil
	case "tcp":
		return ServiceTCP, nil
	default:
		return "", fmt.Errorf("unknown transport mode %q", mode)
	}
}

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Mode        string // "udp" or "tcp"

	// SampleRate and Channels are published so best-effort players can
	// configure themselves without an in-band header
	SampleRate int
	Channels   int

	// BrowseTimeout is how long each query waits for answers (default: 3s)
	BrowseTimeout time.Duration
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name       string
	Host       string
	Port       int
	Mode       string
	SampleRate int
	Channels   int
}

// Addr returns host:port
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = 3 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise publishes this server via mDNS until Stop
func (m *Manager) Advertise() error {
	serviceType, err := ServiceType(m.config.Mode)
	if err != nil {
		return err
	}

	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		serviceType,
		"",
		"",
		m.config.Port,
		ips,
		txtRecords(m.config),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, serviceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for relay servers of the configured mode until Stop
func (m *Manager) Browse() error {
	serviceType, err := ServiceType(m.config.Mode)
	if err != nil {
		return err
	}
	go m.browseLoop(serviceType)
	return nil
}

// browseLoop continuously browses for servers
func (m *Manager) browseLoop(serviceType string) {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				server := entryToServer(entry, m.config.Mode)
				if server == nil {
					continue
				}

				log.Printf("Discovered server: %s at %s", server.Name, server.Addr())

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := mdns.DefaultParams(serviceType)
		params.Entries = entries
		params.Timeout = m.config.BrowseTimeout
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			log.Printf("mDNS query failed: %v", err)
		}
		close(entries)
	}
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// FindServer browses until the first server of the configured mode
// answers or ctx ends
func FindServer(ctx context.Context, config Config) (*ServerInfo, error) {
	m := NewManager(config)
	defer m.Stop()

	if err := m.Browse(); err != nil {
		return nil, err
	}

	select {
	case server := <-m.Servers():
		return server, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no %s relay server found: %w", config.Mode, ctx.Err())
	}
}

func txtRecords(config Config) []string {
	txt := []string{"mode=" + config.Mode}
	if config.SampleRate > 0 {
		txt = append(txt, "rate="+strconv.Itoa(config.SampleRate))
	}
	if config.Channels > 0 {
		txt = append(txt, "channels="+strconv.Itoa(config.Channels))
	}
	return txt
}

// entryToServer converts an mDNS answer; nil if it has no usable address
func entryToServer(entry *mdns.ServiceEntry, mode string) *ServerInfo {
	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		return nil
	}

	server := &ServerInfo{
		Name: entry.Name,
		Host: host,
		Port: entry.Port,
		Mode: mode,
	}
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "rate":
			server.SampleRate, _ = strconv.Atoi(value)
		case "channels":
			server.Channels, _ = strconv.Atoi(value)
		}
	}
	return server
}

// getLocalIPs returns local IP addresses
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
