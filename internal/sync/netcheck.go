package sync

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// LinkType is the active network link class, used by the wifi-only gate.
type LinkType string

// Link types reported by the connectivity oracle.
const (
	LinkWifi     LinkType = "wifi"
	LinkEthernet LinkType = "ethernet"
	LinkCellular LinkType = "cellular"
	LinkUnknown  LinkType = "unknown"
)

// NetworkStatus is a point-in-time connectivity snapshot.
type NetworkStatus struct {
	Connected         bool
	InternetReachable bool
	Type              LinkType
}

// Online reports whether the device is connected with internet reachability.
func (s NetworkStatus) Online() bool {
	return s.Connected && s.InternetReachable
}

// ConnectivityChecker is the connectivity oracle consulted before each pass.
type ConnectivityChecker interface {
	Status(ctx context.Context) NetworkStatus
}

// probeTimeout bounds the reachability probe so an offline pass fails fast.
const probeTimeout = 5 * time.Second

// defaultProbeURL returns 204 with no body; the de facto standard
// captive-portal/reachability check endpoint.
const defaultProbeURL = "http://connectivitycheck.gstatic.com/generate_204"

// HTTPChecker implements the connectivity oracle with an HTTP reachability
// probe and an interface-name heuristic for the link type. The heuristic is
// best-effort: unrecognized interface names report LinkUnknown, which the
// wifi-only gate treats as not-wifi (the conservative reading).
type HTTPChecker struct {
	probeURL   string
	httpClient *http.Client
	logger     *slog.Logger

	// interfaces is injectable for tests. Defaults to net.Interfaces.
	interfaces func() ([]net.Interface, error)
}

// NewHTTPChecker creates a checker against the default probe endpoint.
func NewHTTPChecker(logger *slog.Logger) *HTTPChecker {
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPChecker{
		probeURL:   defaultProbeURL,
		httpClient: &http.Client{Timeout: probeTimeout},
		logger:     logger,
		interfaces: net.Interfaces,
	}
}

// Status probes reachability and inspects the up interfaces for a link type.
// Probe failures mean unreachable, never an error: an offline device is a
// normal condition, not a fault.
func (c *HTTPChecker) Status(ctx context.Context) NetworkStatus {
	status := NetworkStatus{Type: c.linkType()}
	status.Connected = status.Type != LinkUnknown || c.hasUpInterface()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.probeURL, nil)
	if err != nil {
		return status
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("reachability probe failed", slog.String("error", err.Error()))
		return status
	}
	resp.Body.Close()

	status.Connected = true
	status.InternetReachable = resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK

	return status
}

// linkType inspects up, non-loopback interfaces and maps the first
// recognized name prefix to a link class. Wifi wins over ethernet when both
// are up, mirroring how mobile platforms report the preferred route.
func (c *HTTPChecker) linkType() LinkType {
	ifaces, err := c.interfaces()
	if err != nil {
		return LinkUnknown
	}

	found := LinkUnknown

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		switch {
		case hasPrefix(iface.Name, "wlan", "wlp", "wifi", "ath"):
			return LinkWifi
		case hasPrefix(iface.Name, "wwan", "rmnet", "ppp"):
			found = LinkCellular
		case hasPrefix(iface.Name, "eth", "enp", "eno", "en"):
			if found == LinkUnknown {
				found = LinkEthernet
			}
		}
	}

	return found
}

func (c *HTTPChecker) hasUpInterface() bool {
	ifaces, err := c.interfaces()
	if err != nil {
		return false
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}

	return false
}

func hasPrefix(name string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}

	return false
}
