package sniffer

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var _ Sniffer = (*OPNsenseSniffer)(nil)

// OPNsenseConfig configures the firewall DHCP lease polling backend.
type OPNsenseConfig struct {
	Host         string
	APIKey       string
	APISecret    string
	PollInterval time.Duration
}

// OPNsenseSniffer polls an OPNsense firewall for active DHCP leases. It
// catches wired devices and anything the wireless controller misses, at the
// cost of signal data: lease sightings always carry no signal reading.
type OPNsenseSniffer struct {
	emitter
	lifecycle

	cfg    OPNsenseConfig
	client *http.Client
	logger *zap.Logger
}

// NewOPNsenseSniffer creates the DHCP lease polling backend.
func NewOPNsenseSniffer(cfg OPNsenseConfig, logger *zap.Logger) *OPNsenseSniffer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &OPNsenseSniffer{
		cfg: cfg,
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		logger: logger,
	}
}

func (o *OPNsenseSniffer) Start(ctx context.Context) error {
	runCtx, ok := o.begin(ctx)
	if !ok {
		return nil
	}

	o.logger.Info("starting opnsense sniffer", zap.String("host", o.cfg.Host))

	o.wg.Add(1)
	go o.run(runCtx)
	return nil
}

func (o *OPNsenseSniffer) Stop(_ context.Context) error {
	o.logger.Info("stopping opnsense sniffer")
	o.end()
	return nil
}

func (o *OPNsenseSniffer) run(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := o.pollOnce(ctx); err != nil && ctx.Err() == nil {
			o.logger.Warn("lease poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (o *OPNsenseSniffer) baseURL() string {
	host := o.cfg.Host
	switch {
	case strings.HasPrefix(host, "http://"):
		// The firewall API is HTTPS-only; upgrade quietly.
		host = "https://" + strings.TrimPrefix(host, "http://")
	case !strings.Contains(host, "://"):
		host = "https://" + host
	}
	return strings.TrimRight(host, "/")
}

type opnsenseLease struct {
	MAC      string `json:"mac"`
	Address  string `json:"address"`
	Hostname string `json:"hostname"`
	State    string `json:"state"`
}

type opnsenseLeaseResponse struct {
	Rows []opnsenseLease `json:"rows"`
}

func (o *OPNsenseSniffer) pollOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		o.baseURL()+"/api/dhcpv4/leases/searchLease", nil)
	if err != nil {
		return fmt.Errorf("create lease request: %w", err)
	}
	req.SetBasicAuth(o.cfg.APIKey, o.cfg.APISecret)

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch leases from %s: %w", o.cfg.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch leases from %s: status %d", o.cfg.Host, resp.StatusCode)
	}

	var leases opnsenseLeaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&leases); err != nil {
		return fmt.Errorf("decode leases: %w", err)
	}

	now := time.Now().UTC()
	for _, lease := range leases.Rows {
		if lease.MAC == "" {
			continue
		}
		// Expired and released leases are history, not presence.
		if lease.State != "" && !strings.EqualFold(lease.State, "active") {
			continue
		}
		o.emit(BeaconEvent{
			MACAddress:     strings.ToUpper(lease.MAC),
			SignalStrength: NoSignal,
			Hostname:       lease.Hostname,
			Timestamp:      now,
			Source:         SourceOPNsense,
		})
	}
	return nil
}
