package sniffer

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ Sniffer = (*RuckusSniffer)(nil)

// RuckusConfig configures the wireless-controller polling backend.
type RuckusConfig struct {
	Host         string
	Username     string
	Password     string
	PollInterval time.Duration
}

// RuckusSniffer polls a Ruckus Unleashed master AP for active wireless
// clients. It is the primary wireless presence source and also watches two
// side channels: active rogue APs and client disassociation events.
type RuckusSniffer struct {
	emitter
	lifecycle

	cfg    RuckusConfig
	client *http.Client
	logger *zap.Logger

	// Ring of already-processed client event IDs so re-polled events are
	// emitted once.
	seenEvents *ringSet
}

// NewRuckusSniffer creates the controller polling backend.
func NewRuckusSniffer(cfg RuckusConfig, logger *zap.Logger) *RuckusSniffer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	jar, _ := cookiejar.New(nil)
	return &RuckusSniffer{
		cfg: cfg,
		client: &http.Client{
			Timeout: 15 * time.Second,
			Jar:     jar,
			Transport: &http.Transport{
				// Unleashed APs ship self-signed certificates.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		logger:     logger,
		seenEvents: newRingSet(1000),
	}
}

func (r *RuckusSniffer) Start(ctx context.Context) error {
	runCtx, ok := r.begin(ctx)
	if !ok {
		return nil
	}

	r.logger.Info("starting ruckus sniffer", zap.String("host", r.cfg.Host))

	r.wg.Add(1)
	go r.run(runCtx)
	return nil
}

func (r *RuckusSniffer) Stop(_ context.Context) error {
	r.logger.Info("stopping ruckus sniffer")
	r.end()
	return nil
}

func (r *RuckusSniffer) run(ctx context.Context) {
	defer r.wg.Done()

	for {
		if err := r.session(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("ruckus poll error, reconnecting",
				zap.Duration("retry_in", r.cfg.PollInterval),
				zap.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

// session logs in once and polls until the context is cancelled or a
// request fails (triggering a reconnect from run).
func (r *RuckusSniffer) session(ctx context.Context) error {
	if err := r.login(ctx); err != nil {
		return err
	}

	for {
		if err := r.pollOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

func (r *RuckusSniffer) baseURL() string {
	host := r.cfg.Host
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return strings.TrimRight(host, "/")
}

func (r *RuckusSniffer) login(ctx context.Context) error {
	form := url.Values{
		"username": {r.cfg.Username},
		"password": {r.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL()+"/admin/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("login %s: %w", r.cfg.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("login %s: status %d", r.cfg.Host, resp.StatusCode)
	}
	return nil
}

// ruckusClient is one active client row from the controller.
type ruckusClient struct {
	MAC      string `json:"mac"`
	Signal   int    `json:"signal"` // dBm
	SSID     string `json:"ssid"`
	Hostname string `json:"hostname"`
	APName   string `json:"ap_name"`
}

// ruckusRogue is one active rogue AP row. Signal may be missing or
// reported as SNR depending on firmware.
type ruckusRogue struct {
	MAC    string `json:"mac"`
	Signal *int   `json:"signal"`
	SSID   string `json:"ssid"`
}

// ruckusEvent is one controller log event.
type ruckusEvent struct {
	Time   float64 `json:"time"` // epoch seconds
	Client string  `json:"client"`
	Event  string  `json:"event"`
	SSID   string  `json:"ssid"`
}

func (r *RuckusSniffer) pollOnce(ctx context.Context) error {
	now := time.Now().UTC()

	var clients []ruckusClient
	if err := r.getJSON(ctx, "/admin/api/active-clients", &clients); err != nil {
		return err
	}
	for _, c := range clients {
		if c.MAC == "" {
			continue
		}
		r.emit(BeaconEvent{
			MACAddress:     strings.ToUpper(c.MAC),
			SignalStrength: c.Signal,
			SSID:           c.SSID,
			Hostname:       c.Hostname,
			APName:         c.APName,
			Timestamp:      now,
			Source:         SourceRuckus,
		})
	}

	// Side channels are best effort: a failure is logged and the main
	// client polling keeps the session alive.
	if err := r.pollRogues(ctx, now); err != nil {
		r.logger.Warn("rogue AP polling failed", zap.Error(err))
	}
	if err := r.pollClientEvents(ctx, now); err != nil {
		r.logger.Warn("client event polling failed", zap.Error(err))
	}
	return nil
}

func (r *RuckusSniffer) pollRogues(ctx context.Context, now time.Time) error {
	var rogues []ruckusRogue
	if err := r.getJSON(ctx, "/admin/api/active-rogues", &rogues); err != nil {
		return err
	}
	for _, rogue := range rogues {
		if rogue.MAC == "" {
			continue
		}
		r.emit(BeaconEvent{
			MACAddress:     strings.ToUpper(rogue.MAC),
			SignalStrength: convertRSSI(rogue.Signal),
			SSID:           rogue.SSID,
			Timestamp:      now,
			Source:         SourceRuckusRogue,
		})
	}
	return nil
}

func (r *RuckusSniffer) pollClientEvents(ctx context.Context, now time.Time) error {
	var events []ruckusEvent
	if err := r.getJSON(ctx, "/admin/api/client-events", &events); err != nil {
		return err
	}
	for _, ev := range events {
		id := fmt.Sprintf("%v:%s:%s", ev.Time, ev.Client, ev.Event)
		if r.seenEvents.Contains(id) {
			continue
		}
		r.seenEvents.Add(id)

		// Only disassociations matter: they are the earliest departure hint.
		if !strings.Contains(strings.ToLower(ev.Event), "disassoc") {
			continue
		}
		if ev.Client == "" {
			continue
		}

		ts := now
		if ev.Time > 0 {
			ts = time.Unix(int64(ev.Time), 0).UTC()
		}
		r.emit(BeaconEvent{
			MACAddress:     strings.ToUpper(ev.Client),
			SignalStrength: NoSignal,
			SSID:           ev.SSID,
			Timestamp:      ts,
			Source:         SourceRuckusEvent,
		})
	}
	return nil
}

func (r *RuckusSniffer) getJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL()+path, nil)
	if err != nil {
		return fmt.Errorf("create request %s: %w", path, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// convertRSSI normalizes a controller-reported signal value to dBm.
// Some firmware reports SNR (0-100) instead of dBm: positive values are
// treated as SNR and mapped onto the dBm range, zero or negative values
// are already dBm, and a missing value defaults to -100 (weakest).
func convertRSSI(value *int) int {
	if value == nil {
		return -100
	}
	if *value > 0 {
		return -100 + *value
	}
	return *value
}

// ringSet is a bounded insertion-ordered set: once capacity is reached the
// oldest entry is evicted.
type ringSet struct {
	mu      sync.Mutex
	members map[string]struct{}
	order   []string
	next    int
}

func newRingSet(capacity int) *ringSet {
	return &ringSet{
		members: make(map[string]struct{}, capacity),
		order:   make([]string, capacity),
	}
}

func (s *ringSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[key]
	return ok
}

func (s *ringSet) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[key]; ok {
		return
	}
	if old := s.order[s.next]; old != "" {
		delete(s.members, old)
	}
	s.order[s.next] = key
	s.next = (s.next + 1) % len(s.order)
	s.members[key] = struct{}{}
}
