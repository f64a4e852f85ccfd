package sniffer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestOPNsenseSniffer_pollOnce(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, secret, ok := r.BasicAuth()
		if !ok || key != "key" || secret != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/api/dhcpv4/leases/searchLease" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"rows":[
			{"mac":"aa:bb:cc:00:11:22","address":"192.168.1.10","hostname":"nas","state":"active"},
			{"mac":"dd:ee:ff:33:44:55","address":"192.168.1.11","hostname":"old-laptop","state":"expired"},
			{"mac":"","address":"192.168.1.12","state":"active"}
		]}`))
	}))
	defer srv.Close()

	s := NewOPNsenseSniffer(OPNsenseConfig{
		Host:      srv.URL,
		APIKey:    "key",
		APISecret: "secret",
	}, zap.NewNop())
	s.client = srv.Client()

	var events []BeaconEvent
	s.OnEvent(func(ev BeaconEvent) { events = append(events, ev) })

	if err := s.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected only the active lease, got %d events", len(events))
	}
	ev := events[0]
	if ev.MACAddress != "AA:BB:CC:00:11:22" {
		t.Errorf("mac = %q", ev.MACAddress)
	}
	if ev.Hostname != "nas" {
		t.Errorf("hostname = %q", ev.Hostname)
	}
	if ev.SignalStrength != NoSignal {
		t.Errorf("lease sighting carried signal %d", ev.SignalStrength)
	}
	if ev.Source != SourceOPNsense {
		t.Errorf("source = %q", ev.Source)
	}
}

func TestOPNsenseSniffer_badCredentials(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewOPNsenseSniffer(OPNsenseConfig{
		Host: srv.URL, APIKey: "key", APISecret: "nope",
	}, zap.NewNop())
	s.client = srv.Client()

	err := s.pollOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
}

func TestOPNsenseSniffer_baseURL(t *testing.T) {
	tests := []struct{ host, want string }{
		{"firewall.lan", "https://firewall.lan"},
		{"http://firewall.lan", "https://firewall.lan"},
		{"https://firewall.lan/", "https://firewall.lan"},
	}
	for _, tt := range tests {
		s := NewOPNsenseSniffer(OPNsenseConfig{Host: tt.host}, zap.NewNop())
		if got := s.baseURL(); got != tt.want {
			t.Errorf("baseURL(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}
