package sniffer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func ruckusTestServer(t *testing.T, clients, rogues, events string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/admin/api/active-clients", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(clients))
	})
	mux.HandleFunc("/admin/api/active-rogues", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(rogues))
	})
	mux.HandleFunc("/admin/api/client-events", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(events))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRuckusSniffer_pollOnce(t *testing.T) {
	srv := ruckusTestServer(t,
		`[{"mac":"aa:bb:cc:dd:ee:ff","signal":-48,"ssid":"Home","hostname":"phone","ap_name":"attic"}]`,
		`[{"mac":"11:22:33:44:55:66","signal":30,"ssid":"xfinitywifi"}]`,
		`[{"time":1700000100,"client":"aa:bb:cc:dd:ee:ff","event":"client disassoc","ssid":"Home"}]`,
	)

	s := NewRuckusSniffer(RuckusConfig{
		Host:     srv.URL,
		Username: "admin",
		Password: "secret",
	}, zap.NewNop())

	var events []BeaconEvent
	s.OnEvent(func(ev BeaconEvent) { events = append(events, ev) })

	ctx := context.Background()
	if err := s.login(ctx); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := s.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}

	client := events[0]
	if client.MACAddress != "AA:BB:CC:DD:EE:FF" || client.Source != SourceRuckus {
		t.Errorf("client event = %+v", client)
	}
	if client.SignalStrength != -48 || client.SSID != "Home" || client.Hostname != "phone" || client.APName != "attic" {
		t.Errorf("client fields = %+v", client)
	}

	// Positive controller signal is SNR and gets mapped onto the dBm range.
	rogue := events[1]
	if rogue.Source != SourceRuckusRogue || rogue.SignalStrength != -70 {
		t.Errorf("rogue event = %+v", rogue)
	}

	disassoc := events[2]
	if disassoc.Source != SourceRuckusEvent || disassoc.SignalStrength != NoSignal {
		t.Errorf("disassoc event = %+v", disassoc)
	}
	if disassoc.Timestamp != time.Unix(1700000100, 0).UTC() {
		t.Errorf("disassoc timestamp = %v", disassoc.Timestamp)
	}
}

func TestRuckusSniffer_eventDedupe(t *testing.T) {
	srv := ruckusTestServer(t, `[]`, `[]`,
		`[{"time":1700000100,"client":"aa:bb:cc:dd:ee:ff","event":"client disassoc"}]`)

	s := NewRuckusSniffer(RuckusConfig{
		Host: srv.URL, Username: "admin", Password: "secret",
	}, zap.NewNop())

	var count int
	s.OnEvent(func(BeaconEvent) { count++ })

	ctx := context.Background()
	for range 3 {
		if err := s.pollOnce(ctx); err != nil {
			t.Fatalf("pollOnce: %v", err)
		}
	}
	if count != 1 {
		t.Fatalf("disassoc emitted %d times, want 1", count)
	}
}

func TestRuckusSniffer_loginFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewRuckusSniffer(RuckusConfig{
		Host: srv.URL, Username: "admin", Password: "wrong",
	}, zap.NewNop())
	if err := s.login(context.Background()); err == nil {
		t.Fatal("expected login error")
	}
}

func TestConvertRSSI(t *testing.T) {
	snr := 42
	dbm := -55
	zero := 0
	tests := []struct {
		name  string
		value *int
		want  int
	}{
		{"missing", nil, -100},
		{"snr", &snr, -58},
		{"dbm", &dbm, -55},
		{"zero", &zero, 0},
	}
	for _, tt := range tests {
		if got := convertRSSI(tt.value); got != tt.want {
			t.Errorf("%s: convertRSSI = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestRingSet_evictsOldest(t *testing.T) {
	s := newRingSet(2)
	s.Add("a")
	s.Add("b")
	s.Add("c") // evicts a
	if s.Contains("a") {
		t.Error("a should have been evicted")
	}
	if !s.Contains("b") || !s.Contains("c") {
		t.Error("b and c should remain")
	}
	s.Add("b") // already present, no eviction
	if !s.Contains("c") {
		t.Error("re-adding b must not evict c")
	}
}
