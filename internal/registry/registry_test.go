package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"hearthwatch/internal/oui"
	"hearthwatch/internal/sniffer"
	"hearthwatch/internal/store"
	"hearthwatch/pkg/models"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	r := New(st, oui.NewTable(), zap.NewNop())
	if err := r.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return r
}

func sighting(mac string, signal int, ts time.Time) sniffer.BeaconEvent {
	return sniffer.BeaconEvent{
		MACAddress:     mac,
		SignalStrength: signal,
		Timestamp:      ts,
		Source:         sniffer.SourceMock,
	}
}

func TestUpsertDevice_create(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()

	d, err := r.UpsertDevice(ctx, sniffer.BeaconEvent{
		MACAddress:     "b8:27:eb:01:02:03",
		SignalStrength: -42,
		SSID:           "Home",
		Hostname:       "pi-hole",
		Timestamp:      now,
		Source:         sniffer.SourceRuckus,
	})
	if err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}

	if d.MACAddress != "B8:27:EB:01:02:03" {
		t.Errorf("mac not normalized: %q", d.MACAddress)
	}
	if d.Vendor != "Raspberry Pi Foundation" {
		t.Errorf("vendor = %q", d.Vendor)
	}
	if d.VisitCount != 1 {
		t.Errorf("visit count = %d", d.VisitCount)
	}
	if d.IsRandomized {
		t.Error("burned-in OUI flagged as randomized")
	}
	if !d.FirstSeen.Equal(d.LastSeen) {
		t.Errorf("first/last seen differ on create: %v vs %v", d.FirstSeen, d.LastSeen)
	}
}

func TestUpsertDevice_visitCounting(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-2 * time.Hour)

	if _, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:01", -50, base)); err != nil {
		t.Fatal(err)
	}

	// 10 seconds later: same visit.
	d, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:01", -51, base.Add(10*time.Second)))
	if err != nil {
		t.Fatal(err)
	}
	if d.VisitCount != 1 {
		t.Errorf("visit count after 10s = %d, want 1", d.VisitCount)
	}

	// 31 minutes of silence: new visit.
	d, err = r.UpsertDevice(ctx, sighting("AA:00:00:00:00:01", -52, base.Add(10*time.Second+31*time.Minute)))
	if err != nil {
		t.Fatal(err)
	}
	if d.VisitCount != 2 {
		t.Errorf("visit count after 31min gap = %d, want 2", d.VisitCount)
	}
}

func TestUpsertDevice_signalSentinelPreserved(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:02", -48, now)); err != nil {
		t.Fatal(err)
	}
	// A DHCP sighting carries no RF data; the last real reading survives.
	d, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:02", sniffer.NoSignal, now.Add(time.Minute)))
	if err != nil {
		t.Fatal(err)
	}
	if d.SignalStrength != -48 {
		t.Errorf("signal = %d, want -48 preserved", d.SignalStrength)
	}
}

func TestUpsertDevice_stickyFields(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := sighting("AA:00:00:00:00:03", -50, now)
	first.SSID = "Home"
	first.Hostname = "laptop"
	if _, err := r.UpsertDevice(ctx, first); err != nil {
		t.Fatal(err)
	}

	// A probe-request sighting has neither SSID nor hostname.
	d, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:03", -60, now.Add(time.Minute)))
	if err != nil {
		t.Fatal(err)
	}
	if d.SSID != "Home" || d.Hostname != "laptop" {
		t.Errorf("sticky fields lost: ssid=%q hostname=%q", d.SSID, d.Hostname)
	}
}

func TestUpsertDevice_lastWriterWins(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:04", -50, now)); err != nil {
		t.Fatal(err)
	}
	// A delayed event from five minutes ago lands after the current one.
	// The newest write wins even though its timestamp is older.
	d, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:04", -55, now.Add(-5*time.Minute)))
	if err != nil {
		t.Fatal(err)
	}
	if !d.LastSeen.Equal(now.Add(-5 * time.Minute)) {
		t.Errorf("last_seen = %v, want the later write's (older) timestamp", d.LastSeen)
	}
}

func TestClassify(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name   string
		device models.Device
		want   models.Classification
	}{
		{
			"randomized always passerby",
			models.Device{IsRandomized: true, VisitCount: 20, FirstSeen: now.Add(-30 * 24 * time.Hour), LastSeen: now},
			models.ClassificationPasserby,
		},
		{
			"resident needs visits and tenure",
			models.Device{VisitCount: 5, FirstSeen: now.Add(-4 * 24 * time.Hour), LastSeen: now},
			models.ClassificationResident,
		},
		{
			"five visits in one day is only frequent",
			models.Device{VisitCount: 5, FirstSeen: now.Add(-12 * time.Hour), LastSeen: now},
			models.ClassificationFrequent,
		},
		{
			"tenure spans first to last sighting, not the wall clock",
			models.Device{VisitCount: 5, FirstSeen: now.Add(-96 * time.Hour), LastSeen: now.Add(-92 * time.Hour)},
			models.ClassificationFrequent,
		},
		{
			"three visits is frequent",
			models.Device{VisitCount: 3, FirstSeen: now.Add(-2 * 24 * time.Hour), LastSeen: now},
			models.ClassificationFrequent,
		},
		{
			"single weak sighting is passerby",
			models.Device{VisitCount: 1, SignalStrength: -82},
			models.ClassificationPasserby,
		},
		{
			"single strong sighting is unknown",
			models.Device{VisitCount: 1, SignalStrength: -40},
			models.ClassificationUnknown,
		},
		{
			"no signal data stays unknown",
			models.Device{VisitCount: 1, SignalStrength: 0},
			models.ClassificationUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(&tt.device); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUpsertDevice_residentScenario(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-4 * 24 * time.Hour)

	// One visit a day for five days.
	var last *models.Device
	for day := range 5 {
		d, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:05", -45, start.Add(time.Duration(day)*24*time.Hour)))
		if err != nil {
			t.Fatal(err)
		}
		last = d
	}
	if last.VisitCount != 5 {
		t.Fatalf("visit count = %d, want 5", last.VisitCount)
	}
	if last.Classification != models.ClassificationResident {
		t.Errorf("classification = %q, want resident", last.Classification)
	}
}

func TestReclassify_keepsSightingWindowAnchor(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	// Five visits packed into the first day, four days ago. The sighting
	// window is four hours, far under the resident tenure, no matter how
	// much wall-clock time has since passed.
	start := time.Now().UTC().Add(-4 * 24 * time.Hour)
	for i := range 5 {
		if _, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:0A", -45, start.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}
	d, err := r.GetDevice(ctx, "AA:00:00:00:00:0A")
	if err != nil {
		t.Fatal(err)
	}
	if d.Classification != models.ClassificationFrequent {
		t.Fatalf("classification before reclassify = %q", d.Classification)
	}

	d, err = r.Reclassify(ctx, "aa:00:00:00:00:0a")
	if err != nil {
		t.Fatalf("Reclassify: %v", err)
	}
	if d.Classification != models.ClassificationFrequent {
		t.Errorf("classification after reclassify = %q, want frequent: the device was never seen again", d.Classification)
	}
}

func TestSetDisplayName(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	if _, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:06", -50, time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	if err := r.SetDisplayName(ctx, "aa-00-00-00-00-06", "Kitchen Tablet"); err != nil {
		t.Fatalf("SetDisplayName: %v", err)
	}

	d, err := r.GetDevice(ctx, "AA:00:00:00:00:06")
	if err != nil {
		t.Fatal(err)
	}
	if d.DisplayName != "Kitchen Tablet" || d.Name() != "Kitchen Tablet" {
		t.Errorf("display name = %q", d.DisplayName)
	}

	err = r.SetDisplayName(ctx, "FF:FF:FF:FF:FF:FF", "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListDevices_classificationFilter(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:07", -40, now)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.UpsertDevice(ctx, sighting("FA:00:00:00:00:08", -85, now)); err != nil {
		t.Fatal(err)
	}

	all, err := r.ListDevices(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all devices = %d, want 2", len(all))
	}

	passersby, err := r.ListDevices(ctx, models.ClassificationPasserby)
	if err != nil {
		t.Fatal(err)
	}
	if len(passersby) != 1 || passersby[0].MACAddress != "FA:00:00:00:00:08" {
		t.Fatalf("passerby filter = %+v", passersby)
	}
	if !passersby[0].IsRandomized {
		t.Error("locally administered MAC not flagged")
	}
}

func TestPresenceDetector_transitions(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	det := NewPresenceDetector(r, 3*time.Minute, zap.NewNop())

	// Nothing present yet.
	trs, err := det.DetectChanges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(trs) != 0 {
		t.Fatalf("transitions on empty registry = %+v", trs)
	}

	// Device appears.
	if _, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:09", -50, time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	trs, err = det.DetectChanges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(trs) != 1 || trs[0].EventType != models.PresenceArrive || trs[0].MACAddress != "AA:00:00:00:00:09" {
		t.Fatalf("arrival = %+v", trs)
	}

	// Still present: no repeated arrival.
	trs, err = det.DetectChanges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(trs) != 0 {
		t.Fatalf("repeat check emitted %+v", trs)
	}

	// Push last_seen beyond the grace period; next check is a departure.
	if _, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:09", -50, time.Now().UTC().Add(-10*time.Minute))); err != nil {
		t.Fatal(err)
	}
	trs, err = det.DetectChanges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(trs) != 1 || trs[0].EventType != models.PresenceDepart {
		t.Fatalf("departure = %+v", trs)
	}

	history, err := r.PresenceHistory(ctx, "AA:00:00:00:00:09", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].EventType != models.PresenceDepart || history[1].EventType != models.PresenceArrive {
		t.Errorf("history order = %+v", history)
	}
}

func TestPresenceDetector_partialLogFailure(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	det := NewPresenceDetector(r, 3*time.Minute, zap.NewNop())

	now := time.Now().UTC()
	if _, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:0B", -50, now)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.UpsertDevice(ctx, sighting("AA:00:00:00:00:0C", -50, now)); err != nil {
		t.Fatal(err)
	}

	// The second write fails after the first arrival is already in the log.
	calls := 0
	det.record = func(ctx context.Context, tr models.PresenceLog) error {
		calls++
		if calls == 2 {
			return errors.New("disk full")
		}
		return r.LogPresenceChange(ctx, tr)
	}

	first, err := det.DetectChanges(ctx)
	if err == nil {
		t.Fatal("expected an error from the failed write")
	}
	if len(first) != 1 {
		t.Fatalf("transitions returned with the error = %+v, want only the recorded one", first)
	}

	// The next pass emits only the arrival that never made it into the log.
	det.record = r.LogPresenceChange
	second, err := det.DetectChanges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 1 {
		t.Fatalf("retry transitions = %+v, want 1", second)
	}
	if second[0].MACAddress == first[0].MACAddress {
		t.Errorf("re-emitted an already recorded arrival for %s", first[0].MACAddress)
	}

	history, err := r.PresenceHistory(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].MACAddress == history[1].MACAddress {
		t.Errorf("duplicate log rows for %s", history[0].MACAddress)
	}
}
