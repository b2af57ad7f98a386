package sessionaudit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gluk-w/claworc/remote-access/internal/database"
	"github.com/gluk-w/claworc/remote-access/internal/session"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// A temp file so the writer goroutine and the test share one database.
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

var base = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

func statusUpdate(sid string, reason session.Reason, status session.Status, at time.Time) session.Update {
	return session.Update{
		SessionID: sid,
		DeviceID:  "dev-" + sid,
		Type:      session.UpdateStatus,
		Timestamp: at,
		Status:    &session.StatusChange{Status: status, Reason: reason, Message: string(reason)},
	}
}

func TestNewAuditor_RetentionDefault(t *testing.T) {
	a := NewAuditor(setupTestDB(t), 0)
	if a.RetentionDays() != DefaultRetentionDays {
		t.Errorf("RetentionDays() = %d, want %d", a.RetentionDays(), DefaultRetentionDays)
	}
}

func TestRecord_WritesStatusUpdatesOnly(t *testing.T) {
	a := NewAuditor(setupTestDB(t), 90)
	a.Start()

	a.Record(statusUpdate("s1", session.ReasonOpened, session.StatusActive, base))
	a.Record(session.Update{SessionID: "s1", Type: session.UpdateCountdown, Countdown: &session.Countdown{}})
	a.Record(statusUpdate("s1", session.ReasonConnectionLost, session.StatusReconnecting, base.Add(time.Second)))
	a.Stop()

	res, err := a.Query(QueryOptions{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("total = %d, want 2", res.Total)
	}
	if res.Entries[0].EventType != string(session.ReasonConnectionLost) {
		t.Errorf("newest entry = %q, want connection_lost", res.Entries[0].EventType)
	}
	if res.Entries[0].Status != "reconnecting" || res.Entries[0].DeviceID != "dev-s1" {
		t.Errorf("entry = %+v", res.Entries[0])
	}
}

func TestRecord_AfterStopIsIgnored(t *testing.T) {
	a := NewAuditor(setupTestDB(t), 90)
	a.Start()
	a.Stop()
	a.Stop()
	a.Record(statusUpdate("s1", session.ReasonOpened, session.StatusActive, base))

	res, err := a.Query(QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Total != 0 {
		t.Errorf("total = %d, want 0", res.Total)
	}
}

func TestQuery_Filters(t *testing.T) {
	a := NewAuditor(setupTestDB(t), 90)
	entries := []Entry{
		{SessionID: "s1", DeviceID: "d1", EventType: "opened", Status: "active", OccurredAt: base},
		{SessionID: "s1", DeviceID: "d1", EventType: "expired", Status: "expired", OccurredAt: base.Add(time.Hour)},
		{SessionID: "s2", DeviceID: "d2", EventType: "opened", Status: "active", OccurredAt: base.Add(time.Minute)},
	}
	for _, e := range entries {
		if err := a.Log(e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	since := base.Add(30 * time.Second)
	tests := []struct {
		name string
		opts QueryOptions
		want int64
	}{
		{"all", QueryOptions{}, 3},
		{"by session", QueryOptions{SessionID: "s1"}, 2},
		{"by device", QueryOptions{DeviceID: "d2"}, 1},
		{"by type", QueryOptions{EventType: "opened"}, 2},
		{"since", QueryOptions{Since: &since}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Query(tt.opts)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if res.Total != tt.want {
				t.Errorf("total = %d, want %d", res.Total, tt.want)
			}
		})
	}

	res, err := a.Query(QueryOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Entries) != 1 || res.Total != 3 || res.Limit != 1 {
		t.Errorf("paged result = %+v", res)
	}
	if res.Entries[0].SessionID != "s2" {
		t.Errorf("second newest = %q, want s2", res.Entries[0].SessionID)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	a := NewAuditor(setupTestDB(t), 30)
	a.SetNowFunc(func() time.Time { return base })

	a.Log(Entry{SessionID: "old", DeviceID: "d", EventType: "opened", Status: "active", OccurredAt: base.AddDate(0, 0, -31)})
	a.Log(Entry{SessionID: "new", DeviceID: "d", EventType: "opened", Status: "active", OccurredAt: base.AddDate(0, 0, -1)})

	n, err := a.PurgeOlderThan(0)
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	res, _ := a.Query(QueryOptions{})
	if res.Total != 1 || res.Entries[0].SessionID != "new" {
		t.Errorf("remaining = %+v", res.Entries)
	}
}
