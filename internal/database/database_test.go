package database

import (
	"path/filepath"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "remote-access.db")
	if err := Init(path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() {
		Close()
		DB = nil
	})

	ev := SessionEvent{
		SessionID:  "s1",
		DeviceID:   "dev",
		EventType:  "opened",
		Status:     "active",
		OccurredAt: time.Now(),
	}
	if err := DB.Create(&ev).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var got SessionEvent
	if err := DB.First(&got, ev.ID).Error; err != nil {
		t.Fatalf("first: %v", err)
	}
	if got.SessionID != "s1" || got.EventType != "opened" {
		t.Errorf("got %+v", got)
	}

	var mode string
	if err := DB.Raw("PRAGMA journal_mode").Scan(&mode).Error; err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}
