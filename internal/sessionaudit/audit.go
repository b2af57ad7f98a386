// Package sessionaudit persists session status notifications so operators
// can see what happened to a session after it is gone.
package sessionaudit

import (
	"log"
	"sync"
	"time"

	"github.com/gluk-w/claworc/remote-access/internal/database"
	"github.com/gluk-w/claworc/remote-access/internal/logging"
	"github.com/gluk-w/claworc/remote-access/internal/session"
	"gorm.io/gorm"
)

// DefaultRetentionDays is the default number of days to keep audit rows.
const DefaultRetentionDays = 90

// queueSize bounds how many events may wait for the writer.
const queueSize = 256

// Entry contains the fields needed to create an audit row.
type Entry struct {
	SessionID  string
	DeviceID   string
	EventType  string
	Status     string
	Message    string
	OccurredAt time.Time
}

// Auditor records session events. Record never blocks the caller: entries
// are queued and written by a background worker.
type Auditor struct {
	db            *gorm.DB
	retentionDays int
	nowFn         func() time.Time

	queue   chan Entry
	wg      sync.WaitGroup
	stopMu  sync.Mutex
	stopped bool
	dropped uint64
}

// NewAuditor creates an Auditor writing to db.
// If retentionDays is 0, DefaultRetentionDays is used.
func NewAuditor(db *gorm.DB, retentionDays int) *Auditor {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Auditor{
		db:            db,
		retentionDays: retentionDays,
		nowFn:         time.Now,
		queue:         make(chan Entry, queueSize),
	}
}

// Start launches the background writer.
func (a *Auditor) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for e := range a.queue {
			a.Log(e)
		}
	}()
}

// Stop drains the queue and waits for the writer to exit.
func (a *Auditor) Stop() {
	a.stopMu.Lock()
	if a.stopped {
		a.stopMu.Unlock()
		return
	}
	a.stopped = true
	close(a.queue)
	a.stopMu.Unlock()
	a.wg.Wait()
}

// Record queues a session update. Only status notifications are audited.
// It is safe to use as a session.Listener.
func (a *Auditor) Record(u session.Update) {
	if u.Type != session.UpdateStatus || u.Status == nil {
		return
	}
	e := Entry{
		SessionID:  u.SessionID,
		DeviceID:   u.DeviceID,
		EventType:  string(u.Status.Reason),
		Status:     string(u.Status.Status),
		Message:    u.Status.Message,
		OccurredAt: u.Timestamp,
	}

	a.stopMu.Lock()
	defer a.stopMu.Unlock()
	if a.stopped {
		return
	}
	select {
	case a.queue <- e:
	default:
		a.dropped++
		log.Printf("[session-audit] queue full, dropped %s event for session %s (%d dropped)",
			e.EventType, logging.Sanitize(e.SessionID), a.dropped)
	}
}

// Log writes an entry synchronously.
func (a *Auditor) Log(e Entry) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = a.nowFn()
	}
	record := database.SessionEvent{
		SessionID:  e.SessionID,
		DeviceID:   e.DeviceID,
		EventType:  e.EventType,
		Status:     e.Status,
		Message:    e.Message,
		OccurredAt: e.OccurredAt,
	}
	if err := a.db.Create(&record).Error; err != nil {
		log.Printf("[session-audit] failed to write audit row: %v", err)
		return err
	}
	log.Printf("[session-audit] %s session=%s device=%s status=%s",
		e.EventType, logging.Sanitize(e.SessionID), logging.Sanitize(e.DeviceID), e.Status)
	return nil
}

// QueryOptions specifies filters for retrieving audit rows.
type QueryOptions struct {
	SessionID string
	DeviceID  string
	EventType string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// QueryResult contains audit rows and pagination metadata.
type QueryResult struct {
	Entries []database.SessionEvent `json:"entries"`
	Total   int64                   `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

// Query retrieves audit rows matching opts, newest first.
func (a *Auditor) Query(opts QueryOptions) (*QueryResult, error) {
	tx := a.db.Model(&database.SessionEvent{})

	if opts.SessionID != "" {
		tx = tx.Where("session_id = ?", opts.SessionID)
	}
	if opts.DeviceID != "" {
		tx = tx.Where("device_id = ?", opts.DeviceID)
	}
	if opts.EventType != "" {
		tx = tx.Where("event_type = ?", opts.EventType)
	}
	if opts.Since != nil {
		tx = tx.Where("occurred_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		tx = tx.Where("occurred_at <= ?", *opts.Until)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}

	var entries []database.SessionEvent
	if err := tx.Order("occurred_at DESC, id DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&entries).Error; err != nil {
		return nil, err
	}

	return &QueryResult{
		Entries: entries,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}, nil
}

// PurgeOlderThan removes rows older than days, or the configured retention
// when days is 0. It returns the number of rows deleted.
func (a *Auditor) PurgeOlderThan(days int) (int64, error) {
	if days <= 0 {
		days = a.retentionDays
	}
	cutoff := a.nowFn().AddDate(0, 0, -days)
	result := a.db.Where("occurred_at < ?", cutoff).Delete(&database.SessionEvent{})
	if result.Error != nil {
		log.Printf("[session-audit] purge failed: %v", result.Error)
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("[session-audit] purged %d audit rows older than %d days", result.RowsAffected, days)
	}
	return result.RowsAffected, nil
}

// RetentionDays returns the configured retention period.
func (a *Auditor) RetentionDays() int {
	return a.retentionDays
}

// SetNowFunc sets the clock function used for testing.
func (a *Auditor) SetNowFunc(fn func() time.Time) {
	a.nowFn = fn
}
