// Package journal implements the Outcome Journal (C9), a supplemental
// component not named in spec.md's core but grounded in the source system's
// own send-history tracking (original_source's sms_sender local log) and
// adapted from the teacher's internal/db package: a local, durable record of
// every send attempt, independent of the upstream bus's own delivery
// bookkeeping, so operators can query recent activity without the bus.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	// registers the sqlite3 driver with database/sql
	_ "github.com/mattn/go-sqlite3"
)

const schemaVersion = "smsgw v1"

// Journal wraps a sqlite-backed outcome log.
type Journal struct {
	db *sql.DB
}

// Outcome is one recorded send attempt (spec.md §3 SmsOutcome, persisted per
// SPEC_FULL.md's C9 field list: message identity, destination, result, the
// modem that carried it, and timing/segmentation).
type Outcome struct {
	AttemptID     string
	Destination   string
	Success       bool
	Kind          string
	IMEI          string
	ElapsedMillis int64
	SegmentsTotal int
	SegmentsSent  int
}

// Open creates or opens the journal database at path, initializing its
// schema on first use.
func Open(path string) (*Journal, error) {
	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	j := &Journal{db: sqldb}
	needsInit := true
	if rows, err := sqldb.Query("SELECT version FROM schema_version"); err == nil {
		if rows.Next() {
			var version string
			if err := rows.Scan(&version); err == nil && version == schemaVersion {
				needsInit = false
			}
		}
		rows.Close()
	}
	if needsInit {
		if err := j.init(); err != nil {
			sqldb.Close()
			return nil, err
		}
	}
	return j, nil
}

func (j *Journal) init() error {
	cmds := []string{
		`CREATE TABLE IF NOT EXISTS outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			attempt_id TEXT NOT NULL,
			destination TEXT NOT NULL,
			success INTEGER NOT NULL,
			kind TEXT NOT NULL,
			imei TEXT NOT NULL,
			elapsed_millis INTEGER NOT NULL,
			segments_total INTEGER NOT NULL,
			segments_sent INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		"CREATE INDEX IF NOT EXISTS outcomes_success ON outcomes (success)",
		"CREATE UNIQUE INDEX IF NOT EXISTS outcomes_attempt_id ON outcomes (attempt_id)",
		`CREATE TABLE IF NOT EXISTS schema_version (
			version TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		fmt.Sprintf("INSERT INTO schema_version(version) VALUES('%s')", schemaVersion),
	}
	for _, cmd := range cmds {
		if _, err := j.db.Exec(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Record appends one outcome. Journal writes are best-effort: a failure here
// must never block or fail the send path, so callers log and continue
// rather than propagate.
func (j *Journal) Record(o Outcome) error {
	_, err := j.db.Exec(
		`INSERT INTO outcomes(attempt_id, destination, success, kind, imei, elapsed_millis, segments_total, segments_sent)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		o.AttemptID, o.Destination, o.Success, o.Kind, o.IMEI, o.ElapsedMillis, o.SegmentsTotal, o.SegmentsSent,
	)
	return err
}

// StatusSummary returns the count of successes and failures recorded.
func (j *Journal) StatusSummary() (succeeded, failed int, err error) {
	row := j.db.QueryRow("SELECT COALESCE(SUM(success),0), COALESCE(SUM(1-success),0) FROM outcomes")
	err = row.Scan(&succeeded, &failed)
	return succeeded, failed, err
}

// Last7DaysCount returns the number of outcomes recorded on each of the past
// 7 days, keyed by "2006-01-02".
func (j *Journal) Last7DaysCount() (map[string]int, error) {
	now := time.Now()
	lastWeek := time.Date(now.Year(), now.Month(), now.Day()-7, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
	rows, err := j.db.Query(
		`SELECT strftime('%Y-%m-%d', created_at) AS datestamp, COUNT(id)
		 FROM outcomes WHERE datestamp > ? GROUP BY datestamp`,
		lastWeek,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int, 7)
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, err
		}
		counts[day] = count
	}
	return counts, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
