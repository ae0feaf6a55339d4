package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bluegreen-deployment/internal/logger"
	"bluegreen-deployment/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Ledger persists one immutable record per deployment attempt. It is
// strictly append-only: no UPDATE or DELETE statements exist in this
// package. The slot registry uses Last as its fallback source of truth.
type Ledger struct {
	db     *sql.DB
	logger *logrus.Entry
}

const createTable = `
CREATE TABLE IF NOT EXISTS deployment_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	attempt_id TEXT UNIQUE NOT NULL,
	app_name TEXT NOT NULL,
	artifact_id TEXT,
	version TEXT,
	checksum TEXT,
	target_slot TEXT NOT NULL,
	previous_live_slot TEXT NOT NULL,
	outcome TEXT NOT NULL,
	health_passed INTEGER NOT NULL DEFAULT 0,
	quality_average REAL NOT NULL DEFAULT 0,
	quality_attempts INTEGER NOT NULL DEFAULT 0,
	quality_overridden INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	detail TEXT
);`

// Open opens (creating if necessary) the ledger database at path.
func Open(path string) (*Ledger, error) {
	log := logger.WithModule("ledger")
	log.WithField("path", path).Debug("Opening ledger database")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
	}
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create records table: %w", err)
	}

	return &Ledger{db: db, logger: log}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Append writes one record. Records are never edited or deleted afterwards.
func (l *Ledger) Append(r *models.DeploymentRecord) error {
	l.logger.WithFields(logrus.Fields{
		"attempt_id": r.AttemptID,
		"target":     r.TargetSlot,
		"outcome":    r.Outcome,
	}).Info("Appending deployment record")

	stmt, err := l.db.Prepare(`INSERT INTO deployment_records
		(attempt_id, app_name, artifact_id, version, checksum,
		 target_slot, previous_live_slot, outcome,
		 health_passed, quality_average, quality_attempts, quality_overridden,
		 started_at, finished_at, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(
		r.AttemptID, r.AppName, r.ArtifactID, r.Version, r.Checksum,
		string(r.TargetSlot), string(r.PreviousLiveSlot), r.Outcome,
		boolToInt(r.HealthPassed), r.QualityAverage, r.QualityAttempts,
		boolToInt(r.QualityOverridden),
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Last returns the most recent record, or nil when the ledger is empty.
func (l *Ledger) Last() (*models.DeploymentRecord, error) {
	return l.queryOne(`SELECT ` + columns + ` FROM deployment_records
		ORDER BY id DESC LIMIT 1`)
}

// LastSuccessful returns the most recent record whose switch completed,
// or nil when there is none. Rollback uses it to find the slot that last
// verifiably held traffic.
func (l *Ledger) LastSuccessful() (*models.DeploymentRecord, error) {
	return l.queryOne(`SELECT `+columns+` FROM deployment_records
		WHERE outcome = ? ORDER BY id DESC LIMIT 1`, models.OutcomeSuccess)
}

// ByAttempt returns the record for one attempt, or nil when unknown.
func (l *Ledger) ByAttempt(attemptID string) (*models.DeploymentRecord, error) {
	return l.queryOne(`SELECT `+columns+` FROM deployment_records
		WHERE attempt_id = ?`, attemptID)
}

// History returns up to limit records, newest first.
func (l *Ledger) History(limit int) ([]*models.DeploymentRecord, error) {
	rows, err := l.db.Query(`SELECT `+columns+` FROM deployment_records
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []*models.DeploymentRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

const columns = `id, attempt_id, app_name, artifact_id, version, checksum,
	target_slot, previous_live_slot, outcome,
	health_passed, quality_average, quality_attempts, quality_overridden,
	started_at, finished_at, detail`

type scanner interface {
	Scan(dest ...any) error
}

func (l *Ledger) queryOne(query string, args ...any) (*models.DeploymentRecord, error) {
	row := l.db.QueryRow(query, args...)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func scanRecord(s scanner) (*models.DeploymentRecord, error) {
	var r models.DeploymentRecord
	var target, previous string
	var healthPassed, overrode int
	var startedAt, finishedAt string
	err := s.Scan(&r.ID, &r.AttemptID, &r.AppName, &r.ArtifactID, &r.Version,
		&r.Checksum, &target, &previous, &r.Outcome,
		&healthPassed, &r.QualityAverage, &r.QualityAttempts, &overrode,
		&startedAt, &finishedAt, &r.Detail)
	if err != nil {
		return nil, err
	}
	r.TargetSlot = models.Slot(target)
	r.PreviousLiveSlot = models.Slot(previous)
	r.HealthPassed = healthPassed != 0
	r.QualityOverridden = overrode != 0
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
