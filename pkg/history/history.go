// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package history keeps decoded frames in a SQLite database.
package history

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/NotCoffee418/dbmigrator"
	"github.com/fxamacker/cbor/v2"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/teleostat/pkg/teleinfo"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// pairRecord is one group in the stored CBOR blob: [label, value]
type pairRecord struct {
	_     struct{} `cbor:",toarray"`
	Label string
	Value string
}

// Record is one stored frame
type Record struct {
	ID        int64
	Timestamp time.Time
	PAPP      int64
	PTEC      string
	Frame     *teleinfo.Frame
}

// Store is the frame history database
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies migrations
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(db, migrationFS, "migrations")

	if _, err := db.Exec("SELECT COUNT(*) FROM frames"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations not applied: %w", err)
	}

	log.WithField("path", path).Debug("history database ready")
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores a frame
func (s *Store) Insert(f *teleinfo.Frame) error {
	blob, err := EncodePairs(f.Pairs())
	if err != nil {
		return err
	}
	papp, _ := strconv.ParseInt(f.GetValue(teleinfo.LabelPAPP, "0", true), 10, 64)

	_, err = s.db.Exec(
		"INSERT INTO frames (timestamp, papp, ptec, pairs) "+
			"VALUES (?, ?, ?, ?)",
		f.Timestamp().UnixMicro(),
		papp,
		f.GetValue(teleinfo.LabelPTEC, "", false),
		blob,
	)
	if err != nil {
		return fmt.Errorf("failed to insert frame: %w", err)
	}
	return nil
}

// Recent returns up to n frames, newest first
func (s *Store) Recent(n int) ([]Record, error) {
	rows, err := s.db.Query(
		"SELECT id, timestamp, papp, ptec, pairs FROM frames "+
			"ORDER BY id DESC LIMIT ?",
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r    Record
			ts   int64
			blob []byte
		)
		if err := rows.Scan(&r.ID, &ts, &r.PAPP, &r.PTEC, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		pairs, err := DecodePairs(blob)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", r.ID, err)
		}
		r.Timestamp = time.UnixMicro(ts)
		r.Frame = teleinfo.NewFrame(r.Timestamp, pairs)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of stored frames
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM frames").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count frames: %w", err)
	}
	return n, nil
}

// Prune deletes all but the newest keep frames and returns how many were removed
func (s *Store) Prune(keep int) (int64, error) {
	res, err := s.db.Exec(
		"DELETE FROM frames WHERE id NOT IN "+
			"(SELECT id FROM frames ORDER BY id DESC LIMIT ?)",
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune frames: %w", err)
	}
	return res.RowsAffected()
}

// EncodePairs encodes groups as a CBOR array of [label, value] arrays
func EncodePairs(pairs []teleinfo.Pair) ([]byte, error) {
	records := make([]pairRecord, len(pairs))
	for i, p := range pairs {
		records[i] = pairRecord{Label: p.Label, Value: p.Value}
	}
	data, err := cbor.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pairs: %w", err)
	}
	return data, nil
}

// DecodePairs decodes a blob written by EncodePairs
func DecodePairs(data []byte) ([]teleinfo.Pair, error) {
	var records []pairRecord
	if err := cbor.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode pairs: %w", err)
	}
	pairs := make([]teleinfo.Pair, len(records))
	for i, r := range records {
		pairs[i] = teleinfo.Pair{Label: r.Label, Value: r.Value}
	}
	return pairs, nil
}
