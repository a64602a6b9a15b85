// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"database/sql"
	"fmt"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/mac"
	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// Storage defines the interface for policy persistence
type Storage interface {
	// SaveInterfacePolicy inserts or updates an interface entry
	SaveInterfacePolicy(e *InterfaceEntry) error

	// SaveClientPolicy inserts or updates a client entry
	SaveClientPolicy(e *ClientEntry) error

	// LoadPolicies loads both tables in insertion order
	LoadPolicies() ([]InterfaceEntry, []ClientEntry, error)

	// ClearAll removes every persisted entry
	ClearAll() error

	// Close closes the storage connection
	Close() error
}

// SQLiteStorage implements Storage using SQLite database
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db}

	// Initialize database schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Infof("Policy storage initialized: %s", dbPath)
	return storage, nil
}

// initSchema creates the policy tables if they don't exist
func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interface_policies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		interface TEXT NOT NULL,
		ssid TEXT NOT NULL,
		down INTEGER NOT NULL,
		up INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(interface, ssid)
	);

	CREATE TABLE IF NOT EXISTS client_policies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		interface TEXT NOT NULL,
		ssid TEXT NOT NULL,
		mac TEXT NOT NULL,
		down INTEGER NOT NULL,
		up INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(interface, ssid, mac)
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SaveInterfacePolicy saves an interface entry to the database
func (s *SQLiteStorage) SaveInterfacePolicy(e *InterfaceEntry) error {
	query := `
	INSERT INTO interface_policies (interface, ssid, down, up)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(interface, ssid) DO UPDATE SET
		down = excluded.down,
		up = excluded.up,
		updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.Exec(query,
		e.Selectors.Interface,
		e.Selectors.SSID,
		e.Rate.Down,
		e.Rate.Up,
	)
	if err != nil {
		return fmt.Errorf("failed to save interface policy: %w", err)
	}

	log.Debugf("Interface policy saved to storage: interface=%q", e.Selectors.Interface)
	return nil
}

// SaveClientPolicy saves a client entry to the database
func (s *SQLiteStorage) SaveClientPolicy(e *ClientEntry) error {
	query := `
	INSERT INTO client_policies (interface, ssid, mac, down, up)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(interface, ssid, mac) DO UPDATE SET
		down = excluded.down,
		up = excluded.up,
		updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.Exec(query,
		e.Selectors.Interface,
		e.Selectors.SSID,
		e.Selectors.MAC.String(),
		e.Rate.Down,
		e.Rate.Up,
	)
	if err != nil {
		return fmt.Errorf("failed to save client policy: %w", err)
	}

	log.Debugf("Client policy saved to storage: interface=%q", e.Selectors.Interface)
	return nil
}

// LoadPolicies loads all entries from the database
func (s *SQLiteStorage) LoadPolicies() ([]InterfaceEntry, []ClientEntry, error) {
	interfaces, err := s.loadInterfacePolicies()
	if err != nil {
		return nil, nil, err
	}

	clients, err := s.loadClientPolicies()
	if err != nil {
		return nil, nil, err
	}

	log.Infof("Loaded %d interface and %d client policies from storage", len(interfaces), len(clients))
	return interfaces, clients, nil
}

func (s *SQLiteStorage) loadInterfacePolicies() ([]InterfaceEntry, error) {
	rows, err := s.db.Query(`SELECT interface, ssid, down, up FROM interface_policies ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query interface policies: %w", err)
	}
	defer rows.Close()

	var entries []InterfaceEntry
	for rows.Next() {
		var e InterfaceEntry
		if err := rows.Scan(&e.Selectors.Interface, &e.Selectors.SSID, &e.Rate.Down, &e.Rate.Up); err != nil {
			return nil, fmt.Errorf("failed to scan interface policy: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interface policies: %w", err)
	}

	return entries, nil
}

func (s *SQLiteStorage) loadClientPolicies() ([]ClientEntry, error) {
	rows, err := s.db.Query(`SELECT interface, ssid, mac, down, up FROM client_policies ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query client policies: %w", err)
	}
	defer rows.Close()

	var entries []ClientEntry
	for rows.Next() {
		var (
			e      ClientEntry
			macStr string
		)
		if err := rows.Scan(&e.Selectors.Interface, &e.Selectors.SSID, &macStr, &e.Rate.Down, &e.Rate.Up); err != nil {
			return nil, fmt.Errorf("failed to scan client policy: %w", err)
		}

		addr, err := mac.Parse(macStr)
		if err != nil {
			log.Warnf("Skipping client policy with invalid MAC %q: %v", macStr, err)
			continue
		}
		e.Selectors.MAC = addr

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating client policies: %w", err)
	}

	return entries, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetPolicyCount returns the total number of entries in storage
func (s *SQLiteStorage) GetPolicyCount() (int, error) {
	query := `SELECT (SELECT COUNT(*) FROM interface_policies) + (SELECT COUNT(*) FROM client_policies)`

	var count int
	err := s.db.QueryRow(query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get policy count: %w", err)
	}

	return count, nil
}

// ClearAll removes all entries from storage
func (s *SQLiteStorage) ClearAll() error {
	_, err := s.db.Exec(`DELETE FROM interface_policies; DELETE FROM client_policies;`)
	if err != nil {
		return fmt.Errorf("failed to clear policies: %w", err)
	}

	log.Info("All policies cleared from storage")
	return nil
}
