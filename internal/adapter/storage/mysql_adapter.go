package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rl1809/stock-transfer/internal/core/domain"
)

// Schema creates the transfer history tables.
const Schema = `
CREATE TABLE IF NOT EXISTS transfers (
	id              VARCHAR(36)  NOT NULL PRIMARY KEY,
	session_id      VARCHAR(64)  NOT NULL,
	to_clinic_id    INT          NOT NULL,
	notes           TEXT         NOT NULL,
	message         VARCHAR(512) NOT NULL,
	idempotency_key VARCHAR(128) NOT NULL,
	created_at      DATETIME(6)  NOT NULL,
	UNIQUE KEY uq_transfers_idempotency (idempotency_key),
	KEY idx_transfers_created_at (created_at)
);
CREATE TABLE IF NOT EXISTS transfer_lines (
	transfer_id         VARCHAR(36) NOT NULL,
	position            INT         NOT NULL,
	source_inventory_id INT         NOT NULL,
	quantity            INT         NOT NULL,
	serial_numbers      JSON        NULL,
	PRIMARY KEY (transfer_id, position),
	CONSTRAINT fk_transfer_lines_transfer FOREIGN KEY (transfer_id) REFERENCES transfers (id) ON DELETE CASCADE
)`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema runs each statement of Schema.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range splitStatements(Schema) {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) RecordTransfer(ctx context.Context, record domain.TransferRecord) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transfers (id, session_id, to_clinic_id, notes, message, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.SessionID, record.ToClinicID, record.Notes,
		record.Message, record.IdempotencyKey, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}

	for i, p := range record.Products {
		var serials any
		if len(p.SerialNumbers) > 0 {
			encoded, err := json.Marshal(p.SerialNumbers)
			if err != nil {
				return fmt.Errorf("encode serials: %w", err)
			}
			serials = string(encoded)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transfer_lines (transfer_id, position, source_inventory_id, quantity, serial_numbers)
			VALUES (?, ?, ?, ?, ?)`,
			record.ID, i, p.SourceInventoryID, p.Quantity, serials,
		)
		if err != nil {
			return fmt.Errorf("insert transfer line: %w", err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) ListTransfers(ctx context.Context, limit int) ([]domain.TransferRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, session_id, to_clinic_id, notes, message, idempotency_key, created_at
		FROM transfers ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var (
		records []domain.TransferRecord
		ids     []any
		index   = make(map[string]int)
	)
	for rows.Next() {
		var rec domain.TransferRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.ToClinicID, &rec.Notes,
			&rec.Message, &rec.IdempotencyKey, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		index[rec.ID] = len(records)
		ids = append(ids, rec.ID)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	if len(records) == 0 {
		return records, nil
	}

	if err := m.attachLines(ctx, records, index, ids); err != nil {
		return nil, err
	}
	return records, nil
}

// attachLines loads the lines of every listed transfer in one query.
func (m *MySQLAdapter) attachLines(ctx context.Context, records []domain.TransferRecord, index map[string]int, ids []any) error {
	rows, err := m.db.QueryContext(ctx, `
		SELECT transfer_id, source_inventory_id, quantity, serial_numbers
		FROM transfer_lines WHERE transfer_id IN (`+placeholders(len(ids))+`)
		ORDER BY transfer_id, position`, ids...,
	)
	if err != nil {
		return fmt.Errorf("query transfer lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			transferID string
			p          domain.TransferProduct
			serials    sql.NullString
		)
		if err := rows.Scan(&transferID, &p.SourceInventoryID, &p.Quantity, &serials); err != nil {
			return fmt.Errorf("scan transfer line: %w", err)
		}
		if serials.Valid {
			if err := json.Unmarshal([]byte(serials.String), &p.SerialNumbers); err != nil {
				return fmt.Errorf("decode serials: %w", err)
			}
		}
		i, ok := index[transferID]
		if !ok {
			continue
		}
		records[i].Products = append(records[i].Products, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate transfer lines: %w", err)
	}
	return nil
}

// placeholders returns n comma-separated bind markers.
func placeholders(n int) string {
	if n < 1 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func splitStatements(schema string) []string {
	var stmts []string
	for _, stmt := range strings.Split(schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
