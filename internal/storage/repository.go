package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"splitledger/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores the settlement journal and the worker's ledger snapshot.
type SQLiteRepository struct {
	db *sql.DB
}

// Snapshot is one full read of the ledger.
type Snapshot struct {
	People          []core.Person
	Expenses        []core.Expense
	TotalRegistered uint64
	RefreshedAt     time.Time
}

// SnapshotMeta describes the last stored snapshot.
type SnapshotMeta struct {
	TotalRegistered uint64
	RefreshedAt     time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one writer at a time; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RecordSettlementAttempt upserts the attempt keyed by run and creditor, so
// each transition overwrites the previous state of the same attempt.
func (r *SQLiteRepository) RecordSettlementAttempt(ctx context.Context, a core.SettlementAttempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settlement_attempts
			(run_id, creditor, debtor, amount_wei, age_days, state, tx_hash, error, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, creditor) DO UPDATE SET
			state = excluded.state,
			tx_hash = excluded.tx_hash,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		a.RunID, a.Creditor.Hex(), a.Debtor.Hex(), weiString(a.Amount), int64(a.AgeInDays),
		string(a.State), a.TxHash, a.Error, a.StartedAt.Unix(), a.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record settlement attempt: %w", err)
	}
	slog.DebugContext(ctx, "Settlement attempt journaled",
		"run_id", a.RunID, "creditor", a.Creditor.Hex(), "state", a.State)
	return nil
}

// ListSettlementAttempts returns the most recently updated attempts first.
func (r *SQLiteRepository) ListSettlementAttempts(ctx context.Context, limit int) ([]core.SettlementAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, creditor, debtor, amount_wei, age_days, state, tx_hash, error, started_at, updated_at
		FROM settlement_attempts
		ORDER BY updated_at DESC, run_id, creditor
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list settlement attempts: %w", err)
	}
	defer rows.Close()

	var out []core.SettlementAttempt
	for rows.Next() {
		var (
			a                core.SettlementAttempt
			creditor, debtor string
			amount, state    string
			age              int64
			started, updated int64
		)
		if err := rows.Scan(&a.RunID, &creditor, &debtor, &amount, &age, &state,
			&a.TxHash, &a.Error, &started, &updated); err != nil {
			return nil, fmt.Errorf("scan settlement attempt: %w", err)
		}
		a.Creditor = common.HexToAddress(creditor)
		a.Debtor = common.HexToAddress(debtor)
		if a.Amount, err = parseWei(amount); err != nil {
			return nil, err
		}
		a.AgeInDays = uint64(age)
		a.State = core.SettlementState(state)
		a.StartedAt = time.Unix(started, 0).UTC()
		a.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceSnapshot stores a fresh ledger read.
//
// People are replaced wholesale. Expenses are append-only on the ledger, so
// rows missing from a partial read are kept; participants of every expense in
// the read are rewritten, except that a degraded participant keeps amounts
// stored by an earlier clean read. An expense left with placeholder amounts
// is flagged degraded. Mirror state survives the refresh.
func (r *SQLiteRepository) ReplaceSnapshot(ctx context.Context, s Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM people`); err != nil {
		return fmt.Errorf("clear people: %w", err)
	}
	for i, p := range s.People {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO people (address, name, net_balance_wei, position) VALUES (?, ?, ?, ?)`,
			p.Address.Hex(), p.Name, weiString(p.NetBalance), i); err != nil {
			return fmt.Errorf("insert person %s: %w", p.Address.Hex(), err)
		}
	}

	for _, e := range s.Expenses {
		if e.Degraded() {
			if e, err = mergeStoredParticipants(ctx, tx, e); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO expenses (id, label, created_at, total_wei, degraded) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				label = excluded.label,
				created_at = excluded.created_at,
				total_wei = excluded.total_wei,
				degraded = excluded.degraded`,
			int64(e.ID), e.Label, e.Timestamp.Unix(), weiString(e.Total()), e.Degraded()); err != nil {
			return fmt.Errorf("upsert expense %d: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM expense_participants WHERE expense_id = ?`, int64(e.ID)); err != nil {
			return fmt.Errorf("clear participants of %d: %w", e.ID, err)
		}
		for j, p := range e.Participants {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO expense_participants (expense_id, address, position, paid_wei, owed_wei, degraded)
				VALUES (?, ?, ?, ?, ?, ?)`,
				int64(e.ID), p.Address.Hex(), j, weiString(p.AmountPaid), weiString(p.AmountOwed), p.Degraded); err != nil {
				return fmt.Errorf("insert participant of %d: %w", e.ID, err)
			}
		}
	}

	refreshed := s.RefreshedAt
	if refreshed.IsZero() {
		refreshed = time.Now()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (id, total_registered, refreshed_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_registered = excluded.total_registered,
			refreshed_at = excluded.refreshed_at`,
		int64(s.TotalRegistered), refreshed.Unix()); err != nil {
		return fmt.Errorf("update snapshot meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	slog.InfoContext(ctx, "Ledger snapshot stored",
		"people", len(s.People), "expenses", len(s.Expenses), "total_registered", s.TotalRegistered)
	return nil
}

// SnapshotInfo returns the metadata of the last snapshot, or a zero value
// when none was stored yet.
func (r *SQLiteRepository) SnapshotInfo(ctx context.Context) (SnapshotMeta, error) {
	var total, refreshed int64
	err := r.db.QueryRowContext(ctx,
		`SELECT total_registered, refreshed_at FROM snapshot_meta WHERE id = 1`).Scan(&total, &refreshed)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotMeta{}, nil
	}
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("read snapshot meta: %w", err)
	}
	return SnapshotMeta{TotalRegistered: uint64(total), RefreshedAt: time.Unix(refreshed, 0).UTC()}, nil
}

// ListPeople returns the snapshot people in ledger order.
func (r *SQLiteRepository) ListPeople(ctx context.Context) ([]core.Person, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT address, name, net_balance_wei FROM people ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	var out []core.Person
	for rows.Next() {
		var addr, name, bal string
		if err := rows.Scan(&addr, &name, &bal); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		net, err := parseWei(bal)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Person{Address: common.HexToAddress(addr), Name: name, NetBalance: net})
	}
	return out, rows.Err()
}

// ListExpenses returns the snapshot expenses ordered by ledger id.
func (r *SQLiteRepository) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	return r.queryExpenses(ctx, `SELECT id, label, created_at FROM expenses ORDER BY id`)
}

// PendingMirrorExpenses returns expenses not yet mirrored, oldest first.
// It stops before the first degraded expense, which waits for a clean read
// so the mirror never receives placeholder amounts and keeps id order.
func (r *SQLiteRepository) PendingMirrorExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.queryExpenses(ctx, `
		SELECT id, label, created_at FROM expenses
		WHERE mirrored_at IS NULL
			AND id < COALESCE(
				(SELECT MIN(id) FROM expenses WHERE mirrored_at IS NULL AND degraded = 1),
				9223372036854775807)
		ORDER BY id LIMIT ?`, limit)
}

// MarkMirrored records that an expense was copied to the mirror.
func (r *SQLiteRepository) MarkMirrored(ctx context.Context, id uint64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE expenses SET mirrored_at = ? WHERE id = ?`, at.Unix(), int64(id))
	if err != nil {
		return fmt.Errorf("mark expense %d mirrored: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark expense %d mirrored: not found", id)
	}
	return nil
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	var out []core.Expense
	for rows.Next() {
		var (
			id      int64
			label   string
			created int64
		)
		if err := rows.Scan(&id, &label, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, core.Expense{ID: uint64(id), Label: label, Timestamp: time.Unix(created, 0).UTC()})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		parts, err := participants(ctx, r.db, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Participants = parts
	}
	return out, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func participants(ctx context.Context, q querier, expenseID uint64) ([]core.Participant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT address, paid_wei, owed_wei, degraded FROM expense_participants
		WHERE expense_id = ? ORDER BY position`, int64(expenseID))
	if err != nil {
		return nil, fmt.Errorf("list participants of %d: %w", expenseID, err)
	}
	defer rows.Close()

	var out []core.Participant
	for rows.Next() {
		var addr, paid, owed string
		var degraded bool
		if err := rows.Scan(&addr, &paid, &owed, &degraded); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p := core.Participant{Address: common.HexToAddress(addr), Degraded: degraded}
		if p.AmountPaid, err = parseWei(paid); err != nil {
			return nil, err
		}
		if p.AmountOwed, err = parseWei(owed); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// mergeStoredParticipants replaces placeholder amounts with the ones a
// previous clean read stored for the same address.
func mergeStoredParticipants(ctx context.Context, tx *sql.Tx, e core.Expense) (core.Expense, error) {
	stored, err := participants(ctx, tx, e.ID)
	if err != nil {
		return e, err
	}
	known := make(map[common.Address]core.Participant, len(stored))
	for _, p := range stored {
		if !p.Degraded {
			known[p.Address] = p
		}
	}
	merged := make([]core.Participant, len(e.Participants))
	for i, p := range e.Participants {
		if prev, ok := known[p.Address]; ok && p.Degraded {
			p = prev
		}
		merged[i] = p
	}
	e.Participants = merged
	return e, nil
}

// wei values exceed int64, so they are stored as decimal text.
func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored amount %q", s)
	}
	return v, nil
}
