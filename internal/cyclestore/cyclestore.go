// Package cyclestore persists cycles, their ten matches, slips, prize
// claims, and alerts in SQLite.
package cyclestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oddyssey-cycle/engine/internal/apperr"
	"github.com/oddyssey-cycle/engine/internal/domain"
	"github.com/oddyssey-cycle/engine/internal/telemetry"

	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cycles (
		id                   INTEGER PRIMARY KEY,
		created_at           TEXT NOT NULL,
		start_at             TEXT NOT NULL,
		end_at               TEXT NOT NULL,
		status               INTEGER NOT NULL,
		creation_tx_hash     TEXT NOT NULL DEFAULT '',
		resolution_tx_hash   TEXT NOT NULL DEFAULT '',
		resolved_at          TEXT,
		evaluation_complete  INTEGER NOT NULL DEFAULT 0,
		prize_pool_wei       TEXT NOT NULL DEFAULT '0',
		rollover_wei         TEXT NOT NULL DEFAULT '0',
		sync_repair_needed   INTEGER NOT NULL DEFAULT 0,
		updated_at           TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cycle_matches (
		cycle_id        INTEGER NOT NULL REFERENCES cycles(id),
		display_order   INTEGER NOT NULL,
		fixture_id      TEXT NOT NULL,
		kickoff_unix    INTEGER NOT NULL,
		odds_home       INTEGER NOT NULL,
		odds_draw       INTEGER NOT NULL,
		odds_away       INTEGER NOT NULL,
		odds_over       INTEGER NOT NULL,
		odds_under      INTEGER NOT NULL,
		moneyline       INTEGER NOT NULL DEFAULT 0,
		over_under      INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (cycle_id, fixture_id)
	)`,
	`CREATE TABLE IF NOT EXISTS slips (
		id                 INTEGER PRIMARY KEY,
		cycle_id           INTEGER NOT NULL REFERENCES cycles(id),
		player             TEXT NOT NULL,
		placed_at          TEXT NOT NULL,
		predictions_json   TEXT NOT NULL,
		evaluated          INTEGER NOT NULL DEFAULT 0,
		correct_count      INTEGER NOT NULL DEFAULT 0,
		final_score        INTEGER NOT NULL DEFAULT 0,
		leaderboard_rank   INTEGER,
		prize_claimed      INTEGER NOT NULL DEFAULT 0,
		placement_tx_hash  TEXT NOT NULL DEFAULT '',
		updated_at         TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slips_cycle ON slips(cycle_id)`,
	`CREATE TABLE IF NOT EXISTS prize_claims (
		cycle_id      INTEGER NOT NULL,
		slip_id       INTEGER NOT NULL,
		player        TEXT NOT NULL,
		rank          INTEGER NOT NULL,
		amount_wei    TEXT NOT NULL,
		claimed       INTEGER NOT NULL DEFAULT 0,
		claim_tx_hash TEXT NOT NULL DEFAULT '',
		claimed_at    TEXT,
		updated_at    TEXT NOT NULL,
		PRIMARY KEY (cycle_id, slip_id, player)
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id         TEXT PRIMARY KEY,
		severity   INTEGER NOT NULL,
		message    TEXT NOT NULL,
		details    TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS daily_selections (
		date       TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pending_rollover (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		amount_wei TEXT NOT NULL DEFAULT '0'
	)`,
}

// Store persists cycle lifecycle state in SQLite.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cyclestore: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("cyclestore: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("cyclestore: init schema: %w", err)
		}
	}

	telemetry.Infof("cyclestore: opened path=%s", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NextCycleID returns max(id)+1 over the cycles table, or 1 if empty.
func (s *Store) NextCycleID(ctx context.Context) (int64, error) {
	var maxID sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM cycles`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("cyclestore: next cycle id: %w", err)
	}
	if !maxID.Valid {
		return 1, nil
	}
	return maxID.Int64 + 1, nil
}

// CreateCycle inserts a cycle row plus its ten match rows in one
// transaction, rolling back entirely on any failure. rolloverWei seeds both
// prize_pool_wei and rollover_wei: the pool starts out holding whatever
// unclaimed remainder was swept forward from a purged prior cycle, and
// grows from there as slips are placed (see IncrementPrizePool).
func (s *Store) CreateCycle(ctx context.Context, id int64, matches [10]domain.CycleMatch, startAt, endAt time.Time, now time.Time, rolloverWei string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cyclestore: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cycles (id, created_at, start_at, end_at, status, prize_pool_wei, rollover_wei, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, now.UTC().Format(time.RFC3339Nano), startAt.UTC().Format(time.RFC3339Nano), endAt.UTC().Format(time.RFC3339Nano),
		int(domain.CycleCreatedDB), rolloverWei, rolloverWei, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("cyclestore: insert cycle: %w", err)
	}

	for _, m := range matches {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cycle_matches (
				cycle_id, display_order, fixture_id, kickoff_unix,
				odds_home, odds_draw, odds_away, odds_over, odds_under,
				moneyline, over_under
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, m.DisplayOrder, m.FixtureID, m.KickoffUnix,
			m.OddsHomeX1000, m.OddsDrawX1000, m.OddsAwayX1000, m.OddsOverX1000, m.OddsUnderX1000,
			int(m.Moneyline), int(m.OverUnder))
		if err != nil {
			return fmt.Errorf("cyclestore: insert cycle match %s: %w", m.FixtureID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) AttachCreationTx(ctx context.Context, id int64, hash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cycles SET creation_tx_hash = ?, status = ?, updated_at = ? WHERE id = ?`,
		hash, int(domain.CyclePublished), nowRFC3339(), id)
	if err != nil {
		return fmt.Errorf("cyclestore: attach creation tx: %w", err)
	}
	return nil
}

func (s *Store) AttachResolutionTx(ctx context.Context, id int64, hash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cycles SET resolution_tx_hash = ?, updated_at = ? WHERE id = ?`,
		hash, nowRFC3339(), id)
	if err != nil {
		return fmt.Errorf("cyclestore: attach resolution tx: %w", err)
	}
	return nil
}

func (s *Store) MarkOrphaned(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cycles SET status = ?, updated_at = ? WHERE id = ?`,
		int(domain.CycleOrphaned), nowRFC3339(), id)
	if err != nil {
		return fmt.Errorf("cyclestore: mark orphaned: %w", err)
	}
	return nil
}

func (s *Store) SetSyncRepairNeeded(ctx context.Context, id int64, needed bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cycles SET sync_repair_needed = ?, updated_at = ? WHERE id = ?`,
		boolToInt(needed), nowRFC3339(), id)
	if err != nil {
		return fmt.Errorf("cyclestore: set sync repair: %w", err)
	}
	return nil
}

func (s *Store) MarkResolved(ctx context.Context, id int64, resolvedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cycles SET status = ?, resolved_at = ?, updated_at = ? WHERE id = ?`,
		int(domain.CycleResolved), resolvedAt.UTC().Format(time.RFC3339Nano), nowRFC3339(), id)
	if err != nil {
		return fmt.Errorf("cyclestore: mark resolved: %w", err)
	}
	return nil
}

func (s *Store) MarkEvaluationComplete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cycles SET status = ?, evaluation_complete = 1, updated_at = ? WHERE id = ?`,
		int(domain.CycleEvaluationComplete), nowRFC3339(), id)
	if err != nil {
		return fmt.Errorf("cyclestore: mark evaluation complete: %w", err)
	}
	return nil
}

// SetMatchOutcome persists the canonical outcomes computed for a
// single cycle match, ahead of submitCycleResults.
func (s *Store) SetMatchOutcome(ctx context.Context, cycleID int64, fixtureID string, ml domain.MoneylineResult, ou domain.OverUnderResult) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cycle_matches SET moneyline = ?, over_under = ? WHERE cycle_id = ? AND fixture_id = ?`,
		int(ml), int(ou), cycleID, fixtureID)
	if err != nil {
		return fmt.Errorf("cyclestore: set match outcome: %w", err)
	}
	return nil
}

func (s *Store) GetCycle(ctx context.Context, id int64) (domain.Cycle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, start_at, end_at, status, creation_tx_hash, resolution_tx_hash,
		       resolved_at, evaluation_complete, prize_pool_wei, rollover_wei, sync_repair_needed
		FROM cycles WHERE id = ?
	`, id)
	cycle, err := scanCycle(row)
	if err != nil {
		return cycle, err
	}
	cycle.Matches, err = s.matchesForCycle(ctx, id)
	return cycle, err
}

// GetCurrentCycle returns the latest unresolved cycle, or the latest cycle
// of any status if none is unresolved.
func (s *Store) GetCurrentCycle(ctx context.Context) (domain.Cycle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, start_at, end_at, status, creation_tx_hash, resolution_tx_hash,
		       resolved_at, evaluation_complete, prize_pool_wei, rollover_wei, sync_repair_needed
		FROM cycles
		WHERE status < ?
		ORDER BY id DESC LIMIT 1
	`, int(domain.CycleResolved))
	cycle, err := scanCycle(row)
	if err == sql.ErrNoRows {
		row = s.db.QueryRowContext(ctx, `
			SELECT id, created_at, start_at, end_at, status, creation_tx_hash, resolution_tx_hash,
			       resolved_at, evaluation_complete, prize_pool_wei, rollover_wei, sync_repair_needed
			FROM cycles
			ORDER BY id DESC LIMIT 1
		`)
		cycle, err = scanCycle(row)
	}
	if err != nil {
		return cycle, err
	}
	cycle.Matches, err = s.matchesForCycle(ctx, cycle.ID)
	return cycle, err
}

// ListCyclesByDate returns cycles whose start_at falls on the given UTC day.
func (s *Store) ListCyclesByDate(ctx context.Context, date time.Time) ([]domain.Cycle, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, start_at, end_at, status, creation_tx_hash, resolution_tx_hash,
		       resolved_at, evaluation_complete, prize_pool_wei, rollover_wei, sync_repair_needed
		FROM cycles
		WHERE start_at >= ? AND start_at < ?
		ORDER BY id ASC
	`, dayStart.Format(time.RFC3339Nano), dayEnd.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("cyclestore: list cycles by date: %w", err)
	}
	defer rows.Close()

	var out []domain.Cycle
	for rows.Next() {
		c, err := scanCycleRows(rows)
		if err != nil {
			return nil, err
		}
		c.Matches, err = s.matchesForCycle(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) matchesForCycle(ctx context.Context, cycleID int64) ([10]domain.CycleMatch, error) {
	var matches [10]domain.CycleMatch
	rows, err := s.db.QueryContext(ctx, `
		SELECT display_order, fixture_id, kickoff_unix, odds_home, odds_draw, odds_away, odds_over, odds_under, moneyline, over_under
		FROM cycle_matches WHERE cycle_id = ? ORDER BY display_order ASC
	`, cycleID)
	if err != nil {
		return matches, fmt.Errorf("cyclestore: load matches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.CycleMatch
		var ml, ou int
		if err := rows.Scan(&m.DisplayOrder, &m.FixtureID, &m.KickoffUnix,
			&m.OddsHomeX1000, &m.OddsDrawX1000, &m.OddsAwayX1000, &m.OddsOverX1000, &m.OddsUnderX1000,
			&ml, &ou); err != nil {
			return matches, fmt.Errorf("cyclestore: scan match: %w", err)
		}
		m.Moneyline = domain.MoneylineResult(ml)
		m.OverUnder = domain.OverUnderResult(ou)
		if m.DisplayOrder >= 1 && m.DisplayOrder <= 10 {
			matches[m.DisplayOrder-1] = m
		}
	}
	return matches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row *sql.Row) (domain.Cycle, error) {
	return scanCycleGeneric(row)
}

func scanCycleRows(rows *sql.Rows) (domain.Cycle, error) {
	return scanCycleGeneric(rows)
}

func scanCycleGeneric(scanner rowScanner) (domain.Cycle, error) {
	var c domain.Cycle
	var createdAt, startAt, endAt string
	var status int
	var resolvedAt sql.NullString
	var evalComplete, syncRepair int

	err := scanner.Scan(&c.ID, &createdAt, &startAt, &endAt, &status, &c.CreationTxHash, &c.ResolutionTxHash,
		&resolvedAt, &evalComplete, &c.PrizePoolWei, &c.RolloverWei, &syncRepair)
	if err != nil {
		if err == sql.ErrNoRows {
			return c, err
		}
		return c, fmt.Errorf("cyclestore: scan cycle: %w", err)
	}

	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.StartAt, _ = time.Parse(time.RFC3339Nano, startAt)
	c.EndAt, _ = time.Parse(time.RFC3339Nano, endAt)
	c.Status = domain.CycleStatus(status)
	c.EvaluationComplete = evalComplete != 0
	c.SyncRepairNeeded = syncRepair != 0
	if resolvedAt.Valid {
		c.ResolvedAt, _ = time.Parse(time.RFC3339Nano, resolvedAt.String)
	}
	return c, nil
}

// PurgeOlderThan deletes cycles (and their matches, slips, and prize claims)
// older than cycleDays days, and daily_selections entries older than
// selectionDays days. Before deleting, any evaluated cycle's unclaimed pool
// remainder (prize pool minus whatever was actually claimed) is swept into
// pending_rollover, where the next CreateCycle picks it up.
func (s *Store) PurgeOlderThan(ctx context.Context, cycleDays, selectionDays int) error {
	cutoff := nowUTC().Add(-time.Duration(cycleDays) * 24 * time.Hour).Format(time.RFC3339Nano)
	selectionCutoff := nowUTC().Add(-time.Duration(selectionDays) * 24 * time.Hour).Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cyclestore: begin purge tx: %w", err)
	}
	defer tx.Rollback()

	rollover, err := sweepUnclaimedRemainders(ctx, tx, cutoff)
	if err != nil {
		return err
	}
	if rollover != "0" {
		if err := addPendingRolloverTx(ctx, tx, rollover); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM prize_claims WHERE cycle_id IN (SELECT id FROM cycles WHERE created_at < ?)`, cutoff); err != nil {
		return fmt.Errorf("cyclestore: purge prize claims: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cycle_matches WHERE cycle_id IN (SELECT id FROM cycles WHERE created_at < ?)`, cutoff); err != nil {
		return fmt.Errorf("cyclestore: purge matches: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM slips WHERE cycle_id IN (SELECT id FROM cycles WHERE created_at < ?)`, cutoff); err != nil {
		return fmt.Errorf("cyclestore: purge slips: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cycles WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("cyclestore: purge cycles: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_selections WHERE created_at < ?`, selectionCutoff); err != nil {
		return fmt.Errorf("cyclestore: purge daily selections: %w", err)
	}
	return tx.Commit()
}

// sweepUnclaimedRemainders sums prizePool-sumClaimed over every
// evaluation-complete cycle about to be purged, returning the total as a
// wei decimal string.
func sweepUnclaimedRemainders(ctx context.Context, tx *sql.Tx, cutoff string) (string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, prize_pool_wei FROM cycles
		WHERE created_at < ? AND evaluation_complete = 1
	`, cutoff)
	if err != nil {
		return "0", fmt.Errorf("cyclestore: scan cycles to sweep: %w", err)
	}
	type poolRow struct {
		id   int64
		pool string
	}
	var pools []poolRow
	for rows.Next() {
		var r poolRow
		if err := rows.Scan(&r.id, &r.pool); err != nil {
			rows.Close()
			return "0", fmt.Errorf("cyclestore: scan pool row: %w", err)
		}
		pools = append(pools, r)
	}
	rows.Close()

	total := "0"
	for _, p := range pools {
		var claimed float64
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(CAST(amount_wei AS REAL)), 0) FROM prize_claims
			WHERE cycle_id = ? AND claimed = 1
		`, p.id).Scan(&claimed)
		if err != nil {
			return "0", fmt.Errorf("cyclestore: sum claimed prizes for cycle %d: %w", p.id, err)
		}
		total = addWei(total, subWei(p.pool, fmt.Sprintf("%.0f", claimed)))
	}
	return total, nil
}

// IncrementPrizePool adds amountWei to a cycle's running prize pool, called
// once per placed slip with the configured per-slip stake.
func (s *Store) IncrementPrizePool(ctx context.Context, cycleID int64, amountWei string) error {
	var current string
	if err := s.db.QueryRowContext(ctx, `SELECT prize_pool_wei FROM cycles WHERE id = ?`, cycleID).Scan(&current); err != nil {
		return fmt.Errorf("cyclestore: read prize pool for cycle %d: %w", cycleID, err)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE cycles SET prize_pool_wei = ?, updated_at = ? WHERE id = ?`,
		addWei(current, amountWei), nowRFC3339(), cycleID)
	if err != nil {
		return fmt.Errorf("cyclestore: increment prize pool for cycle %d: %w", cycleID, err)
	}
	return nil
}

// TakePendingRollover returns whatever unclaimed remainder has been swept
// in since the last call and resets it to zero, so CreateCycle can seed a
// new cycle with it exactly once.
func (s *Store) TakePendingRollover(ctx context.Context) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "0", fmt.Errorf("cyclestore: begin take-rollover tx: %w", err)
	}
	defer tx.Rollback()

	var amount string
	err = tx.QueryRowContext(ctx, `SELECT amount_wei FROM pending_rollover WHERE id = 1`).Scan(&amount)
	if err == sql.ErrNoRows {
		return "0", nil
	}
	if err != nil {
		return "0", fmt.Errorf("cyclestore: read pending rollover: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE pending_rollover SET amount_wei = '0' WHERE id = 1`); err != nil {
		return "0", fmt.Errorf("cyclestore: reset pending rollover: %w", err)
	}
	return amount, tx.Commit()
}

func addPendingRolloverTx(ctx context.Context, tx *sql.Tx, amountWei string) error {
	var current string
	err := tx.QueryRowContext(ctx, `SELECT amount_wei FROM pending_rollover WHERE id = 1`).Scan(&current)
	if err == sql.ErrNoRows {
		current = "0"
		if _, err := tx.ExecContext(ctx, `INSERT INTO pending_rollover (id, amount_wei) VALUES (1, '0')`); err != nil {
			return fmt.Errorf("cyclestore: seed pending rollover: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("cyclestore: read pending rollover: %w", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE pending_rollover SET amount_wei = ? WHERE id = 1`, addWei(current, amountWei))
	if err != nil {
		return fmt.Errorf("cyclestore: update pending rollover: %w", err)
	}
	return nil
}

// addWei and subWei are best-effort decimal-string arithmetic; the pool is
// stored as a decimal wei string (no native big-integer arithmetic is in
// scope since the oracle never mints or transfers funds itself, only the
// on-chain contract does). subWei floors at zero.
func addWei(a, b string) string {
	var x, y float64
	fmt.Sscanf(a, "%f", &x)
	fmt.Sscanf(b, "%f", &y)
	return fmt.Sprintf("%.0f", x+y)
}

func subWei(a, b string) string {
	var x, y float64
	fmt.Sscanf(a, "%f", &x)
	fmt.Sscanf(b, "%f", &y)
	diff := x - y
	if diff < 0 {
		diff = 0
	}
	return fmt.Sprintf("%.0f", diff)
}

// RepairSnapshots rewrites any cycle_matches row whose kickoff_unix or odds
// columns were persisted as string-typed JSON in a legacy snapshot path.
// SQLite's typed columns make this mostly moot going forward, but historic
// rows imported from a string-typed source are normalized here.
func (s *Store) RepairSnapshots(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cycle_id, fixture_id, typeof(kickoff_unix),
		CASE WHEN 'text' IN (typeof(odds_home), typeof(odds_draw), typeof(odds_away), typeof(odds_over), typeof(odds_under)) THEN 'text' ELSE 'integer' END
		FROM cycle_matches`)
	if err != nil {
		return 0, fmt.Errorf("cyclestore: scan snapshot types: %w", err)
	}
	type badRow struct {
		cycleID   int64
		fixtureID string
	}
	var bad []badRow
	for rows.Next() {
		var cycleID int64
		var fixtureID, kickoffType, oddsType string
		if err := rows.Scan(&cycleID, &fixtureID, &kickoffType, &oddsType); err != nil {
			rows.Close()
			return 0, fmt.Errorf("cyclestore: scan snapshot row: %w", err)
		}
		if kickoffType == "text" || oddsType == "text" {
			bad = append(bad, badRow{cycleID, fixtureID})
		}
	}
	rows.Close()

	for _, b := range bad {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE cycle_matches SET
				kickoff_unix = CAST(kickoff_unix AS INTEGER),
				odds_home = CAST(odds_home AS INTEGER),
				odds_draw = CAST(odds_draw AS INTEGER),
				odds_away = CAST(odds_away AS INTEGER),
				odds_over = CAST(odds_over AS INTEGER),
				odds_under = CAST(odds_under AS INTEGER)
			WHERE cycle_id = ? AND fixture_id = ?
		`, b.cycleID, b.fixtureID); err != nil {
			return len(bad), fmt.Errorf("cyclestore: repair snapshot %d/%s: %w", b.cycleID, b.fixtureID, apperr.Wrap(apperr.CodeCorruptSnapshot, err))
		}
	}
	return len(bad), nil
}

func nowUTC() time.Time    { return time.Now().UTC() }
func nowRFC3339() string   { return nowUTC().Format(time.RFC3339Nano) }
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
