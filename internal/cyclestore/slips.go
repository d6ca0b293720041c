package cyclestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oddyssey-cycle/engine/internal/domain"
)

// predictionDTO is the JSON-on-disk shape of a domain.Prediction; Selection
// serializes to its canonical string form and is reconstructed on load.
type predictionDTO struct {
	FixtureID        string `json:"fixtureId"`
	BetType          int    `json:"betType"`
	Selection        string `json:"selection"`
	SelectedOddX1000 uint32 `json:"selectedOddX1000"`
}

func encodePredictions(preds [10]domain.Prediction) (string, error) {
	dtos := make([]predictionDTO, 0, len(preds))
	for _, p := range preds {
		dtos = append(dtos, predictionDTO{
			FixtureID:        p.FixtureID,
			BetType:          int(p.BetType),
			Selection:        p.Selection.Canonical(),
			SelectedOddX1000: p.SelectedOddX1000,
		})
	}
	b, err := json.Marshal(dtos)
	if err != nil {
		return "", fmt.Errorf("cyclestore: encode predictions: %w", err)
	}
	return string(b), nil
}

func decodePredictions(raw string) ([10]domain.Prediction, error) {
	var out [10]domain.Prediction
	var dtos []predictionDTO
	if err := json.Unmarshal([]byte(raw), &dtos); err != nil {
		return out, fmt.Errorf("cyclestore: decode predictions: %w", err)
	}
	for i, d := range dtos {
		if i >= 10 {
			break
		}
		sel, err := domain.ParseCanonical(d.Selection)
		if err != nil {
			return out, fmt.Errorf("cyclestore: decode selection %q: %w", d.Selection, err)
		}
		out[i] = domain.Prediction{
			FixtureID:        d.FixtureID,
			BetType:          domain.BetType(d.BetType),
			Selection:        sel,
			SelectedOddX1000: d.SelectedOddX1000,
		}
	}
	return out, nil
}

// NextSlipID returns max(id)+1 over the slips table, or 1 if empty.
func (s *Store) NextSlipID(ctx context.Context) (int64, error) {
	var maxID sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM slips`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("cyclestore: next slip id: %w", err)
	}
	if !maxID.Valid {
		return 1, nil
	}
	return maxID.Int64 + 1, nil
}

// InsertSlip persists a newly placed slip, unevaluated.
func (s *Store) InsertSlip(ctx context.Context, slip domain.Slip) error {
	predictionsJSON, err := encodePredictions(slip.Predictions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO slips (id, cycle_id, player, placed_at, predictions_json, placement_tx_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, slip.ID, slip.CycleID, slip.Player, slip.PlacedAt.UTC().Format(time.RFC3339Nano),
		predictionsJSON, slip.PlacementTxHash, nowRFC3339())
	if err != nil {
		return fmt.Errorf("cyclestore: insert slip: %w", err)
	}
	return nil
}

func (s *Store) GetSlip(ctx context.Context, id int64) (domain.Slip, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, cycle_id, player, placed_at, predictions_json, evaluated, correct_count,
		       final_score, leaderboard_rank, prize_claimed, placement_tx_hash
		FROM slips WHERE id = ?
	`, id)
	return scanSlip(row)
}

// ListSlipsByCycle returns every slip placed against a cycle.
func (s *Store) ListSlipsByCycle(ctx context.Context, cycleID int64) ([]domain.Slip, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cycle_id, player, placed_at, predictions_json, evaluated, correct_count,
		       final_score, leaderboard_rank, prize_claimed, placement_tx_hash
		FROM slips WHERE cycle_id = ?
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("cyclestore: list slips: %w", err)
	}
	defer rows.Close()

	var out []domain.Slip
	for rows.Next() {
		slip, err := scanSlip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, slip)
	}
	return out, rows.Err()
}

func scanSlip(scanner rowScanner) (domain.Slip, error) {
	var slip domain.Slip
	var placedAt, predictionsJSON string
	var evaluated, claimed int
	var rank sql.NullInt64

	err := scanner.Scan(&slip.ID, &slip.CycleID, &slip.Player, &placedAt, &predictionsJSON,
		&evaluated, &slip.CorrectCount, &slip.FinalScoreX1000, &rank, &claimed, &slip.PlacementTxHash)
	if err != nil {
		return slip, fmt.Errorf("cyclestore: scan slip: %w", err)
	}
	slip.PlacedAt, _ = time.Parse(time.RFC3339Nano, placedAt)
	slip.Evaluated = evaluated != 0
	slip.PrizeClaimed = claimed != 0
	if rank.Valid {
		v := int(rank.Int64)
		slip.LeaderboardRank = &v
	}
	slip.Predictions, err = decodePredictions(predictionsJSON)
	return slip, err
}

// SetSlipEvaluation writes the outcome of evaluating a slip (idempotent:
// callers may re-evaluate and this simply overwrites).
func (s *Store) SetSlipEvaluation(ctx context.Context, id int64, correctCount int, finalScore uint64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE slips SET evaluated = 1, correct_count = ?, final_score = ?, updated_at = ? WHERE id = ?
	`, correctCount, finalScore, nowRFC3339(), id)
	if err != nil {
		return fmt.Errorf("cyclestore: set slip evaluation: %w", err)
	}
	return nil
}

// SetSlipRank writes the leaderboard rank assigned during ranking.
func (s *Store) SetSlipRank(ctx context.Context, id int64, rank int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE slips SET leaderboard_rank = ?, updated_at = ? WHERE id = ?`, rank, nowRFC3339(), id)
	if err != nil {
		return fmt.Errorf("cyclestore: set slip rank: %w", err)
	}
	return nil
}

// UpsertPrizeClaim records (or re-records, idempotently) a claim under the
// unique (cycleId, slipId, player) constraint.
func (s *Store) UpsertPrizeClaim(ctx context.Context, claim domain.PrizeClaim) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prize_claims (cycle_id, slip_id, player, rank, amount_wei, claimed, claim_tx_hash, claimed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cycle_id, slip_id, player) DO UPDATE SET
			claimed = excluded.claimed,
			claim_tx_hash = excluded.claim_tx_hash,
			claimed_at = excluded.claimed_at,
			updated_at = excluded.updated_at
	`, claim.CycleID, claim.SlipID, claim.Player, claim.Rank, claim.AmountWei,
		boolToInt(claim.Claimed), claim.ClaimTxHash, claim.ClaimedAt.UTC().Format(time.RFC3339Nano), nowRFC3339())
	if err != nil {
		return fmt.Errorf("cyclestore: upsert prize claim: %w", err)
	}
	return nil
}

func (s *Store) GetPrizeClaim(ctx context.Context, cycleID, slipID int64, player string) (domain.PrizeClaim, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cycle_id, slip_id, player, rank, amount_wei, claimed, claim_tx_hash, claimed_at
		FROM prize_claims WHERE cycle_id = ? AND slip_id = ? AND player = ?
	`, cycleID, slipID, player)

	var claim domain.PrizeClaim
	var claimed int
	var claimedAt sql.NullString
	err := row.Scan(&claim.CycleID, &claim.SlipID, &claim.Player, &claim.Rank, &claim.AmountWei, &claimed, &claim.ClaimTxHash, &claimedAt)
	if err == sql.ErrNoRows {
		return claim, false, nil
	}
	if err != nil {
		return claim, false, fmt.Errorf("cyclestore: get prize claim: %w", err)
	}
	claim.Claimed = claimed != 0
	if claimedAt.Valid {
		claim.ClaimedAt, _ = time.Parse(time.RFC3339Nano, claimedAt.String)
	}
	return claim, true, nil
}

// InsertAlert persists a monitor/lifecycle alert.
func (s *Store) InsertAlert(ctx context.Context, alert domain.Alert) error {
	details, err := json.Marshal(alert.Details)
	if err != nil {
		return fmt.Errorf("cyclestore: marshal alert details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, severity, message, details, created_at) VALUES (?, ?, ?, ?, ?)
	`, alert.ID, int(alert.Severity), alert.Message, string(details), alert.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("cyclestore: insert alert: %w", err)
	}
	return nil
}

// RecordDailySelection marks that match selection has run for a given UTC
// day, supporting MatchSelectJob's overwrite protection.
func (s *Store) RecordDailySelection(ctx context.Context, date time.Time) error {
	day := dayKey(date)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_selections (date, created_at) VALUES (?, ?)
		ON CONFLICT (date) DO NOTHING
	`, day, nowRFC3339())
	if err != nil {
		return fmt.Errorf("cyclestore: record daily selection: %w", err)
	}
	return nil
}

func (s *Store) HasDailySelection(ctx context.Context, date time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_selections WHERE date = ?`, dayKey(date)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("cyclestore: has daily selection: %w", err)
	}
	return count > 0, nil
}

func dayKey(date time.Time) string {
	return date.UTC().Format("2006-01-02")
}
