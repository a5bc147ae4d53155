package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/db"
)

const slotColumns = `id, to_char(date, 'YYYY-MM-DD'), shift, assignments, last_updated`

// ListSlots retrieves the slots whose date falls within [from, to]
func (d *DB) ListSlots(ctx context.Context, from, to string) ([]db.ShiftSlot, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM shift_slot
		WHERE date BETWEEN $1::date AND $2::date
		ORDER BY id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}

	slots, err := pgx.CollectRows(rows, pgx.RowToStructByPos[db.ShiftSlot])
	if err != nil {
		return nil, fmt.Errorf("failed to scan slots: %w", err)
	}
	return slots, nil
}

// GetSlot retrieves a single slot by its "{date}_{shift}" id
func (d *DB) GetSlot(ctx context.Context, id string) (*db.ShiftSlot, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+slotColumns+` FROM shift_slot WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query slot %s: %w", id, err)
	}

	slot, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[db.ShiftSlot])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan slot %s: %w", id, err)
	}
	return slot, nil
}

// ModifyAssignment adds or removes uid from the slot's assignments array in a
// single statement. Adds create the slot on first use.
func (d *DB) ModifyAssignment(ctx context.Context, key model.SlotKey, uid string, intent model.Intent) error {
	if err := key.Validate(); err != nil {
		return err
	}

	var err error
	switch intent {
	case model.IntentAdd:
		_, err = d.pool.Exec(ctx, `
			INSERT INTO shift_slot (id, date, shift, assignments, last_updated)
			VALUES ($1, $2::date, $3, jsonb_build_array(jsonb_build_object('uid', $4::text)), NOW())
			ON CONFLICT (id) DO UPDATE SET
				assignments = CASE
					WHEN shift_slot.assignments @> jsonb_build_array(jsonb_build_object('uid', $4::text))
						THEN shift_slot.assignments
					ELSE shift_slot.assignments || jsonb_build_array(jsonb_build_object('uid', $4::text))
				END,
				last_updated = NOW()
		`, key.ID(), key.Date, string(key.Period), uid)
	case model.IntentRemove:
		_, err = d.pool.Exec(ctx, `
			UPDATE shift_slot SET
				assignments = COALESCE(
					(SELECT jsonb_agg(a) FROM jsonb_array_elements(assignments) a WHERE a->>'uid' <> $2),
					'[]'::jsonb
				),
				last_updated = NOW()
			WHERE id = $1
		`, key.ID(), uid)
	default:
		return fmt.Errorf("unknown intent %q", intent)
	}

	if err != nil {
		return fmt.Errorf("failed to %s assignment %s on %s: %w", intent, uid, key.ID(), err)
	}
	return nil
}
