package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"slotbook/internal/domain"
	"slotbook/internal/store"
)

type SlotRepo struct {
	db *bun.DB
}

func NewSlotRepo(db *bun.DB) *SlotRepo {
	return &SlotRepo{db: db}
}

// Hold is the compare-and-swap that keeps two sessions from believing they
// both hold the same slot. The precondition and the write are one UPDATE;
// the acquire succeeds only if a row was affected. A lapsed lease counts as
// available, and a session re-holding its own slot re-issues the lease.
func (r *SlotRepo) Hold(ctx context.Context, slotID uuid.UUID, sessionID string, ttl time.Duration) (domain.TimeSlot, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	var slot domain.TimeSlot
	res, err := r.db.NewUpdate().
		Model(&slot).
		Set("state = ?", domain.SlotStateHeld).
		Set("held_by_session_id = ?", sessionID).
		Set("hold_expires_at = ?", expiresAt).
		Set("updated_at = ?", now).
		Where("id = ?", slotID).
		Where(
			"(state = ? OR (state = ? AND (hold_expires_at <= ? OR held_by_session_id = ?)))",
			domain.SlotStateAvailable, domain.SlotStateHeld, now, sessionID,
		).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.TimeSlot{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.TimeSlot{}, err
	}
	if affected == 0 {
		return domain.TimeSlot{}, r.classifyHoldFailure(ctx, slotID)
	}

	return slot, nil
}

// classifyHoldFailure turns a zero-row acquire into a caller-facing error.
// The slot may have changed again since the UPDATE; that only ever makes the
// answer more pessimistic, which is safe for a hold.
func (r *SlotRepo) classifyHoldFailure(ctx context.Context, slotID uuid.UUID) error {
	var slot domain.TimeSlot
	err := r.db.NewSelect().
		Model(&slot).
		Where("id = ?", slotID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}

	if slot.State == domain.SlotStateHeld {
		return store.ErrSlotAlreadyHeld
	}
	return store.ErrSlotUnavailable
}

// Release is idempotent. A mismatched session, a lapsed hold or an already
// released slot all affect zero rows, and zero rows is still success: release
// must never block a client flow.
func (r *SlotRepo) Release(ctx context.Context, slotID uuid.UUID, sessionID string) error {
	now := time.Now().UTC()
	_, err := r.db.NewUpdate().
		Model((*domain.TimeSlot)(nil)).
		Set("state = ?", domain.SlotStateAvailable).
		Set("held_by_session_id = NULL").
		Set("hold_expires_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", slotID).
		Where("state = ?", domain.SlotStateHeld).
		Where("held_by_session_id = ?", sessionID).
		Exec(ctx)
	return err
}

func (r *SlotRepo) GetByID(ctx context.Context, slotID uuid.UUID) (domain.TimeSlot, error) {
	var slot domain.TimeSlot
	err := r.db.NewSelect().
		Model(&slot).
		Where("id = ?", slotID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TimeSlot{}, store.ErrNotFound
	}
	if err != nil {
		return domain.TimeSlot{}, err
	}
	return slot, nil
}

func (r *SlotRepo) ListAvailable(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]domain.TimeSlot, error) {
	now := time.Now().UTC()
	var rows []domain.TimeSlot
	err := r.db.NewSelect().
		Model(&rows).
		Where("service_id = ?", serviceID).
		Where("start_time < ?", to).
		Where("end_time > ?", from).
		Where(
			"(state = ? OR (state = ? AND hold_expires_at <= ?))",
			domain.SlotStateAvailable, domain.SlotStateHeld, now,
		).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
