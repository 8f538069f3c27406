package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/micro-ha/remeha-home/addon/internal/model"
)

func (r *Repository) SetStatus(ctx context.Context, id string, status model.Status, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_status(device_id, status, reason, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			status=excluded.status,
			reason=excluded.reason,
			updated_at=excluded.updated_at`,
		id, string(status), reason, r.timestamp(),
	)
	return err
}

// SetSlots replaces the capability slots of the device. Values of slots that
// are no longer exposed are dropped.
func (r *Repository) SetSlots(ctx context.Context, id string, slots []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM device_capabilities WHERE device_id = ?`, id); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO device_capabilities(device_id, slot, position) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, slot := range slots {
		if _, err := stmt.ExecContext(ctx, id, slot, i); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM device_values
		WHERE device_id = ? AND slot NOT IN (SELECT slot FROM device_capabilities WHERE device_id = ?)`,
		id, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SetValues merges values into the stored ones; slots missing from values
// keep their previous value.
func (r *Repository) SetValues(ctx context.Context, id string, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO device_values(device_id, slot, value_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id, slot) DO UPDATE SET
			value_json=excluded.value_json,
			updated_at=excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := r.timestamp()
	for slot, value := range values {
		body, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode value %s: %w", slot, err)
		}
		if _, err := stmt.ExecContext(ctx, id, slot, string(body), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repository) Snapshot(ctx context.Context, id string) (model.DeviceSnapshot, error) {
	device, err := r.GetDevice(ctx, id)
	if err != nil {
		return model.DeviceSnapshot{}, err
	}
	return r.snapshot(ctx, device)
}

func (r *Repository) ListSnapshots(ctx context.Context) ([]model.DeviceSnapshot, error) {
	devices, err := r.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]model.DeviceSnapshot, 0, len(devices))
	for _, device := range devices {
		snapshot, err := r.snapshot(ctx, device)
		if err != nil {
			return nil, err
		}
		result = append(result, snapshot)
	}
	return result, nil
}

func (r *Repository) snapshot(ctx context.Context, device model.Device) (model.DeviceSnapshot, error) {
	snapshot := model.DeviceSnapshot{
		Device: device,
		Status: model.StatusUnknown,
		Slots:  []string{},
		Values: map[string]any{},
	}

	var (
		status, reason string
		updatedAt      sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `SELECT status, reason, updated_at FROM device_status WHERE device_id = ?`, device.ID).
		Scan(&status, &reason, &updatedAt)
	switch {
	case err == nil:
		snapshot.Status = model.Status(status)
		snapshot.StatusReason = reason
		snapshot.StatusUpdatedAt = toTimePtr(updatedAt)
	case err != sql.ErrNoRows:
		return model.DeviceSnapshot{}, err
	}

	slotRows, err := r.db.QueryContext(ctx, `SELECT slot FROM device_capabilities WHERE device_id = ? ORDER BY position`, device.ID)
	if err != nil {
		return model.DeviceSnapshot{}, err
	}
	defer slotRows.Close()
	for slotRows.Next() {
		var slot string
		if err := slotRows.Scan(&slot); err != nil {
			return model.DeviceSnapshot{}, err
		}
		snapshot.Slots = append(snapshot.Slots, slot)
	}
	if err := slotRows.Err(); err != nil {
		return model.DeviceSnapshot{}, err
	}
	slotRows.Close()

	valueRows, err := r.db.QueryContext(ctx, `SELECT slot, value_json FROM device_values WHERE device_id = ?`, device.ID)
	if err != nil {
		return model.DeviceSnapshot{}, err
	}
	defer valueRows.Close()
	for valueRows.Next() {
		var slot, raw string
		if err := valueRows.Scan(&slot, &raw); err != nil {
			return model.DeviceSnapshot{}, err
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			r.logger.Warn("skipping undecodable value", "device_id", device.ID, "slot", slot, "err", err)
			continue
		}
		snapshot.Values[slot] = value
	}
	return snapshot, valueRows.Err()
}
