package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/micro-ha/remeha-home/addon/internal/model"
)

var ErrNotFound = errors.New("not found")

// UpsertDevice registers a device or renames an existing one. Tokens and the
// debug flag of an existing row are left untouched.
func (r *Repository) UpsertDevice(ctx context.Context, device model.Device) error {
	id := strings.TrimSpace(device.ID)
	if id == "" {
		return fmt.Errorf("device id is required")
	}
	now := r.timestamp()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices(id, name, debug_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			updated_at=excluded.updated_at`,
		id, device.Name, device.DebugEnabled, now, now,
	)
	return err
}

func (r *Repository) ListDevices(ctx context.Context) ([]model.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, debug_enabled, created_at, updated_at
		FROM devices ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []model.Device{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, device)
	}
	return result, rows.Err()
}

func (r *Repository) GetDevice(ctx context.Context, id string) (model.Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, debug_enabled, created_at, updated_at
		FROM devices WHERE id = ?`, id)
	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Device{}, fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	return device, err
}

// DeleteDevice removes the device and everything published for it.
func (r *Repository) DeleteDevice(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	for _, table := range []string{"device_status", "device_capabilities", "device_values"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE device_id = ?", id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repository) LoadTokens(ctx context.Context, id string) (model.TokenData, error) {
	var (
		tokens    model.TokenData
		expiresAt sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT access_token, token_type, refresh_token, scope, expires_in, expires_at
		FROM devices WHERE id = ?`, id,
	).Scan(&tokens.AccessToken, &tokens.TokenType, &tokens.RefreshToken, &tokens.Scope, &tokens.ExpiresIn, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TokenData{}, fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	if err != nil {
		return model.TokenData{}, err
	}
	if ts := toTimePtr(expiresAt); ts != nil {
		tokens.ExpiresAt = *ts
	}
	return tokens, nil
}

func (r *Repository) SaveTokens(ctx context.Context, id string, tokens model.TokenData) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE devices SET
			access_token = ?, token_type = ?, refresh_token = ?, scope = ?,
			expires_in = ?, expires_at = ?, updated_at = ?
		WHERE id = ?`,
		tokens.AccessToken, tokens.TokenType, tokens.RefreshToken, tokens.Scope,
		tokens.ExpiresIn, fromTime(tokens.ExpiresAt), r.timestamp(), id,
	)
	return affectedOne(res, err, id)
}

func (r *Repository) DebugEnabled(ctx context.Context, id string) (bool, error) {
	var enabled bool
	err := r.db.QueryRowContext(ctx, `SELECT debug_enabled FROM devices WHERE id = ?`, id).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	return enabled, err
}

func (r *Repository) SetDebugEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE devices SET debug_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, r.timestamp(), id)
	return affectedOne(res, err, id)
}

// SaveDebugPayload stores the raw dashboard payload captured for the device.
func (r *Repository) SaveDebugPayload(ctx context.Context, id string, payload json.RawMessage) error {
	res, err := r.db.ExecContext(ctx, `UPDATE devices SET api_data = ? WHERE id = ?`, string(payload), id)
	return affectedOne(res, err, id)
}

// DebugPayload returns the last captured payload, or nil when none was saved.
func (r *Repository) DebugPayload(ctx context.Context, id string) (json.RawMessage, error) {
	var payload sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT api_data FROM devices WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	if err != nil || !payload.Valid || payload.String == "" {
		return nil, err
	}
	return json.RawMessage(payload.String), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (model.Device, error) {
	var (
		device               model.Device
		createdAt, updatedAt string
	)
	if err := row.Scan(&device.ID, &device.Name, &device.DebugEnabled, &createdAt, &updatedAt); err != nil {
		return model.Device{}, err
	}
	device.CreatedAt = parseTime(createdAt)
	device.UpdatedAt = parseTime(updatedAt)
	return device, nil
}

func affectedOne(res sql.Result, err error, id string) error {
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	return nil
}
