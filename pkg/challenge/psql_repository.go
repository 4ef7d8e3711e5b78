package challenge

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendant/devicelimit/pkg/device"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (PendingChallenge, error) {
	var (
		c      PendingChallenge
		class  string
		status string
	)
	err := r.db.QueryRow(ctx, `
		SELECT otp, device_id, user_agent, ip_address, device_class, status, created_at
		FROM device_challenges
		WHERE user_id = $1`, userID).
		Scan(&c.OTP, &c.DeviceID, &c.UserAgent, &c.IP, &class, &status, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PendingChallenge{}, ErrNotFound
	}
	if err != nil {
		return PendingChallenge{}, fmt.Errorf("failed to get challenge: %w", err)
	}
	c.DeviceClass = device.DeviceClass(class)
	c.Status = Status(status)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func (r *PostgresRepository) Put(ctx context.Context, userID string, c PendingChallenge) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO device_challenges (user_id, otp, device_id, user_agent, ip_address, device_class, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			otp = EXCLUDED.otp,
			device_id = EXCLUDED.device_id,
			user_agent = EXCLUDED.user_agent,
			ip_address = EXCLUDED.ip_address,
			device_class = EXCLUDED.device_class,
			status = EXCLUDED.status,
			created_at = EXCLUDED.created_at`,
		userID, c.OTP, c.DeviceID, c.UserAgent, c.IP, string(c.DeviceClass), string(c.Status), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM device_challenges WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM device_challenges`); err != nil {
		return fmt.Errorf("failed to purge challenges: %w", err)
	}
	return nil
}
