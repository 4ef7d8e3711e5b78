package device

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendant/devicelimit/pkg/utils"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// PostgresRegistryRepository implements RegistryRepository on the device_registry table
type PostgresRegistryRepository struct {
	db DBTX
}

func NewPostgresRegistryRepository(db DBTX) *PostgresRegistryRepository {
	return &PostgresRegistryRepository{db: db}
}

func (r *PostgresRegistryRepository) Get(ctx context.Context, userID string) ([]DeviceRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT device_id, user_agent, ip_address, first_seen, device_class, status, country
		FROM device_registry
		WHERE user_id = $1
		ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device registry: %w", err)
	}
	defer rows.Close()

	records := []DeviceRecord{}
	for rows.Next() {
		var (
			rec     DeviceRecord
			class   string
			status  string
			country *string
		)
		if err := rows.Scan(&rec.ID, &rec.UserAgent, &rec.IP, &rec.FirstSeen, &class, &status, &country); err != nil {
			return nil, fmt.Errorf("failed to scan device record: %w", err)
		}
		rec.DeviceClass = DeviceClass(class)
		rec.Status = Status(status)
		rec.FirstSeen = rec.FirstSeen.UTC()
		if country != nil {
			rec.Country = *country
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device registry: %w", err)
	}
	return records, nil
}

// Put replaces the user's rows in one transaction.
func (r *PostgresRegistryRepository) Put(ctx context.Context, userID string, records []DeviceRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM device_registry WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear device registry: %w", err)
	}

	for i, rec := range records {
		firstSeen := rec.FirstSeen
		if firstSeen.IsZero() {
			firstSeen = time.Now().UTC()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO device_registry (user_id, device_id, position, user_agent, ip_address, first_seen, device_class, status, country)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			userID, rec.ID, i, rec.UserAgent, rec.IP, firstSeen, string(rec.DeviceClass), string(rec.Status), utils.ToNullString(rec.Country))
		if err != nil {
			return fmt.Errorf("failed to insert device record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit device registry: %w", err)
	}
	return nil
}

func (r *PostgresRegistryRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM device_registry WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete device registry: %w", err)
	}
	return nil
}

func (r *PostgresRegistryRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM device_registry`); err != nil {
		return fmt.Errorf("failed to purge device registries: %w", err)
	}
	return nil
}
