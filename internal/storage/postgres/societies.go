package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/srcf/warden/internal/models"
)

const societyColumns = `society, description, role_email, danger, notes,
	coalesce(uid, 0), coalesce(gid, 0), joined`

func scanSociety(row pgx.Row) (*models.Society, error) {
	var soc models.Society
	err := row.Scan(&soc.Society, &soc.Description, &soc.RoleEmail, &soc.Danger,
		&soc.Notes, &soc.UID, &soc.GID, &soc.Joined)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &soc, nil
}

func (s *Store) GetSociety(ctx context.Context, name string) (*models.Society, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+societyColumns+` FROM societies WHERE society = $1`, name)
	soc, err := scanSociety(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting society %s: %w", name, err)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT crsid FROM society_admins WHERE society = $1 ORDER BY crsid`, name)
	if err != nil {
		return nil, fmt.Errorf("getting admins of %s: %w", name, err)
	}
	soc.Admins, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("getting admins of %s: %w", name, err)
	}
	return soc, nil
}

// CreateSociety inserts the record, letting the database allocate uid
// and gid unless the model carries them; the result is read back.
func (s *Store) CreateSociety(ctx context.Context, society *models.Society) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO societies (society, description, role_email, danger, notes, uid, gid)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING uid, gid`,
		society.Society, society.Description, society.RoleEmail, society.Danger,
		society.Notes, nullableID(society.UID), nullableID(society.GID)).
		Scan(&society.UID, &society.GID)
	if err != nil {
		return fmt.Errorf("creating society %s: %w", society.Society, err)
	}
	return nil
}

func (s *Store) UpdateSociety(ctx context.Context, society *models.Society) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE societies SET description = $2, role_email = $3, danger = $4,
			notes = $5, uid = $6, gid = $7
		 WHERE society = $1`,
		society.Society, society.Description, society.RoleEmail, society.Danger,
		society.Notes, society.UID, society.GID)
	if err != nil {
		return fmt.Errorf("updating society %s: %w", society.Society, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSociety(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM societies WHERE society = $1`, name)
	if err != nil {
		return fmt.Errorf("deleting society %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AddAdmin(ctx context.Context, society, crsid string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO society_admins (society, crsid) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, society, crsid)
	if err != nil {
		return fmt.Errorf("adding admin %s to %s: %w", crsid, society, err)
	}
	return nil
}

func (s *Store) RemoveAdmin(ctx context.Context, society, crsid string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM society_admins WHERE society = $1 AND crsid = $2`, society, crsid)
	if err != nil {
		return fmt.Errorf("removing admin %s from %s: %w", crsid, society, err)
	}
	return nil
}

func (s *Store) ListSocietiesOf(ctx context.Context, crsid string) ([]*models.Society, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT society FROM society_admins WHERE crsid = $1 ORDER BY society`, crsid)
	if err != nil {
		return nil, fmt.Errorf("listing societies of %s: %w", crsid, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing societies of %s: %w", crsid, err)
	}
	societies := make([]*models.Society, 0, len(names))
	for _, name := range names {
		soc, err := s.GetSociety(ctx, name)
		if err != nil {
			return nil, err
		}
		societies = append(societies, soc)
	}
	return societies, nil
}

func (s *Store) AddPendingAdmin(ctx context.Context, society, crsid string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pending_society_admins (society, crsid) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, society, crsid)
	if err != nil {
		return fmt.Errorf("adding pending admin %s to %s: %w", crsid, society, err)
	}
	return nil
}

func (s *Store) TakePendingAdmins(ctx context.Context, crsid string) ([]models.PendingAdmin, error) {
	rows, err := s.pool.Query(ctx,
		`DELETE FROM pending_society_admins WHERE crsid = $1
		 RETURNING society, crsid`, crsid)
	if err != nil {
		return nil, fmt.Errorf("taking pending admins for %s: %w", crsid, err)
	}
	pending, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PendingAdmin, error) {
		var p models.PendingAdmin
		err := row.Scan(&p.Society, &p.CRSid)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("taking pending admins for %s: %w", crsid, err)
	}
	return pending, nil
}
