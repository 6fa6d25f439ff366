package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/srcf/warden/internal/models"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

const memberColumns = `crsid, preferred_name, surname, email, mail_handler,
	member, "user", danger, notes, coalesce(uid, 0), coalesce(gid, 0), joined`

func scanMember(row pgx.Row) (*models.Member, error) {
	var m models.Member
	err := row.Scan(&m.CRSid, &m.PreferredName, &m.Surname, &m.Email, &m.MailHandler,
		&m.Member, &m.User, &m.Danger, &m.Notes, &m.UID, &m.GID, &m.Joined)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) GetMember(ctx context.Context, crsid string) (*models.Member, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE crsid = $1`, crsid)
	member, err := scanMember(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("getting member %s: %w", crsid, err)
	}
	return member, err
}

// CreateMember inserts the record. The uid and gid are normally left to
// the database's allocation trigger; a non-zero model value overrides
// it. The allocated ids are read back into the model.
func (s *Store) CreateMember(ctx context.Context, member *models.Member) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO members (crsid, preferred_name, surname, email, mail_handler,
			member, "user", danger, notes, uid, gid)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING uid, gid`,
		member.CRSid, member.PreferredName, member.Surname, member.Email,
		member.MailHandler, member.Member, member.User, member.Danger,
		member.Notes, nullableID(member.UID), nullableID(member.GID)).
		Scan(&member.UID, &member.GID)
	if err != nil {
		return fmt.Errorf("creating member %s: %w", member.CRSid, err)
	}
	return nil
}

// nullableID maps the model's zero value to NULL so the database
// allocates an id.
func nullableID(id int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: id != 0}
}

func (s *Store) UpdateMember(ctx context.Context, member *models.Member) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE members SET preferred_name = $2, surname = $3, email = $4,
			mail_handler = $5, member = $6, "user" = $7, danger = $8,
			notes = $9, uid = $10, gid = $11
		 WHERE crsid = $1`,
		member.CRSid, member.PreferredName, member.Surname, member.Email,
		member.MailHandler, member.Member, member.User, member.Danger,
		member.Notes, member.UID, member.GID)
	if err != nil {
		return fmt.Errorf("updating member %s: %w", member.CRSid, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
