package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/srcf/warden/internal/models"
)

const domainColumns = `id, class, owner, domain, root, wild, danger, last_good`

func scanDomain(row pgx.Row) (*models.Domain, error) {
	var d models.Domain
	err := row.Scan(&d.ID, &d.Class, &d.Owner, &d.Domain, &d.Root, &d.Wild,
		&d.Danger, &d.LastGood)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) GetDomain(ctx context.Context, domain string) (*models.Domain, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE domain = $1`, domain)
	d, err := scanDomain(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("getting domain %s: %w", domain, err)
	}
	return d, err
}

func (s *Store) CreateDomain(ctx context.Context, d *models.Domain) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO domains (class, owner, domain, root, wild, danger)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		d.Class, d.Owner, d.Domain, d.Root, d.Wild, d.Danger).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("creating domain %s: %w", d.Domain, err)
	}
	return nil
}

func (s *Store) UpdateDomain(ctx context.Context, d *models.Domain) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE domains SET class = $2, owner = $3, root = $4, wild = $5,
			danger = $6, last_good = $7
		 WHERE domain = $1`,
		d.Domain, d.Class, d.Owner, d.Root, d.Wild, d.Danger, d.LastGood)
	if err != nil {
		return fmt.Errorf("updating domain %s: %w", d.Domain, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteDomain(ctx context.Context, domain string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM domains WHERE domain = $1`, domain)
	if err != nil {
		return fmt.Errorf("deleting domain %s: %w", domain, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) QueueCert(ctx context.Context, domain string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO https_certs (domain) VALUES ($1)`, domain)
	if err != nil {
		return fmt.Errorf("queueing certificate for %s: %w", domain, err)
	}
	return nil
}

func (s *Store) ListDomainsOf(ctx context.Context, class models.DomainClass, owner string) ([]*models.Domain, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+domainColumns+` FROM domains
		 WHERE class = $1 AND owner = $2 ORDER BY domain`, class, owner)
	if err != nil {
		return nil, fmt.Errorf("listing domains of %s: %w", owner, err)
	}
	domains, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Domain, error) {
		return scanDomain(row)
	})
	if err != nil {
		return nil, fmt.Errorf("listing domains of %s: %w", owner, err)
	}
	return domains, nil
}
