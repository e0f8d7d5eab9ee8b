package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"larpx402/internal/domain"
	"larpx402/internal/storage"
)

// LaunchStore implements storage.LaunchStore using PostgreSQL.
type LaunchStore struct {
	pool *Pool
}

// NewLaunchStore creates a new LaunchStore.
func NewLaunchStore(pool *Pool) *LaunchStore {
	return &LaunchStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LaunchStore = (*LaunchStore)(nil)

const launchColumns = `
	id, token_mint, tx_signature, name, symbol, description,
	image_url, metadata_uri, twitter, telegram, website,
	creator, network, created_at
`

// Insert adds a confirmed launch. Returns ErrDuplicateKey if the ID exists.
// The launches_notify trigger publishes the new ID on the launch_inserted channel.
func (s *LaunchStore) Insert(ctx context.Context, l *domain.LaunchRecord) (err error) {
	if l == nil || l.ID == "" || l.TokenIdentity == "" || l.TransactionSignature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO launches (` + launchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	defer observe("insert_launch", time.Now(), &err)
	_, err = s.pool.Exec(ctx, query,
		l.ID,
		l.TokenIdentity,
		l.TransactionSignature,
		l.Name,
		l.Symbol,
		l.Description,
		l.ImageURL,
		l.MetadataReference,
		l.Socials.Twitter,
		l.Socials.Telegram,
		l.Socials.Website,
		l.CreatorIdentity,
		l.Network,
		l.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert launch: %w", err)
	}
	return nil
}

// GetByID retrieves a launch by record ID. Returns ErrNotFound if not exists.
func (s *LaunchStore) GetByID(ctx context.Context, id string) (*domain.LaunchRecord, error) {
	query := `SELECT ` + launchColumns + ` FROM launches WHERE id = $1`

	l, err := scanLaunch(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get launch by id: %w", err)
	}
	return l, nil
}

// GetByMint retrieves the newest launch of a token. Returns ErrNotFound if not exists.
func (s *LaunchStore) GetByMint(ctx context.Context, mint string) (*domain.LaunchRecord, error) {
	query := `
		SELECT ` + launchColumns + `
		FROM launches
		WHERE token_mint = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	l, err := scanLaunch(s.pool.QueryRow(ctx, query, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get launch by mint: %w", err)
	}
	return l, nil
}

// List retrieves up to limit launches ordered by created_at DESC.
func (s *LaunchStore) List(ctx context.Context, limit int) (_ []*domain.LaunchRecord, err error) {
	defer observe("list_launches", time.Now(), &err)
	query := `
		SELECT ` + launchColumns + `
		FROM launches
		ORDER BY created_at DESC, seq DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list launches: %w", err)
	}
	defer rows.Close()

	var result []*domain.LaunchRecord
	for rows.Next() {
		l, err := scanLaunch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan launch: %w", err)
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate launches: %w", err)
	}
	return result, nil
}

// scanLaunch scans a single row into LaunchRecord.
func scanLaunch(row pgx.Row) (*domain.LaunchRecord, error) {
	var l domain.LaunchRecord

	err := row.Scan(
		&l.ID,
		&l.TokenIdentity,
		&l.TransactionSignature,
		&l.Name,
		&l.Symbol,
		&l.Description,
		&l.ImageURL,
		&l.MetadataReference,
		&l.Socials.Twitter,
		&l.Socials.Telegram,
		&l.Socials.Website,
		&l.CreatorIdentity,
		&l.Network,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &l, nil
}
