package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/mailcampaign/internal/db"
	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/model"
)

// ProfileRepositoryInterface stores sender identities per owner. Lookups
// never cross owners.
type ProfileRepositoryInterface interface {
	Save(ctx context.Context, p *model.Profile) error
	List(ctx context.Context, owner string) ([]*model.Profile, error)
	Get(ctx context.Context, owner, id string) (*model.Profile, error)
}

type ProfileRepository struct {
	DB      *sql.DB
	Dialect db.Dialect
}

func NewProfileRepository(conn *sql.DB, dialect db.Dialect) *ProfileRepository {
	return &ProfileRepository{DB: conn, Dialect: dialect}
}

const profileColumns = `id, username, name, host, port, smtp_username, smtp_password, from_email, use_tls, created_at`

// Save inserts a new profile and assigns its ID.
func (r *ProfileRepository) Save(ctx context.Context, p *model.Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	query := r.Dialect.Rebind(`INSERT INTO sender_profiles (` + profileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.DB.ExecContext(ctx, query,
		p.ID, p.Owner, p.Name,
		p.Sender.Host, p.Sender.Port, p.Sender.Username, p.Sender.Password, p.Sender.FromEmail, p.Sender.UseTLS,
		p.CreatedAt.UnixNano(),
	)
	if err != nil {
		return appErrors.NewStorage("save sender profile", err)
	}
	return nil
}

func (r *ProfileRepository) List(ctx context.Context, owner string) ([]*model.Profile, error) {
	query := r.Dialect.Rebind(`SELECT ` + profileColumns + ` FROM sender_profiles WHERE username=? ORDER BY created_at DESC, id`)
	rows, err := r.DB.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, appErrors.NewStorage("list sender profiles", err)
	}
	defer rows.Close()

	profiles := []*model.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, appErrors.NewStorage("list sender profiles", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.NewStorage("list sender profiles", err)
	}
	return profiles, nil
}

func (r *ProfileRepository) Get(ctx context.Context, owner, id string) (*model.Profile, error) {
	query := r.Dialect.Rebind(`SELECT ` + profileColumns + ` FROM sender_profiles WHERE id=? AND username=?`)
	p, err := scanProfile(r.DB.QueryRowContext(ctx, query, id, owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewProfileNotFound(id)
		}
		return nil, appErrors.NewStorage("get sender profile", err)
	}
	return p, nil
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	var (
		p         model.Profile
		createdAt int64
	)
	err := row.Scan(&p.ID, &p.Owner, &p.Name,
		&p.Sender.Host, &p.Sender.Port, &p.Sender.Username, &p.Sender.Password, &p.Sender.FromEmail, &p.Sender.UseTLS,
		&createdAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = time.Unix(0, createdAt)
	return &p, nil
}

var _ ProfileRepositoryInterface = (*ProfileRepository)(nil)
