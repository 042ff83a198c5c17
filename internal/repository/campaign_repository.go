package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/unclebandit/mailcampaign/internal/db"
	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/model"
)

// CampaignRepositoryInterface is the durable progress sink. The execution
// engine is its only writer of live counters.
type CampaignRepositoryInterface interface {
	CreateRecord(ctx context.Context, c *model.Campaign) error
	UpdateStats(ctx context.Context, campaignID string, stats model.Stats) error
	SetStatus(ctx context.Context, campaignID, username string, status model.Status) error
	ReadRecord(ctx context.Context, campaignID, username string) (*model.Campaign, error)
	ListRecords(ctx context.Context, username string) ([]*model.Campaign, error)

	// MaxSequence returns the highest id sequence ever persisted.
	MaxSequence(ctx context.Context) (int64, error)
	// StopOrphaned marks queued/running records as stopped. Only safe when
	// no execution task is alive, i.e. at start-up.
	StopOrphaned(ctx context.Context, reason string) (int64, error)
}

type CampaignRepository struct {
	DB      *sql.DB
	Dialect db.Dialect
}

func NewCampaignRepository(conn *sql.DB, dialect db.Dialect) *CampaignRepository {
	return &CampaignRepository{DB: conn, Dialect: dialect}
}

const campaignColumns = `id, seq, username, subject, status, total, processed, sent, failed, delivered, bounced, last_error, created_at, updated_at`

func (r *CampaignRepository) CreateRecord(ctx context.Context, c *model.Campaign) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.Status = model.StatusQueued
	c.Processed, c.Sent, c.Failed, c.Delivered, c.Bounced = 0, 0, 0, 0, 0
	c.LastError = nil
	updated := c.CreatedAt
	c.UpdatedAt = &updated

	query := r.Dialect.Rebind(`
		INSERT INTO campaigns (id, seq, username, subject, status, total, processed, sent, failed, delivered, bounced, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, 0, 0, NULL, ?, ?)
	`)
	_, err := r.DB.ExecContext(ctx, query,
		c.ID, c.Seq, c.Username, c.Subject, string(c.Status), c.Total,
		c.CreatedAt.UnixNano(), updated.UnixNano(),
	)
	if err != nil {
		return appErrors.NewStorage("create campaign record", err)
	}
	return nil
}

func (r *CampaignRepository) UpdateStats(ctx context.Context, campaignID string, stats model.Stats) error {
	query := r.Dialect.Rebind(`
		UPDATE campaigns
		SET status=?, processed=?, sent=?, failed=?, delivered=?, bounced=?, last_error=?, updated_at=?
		WHERE id=?
	`)
	res, err := r.DB.ExecContext(ctx, query,
		string(stats.Status), stats.Processed, stats.Sent, stats.Failed, stats.Delivered, stats.Bounced,
		nullString(stats.LastError), time.Now().UnixNano(), campaignID,
	)
	if err != nil {
		return appErrors.NewStorage("update campaign stats", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return appErrors.NewStorage("update campaign stats", err)
	}
	if rows == 0 {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	return nil
}

// SetStatus is a no-op on campaigns that already reached a terminal state.
func (r *CampaignRepository) SetStatus(ctx context.Context, campaignID, username string, status model.Status) error {
	query := r.Dialect.Rebind(`
		UPDATE campaigns SET status=?, updated_at=?
		WHERE id=? AND username=? AND status NOT IN (?, ?)
	`)
	res, err := r.DB.ExecContext(ctx, query,
		string(status), time.Now().UnixNano(), campaignID, username,
		string(model.StatusFinished), string(model.StatusStopped),
	)
	if err != nil {
		return appErrors.NewStorage("set campaign status", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return appErrors.NewStorage("set campaign status", err)
	}
	if rows > 0 {
		return nil
	}

	exists, err := r.exists(ctx, campaignID, username)
	if err != nil {
		return err
	}
	if !exists {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	return nil
}

func (r *CampaignRepository) ReadRecord(ctx context.Context, campaignID, username string) (*model.Campaign, error) {
	query := r.Dialect.Rebind(`SELECT ` + campaignColumns + ` FROM campaigns WHERE id=? AND username=?`)
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, campaignID, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(campaignID)
		}
		return nil, appErrors.NewStorage("read campaign record", err)
	}
	return c, nil
}

func (r *CampaignRepository) ListRecords(ctx context.Context, username string) ([]*model.Campaign, error) {
	query := r.Dialect.Rebind(`SELECT ` + campaignColumns + ` FROM campaigns WHERE username=? ORDER BY created_at DESC, seq DESC`)
	rows, err := r.DB.QueryContext(ctx, query, username)
	if err != nil {
		return nil, appErrors.NewStorage("list campaign records", err)
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, appErrors.NewStorage("list campaign records", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.NewStorage("list campaign records", err)
	}
	return campaigns, nil
}

func (r *CampaignRepository) MaxSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM campaigns`).Scan(&seq)
	if err != nil {
		return 0, appErrors.NewStorage("read campaign sequence", err)
	}
	return seq, nil
}

func (r *CampaignRepository) StopOrphaned(ctx context.Context, reason string) (int64, error) {
	query := r.Dialect.Rebind(`
		UPDATE campaigns SET status=?, last_error=?, updated_at=?
		WHERE status IN (?, ?)
	`)
	res, err := r.DB.ExecContext(ctx, query,
		string(model.StatusStopped), reason, time.Now().UnixNano(),
		string(model.StatusQueued), string(model.StatusRunning),
	)
	if err != nil {
		return 0, appErrors.NewStorage("stop orphaned campaigns", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, appErrors.NewStorage("stop orphaned campaigns", err)
	}
	return n, nil
}

func (r *CampaignRepository) exists(ctx context.Context, campaignID, username string) (bool, error) {
	var count int
	query := r.Dialect.Rebind(`SELECT COUNT(*) FROM campaigns WHERE id=? AND username=?`)
	if err := r.DB.QueryRowContext(ctx, query, campaignID, username).Scan(&count); err != nil {
		return false, appErrors.NewStorage("check campaign exists", err)
	}
	return count > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var (
		c         model.Campaign
		status    string
		lastError sql.NullString
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&c.ID, &c.Seq, &c.Username, &c.Subject, &status, &c.Total,
		&c.Processed, &c.Sent, &c.Failed, &c.Delivered, &c.Bounced,
		&lastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = model.Status(status)
	if lastError.Valid {
		msg := lastError.String
		c.LastError = &msg
	}
	c.CreatedAt = time.Unix(0, createdAt)
	updated := time.Unix(0, updatedAt)
	c.UpdatedAt = &updated
	return &c, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
