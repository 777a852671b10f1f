package store

import (
	"context"
	"database/sql"
)

// Settings is the singleton app_settings row of the main module.
type Settings struct {
	CompanyName string  `db:"company_name" json:"company_name"`
	Currency    string  `db:"currency" json:"currency"`
	VATRate     float64 `db:"vat_rate" json:"vat_rate"`
	SMTPConfig  string  `db:"smtp_config" json:"smtp_config"`
	UpdatedAt   string  `db:"updated_at" json:"updated_at"`
}

// Settings returns the application settings.
func (s *Store) Settings(ctx context.Context) (Settings, error) {
	db, err := s.db(ctx, mainFile)
	if err != nil {
		return Settings{}, err
	}
	var st Settings
	err = db.GetContext(ctx, &st, `SELECT COALESCE(company_name, '') AS company_name,
		COALESCE(currency, 'EUR') AS currency, COALESCE(vat_rate, 0) AS vat_rate,
		smtp_config, updated_at
		FROM app_settings WHERE id = 1`)
	return st, err
}

// SaveSettings overwrites the application settings.
func (s *Store) SaveSettings(ctx context.Context, st Settings) error {
	db, err := s.db(ctx, mainFile)
	if err != nil {
		return err
	}
	if st.SMTPConfig == "" {
		st.SMTPConfig = "{}"
	}
	res, err := db.NamedExecContext(ctx, `UPDATE app_settings SET company_name = :company_name,
		currency = :currency, vat_rate = :vat_rate, smtp_config = :smtp_config,
		updated_at = CURRENT_TIMESTAMP WHERE id = 1`, st)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Draft is a saved, unfinished quote.
type Draft struct {
	ID         int64         `db:"id" json:"id"`
	Name       string        `db:"name" json:"name"`
	CustomerID sql.NullInt64 `db:"customer_id" json:"-"`
	Payload    string        `db:"payload" json:"payload"`
	UserID     sql.NullInt64 `db:"user_id" json:"-"`
	CreatedAt  string        `db:"created_at" json:"created_at"`
	UpdatedAt  string        `db:"updated_at" json:"updated_at"`
}

// SaveDraft inserts d when its ID is zero and updates it otherwise. It
// returns the draft's id.
func (s *Store) SaveDraft(ctx context.Context, d Draft) (int64, error) {
	db, err := s.db(ctx, mainFile)
	if err != nil {
		return 0, err
	}
	if d.Payload == "" {
		d.Payload = "{}"
	}
	if d.ID == 0 {
		res, err := db.NamedExecContext(ctx, `INSERT INTO quote_drafts (name, customer_id, payload, user_id)
			VALUES (:name, :customer_id, :payload, :user_id)`, d)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}
	res, err := db.NamedExecContext(ctx, `UPDATE quote_drafts SET name = :name, customer_id = :customer_id,
		payload = :payload, user_id = :user_id, updated_at = CURRENT_TIMESTAMP WHERE id = :id`, d)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, sql.ErrNoRows
	}
	return d.ID, nil
}

// Drafts lists the drafts of userID, most recently updated first.
func (s *Store) Drafts(ctx context.Context, userID int64) ([]Draft, error) {
	db, err := s.db(ctx, mainFile)
	if err != nil {
		return nil, err
	}
	drafts := []Draft{}
	err = db.SelectContext(ctx, &drafts, `SELECT id, name, customer_id, payload, user_id, created_at, updated_at
		FROM quote_drafts WHERE user_id = ? ORDER BY updated_at DESC, id DESC`, userID)
	return drafts, err
}
