package mathrender

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

// SQLStore keeps renders in the math_renders table.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Load(ctx context.Context, key string) (*richtext.Rendering, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT mime,data,path FROM math_renders WHERE key=$1`, key)
	var r richtext.Rendering
	if err := row.Scan(&r.MIME, &r.Data, &r.Path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &r, true, nil
}

func (s *SQLStore) Save(ctx context.Context, key string, r *richtext.Rendering) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO math_renders (key,mime,data,path,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (key) DO UPDATE SET mime=EXCLUDED.mime, data=EXCLUDED.data, path=EXCLUDED.path`,
		key, r.MIME, r.Data, r.Path, time.Now().Unix())
	return err
}
