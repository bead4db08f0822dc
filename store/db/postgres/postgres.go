package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/kaleow/omnichat/internal/profile"
	"github.com/kaleow/omnichat/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL database specified by the profile's DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	postgresDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	driver := DB{db: postgresDB, profile: profile}
	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS conversation (
	id SERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	user_id INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_user_id ON conversation (user_id);

CREATE TABLE IF NOT EXISTS message (
	id SERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	conversation_id INTEGER NOT NULL REFERENCES conversation (id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT 'text',
	image_url TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	created_ts BIGINT NOT NULL,
	edited BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_message_conversation_id ON message (conversation_id);
`

func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}

// placeholder returns the n-th positional parameter, e.g. $1.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns a comma-separated parameter list $1..$n.
func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = placeholder(i + 1)
	}
	return strings.Join(list, ", ")
}
