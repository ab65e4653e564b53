//nolint:whitespace //can't make both the linter and editor happy :(
package replaydata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mpapenbr/timing-service-go/pkg/model"
	"github.com/mpapenbr/timing-service-go/pkg/repository"
)

var ErrNotFound = errors.New("replay data not found")

// Entry is one archived session history
type Entry struct {
	SessionKey  int
	MeetingKey  int
	SessionName string
	DateEnd     *time.Time
	StoredAt    time.Time
}

// Upsert stores the history of data.Session. An existing entry is replaced.
func Upsert(ctx context.Context, conn repository.Querier, data *model.ReplayData) error {
	if data == nil || data.Session == nil {
		return errors.New("replay data without session")
	}
	var dateEnd *time.Time
	if !data.Session.DateEnd.IsZero() {
		dateEnd = &data.Session.DateEnd
	}
	_, err := conn.Exec(ctx, `
insert into replay_data (session_key, meeting_key, session_name, date_end, data, stored_at)
values ($1, $2, $3, $4, $5, now())
on conflict (session_key) do update
set meeting_key=excluded.meeting_key, session_name=excluded.session_name,
    date_end=excluded.date_end, data=excluded.data, stored_at=excluded.stored_at`,
		data.Session.SessionKey, data.Session.MeetingKey, data.Session.SessionName,
		dateEnd, data)
	if err != nil {
		return fmt.Errorf("upsert replay data %d: %w", data.Session.SessionKey, err)
	}
	return nil
}

// LoadBySessionKey returns ErrNotFound if no entry exists
func LoadBySessionKey(
	ctx context.Context,
	conn repository.Querier,
	sessionKey int,
) (*model.ReplayData, error) {
	row := conn.QueryRow(ctx,
		"select data from replay_data where session_key=$1", sessionKey)
	var ret model.ReplayData
	if err := row.Scan(&ret); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ret, nil
}

// List returns the archived sessions, most recent end first
func List(ctx context.Context, conn repository.Querier) ([]Entry, error) {
	rows, err := conn.Query(ctx, `
select session_key, meeting_key, session_name, date_end, stored_at
from replay_data order by date_end desc nulls last, session_key desc`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.SessionKey, &e.MeetingKey, &e.SessionName, &e.DateEnd, &e.StoredAt)
		return e, err
	})
}

// deletes an entry from the database, returns number of rows deleted.
func DeleteBySessionKey(ctx context.Context, conn repository.Querier, sessionKey int) (int, error) {
	cmdTag, err := conn.Exec(ctx, "delete from replay_data where session_key=$1", sessionKey)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// Archive adapts the repository functions to the replay archive of the
// timing service
type Archive struct {
	conn repository.Querier
}

func NewArchive(conn repository.Querier) *Archive {
	return &Archive{conn: conn}
}

func (a *Archive) Load(ctx context.Context, sessionKey int) (*model.ReplayData, error) {
	return LoadBySessionKey(ctx, a.conn, sessionKey)
}

func (a *Archive) Store(ctx context.Context, data *model.ReplayData) error {
	return Upsert(ctx, a.conn, data)
}
