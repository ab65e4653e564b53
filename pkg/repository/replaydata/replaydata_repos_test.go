//nolint:funlen,errcheck //ok for this test code
package replaydata

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gotest.tools/v3/assert"

	"github.com/mpapenbr/timing-service-go/pkg/model"
	"github.com/mpapenbr/timing-service-go/testsupport/basedata"
	tcpg "github.com/mpapenbr/timing-service-go/testsupport/tcpostgres"
	"github.com/mpapenbr/timing-service-go/testsupport/testdb"
)

func createSampleEntry(db *pgxpool.Pool, data *model.ReplayData) {
	err := pgx.BeginFunc(context.Background(), db, func(tx pgx.Tx) error {
		return Upsert(context.Background(), tx, data)
	})
	if err != nil {
		log.Fatalf("createSampleEntry: %v\n", err)
	}
}

func sessionWithKey(key int, end time.Time) *model.ReplayData {
	ret := basedata.SampleReplayData()
	s := *ret.Session
	s.SessionKey = key
	s.DateEnd = end
	ret.Session = &s
	return ret
}

func TestUpsertAndLoad(t *testing.T) {
	pool := testdb.InitTestDb()
	data := basedata.SampleReplayData()
	createSampleEntry(pool, data)

	got, err := LoadBySessionKey(context.Background(), pool, data.Session.SessionKey)
	assert.NilError(t, err)
	assert.DeepEqual(t, data, got)
}

func TestUpsertReplaces(t *testing.T) {
	pool := testdb.InitTestDb()
	data := basedata.SampleReplayData()
	createSampleEntry(pool, data)

	data.Streams.RaceControl = append(data.Streams.RaceControl, model.RaceControlMessage{
		SessionKey: 9507, MeetingKey: 1233, Date: basedata.TestTime().Add(time.Minute),
		Category: "Flag", Message: "CHEQUERED FLAG",
	})
	createSampleEntry(pool, data)

	got, err := LoadBySessionKey(context.Background(), pool, data.Session.SessionKey)
	assert.NilError(t, err)
	assert.Equal(t, len(got.RaceControl), 2)

	entries, err := List(context.Background(), pool)
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 1)
}

func TestUpsertWithoutSession(t *testing.T) {
	pool := testdb.InitTestDb()
	err := Upsert(context.Background(), pool, &model.ReplayData{})
	assert.ErrorContains(t, err, "without session")
}

func TestLoadMissing(t *testing.T) {
	pool := testdb.InitTestDb()
	_, err := LoadBySessionKey(context.Background(), pool, 4711)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	pool := testdb.InitTestDb()
	base := basedata.TestTime()
	createSampleEntry(pool, sessionWithKey(1, base))
	createSampleEntry(pool, sessionWithKey(2, base.Add(48*time.Hour)))
	createSampleEntry(pool, sessionWithKey(3, time.Time{}))

	entries, err := List(context.Background(), pool)
	assert.NilError(t, err)
	keys := make([]int, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.SessionKey)
	}
	assert.DeepEqual(t, keys, []int{2, 1, 3})
	assert.Assert(t, entries[2].DateEnd == nil)
	assert.Assert(t, entries[0].DateEnd.Equal(base.Add(48*time.Hour)))
	assert.Equal(t, entries[0].MeetingKey, 1233)
	assert.Equal(t, entries[0].SessionName, "Race")
}

func TestDeleteBySessionKey(t *testing.T) {
	pool := testdb.InitTestDb()
	createSampleEntry(pool, basedata.SampleReplayData())
	tests := []struct {
		name string
		key  int
		want int
	}{
		{name: "existing", key: 9507, want: 1},
		{name: "gone", key: 9507, want: 0},
		{name: "unknown", key: 1, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeleteBySessionKey(context.Background(), pool, tt.key)
			assert.NilError(t, err)
			assert.Equal(t, got, tt.want)
		})
	}
}

func TestArchive(t *testing.T) {
	pool := testdb.InitTestDb()
	defer tcpg.ClearReplayDataTable(pool)
	a := NewArchive(pool)
	data := basedata.SampleReplayData()

	_, err := a.Load(context.Background(), data.Session.SessionKey)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NilError(t, a.Store(context.Background(), data))
	got, err := a.Load(context.Background(), data.Session.SessionKey)
	assert.NilError(t, err)
	assert.DeepEqual(t, data.Streams, got.Streams)
	assert.Equal(t, got.Session.CountryName, "China")
}
