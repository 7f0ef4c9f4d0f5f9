package hydration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"
)

// Kind is the entity family being hydrated.
type Kind string

const (
	KindEvents  Kind = "events"
	KindWinkers Kind = "winkers"
)

// Record is one entity row rendered as a JSON object by the database.
type Record struct {
	ID   int64
	Data map[string]interface{}
}

// FollowFlags hold the social-graph edges between the requester and a batch
// of winkers. Following[x] means the requester follows x; FollowedBack[x]
// means x follows the requester.
type FollowFlags struct {
	Following    map[int64]bool
	FollowedBack map[int64]bool
}

// Store is the relational side of hydration. Every method is one round trip
// regardless of how many ids it receives.
type Store interface {
	FetchEvents(ctx context.Context, ids []int64) ([]Record, error)
	FetchWinkers(ctx context.Context, ids []int64) ([]Record, error)
	FetchFollowFlags(ctx context.Context, requesterID int64, ids []int64) (FollowFlags, error)
	// FetchRequester returns nil, nil when the winker does not exist.
	FetchRequester(ctx context.Context, id int64) (map[string]interface{}, error)
}

// fetchEventsSQL keeps the input order through WITH ORDINALITY and folds the
// creator and the public participant roster into the row.
const fetchEventsSQL = `
WITH input_ids AS (
    SELECT * FROM unnest($1::bigint[]) WITH ORDINALITY AS t(id, ord)
)
SELECT
    e.id,
    to_jsonb(e.*) || jsonb_build_object(
        'creatorWinker', to_jsonb(cw.*),
        'participants', COALESCE(
            jsonb_agg(
                jsonb_build_object(
                    'id', pw.id,
                    'rang', pw.rang,
                    'nbUnseen', pw."nbUnseen",
                    'dateOrder', pw."dateOrder",
                    'participeWinker', to_jsonb(wp.*)
                )
                ORDER BY pw.rang ASC, pw."dateOrder" ASC
            ) FILTER (WHERE pw.id IS NOT NULL),
            '[]'::jsonb
        )
    ) AS record
FROM input_ids i
JOIN profil_event e ON e.id = i.id
LEFT JOIN winker cw ON cw.id = e."creatorWinker_id"
LEFT JOIN participe_winker pw ON pw.event_id = e.id AND pw."groupPrive_id" IS NULL
LEFT JOIN profil_winker wp ON wp.id = pw."participeWinker_id"
GROUP BY i.ord, e.id, cw.id
ORDER BY i.ord`

type PostgresStore struct {
	db   *sql.DB
	goqu *goqu.Database
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:   db,
		goqu: goqu.New("postgres", db),
	}
}

func (s *PostgresStore) FetchEvents(ctx context.Context, ids []int64) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, fetchEventsSQL, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return scanRecords(rows)
}

func (s *PostgresStore) FetchWinkers(ctx context.Context, ids []int64) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := s.goqu.
		From(goqu.T("profil_winker").As("w")).
		LeftJoin(
			goqu.T("profil_fileswinker").As("f"),
			goqu.On(goqu.I("f.winker_id").Eq(goqu.I("w.id"))),
		).
		Select(
			goqu.I("w.id"),
			goqu.L(`to_jsonb(w.*) || jsonb_build_object('filesWinker', COALESCE(
				jsonb_agg(jsonb_build_object('id', f.id, 'image', f.image)) FILTER (WHERE f.id IS NOT NULL),
				'[]'::jsonb))`).As("record"),
		).
		Where(goqu.Ex{"w.id": ids}).
		GroupBy(goqu.I("w.id")).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build winkers query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query winkers: %w", err)
	}
	return scanRecords(rows)
}

func (s *PostgresStore) FetchFollowFlags(ctx context.Context, requesterID int64, ids []int64) (FollowFlags, error) {
	flags := FollowFlags{
		Following:    make(map[int64]bool),
		FollowedBack: make(map[int64]bool),
	}
	if len(ids) == 0 {
		return flags, nil
	}

	follower := goqu.I("f.followerWinker_id")
	followed := goqu.I("f.followedWinker_id")

	query, args, err := s.goqu.
		From(goqu.T("follow_winker").As("f")).
		Select(follower, followed).
		Where(goqu.Or(
			goqu.And(follower.Eq(requesterID), followed.In(ids)),
			goqu.And(followed.Eq(requesterID), follower.In(ids)),
		)).
		ToSQL()
	if err != nil {
		return flags, fmt.Errorf("build follow query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return flags, fmt.Errorf("query follows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return flags, fmt.Errorf("scan follow: %w", err)
		}
		if from == requesterID {
			flags.Following[to] = true
		}
		if to == requesterID {
			flags.FollowedBack[from] = true
		}
	}
	return flags, rows.Err()
}

func (s *PostgresStore) FetchRequester(ctx context.Context, id int64) (map[string]interface{}, error) {
	query, args, err := s.goqu.
		From(goqu.T("profil_winker").As("w")).
		Select(goqu.L("to_jsonb(w.*)")).
		Where(goqu.Ex{"w.id": id}).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build requester query: %w", err)
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query requester: %w", err)
	}
	return decodeObject(raw)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			id  int64
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		data, err := decodeObject(raw)
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", id, err)
		}
		out = append(out, Record{ID: id, Data: data})
	}
	return out, rows.Err()
}

// decodeObject keeps numbers as json.Number so bigint columns survive the
// round trip exactly.
func decodeObject(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
