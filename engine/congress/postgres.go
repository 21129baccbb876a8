package congress

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/lib/pq"
	"go.nhat.io/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
)

var (
	registerOnce sync.Once
	driverName   string
	registerErr  error
)

// Open connects to postgres through an otelsql-instrumented lib/pq driver.
// The handle is shared by PostgresStore and the pgvector VectorStore.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	registerOnce.Do(func() {
		driverName, registerErr = otelsql.Register("postgres",
			otelsql.TraceQueryWithoutArgs(),
			otelsql.TraceRowsClose(),
			otelsql.TraceRowsAffected(),
			otelsql.WithSystem(semconv.DBSystemPostgreSQL),
		)
	})
	if registerErr != nil {
		return nil, fmt.Errorf("congress: register driver: %w", registerErr)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("congress: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("congress: ping: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if err := otelsql.RecordStats(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("congress: record stats: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Schema is the table layout PostgresStore reads. The tables are owned by
// the ingestion jobs; it is applied only by tests and local setups.
const Schema = `
CREATE TABLE IF NOT EXISTS bills (
	id              BIGSERIAL PRIMARY KEY,
	congress        INT         NOT NULL,
	bill_type       TEXT        NOT NULL,
	number          INT         NOT NULL,
	title           TEXT        NOT NULL,
	summary         TEXT,
	policy_area     TEXT,
	introduced_date TIMESTAMPTZ,
	sponsor_name    TEXT,
	sponsor_party   TEXT,
	sponsor_state   TEXT,
	latest_action   TEXT,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS bill_text_versions (
	id      BIGSERIAL PRIMARY KEY,
	bill_id BIGINT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
	content TEXT   NOT NULL
);
CREATE TABLE IF NOT EXISTS members (
	id          BIGSERIAL PRIMARY KEY,
	bioguide_id TEXT        NOT NULL,
	full_name   TEXT        NOT NULL,
	party       TEXT        NOT NULL,
	state       TEXT        NOT NULL,
	chamber     TEXT        NOT NULL,
	district    INT,
	current     BOOLEAN     NOT NULL DEFAULT true,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS bill_actions (
	id          BIGSERIAL PRIMARY KEY,
	bill_id     BIGINT      NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
	action_text TEXT        NOT NULL,
	chamber     TEXT,
	action_date TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS executive_orders (
	id           BIGSERIAL PRIMARY KEY,
	eo_number    INT         NOT NULL,
	title        TEXT        NOT NULL,
	summary      TEXT,
	president    TEXT,
	signing_date TIMESTAMPTZ NOT NULL
);`

const (
	billColumns = `b.id, b.congress, b.bill_type, b.number, b.title, COALESCE(b.summary, ''),
		COALESCE(b.policy_area, ''), b.introduced_date, COALESCE(b.sponsor_name, ''),
		COALESCE(b.sponsor_party, ''), COALESCE(b.sponsor_state, ''), COALESCE(b.latest_action, ''),
		EXISTS (SELECT 1 FROM bill_text_versions t WHERE t.bill_id = b.id), b.updated_at`
	memberColumns = `m.id, m.bioguide_id, m.full_name, m.party, m.state, m.chamber,
		COALESCE(m.district, 0), m.current, m.updated_at`
	actionColumns = `a.id, a.bill_id, upper(b.bill_type) || ' ' || b.number, a.action_text,
		COALESCE(a.chamber, ''), a.action_date`
	orderColumns = `o.id, o.eo_number, o.title, COALESCE(o.summary, ''), COALESCE(o.president, ''), o.signing_date`
)

// Options tunes PostgresStore.
type Options struct {
	QueryTimeout time.Duration
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{QueryTimeout: 5 * time.Second}
}

// PostgresStore implements Store over the congress tables.
type PostgresStore struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, opts Options, logger *slog.Logger) *PostgresStore {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultOptions().QueryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, opts: opts, logger: logger}
}

func (p *PostgresStore) fail(op string, err error) error {
	p.logger.Warn("congress: query failed", "op", op, "err", err)
	return fmt.Errorf("congress: %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// FindBills implements Store.
func (p *PostgresStore) FindBills(ctx context.Context, refs []domain.BillRef) ([]domain.Bill, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.QueryTimeout)
	defer cancel()

	types := make([]string, len(refs))
	numbers := make([]int64, len(refs))
	for i, r := range refs {
		types[i] = strings.ToLower(r.Type)
		numbers[i] = int64(r.Number)
	}
	q := `SELECT ` + billColumns + ` FROM bills b
		WHERE (lower(b.bill_type), b.number) IN (SELECT * FROM unnest($1::text[], $2::int[]))
		ORDER BY b.congress DESC, b.id`
	bills, err := p.queryBills(ctx, q, pq.Array(types), pq.Array(numbers))
	if err != nil {
		return nil, p.fail("find bills", err)
	}
	return bills, nil
}

// Search implements Store.
func (p *PostgresStore) Search(ctx context.Context, q Query) (Records, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.QueryTimeout)
	defer cancel()

	patterns := pq.Array(likePatterns(q.Terms))
	states, parties := pq.Array(upper(q.States)), pq.Array(upper(q.Parties))
	since, until := nullTime(q.Since), nullTime(q.Until)
	limit := q.limit()
	var out Records
	var err error

	if q.wants(domain.EntityBill) {
		sqlText := `SELECT ` + billColumns + ` FROM bills b
			WHERE (cardinality($1::text[]) = 0
				OR ($2 AND b.title ILIKE ANY($1))
				OR ($3 AND b.summary ILIKE ANY($1))
				OR ($4 AND b.policy_area ILIKE ANY($1))
				OR ($5 AND EXISTS (SELECT 1 FROM bill_text_versions t WHERE t.bill_id = b.id AND t.content ILIKE ANY($1))))
			AND (cardinality($6::text[]) = 0 OR b.sponsor_state = ANY($6))
			AND (cardinality($7::text[]) = 0 OR b.sponsor_party = ANY($7))
			AND ($8::timestamptz IS NULL OR b.introduced_date >= $8)
			AND ($9::timestamptz IS NULL OR b.introduced_date < $9)
			ORDER BY b.introduced_date DESC NULLS LAST LIMIT $10`
		out.Bills, err = p.queryBills(ctx, sqlText, patterns,
			q.Fields.Title, q.Fields.Summary, q.Fields.PolicyArea, q.Fields.Text,
			states, parties, since, until, limit)
		if err != nil {
			return Records{}, p.fail("search bills", err)
		}
	}
	if q.wants(domain.EntityMember) {
		sqlText := `SELECT ` + memberColumns + ` FROM members m
			WHERE (cardinality($1::text[]) = 0 OR m.full_name ILIKE ANY($1))
			AND (cardinality($2::text[]) = 0 OR m.state = ANY($2))
			AND (cardinality($3::text[]) = 0 OR m.party = ANY($3))
			ORDER BY m.current DESC, m.full_name LIMIT $4`
		out.Members, err = p.queryMembers(ctx, sqlText, patterns, states, parties, limit)
		if err != nil {
			return Records{}, p.fail("search members", err)
		}
	}
	if q.wants(domain.EntityAction) {
		sqlText := `SELECT ` + actionColumns + ` FROM bill_actions a JOIN bills b ON b.id = a.bill_id
			WHERE (cardinality($1::text[]) = 0 OR a.action_text ILIKE ANY($1) OR b.title ILIKE ANY($1))
			AND ($2::timestamptz IS NULL OR a.action_date >= $2)
			AND ($3::timestamptz IS NULL OR a.action_date < $3)
			ORDER BY a.action_date DESC LIMIT $4`
		out.Actions, err = p.queryActions(ctx, sqlText, patterns, since, until, limit)
		if err != nil {
			return Records{}, p.fail("search actions", err)
		}
	}
	if q.wants(domain.EntityOrder) {
		sqlText := `SELECT ` + orderColumns + ` FROM executive_orders o
			WHERE (cardinality($1::text[]) = 0 OR o.title ILIKE ANY($1) OR o.summary ILIKE ANY($1))
			AND ($2::timestamptz IS NULL OR o.signing_date >= $2)
			AND ($3::timestamptz IS NULL OR o.signing_date < $3)
			ORDER BY o.signing_date DESC LIMIT $4`
		out.Orders, err = p.queryOrders(ctx, sqlText, patterns, since, until, limit)
		if err != nil {
			return Records{}, p.fail("search orders", err)
		}
	}
	return out, nil
}

// Load implements Store.
func (p *PostgresStore) Load(ctx context.Context, keys []domain.Key) (Records, error) {
	ids := make(map[domain.EntityType][]int64)
	for _, k := range keys {
		ids[k.Type] = append(ids[k.Type], k.ID)
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.QueryTimeout)
	defer cancel()

	var out Records
	var err error
	if v := ids[domain.EntityBill]; len(v) > 0 {
		if out.Bills, err = p.queryBills(ctx, `SELECT `+billColumns+` FROM bills b WHERE b.id = ANY($1)`, pq.Array(v)); err != nil {
			return Records{}, p.fail("load bills", err)
		}
	}
	if v := ids[domain.EntityMember]; len(v) > 0 {
		if out.Members, err = p.queryMembers(ctx, `SELECT `+memberColumns+` FROM members m WHERE m.id = ANY($1)`, pq.Array(v)); err != nil {
			return Records{}, p.fail("load members", err)
		}
	}
	if v := ids[domain.EntityAction]; len(v) > 0 {
		if out.Actions, err = p.queryActions(ctx, `SELECT `+actionColumns+` FROM bill_actions a JOIN bills b ON b.id = a.bill_id WHERE a.id = ANY($1)`, pq.Array(v)); err != nil {
			return Records{}, p.fail("load actions", err)
		}
	}
	if v := ids[domain.EntityOrder]; len(v) > 0 {
		if out.Orders, err = p.queryOrders(ctx, `SELECT `+orderColumns+` FROM executive_orders o WHERE o.id = ANY($1)`, pq.Array(v)); err != nil {
			return Records{}, p.fail("load orders", err)
		}
	}
	return out, nil
}

// billFilter is the shared WHERE clause for bill aggregates over $1..$4.
const billFilter = `(cardinality($1::text[]) = 0 OR b.sponsor_state = ANY($1))
	AND (cardinality($2::text[]) = 0 OR b.sponsor_party = ANY($2))
	AND ($3::timestamptz IS NULL OR b.introduced_date >= $3)
	AND ($4::timestamptz IS NULL OR b.introduced_date < $4)`

// memberFilter is the shared WHERE clause for current-member aggregates.
const memberFilter = `m.current
	AND (cardinality($1::text[]) = 0 OR m.state = ANY($1))
	AND (cardinality($2::text[]) = 0 OR m.party = ANY($2))`

// Stats implements Store.
func (p *PostgresStore) Stats(ctx context.Context, f Filter) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.QueryTimeout)
	defer cancel()

	states, parties := pq.Array(upper(f.States)), pq.Array(upper(f.Parties))
	billArgs := []any{states, parties, nullTime(f.Since), nullTime(f.Until)}
	memberArgs := []any{states, parties}

	var s Stats
	groups := []struct {
		op   string
		sql  string
		args []any
		dst  *[]Count
	}{
		{"bills by party", `SELECT COALESCE(b.sponsor_party, '?'), count(*) FROM bills b WHERE ` + billFilter + ` GROUP BY 1 ORDER BY 2 DESC`, billArgs, &s.ByParty},
		{"bills by state", `SELECT COALESCE(b.sponsor_state, '?'), count(*) FROM bills b WHERE ` + billFilter + ` GROUP BY 1 ORDER BY 2 DESC, 1 LIMIT 15`, billArgs, &s.ByState},
		{"bills by chamber", `SELECT CASE WHEN b.bill_type IN ('s', 'sres', 'sjres', 'sconres') THEN 'senate' ELSE 'house' END, count(*)
			FROM bills b WHERE ` + billFilter + ` GROUP BY 1 ORDER BY 2 DESC`, billArgs, &s.ByChamber},
		{"bills by month", `SELECT to_char(date_trunc('month', b.introduced_date), 'YYYY-MM'), count(*)
			FROM bills b WHERE b.introduced_date IS NOT NULL AND ` + billFilter + ` GROUP BY 1 ORDER BY 1 DESC LIMIT 12`, billArgs, &s.ByMonth},
		{"members by party", `SELECT m.party, count(*) FROM members m WHERE ` + memberFilter + ` GROUP BY 1 ORDER BY 2 DESC`, memberArgs, &s.MembersByParty},
		{"members by state", `SELECT m.state, count(*) FROM members m WHERE ` + memberFilter + ` GROUP BY 1 ORDER BY 2 DESC, 1 LIMIT 15`, memberArgs, &s.MembersByState},
	}
	for _, g := range groups {
		counts, err := p.queryCounts(ctx, g.sql, g.args...)
		if err != nil {
			return Stats{}, p.fail(g.op, err)
		}
		*g.dst = counts
	}
	s.TotalBills = sum(s.ByParty)
	s.TotalMembers = sum(s.MembersByParty)
	return s, nil
}

// ListForEmbedding implements Store.
func (p *PostgresStore) ListForEmbedding(ctx context.Context, et domain.EntityType, afterID int64, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.QueryTimeout)
	defer cancel()

	var recs Records
	var err error
	switch et {
	case domain.EntityBill:
		recs.Bills, err = p.queryBills(ctx, `SELECT `+billColumns+` FROM bills b WHERE b.id > $1 ORDER BY b.id LIMIT $2`, afterID, limit)
	case domain.EntityMember:
		recs.Members, err = p.queryMembers(ctx, `SELECT `+memberColumns+` FROM members m WHERE m.id > $1 ORDER BY m.id LIMIT $2`, afterID, limit)
	case domain.EntityAction:
		recs.Actions, err = p.queryActions(ctx, `SELECT `+actionColumns+` FROM bill_actions a JOIN bills b ON b.id = a.bill_id WHERE a.id > $1 ORDER BY a.id LIMIT $2`, afterID, limit)
	case domain.EntityOrder:
		recs.Orders, err = p.queryOrders(ctx, `SELECT `+orderColumns+` FROM executive_orders o WHERE o.id > $1 ORDER BY o.id LIMIT $2`, afterID, limit)
	default:
		return nil, fmt.Errorf("congress: list %q: %w", et, domain.ErrUnknownEntityType)
	}
	if err != nil {
		return nil, p.fail("list "+string(et), err)
	}
	return recs.Documents(), nil
}

// BillsWithText implements Store.
func (p *PostgresStore) BillsWithText(ctx context.Context, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.QueryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `SELECT DISTINCT bill_id FROM bill_text_versions WHERE bill_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, p.fail("bill text", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, p.fail("bill text", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, p.fail("bill text", err)
	}
	return out, nil
}

func (p *PostgresStore) queryBills(ctx context.Context, q string, args ...any) ([]domain.Bill, error) {
	return queryRows(ctx, p.db, q, args, func(r *sql.Rows) (domain.Bill, error) {
		var b domain.Bill
		var introduced sql.NullTime
		err := r.Scan(&b.ID, &b.Congress, &b.Type, &b.Number, &b.Title, &b.Summary, &b.PolicyArea,
			&introduced, &b.SponsorName, &b.SponsorParty, &b.SponsorState, &b.LatestAction, &b.HasText, &b.UpdatedAt)
		b.Type = strings.ToLower(b.Type)
		b.IntroducedAt = introduced.Time
		return b, err
	})
}

func (p *PostgresStore) queryMembers(ctx context.Context, q string, args ...any) ([]domain.Member, error) {
	return queryRows(ctx, p.db, q, args, func(r *sql.Rows) (domain.Member, error) {
		var m domain.Member
		err := r.Scan(&m.ID, &m.BioguideID, &m.FullName, &m.Party, &m.State, &m.Chamber, &m.District, &m.Current, &m.UpdatedAt)
		return m, err
	})
}

func (p *PostgresStore) queryActions(ctx context.Context, q string, args ...any) ([]domain.Action, error) {
	return queryRows(ctx, p.db, q, args, func(r *sql.Rows) (domain.Action, error) {
		var a domain.Action
		err := r.Scan(&a.ID, &a.BillID, &a.BillLabel, &a.Text, &a.Chamber, &a.ActionDate)
		return a, err
	})
}

func (p *PostgresStore) queryOrders(ctx context.Context, q string, args ...any) ([]domain.Order, error) {
	return queryRows(ctx, p.db, q, args, func(r *sql.Rows) (domain.Order, error) {
		var o domain.Order
		err := r.Scan(&o.ID, &o.Number, &o.Title, &o.Summary, &o.President, &o.SignedAt)
		return o, err
	})
}

func (p *PostgresStore) queryCounts(ctx context.Context, q string, args ...any) ([]Count, error) {
	return queryRows(ctx, p.db, q, args, func(r *sql.Rows) (Count, error) {
		var c Count
		err := r.Scan(&c.Label, &c.N)
		return c, err
	})
}

func queryRows[T any](ctx context.Context, db *sql.DB, q string, args []any, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePatterns turns terms into escaped ILIKE substring patterns.
func likePatterns(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, "%"+likeEscaper.Replace(t)+"%")
	}
	return out
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func sum(cs []Count) int {
	n := 0
	for _, c := range cs {
		n += c.N
	}
	return n
}
