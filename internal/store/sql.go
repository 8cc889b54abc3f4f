package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"cyberintel/internal/dateutil"
	"cyberintel/internal/model"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	pingTimeout            = 5 * time.Second
)

// SQLStore implements Store on sqlite or postgres through sqlx. Dates are
// stored as canonical text so both backends round-trip identically.
type SQLStore struct {
	db      *sqlx.DB
	backend Backend
	builder sq.StatementBuilderType
}

var _ Store = (*SQLStore)(nil)

// OpenSqlite opens (and migrates) a sqlite database at path.
func OpenSqlite(path string) (*SQLStore, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serializes writers anyway; one connection avoids lock errors.
	db.SetMaxOpenConns(1)
	s := &SQLStore{
		db:      db,
		backend: BackendSqlite,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// PostgresConfig holds postgres connection settings.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenPostgres opens (and migrates) a postgres database.
func OpenPostgres(cfg PostgresConfig) (*SQLStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &SQLStore{
		db:      db,
		backend: BackendPostgres,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Backend reports which SQL flavor this store was constructed against.
func (s *SQLStore) Backend() Backend { return s.backend }

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) migrate() error {
	idCol := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.backend == BackendPostgres {
		idCol = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS raw_articles (
			id %s,
			source TEXT NOT NULL,
			url TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			title_translated TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			content_translated TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT 'en',
			scraped_at TEXT NOT NULL,
			published_date TEXT NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0
		)`, idCol),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cves (
			id %s,
			cve_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			title_translated TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT 'Medium',
			cvss_score REAL NOT NULL DEFAULT 0,
			intrigue REAL NOT NULL DEFAULT 0,
			published_date TEXT NOT NULL,
			original_language TEXT NOT NULL DEFAULT 'en',
			source TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			affected_products TEXT NOT NULL DEFAULT '[]',
			session_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			UNIQUE (url, cve_id)
		)`, idCol),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS newsitems (
			id %s,
			title TEXT NOT NULL DEFAULT '',
			title_translated TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			intrigue REAL NOT NULL DEFAULT 0,
			published_date TEXT NOT NULL,
			original_language TEXT NOT NULL DEFAULT 'en',
			source TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`, idCol),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS scrape_sessions (
			id %s,
			session_id TEXT NOT NULL,
			started_at TEXT NOT NULL,
			sources TEXT NOT NULL DEFAULT '[]',
			articles_found INTEGER NOT NULL DEFAULT 0,
			triggered_by TEXT NOT NULL DEFAULT ''
		)`, idCol),
		`CREATE INDEX IF NOT EXISTS idx_cves_published ON cves (published_date)`,
		`CREATE INDEX IF NOT EXISTS idx_news_published ON newsitems (published_date)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_processed ON raw_articles (processed)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// cleanURL trims the incidental whitespace that scraped URLs carry.
func cleanURL(u string) string { return strings.TrimSpace(u) }

// ---- raw articles ----

func (s *SQLStore) InsertArticle(ctx context.Context, a *model.Article) error {
	q := s.builder.Insert("raw_articles").
		Columns("source", "url", "title", "title_translated", "content",
			"content_translated", "language", "scraped_at", "published_date", "processed").
		Values(a.Source, cleanURL(a.URL), a.Title, a.TitleTranslated, a.Content,
			a.ContentTranslated, a.Language,
			dateutil.FormatForStorage(a.ScrapedAt),
			dateutil.FormatForStorage(a.PublishedDate),
			boolToInt(a.Processed)).
		Suffix("ON CONFLICT (url) DO NOTHING")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert article: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

func (s *SQLStore) IsArticleScraped(ctx context.Context, url string) (bool, error) {
	return s.exists(ctx, "raw_articles", url)
}

func (s *SQLStore) UnprocessedArticles(ctx context.Context) ([]model.Article, error) {
	q := s.builder.
		Select("id", "source", "url", "title", "title_translated", "content",
			"content_translated", "language", "scraped_at", "published_date", "processed").
		From("raw_articles").
		Where(sq.Eq{"processed": 0}).
		OrderBy("id ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build unprocessed query: %w", err)
	}
	var rows []articleRow
	if err := s.db.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("query unprocessed: %w", err)
	}
	out := make([]model.Article, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (s *SQLStore) MarkProcessed(ctx context.Context, url string) error {
	q := s.builder.Update("raw_articles").
		Set("processed", 1).
		Where(sq.Eq{"url": cleanURL(url)})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build mark processed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// ---- classified records ----

func (s *SQLStore) InsertCVE(ctx context.Context, v *model.Vulnerability) error {
	products, err := json.Marshal(v.AffectedProducts)
	if err != nil {
		return fmt.Errorf("marshal products: %w", err)
	}
	q := s.builder.Insert("cves").
		Columns("cve_id", "title", "title_translated", "summary", "severity",
			"cvss_score", "intrigue", "published_date", "original_language",
			"source", "url", "affected_products", "session_id", "created_at").
		Values(v.CVEID, v.Title, v.TitleTranslated, v.Summary, v.Severity,
			v.CVSSScore, v.Intrigue,
			dateutil.FormatForStorage(v.PublishedDate),
			v.OriginalLanguage, v.Source, cleanURL(v.URL), string(products),
			v.SessionID, dateutil.FormatForStorage(time.Now())).
		Suffix("ON CONFLICT (url, cve_id) DO NOTHING")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert cve: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert cve: %w", err)
	}
	return nil
}

func (s *SQLStore) InsertNews(ctx context.Context, n *model.NewsItem) error {
	q := s.builder.Insert("newsitems").
		Columns("title", "title_translated", "summary", "intrigue",
			"published_date", "original_language", "source", "url",
			"session_id", "created_at").
		Values(n.Title, n.TitleTranslated, n.Summary, n.Intrigue,
			dateutil.FormatForStorage(n.PublishedDate),
			n.OriginalLanguage, n.Source, cleanURL(n.URL),
			n.SessionID, dateutil.FormatForStorage(time.Now())).
		Suffix("ON CONFLICT (url) DO NOTHING")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert news: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert news: %w", err)
	}
	return nil
}

// IsClassified reports whether the URL exists in either classified table.
func (s *SQLStore) IsClassified(ctx context.Context, url string) (bool, error) {
	inCVEs, err := s.exists(ctx, "cves", url)
	if err != nil {
		return false, err
	}
	if inCVEs {
		return true, nil
	}
	return s.exists(ctx, "newsitems", url)
}

func (s *SQLStore) ClassifiedCVEs(ctx context.Context, url string) ([]model.Vulnerability, error) {
	q := s.cveSelect().Where(sq.Eq{"url": cleanURL(url)}).OrderBy("id ASC")
	return s.queryCVEs(ctx, q)
}

func (s *SQLStore) ClassifiedNews(ctx context.Context, url string) (*model.NewsItem, error) {
	q := s.newsSelect().Where(sq.Eq{"url": cleanURL(url)}).Limit(1)
	items, err := s.queryNews(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// ---- range queries ----

func (s *SQLStore) CVEsByFilters(ctx context.Context, f CVEFilter) ([]model.Vulnerability, error) {
	q := s.cveSelect()
	if len(f.Severities) > 0 {
		upper := make([]string, 0, len(f.Severities))
		for _, sev := range f.Severities {
			upper = append(upper, strings.ToUpper(sev))
		}
		q = q.Where(sq.Eq{"UPPER(severity)": upper})
	}
	if !f.After.IsZero() {
		q = q.Where(sq.GtOrEq{"published_date": dateutil.FormatForStorage(f.After)})
	}
	q = q.OrderBy("(cvss_score * 0.6 + intrigue * 0.4) DESC", "id ASC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return s.queryCVEs(ctx, q)
}

func (s *SQLStore) NewsByFilters(ctx context.Context, f NewsFilter) ([]model.NewsItem, error) {
	q := s.newsSelect()
	if !f.After.IsZero() {
		q = q.Where(sq.GtOrEq{"published_date": dateutil.FormatForStorage(f.After)})
	}
	q = q.OrderBy("intrigue DESC", "id ASC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return s.queryNews(ctx, q)
}

// ---- freshness and housekeeping ----

func (s *SQLStore) LastScrapeTimes(ctx context.Context) (map[string]time.Time, error) {
	q := s.builder.
		Select("source", "MAX(scraped_at) AS last_scrape").
		From("raw_articles").
		GroupBy("source")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build last scrape query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query last scrape: %w", err)
	}
	defer rows.Close()
	out := map[string]time.Time{}
	for rows.Next() {
		var source string
		var raw sql.NullString
		if err := rows.Scan(&source, &raw); err != nil {
			return nil, fmt.Errorf("scan last scrape: %w", err)
		}
		if !raw.Valid {
			continue
		}
		if t, ok := dateutil.Parse(raw.String); ok {
			out[strings.ToLower(source)] = t
		}
	}
	return out, rows.Err()
}

func (s *SQLStore) Statistics(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(cvss_score), 0), COALESCE(AVG(intrigue), 0) FROM cves`)
	if err := row.Scan(&st.TotalCVEs, &st.AvgCVSS, &st.AvgCVEIntrigue); err != nil {
		return nil, fmt.Errorf("cve stats: %w", err)
	}
	row = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(intrigue), 0) FROM newsitems`)
	if err := row.Scan(&st.TotalNews, &st.AvgNewsIntrigue); err != nil {
		return nil, fmt.Errorf("news stats: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_articles`)
	if err := row.Scan(&st.TotalArticles); err != nil {
		return nil, fmt.Errorf("article stats: %w", err)
	}
	yesterday := dateutil.FormatForStorage(time.Now().AddDate(0, 0, -1))
	q := s.builder.Select("COUNT(*)").From("raw_articles").
		Where(sq.GtOrEq{"scraped_at": yesterday})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&st.RecentArticles); err != nil {
		return nil, fmt.Errorf("recent stats: %w", err)
	}
	return st, nil
}

func (s *SQLStore) RecordSession(ctx context.Context, rec SessionRecord) error {
	sources, err := json.Marshal(rec.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	q := s.builder.Insert("scrape_sessions").
		Columns("session_id", "started_at", "sources", "articles_found", "triggered_by").
		Values(rec.SessionID, dateutil.FormatForStorage(rec.StartedAt),
			string(sources), rec.ArticlesFound, rec.TriggeredBy)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build record session: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	mark := dateutil.FormatForStorage(cutoff)
	var total int64
	for _, spec := range []struct{ table, col string }{
		{"raw_articles", "scraped_at"},
		{"cves", "published_date"},
		{"newsitems", "published_date"},
	} {
		q := s.builder.Delete(spec.table).Where(sq.Lt{spec.col: mark})
		sqlStr, args, err := q.ToSql()
		if err != nil {
			return total, fmt.Errorf("build delete %s: %w", spec.table, err)
		}
		res, err := s.db.ExecContext(ctx, sqlStr, args...)
		if err != nil {
			return total, fmt.Errorf("delete from %s: %w", spec.table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

// ---- internals ----

func (s *SQLStore) exists(ctx context.Context, table, url string) (bool, error) {
	q := s.builder.Select("1").From(table).
		Where(sq.Eq{"url": cleanURL(url)}).Limit(1)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}
	var one int
	err = s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", table, err)
	}
	return true, nil
}

func (s *SQLStore) cveSelect() sq.SelectBuilder {
	return s.builder.
		Select("id", "cve_id", "title", "title_translated", "summary", "severity",
			"cvss_score", "intrigue", "published_date", "original_language",
			"source", "url", "affected_products", "session_id").
		From("cves")
}

func (s *SQLStore) newsSelect() sq.SelectBuilder {
	return s.builder.
		Select("id", "title", "title_translated", "summary", "intrigue",
			"published_date", "original_language", "source", "url", "session_id").
		From("newsitems")
}

func (s *SQLStore) queryCVEs(ctx context.Context, q sq.SelectBuilder) ([]model.Vulnerability, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cve query: %w", err)
	}
	var rows []cveRow
	if err := s.db.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("query cves: %w", err)
	}
	out := make([]model.Vulnerability, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (s *SQLStore) queryNews(ctx context.Context, q sq.SelectBuilder) ([]model.NewsItem, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build news query: %w", err)
	}
	var rows []newsRow
	if err := s.db.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("query news: %w", err)
	}
	out := make([]model.NewsItem, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

type articleRow struct {
	ID                int64  `db:"id"`
	Source            string `db:"source"`
	URL               string `db:"url"`
	Title             string `db:"title"`
	TitleTranslated   string `db:"title_translated"`
	Content           string `db:"content"`
	ContentTranslated string `db:"content_translated"`
	Language          string `db:"language"`
	ScrapedAt         string `db:"scraped_at"`
	PublishedDate     string `db:"published_date"`
	Processed         int    `db:"processed"`
}

func (r *articleRow) toModel() model.Article {
	now := time.Now()
	return model.Article{
		ID:                r.ID,
		Source:            r.Source,
		URL:               r.URL,
		Title:             r.Title,
		TitleTranslated:   r.TitleTranslated,
		Content:           r.Content,
		ContentTranslated: r.ContentTranslated,
		Language:          r.Language,
		ScrapedAt:         dateutil.ParseOr(r.ScrapedAt, now),
		PublishedDate:     dateutil.ParseOr(r.PublishedDate, now),
		Processed:         r.Processed != 0,
	}
}

type cveRow struct {
	ID               int64   `db:"id"`
	CVEID            string  `db:"cve_id"`
	Title            string  `db:"title"`
	TitleTranslated  string  `db:"title_translated"`
	Summary          string  `db:"summary"`
	Severity         string  `db:"severity"`
	CVSSScore        float64 `db:"cvss_score"`
	Intrigue         float64 `db:"intrigue"`
	PublishedDate    string  `db:"published_date"`
	OriginalLanguage string  `db:"original_language"`
	Source           string  `db:"source"`
	URL              string  `db:"url"`
	AffectedProducts string  `db:"affected_products"`
	SessionID        string  `db:"session_id"`
}

func (r *cveRow) toModel() model.Vulnerability {
	var products []string
	if r.AffectedProducts != "" {
		_ = json.Unmarshal([]byte(r.AffectedProducts), &products)
	}
	return model.Vulnerability{
		CVEID:            r.CVEID,
		Title:            r.Title,
		TitleTranslated:  r.TitleTranslated,
		Summary:          r.Summary,
		Severity:         r.Severity,
		CVSSScore:        r.CVSSScore,
		Intrigue:         r.Intrigue,
		PublishedDate:    dateutil.ParseOr(r.PublishedDate, time.Now()),
		OriginalLanguage: r.OriginalLanguage,
		Source:           r.Source,
		URL:              r.URL,
		AffectedProducts: products,
		SessionID:        r.SessionID,
	}
}

type newsRow struct {
	ID               int64   `db:"id"`
	Title            string  `db:"title"`
	TitleTranslated  string  `db:"title_translated"`
	Summary          string  `db:"summary"`
	Intrigue         float64 `db:"intrigue"`
	PublishedDate    string  `db:"published_date"`
	OriginalLanguage string  `db:"original_language"`
	Source           string  `db:"source"`
	URL              string  `db:"url"`
	SessionID        string  `db:"session_id"`
}

func (r *newsRow) toModel() model.NewsItem {
	return model.NewsItem{
		Title:            r.Title,
		TitleTranslated:  r.TitleTranslated,
		Summary:          r.Summary,
		Intrigue:         r.Intrigue,
		PublishedDate:    dateutil.ParseOr(r.PublishedDate, time.Now()),
		OriginalLanguage: r.OriginalLanguage,
		Source:           r.Source,
		URL:              r.URL,
		SessionID:        r.SessionID,
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
