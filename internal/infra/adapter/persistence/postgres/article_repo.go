// Package postgres implements the repository interfaces over PostgreSQL.
// Every statement runs through the database queue, so repositories hold a
// queue handle rather than a raw connection pool.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/dbqueue"
	"newsflow/internal/repository"
)

const articleColumns = `
id, source_id, title, url, content, summary, image_url, media_files,
published_at, fetched_at, hash_content,
summary_processed, category_processed, ad_processed,
is_advertisement, ad_confidence, ad_type, ad_reasoning, ad_markers`

type ArticleRepo struct{ queue *dbqueue.Queue }

func NewArticleRepo(queue *dbqueue.Queue) repository.ArticleRepository {
	return &ArticleRepo{queue: queue}
}

func scanArticle(scan func(dest ...any) error) (*entity.Article, error) {
	var (
		a         entity.Article
		content   sql.NullString
		summary   sql.NullString
		imageURL  sql.NullString
		media     []byte
		adType    sql.NullString
		adReason  sql.NullString
		adMarkers []byte
	)
	err := scan(&a.ID, &a.SourceID, &a.Title, &a.URL, &content, &summary,
		&imageURL, &media, &a.PublishedAt, &a.FetchedAt, &a.HashContent,
		&a.SummaryProcessed, &a.CategoryProcessed, &a.AdProcessed,
		&a.IsAdvertisement, &a.AdConfidence, &adType, &adReason, &adMarkers)
	if err != nil {
		return nil, err
	}
	a.Content = content.String
	a.Summary = summary.String
	a.ImageURL = imageURL.String
	a.AdType = adType.String
	a.AdReasoning = adReason.String
	if len(media) > 0 {
		_ = json.Unmarshal(media, &a.MediaFiles)
	}
	if len(adMarkers) > 0 {
		_ = json.Unmarshal(adMarkers, &a.AdMarkers)
	}
	return &a, nil
}

func (repo *ArticleRepo) Create(ctx context.Context, article *entity.Article) error {
	if err := article.Validate(); err != nil {
		return err
	}
	media, err := json.Marshal(article.MediaFiles)
	if err != nil {
		return fmt.Errorf("Create: marshal media: %w", err)
	}
	markers, err := json.Marshal(article.AdMarkers)
	if err != nil {
		return fmt.Errorf("Create: marshal ad markers: %w", err)
	}

	const query = `
INSERT INTO articles
       (source_id, title, url, content, summary, image_url, media_files,
        published_at, fetched_at, hash_content,
        summary_processed, category_processed, ad_processed,
        is_advertisement, ad_confidence, ad_type, ad_reasoning, ad_markers)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (url) DO NOTHING
RETURNING id`

	id, err := repo.queue.InsertReturningID(ctx, query,
		article.SourceID, article.Title, article.URL, article.Content,
		article.Summary, article.ImageURL, media,
		article.PublishedAt, article.FetchedAt, article.HashContent,
		article.SummaryProcessed, article.CategoryProcessed, article.AdProcessed,
		article.IsAdvertisement, article.AdConfidence, article.AdType,
		article.AdReasoning, markers)
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict path: another worker inserted the same URL first.
		return fmt.Errorf("%w: url %s", entity.ErrDuplicate, article.URL)
	}
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	article.ID = id
	return nil
}

func (repo *ArticleRepo) Get(ctx context.Context, id int64) (*entity.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = $1 LIMIT 1`

	var article *entity.Article
	err := repo.queue.QueryRow(ctx, query, []any{id}, func(row *sql.Row) error {
		a, err := scanArticle(row.Scan)
		if err != nil {
			return err
		}
		article = a
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return article, nil
}

func (repo *ArticleRepo) GetWithLabels(ctx context.Context, id int64) (*repository.ArticleWithLabels, error) {
	article, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	labels, err := repo.labelsFor(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	return &repository.ArticleWithLabels{Article: article, Labels: labels[id]}, nil
}

func (repo *ArticleRepo) labelsFor(ctx context.Context, ids []int64) (map[int64][]entity.ArticleCategory, error) {
	out := make(map[int64][]entity.ArticleCategory, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `
SELECT id, article_id, category_id, ai_category, confidence, created_at
FROM article_categories
WHERE article_id IN (` + strings.Join(placeholders, ", ") + `)
ORDER BY confidence DESC`

	err := repo.queue.Query(ctx, query, args, func(rows *sql.Rows) error {
		for rows.Next() {
			var c entity.ArticleCategory
			var catID sql.NullInt64
			if err := rows.Scan(&c.ID, &c.ArticleID, &catID, &c.AICategory, &c.Confidence, &c.CreatedAt); err != nil {
				return err
			}
			if catID.Valid {
				c.CategoryID = &catID.Int64
			}
			out[c.ArticleID] = append(out[c.ArticleID], c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("labelsFor: %w", err)
	}
	return out, nil
}

func (repo *ArticleRepo) ExistsByURLAny(ctx context.Context, urls []string) (bool, error) {
	if len(urls) == 0 {
		return false, nil
	}
	placeholders := make([]string, len(urls))
	args := make([]any, len(urls))
	for i, u := range urls {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = u
	}
	query := `SELECT EXISTS (SELECT 1 FROM articles WHERE url IN (` + strings.Join(placeholders, ", ") + `))`

	var exists bool
	err := repo.queue.QueryRow(ctx, query, args, func(row *sql.Row) error {
		return row.Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("ExistsByURLAny: %w", err)
	}
	return exists, nil
}

func (repo *ArticleRepo) ExistsSimilarTitle(ctx context.Context, sourceID int64, title string, since time.Time) (bool, error) {
	const query = `
SELECT EXISTS (
  SELECT 1 FROM articles
  WHERE source_id = $1 AND LOWER(title) = LOWER($2) AND fetched_at >= $3
)`
	var exists bool
	err := repo.queue.QueryRow(ctx, query, []any{sourceID, title, since}, func(row *sql.Row) error {
		return row.Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("ExistsSimilarTitle: %w", err)
	}
	return exists, nil
}

func (repo *ArticleRepo) ListUnprocessed(ctx context.Context, limit int) ([]repository.ArticleWithSource, error) {
	query := `
SELECT ` + prefixColumns("a", articleColumns) + `,
       s.id, s.name, s.source_type, s.url, s.enabled
FROM articles a
INNER JOIN sources s ON a.source_id = s.id
WHERE NOT (a.summary_processed AND a.category_processed AND a.ad_processed)
ORDER BY a.fetched_at ASC
LIMIT $1`

	result := make([]repository.ArticleWithSource, 0, limit)
	err := repo.queue.Query(ctx, query, []any{limit}, func(rows *sql.Rows) error {
		for rows.Next() {
			var src entity.Source
			article, err := scanArticle(func(dest ...any) error {
				dest = append(dest, &src.ID, &src.Name, &src.SourceType, &src.URL, &src.Enabled)
				return rows.Scan(dest...)
			})
			if err != nil {
				return err
			}
			s := src
			result = append(result, repository.ArticleWithSource{Article: article, Source: &s})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ListUnprocessed: %w", err)
	}
	return result, nil
}

// SaveEnrichment applies one article's enrichment atomically: field updates,
// flag flips (monotonic, enforced in SQL with OR), and label rows.
func (repo *ArticleRepo) SaveEnrichment(ctx context.Context, article *entity.Article, labels []entity.ArticleCategory) error {
	markers, err := json.Marshal(article.AdMarkers)
	if err != nil {
		return fmt.Errorf("SaveEnrichment: marshal ad markers: %w", err)
	}

	return repo.queue.ExecuteTransaction(ctx, func(txCtx context.Context, tx *sql.Tx) error {
		const update = `
UPDATE articles SET
       title             = $1,
       summary           = $2,
       content           = $3,
       summary_processed  = summary_processed OR $4,
       category_processed = category_processed OR $5,
       ad_processed       = ad_processed OR $6,
       is_advertisement  = $7,
       ad_confidence     = $8,
       ad_type           = $9,
       ad_reasoning      = $10,
       ad_markers        = $11
WHERE id = $12`
		if _, err := tx.ExecContext(txCtx, update,
			article.Title, article.Summary, article.Content,
			article.SummaryProcessed, article.CategoryProcessed, article.AdProcessed,
			article.IsAdvertisement, article.AdConfidence, article.AdType,
			article.AdReasoning, markers, article.ID); err != nil {
			return fmt.Errorf("update article: %w", err)
		}

		for _, label := range labels {
			if err := label.Validate(); err != nil {
				return err
			}
			const insert = `
INSERT INTO article_categories (article_id, category_id, ai_category, confidence, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (article_id, category_id) WHERE category_id IS NOT NULL DO NOTHING`
			var catID any
			if label.CategoryID != nil {
				catID = *label.CategoryID
			}
			if _, err := tx.ExecContext(txCtx, insert,
				label.ArticleID, catID, label.AICategory, label.Confidence, time.Now()); err != nil {
				return fmt.Errorf("insert label: %w", err)
			}
		}
		return nil
	})
}

func (repo *ArticleRepo) ListFeed(ctx context.Context, filter repository.FeedFilter) ([]repository.ArticleWithLabels, error) {
	var where []string
	var args []any
	idx := 1

	if filter.SinceHours > 0 {
		where = append(where, fmt.Sprintf("published_at >= NOW() - ($%d || ' hours')::interval", idx))
		args = append(args, filter.SinceHours)
		idx++
	}
	if filter.SourceID != nil {
		where = append(where, fmt.Sprintf("source_id = $%d", idx))
		args = append(args, *filter.SourceID)
		idx++
	}
	if filter.HideAds {
		where = append(where, "NOT is_advertisement")
	}

	query := `SELECT ` + articleColumns + ` FROM articles`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY published_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, filter.Limit, filter.Offset)

	return repo.queryWithLabels(ctx, query, args)
}

func (repo *ArticleRepo) queryWithLabels(ctx context.Context, query string, args []any) ([]repository.ArticleWithLabels, error) {
	articles := make([]*entity.Article, 0, 50)
	err := repo.queue.Query(ctx, query, args, func(rows *sql.Rows) error {
		for rows.Next() {
			a, err := scanArticle(rows.Scan)
			if err != nil {
				return err
			}
			articles = append(articles, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("queryWithLabels: %w", err)
	}

	ids := make([]int64, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	labels, err := repo.labelsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]repository.ArticleWithLabels, len(articles))
	for i, a := range articles {
		out[i] = repository.ArticleWithLabels{Article: a, Labels: labels[a.ID]}
	}
	return out, nil
}

func (repo *ArticleRepo) Search(ctx context.Context, filter repository.SearchFilter) ([]repository.ArticleWithLabels, error) {
	if len(filter.Keywords) == 0 {
		return []repository.ArticleWithLabels{}, nil
	}

	var where []string
	var score []string
	var args []any
	idx := 1

	for _, keyword := range filter.Keywords {
		pattern := "%" + escapeILIKE(keyword) + "%"
		where = append(where, fmt.Sprintf(
			"(title ILIKE $%d OR summary ILIKE $%d OR content ILIKE $%d)", idx, idx, idx))
		score = append(score, fmt.Sprintf(
			"(CASE WHEN title ILIKE $%d THEN 3 ELSE 0 END + CASE WHEN summary ILIKE $%d THEN 2 ELSE 0 END + CASE WHEN content ILIKE $%d THEN 1 ELSE 0 END)",
			idx, idx, idx))
		args = append(args, pattern)
		idx++
	}
	if filter.SinceHours > 0 {
		where = append(where, fmt.Sprintf("published_at >= NOW() - ($%d || ' hours')::interval", idx))
		args = append(args, filter.SinceHours)
		idx++
	}
	if filter.HideAds {
		where = append(where, "NOT is_advertisement")
	}

	order := "relevance DESC, published_at DESC"
	switch filter.Sort {
	case "date":
		order = "published_at DESC"
	case "title":
		order = "title ASC"
	}

	query := `SELECT ` + articleColumns + `, (` + strings.Join(score, " + ") + `) AS relevance
FROM articles
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY ` + order + fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, filter.Limit, filter.Offset)

	articles := make([]*entity.Article, 0, filter.Limit)
	err := repo.queue.Query(ctx, query, args, func(rows *sql.Rows) error {
		for rows.Next() {
			var relevance int
			a, err := scanArticle(func(dest ...any) error {
				dest = append(dest, &relevance)
				return rows.Scan(dest...)
			})
			if err != nil {
				return err
			}
			articles = append(articles, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	ids := make([]int64, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	labels, err := repo.labelsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]repository.ArticleWithLabels, len(articles))
	for i, a := range articles {
		out[i] = repository.ArticleWithLabels{Article: a, Labels: labels[a.ID]}
	}
	return out, nil
}

func (repo *ArticleRepo) ListForDate(ctx context.Context, day time.Time) ([]repository.ArticleWithLabels, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)
	query := `SELECT ` + articleColumns + `
FROM articles
WHERE published_at >= $1 AND published_at < $2 AND summary_processed
ORDER BY published_at ASC`
	return repo.queryWithLabels(ctx, query, []any{start, end})
}

func (repo *ArticleRepo) ListLabelRows(ctx context.Context, sinceHours int) ([]repository.LabelRow, error) {
	query := `
SELECT ac.article_id, ac.ai_category, ac.category_id, ac.confidence
FROM article_categories ac
INNER JOIN articles a ON a.id = ac.article_id`
	var args []any
	if sinceHours > 0 {
		query += ` WHERE a.published_at >= NOW() - ($1 || ' hours')::interval`
		args = append(args, sinceHours)
	}

	var out []repository.LabelRow
	err := repo.queue.Query(ctx, query, args, func(rows *sql.Rows) error {
		for rows.Next() {
			var r repository.LabelRow
			var catID sql.NullInt64
			if err := rows.Scan(&r.ArticleID, &r.AICategory, &catID, &r.Confidence); err != nil {
				return err
			}
			if catID.Valid {
				r.CategoryID = &catID.Int64
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ListLabelRows: %w", err)
	}
	return out, nil
}

func (repo *ArticleRepo) CountAdvertisements(ctx context.Context, sinceHours int) (int64, error) {
	query := `SELECT COUNT(*) FROM articles WHERE is_advertisement`
	var args []any
	if sinceHours > 0 {
		query += ` AND published_at >= NOW() - ($1 || ' hours')::interval`
		args = append(args, sinceHours)
	}
	return repo.queue.Count(ctx, query, args...)
}

func (repo *ArticleRepo) ListReprocessCandidates(ctx context.Context, minContent int, limit int) ([]repository.ArticleWithSource, error) {
	query := `
SELECT ` + prefixColumns("a", articleColumns) + `,
       s.id, s.name, s.source_type, s.url, s.enabled
FROM articles a
INNER JOIN sources s ON a.source_id = s.id
WHERE a.title = a.summary OR LENGTH(COALESCE(a.content, '')) < $1
ORDER BY a.fetched_at DESC
LIMIT $2`

	var result []repository.ArticleWithSource
	err := repo.queue.Query(ctx, query, []any{minContent, limit}, func(rows *sql.Rows) error {
		for rows.Next() {
			var src entity.Source
			article, err := scanArticle(func(dest ...any) error {
				dest = append(dest, &src.ID, &src.Name, &src.SourceType, &src.URL, &src.Enabled)
				return rows.Scan(dest...)
			})
			if err != nil {
				return err
			}
			s := src
			result = append(result, repository.ArticleWithSource{Article: article, Source: &s})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ListReprocessCandidates: %w", err)
	}
	return result, nil
}

func (repo *ArticleRepo) ResetProcessingFlags(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `
UPDATE articles SET summary_processed = FALSE, category_processed = FALSE, ad_processed = FALSE
WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	if _, err := repo.queue.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("ResetProcessingFlags: %w", err)
	}
	return nil
}

func (repo *ArticleRepo) UpdateContent(ctx context.Context, id int64, content string) error {
	const query = `UPDATE articles SET content = $1 WHERE id = $2`
	n, err := repo.queue.Exec(ctx, query, content, id)
	if err != nil {
		return fmt.Errorf("UpdateContent: %w", err)
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (repo *ArticleRepo) DeleteBySource(ctx context.Context, sourceID int64) error {
	if _, err := repo.queue.Exec(ctx, `DELETE FROM articles WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("DeleteBySource: %w", err)
	}
	return nil
}

func (repo *ArticleRepo) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	n, err := repo.queue.Exec(ctx, `DELETE FROM articles WHERE fetched_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("DeleteOlderThan: %w", err)
	}
	return n, nil
}

func (repo *ArticleRepo) CountAll(ctx context.Context) (int64, error) {
	return repo.queue.Count(ctx, `SELECT COUNT(*) FROM articles`)
}

// prefixColumns rewrites a bare column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// escapeILIKE escapes LIKE wildcards in user keywords.
func escapeILIKE(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
