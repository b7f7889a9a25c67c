package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/dbqueue"
)

func repoFixture(t *testing.T) (*ArticleRepo, sqlmock.Sqlmock) {
	t.Helper()
	database, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	queue := dbqueue.New(database, dbqueue.DefaultConfig(), nil)
	queue.Start(context.Background())
	t.Cleanup(queue.Stop)

	return &ArticleRepo{queue: queue}, mock
}

func TestArticleRepo_ExistsByURLAny(t *testing.T) {
	repo, mock := repoFixture(t)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM articles WHERE url IN`).
		WithArgs("https://t.me/ch/123", "https://news.rs/article").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByURLAny(context.Background(),
		[]string{"https://t.me/ch/123", "https://news.rs/article"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !exists {
		t.Fatal("want exists=true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestArticleRepo_ExistsByURLAny_emptyInput(t *testing.T) {
	repo, _ := repoFixture(t)
	exists, err := repo.ExistsByURLAny(context.Background(), nil)
	if err != nil || exists {
		t.Fatalf("empty input must short-circuit: exists=%v err=%v", exists, err)
	}
}

func TestArticleRepo_Create_duplicateURL(t *testing.T) {
	repo, mock := repoFixture(t)

	// ON CONFLICT DO NOTHING yields zero returned rows for a duplicate.
	mock.ExpectQuery(`INSERT INTO articles`).
		WillReturnError(sql.ErrNoRows)

	article := &entity.Article{
		SourceID:    1,
		Title:       "Apple earnings up",
		URL:         "https://ex.com/a1",
		PublishedAt: time.Now(),
		FetchedAt:   time.Now(),
	}
	err := repo.Create(context.Background(), article)
	if !errors.Is(err, entity.ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
}

func TestArticleRepo_Create_success(t *testing.T) {
	repo, mock := repoFixture(t)

	mock.ExpectQuery(`INSERT INTO articles`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	article := &entity.Article{
		SourceID:    1,
		Title:       "Apple earnings up",
		URL:         "https://ex.com/a1",
		PublishedAt: time.Now(),
		FetchedAt:   time.Now(),
	}
	if err := repo.Create(context.Background(), article); err != nil {
		t.Fatalf("err=%v", err)
	}
	if article.ID != 42 {
		t.Fatalf("returned id not applied: %d", article.ID)
	}
}

func TestArticleRepo_Create_validatesFirst(t *testing.T) {
	repo, _ := repoFixture(t)
	err := repo.Create(context.Background(), &entity.Article{SourceID: 1})
	var validationErr *entity.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("want validation error for empty URL, got %v", err)
	}
}

func TestEscapeILIKE(t *testing.T) {
	if got := escapeILIKE(`100%_done\`); got != `100\%\_done\\` {
		t.Fatalf("escape: %q", got)
	}
}
