package entity_test

import (
	"testing"

	"newsflow/internal/domain/entity"
)

func TestArticle_Validate(t *testing.T) {
	tests := []struct {
		name    string
		article entity.Article
		wantErr bool
	}{
		{
			name:    "valid",
			article: entity.Article{SourceID: 1, URL: "https://ex.com/a"},
			wantErr: false,
		},
		{
			name:    "missing url",
			article: entity.Article{SourceID: 1},
			wantErr: true,
		},
		{
			name:    "missing source",
			article: entity.Article{URL: "https://ex.com/a"},
			wantErr: true,
		},
		{
			name:    "ad confidence out of range",
			article: entity.Article{SourceID: 1, URL: "https://ex.com/a", AdConfidence: 1.2},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.article.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestContentHash_deterministic(t *testing.T) {
	a := entity.ContentHash("Apple earnings up", "https://ex.com/a1")
	b := entity.ContentHash("Apple earnings up", "https://ex.com/a1")
	if a != b {
		t.Fatalf("hash not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("want sha256 hex (64 chars), got %d", len(a))
	}
	if entity.ContentHash("other", "https://ex.com/a1") == a {
		t.Fatal("different titles must not collide")
	}
}

func TestArticleCategory_Validate(t *testing.T) {
	catID := int64(2)

	valid := entity.ArticleCategory{ArticleID: 1, CategoryID: &catID, Confidence: 0.9}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid row rejected: %v", err)
	}

	deferred := entity.ArticleCategory{ArticleID: 1, AICategory: "Business", Confidence: 0.9}
	if err := deferred.Validate(); err != nil {
		t.Fatalf("deferred mapping row rejected: %v", err)
	}

	empty := entity.ArticleCategory{ArticleID: 1, Confidence: 0.5}
	if err := empty.Validate(); err == nil {
		t.Fatal("row with nil category_id and empty ai_category must be rejected")
	}
}
