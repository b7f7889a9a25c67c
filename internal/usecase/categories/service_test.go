package categories

import (
	"context"
	"testing"
	"time"

	"newsflow/internal/domain/entity"
)

// stubCategoryRepo serves operator mappings from a map.
type stubCategoryRepo struct {
	mappings map[string]*entity.CategoryMapping
	touched  []int64
}

func (s *stubCategoryRepo) ListCategories(context.Context) ([]*entity.Category, error) {
	return nil, nil
}

func (s *stubCategoryRepo) GetCategoryByName(context.Context, string) (*entity.Category, error) {
	return nil, entity.ErrNotFound
}

func (s *stubCategoryRepo) GetActiveMapping(_ context.Context, aiCategory string) (*entity.CategoryMapping, error) {
	if m, ok := s.mappings[aiCategory]; ok && m.IsActive {
		return m, nil
	}
	return nil, entity.ErrNotFound
}

func (s *stubCategoryRepo) TouchMappingUsage(_ context.Context, id int64, _ time.Time) error {
	s.touched = append(s.touched, id)
	return nil
}

func (s *stubCategoryRepo) ListMappings(context.Context) ([]*entity.CategoryMapping, error) {
	return nil, nil
}

func (s *stubCategoryRepo) UpsertMapping(context.Context, *entity.CategoryMapping) error {
	return nil
}

func newTestService(repo *stubCategoryRepo) *Service {
	if repo == nil {
		repo = &stubCategoryRepo{}
	}
	return NewService(repo, nil)
}

func TestMapLabel_operatorMappingWins(t *testing.T) {
	repo := &stubCategoryRepo{mappings: map[string]*entity.CategoryMapping{
		"кибербезопасность": {ID: 7, AICategory: "кибербезопасность", FixedCategory: CategoryTech, IsActive: true},
	}}
	svc := newTestService(repo)

	if got := svc.MapLabel(context.Background(), "кибербезопасность"); got != CategoryTech {
		t.Fatalf("operator mapping must win, got %q", got)
	}
	if len(repo.touched) != 1 || repo.touched[0] != 7 {
		t.Fatalf("usage must be bumped: %v", repo.touched)
	}
}

func TestMapLabel_defaultDictionary(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	tests := []struct {
		label string
		want  string
	}{
		{"Business", CategoryBusiness},
		{"технологии", CategoryTech},
		{"serbia", CategorySerbia},
		{"World politics report", CategoryPolitics}, // substring: politics
		{"совершенно неизвестная тема", CategoryOther},
		{"", CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := svc.MapLabel(ctx, tt.label); got != tt.want {
				t.Fatalf("MapLabel(%q)=%q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

func TestMapLabel_idempotent(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	for _, label := range []string{"Business", "наука", "gibberish", "Tech"} {
		once := svc.MapLabel(ctx, label)
		twice := svc.MapLabel(ctx, once)
		if once != twice {
			t.Fatalf("mapping not idempotent: %q -> %q -> %q", label, once, twice)
		}
	}
}

func TestMapLabel_totality(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	inputs := []string{"x", "123", "!!!", "Τεχνολογία", "очень длинная строка ни о чём"}
	for _, label := range inputs {
		got := svc.MapLabel(ctx, label)
		if _, ok := FixedCategories[got]; !ok {
			t.Fatalf("MapLabel(%q)=%q escaped the closed taxonomy", label, got)
		}
	}
}

func TestMapArticleLabels_mergesOnMaxConfidence(t *testing.T) {
	svc := newTestService(nil)
	labels := []entity.ArticleCategory{
		{AICategory: "business", Confidence: 0.6},
		{AICategory: "economy", Confidence: 0.9},
		{AICategory: "serbia", Confidence: 0.7},
	}
	mapped := svc.MapArticleLabels(context.Background(), labels)

	if len(mapped) != 2 {
		t.Fatalf("want Business+Serbia after merge, got %+v", mapped)
	}
	if mapped[0].Name != CategoryBusiness || mapped[0].Confidence != 0.9 {
		t.Fatalf("primary must keep max confidence: %+v", mapped[0])
	}
}

func TestPrimary_emptyLabelsIsOther(t *testing.T) {
	svc := newTestService(nil)
	primary := svc.Primary(context.Background(), nil)
	if primary.Name != CategoryOther {
		t.Fatalf("want Other, got %q", primary.Name)
	}
	if primary.DisplayName != "Прочее" {
		t.Fatalf("display metadata missing: %+v", primary)
	}
}
