package scraper

import (
	"io"
	"log/slog"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/httpclient"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps() Deps {
	cfg := httpclient.DefaultConfig()
	cfg.PostRatePerSecond = 1000
	return Deps{Client: httpclient.New(cfg)}
}

func testSource(sourceType, url string) *entity.Source {
	return &entity.Source{
		ID:         1,
		Name:       "test",
		SourceType: sourceType,
		URL:        url,
		Enabled:    true,
	}
}
