package scraper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/extractor"
	"newsflow/internal/infra/filecache"
	"newsflow/internal/infra/httpclient"
	"newsflow/internal/utils/text"
)

const (
	defaultMinTitleLength = 10

	// listPageLinkRatio triggers the list-page fallback when more than this
	// share of candidate links collapse onto the page's own URL.
	listPageLinkRatio = 0.5

	// defaultReanalyzeAfterFailures forces AI re-analysis after this many
	// consecutive failed snapshots.
	defaultReanalyzeAfterFailures = 3

	// snapshotTTL bounds how long persisted page snapshots survive.
	snapshotTTL = 30 * 24 * time.Hour
)

// pageSnapshot is the change-detection state for one monitored page.
type pageSnapshot struct {
	ContentHash      string           `json:"content_hash"`
	ItemHashes       map[string]bool  `json:"item_hashes"`
	Selectors        learnedSelectors `json:"selectors"`
	ConsecutiveFails int              `json:"consecutive_fails"`
	TakenAt          time.Time        `json:"taken_at"`
}

type learnedSelectors struct {
	Item  string `json:"item,omitempty"`
	Title string `json:"title,omitempty"`
	Link  string `json:"link,omitempty"`
	Date  string `json:"date,omitempty"`
}

// defaultItemSelectors cover semantic elements, list items and common
// list-post patterns.
var defaultItemSelectors = []string{
	"article",
	"main li",
	".post", ".news-item", ".list-item", ".entry",
	"[class*='post-list'] > *",
	"[class*='news-list'] > *",
	"[class*='changelog'] > *",
	"ul > li",
}

// content classification keyword tables; a class needs at least two matches.
var pageClassPatterns = map[string][]*regexp.Regexp{
	"changelog": {
		regexp.MustCompile(`(?i)\bchangelog\b`),
		regexp.MustCompile(`(?i)\brelease[sd]?\b`),
		regexp.MustCompile(`(?i)\bversion\s+\d`),
		regexp.MustCompile(`(?i)\bfixed\b`),
		regexp.MustCompile(`(?i)\bimproved\b`),
	},
	"news": {
		regexp.MustCompile(`(?i)\bnews\b`),
		regexp.MustCompile(`(?i)\bbreaking\b`),
		regexp.MustCompile(`(?i)\breport(ed|s)?\b`),
		regexp.MustCompile(`(?i)\bannounce[sd]?\b`),
	},
	"blog": {
		regexp.MustCompile(`(?i)\bblog\b`),
		regexp.MustCompile(`(?i)\bposted by\b`),
		regexp.MustCompile(`(?i)\bread more\b`),
		regexp.MustCompile(`(?i)\bauthor\b`),
	},
}

// relativeDatePattern handles forms like "2 days ago" and "yesterday".
var relativeDatePattern = regexp.MustCompile(`(?i)(\d+)\s+(minute|hour|day|week|month)s?\s+ago`)

// PageMonitor watches a page without a feed, emitting items that were absent
// from the previous snapshot.
type PageMonitor struct {
	source    *entity.Source
	client    *httpclient.Client
	analyzer  extractor.PageAnalyzer
	snapshots *filecache.Cache
	logger    *slog.Logger

	minTitleLength int
	reanalyzeAfter int
	configured     learnedSelectors
	now            func() time.Time
}

func newPageMonitor(src *entity.Source, deps Deps) (Fetcher, error) {
	m := &PageMonitor{
		source:         src,
		client:         deps.Client,
		analyzer:       deps.Analyzer,
		snapshots:      deps.Snapshots,
		logger:         slog.Default().With(slog.String("page", src.URL)),
		minTitleLength: defaultMinTitleLength,
		reanalyzeAfter: defaultReanalyzeAfterFailures,
		now:            time.Now,
	}
	if v, ok := src.Config["min_title_length"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			m.minTitleLength = n
		}
	}
	if v, ok := src.Config["reanalyze_after_failures"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			m.reanalyzeAfter = n
		}
	}
	m.configured = learnedSelectors{
		Item:  src.Config["item_selector"],
		Title: src.Config["title_selector"],
		Link:  src.Config["link_selector"],
		Date:  src.Config["date_selector"],
	}
	return m, nil
}

func (m *PageMonitor) snapshotKey() string {
	return fmt.Sprintf("page_snapshot:%d:%s", m.source.ID, m.source.URL)
}

func (m *PageMonitor) loadSnapshot() *pageSnapshot {
	if m.snapshots == nil {
		return nil
	}
	var snap pageSnapshot
	if err := m.snapshots.Get(m.snapshotKey(), &snap); err != nil {
		return nil
	}
	return &snap
}

func (m *PageMonitor) saveSnapshot(snap *pageSnapshot) {
	if m.snapshots == nil {
		return
	}
	if err := m.snapshots.Set(m.snapshotKey(), snap, snapshotTTL); err != nil {
		m.logger.Debug("snapshot persist failed", slog.Any("error", err))
	}
}

// FetchArticles takes a fresh snapshot and emits items new since the last
// one. The first successful snapshot emits everything.
func (m *PageMonitor) FetchArticles(ctx context.Context, limit int) ([]Item, error) {
	prev := m.loadSnapshot()

	body, err := m.client.FetchText(ctx, m.source.URL, httpclient.BrowserHeaders())
	if err != nil {
		m.recordFailure(prev)
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		m.recordFailure(prev)
		return nil, fmt.Errorf("parse page: %w", err)
	}

	selectors := m.selectorChain(prev)
	candidates := m.extractCandidates(doc, selectors)

	// Force AI re-analysis after repeated failures, or when the page reads
	// as a bare list whose links all collapse onto the base URL.
	needsStudy := len(candidates) == 0 && prev != nil && prev.ConsecutiveFails+1 >= m.reanalyzeAfter
	if m.isListPageFallback(candidates) {
		m.logger.Info("list-page fallback detected, requesting structure study")
		needsStudy = true
	}
	if needsStudy && m.analyzer != nil {
		if learned := m.studyStructure(ctx, body); learned != nil {
			if prev == nil {
				prev = &pageSnapshot{ItemHashes: map[string]bool{}}
			}
			prev.Selectors = *learned
			candidates = m.extractCandidates(doc, []learnedSelectors{*learned})
		}
	}

	if len(candidates) == 0 {
		m.recordFailure(prev)
		return nil, fmt.Errorf("page %s: no items extracted", m.source.URL)
	}

	pageClass := classifyPage(body)
	snap := &pageSnapshot{
		ContentHash: hashString(body),
		ItemHashes:  make(map[string]bool, len(candidates)),
		TakenAt:     m.now(),
	}
	if prev != nil {
		snap.Selectors = prev.Selectors
	}

	var items []Item
	for _, c := range candidates {
		h := hashString(c.Title + "|" + c.URL)
		snap.ItemHashes[h] = true
		if prev != nil && prev.ItemHashes[h] {
			continue
		}
		if limit > 0 && len(items) >= limit {
			continue
		}
		c.Raw[RawPageType] = pageClass
		items = append(items, c)
	}

	m.saveSnapshot(snap)
	return items, nil
}

func (m *PageMonitor) recordFailure(prev *pageSnapshot) {
	if prev == nil {
		prev = &pageSnapshot{ItemHashes: map[string]bool{}}
	}
	prev.ConsecutiveFails++
	m.saveSnapshot(prev)
}

// selectorChain orders the selector sets: learned, configured, defaults.
func (m *PageMonitor) selectorChain(prev *pageSnapshot) []learnedSelectors {
	var chain []learnedSelectors
	if prev != nil && prev.Selectors.Item != "" {
		chain = append(chain, prev.Selectors)
	}
	if m.configured.Item != "" {
		chain = append(chain, m.configured)
	}
	for _, item := range defaultItemSelectors {
		chain = append(chain, learnedSelectors{Item: item})
	}
	return chain
}

// extractCandidates runs the selector chain until one set yields usable
// items.
func (m *PageMonitor) extractCandidates(doc *goquery.Document, chain []learnedSelectors) []Item {
	base, _ := url.Parse(m.source.URL)
	for _, selectors := range chain {
		var out []Item
		doc.Find(selectors.Item).Each(func(_ int, sel *goquery.Selection) {
			if item, ok := m.candidateFrom(sel, selectors, base); ok {
				out = append(out, item)
			}
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func (m *PageMonitor) candidateFrom(sel *goquery.Selection, selectors learnedSelectors, base *url.URL) (Item, bool) {
	title := m.candidateTitle(sel, selectors)
	if len([]rune(title)) < m.minTitleLength {
		return Item{}, false
	}

	link := m.candidateLink(sel, selectors, base)
	if link == "" {
		return Item{}, false
	}

	published := m.candidateDate(sel, selectors)
	return Item{
		Title:       text.SmartTruncate(title, maxTitleLength),
		URL:         link,
		Content:     text.NormalizeWhitespace(sel.Text()),
		PublishedAt: published,
		Raw:         map[string]string{},
	}, true
}

func (m *PageMonitor) candidateTitle(sel *goquery.Selection, selectors learnedSelectors) string {
	if selectors.Title != "" {
		if t := strings.TrimSpace(sel.Find(selectors.Title).First().Text()); t != "" {
			return t
		}
	}
	for _, probe := range []string{"h1", "h2", "h3", "h4", ".title", "a"} {
		if t := strings.TrimSpace(sel.Find(probe).First().Text()); t != "" {
			return t
		}
	}
	return strings.TrimSpace(sel.Text())
}

func (m *PageMonitor) candidateLink(sel *goquery.Selection, selectors learnedSelectors, base *url.URL) string {
	probe := "a[href]"
	if selectors.Link != "" {
		probe = selectors.Link
	}
	href, ok := sel.Find(probe).First().Attr("href")
	if !ok {
		if href, ok = sel.Attr("href"); !ok {
			return ""
		}
	}
	href, _ = text.CleanURL(href)
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if !parsed.IsAbs() {
		return ""
	}
	return parsed.String()
}

// candidateDate parses the item date with the extended pattern table
// including relative forms, accepting only dates within the sane window.
func (m *PageMonitor) candidateDate(sel *goquery.Selection, selectors learnedSelectors) time.Time {
	now := m.now().UTC()

	var raw string
	if selectors.Date != "" {
		raw = strings.TrimSpace(sel.Find(selectors.Date).First().Text())
	}
	if raw == "" {
		if dt, ok := sel.Find("time[datetime]").First().Attr("datetime"); ok {
			raw = dt
		} else {
			raw = strings.TrimSpace(sel.Find("time, .date, [class*='date']").First().Text())
		}
	}
	if raw == "" {
		return now
	}

	if parsed, ok := parseRelativeDate(raw, now); ok {
		return parsed
	}
	parsed, err := dateparse.ParseAny(raw)
	if err != nil {
		return now
	}
	parsed = parsed.UTC()
	// Reject implausible dates: older than 2 years or more than a day ahead.
	if parsed.Before(now.AddDate(-2, 0, 0)) || parsed.After(now.Add(24*time.Hour)) {
		return now
	}
	return parsed
}

func parseRelativeDate(raw string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch lower {
	case "today", "сегодня":
		return now, true
	case "yesterday", "вчера":
		return now.AddDate(0, 0, -1), true
	}
	if m := relativeDatePattern.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "minute":
			return now.Add(-time.Duration(n) * time.Minute), true
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour), true
		case "day":
			return now.AddDate(0, 0, -n), true
		case "week":
			return now.AddDate(0, 0, -7*n), true
		case "month":
			return now.AddDate(0, -n, 0), true
		}
	}
	return time.Time{}, false
}

// isListPageFallback detects pages whose extracted links collapse onto the
// page itself, meaning the item selector caught a navigation list.
func (m *PageMonitor) isListPageFallback(candidates []Item) bool {
	if len(candidates) == 0 {
		return false
	}
	baseHits := 0
	distinct := make(map[string]bool)
	for _, c := range candidates {
		if strings.TrimSuffix(c.URL, "/") == strings.TrimSuffix(m.source.URL, "/") {
			baseHits++
		}
		distinct[c.URL] = true
	}
	if float64(baseHits)/float64(len(candidates)) > listPageLinkRatio {
		return true
	}
	return len(distinct) == 1 && len(candidates) > 1
}

// studyStructure asks the AI to propose item/title/date selectors for the
// page and returns them as a learned selector set.
func (m *PageMonitor) studyStructure(ctx context.Context, body string) *learnedSelectors {
	suggestion, err := m.analyzer.DiscoverSelectors(ctx, body, m.source.URL)
	if err != nil {
		m.logger.Warn("page structure study failed", slog.Any("error", err))
		return nil
	}
	learned := &learnedSelectors{}
	if len(suggestion.ContentSelectors) > 0 {
		learned.Item = suggestion.ContentSelectors[0]
	}
	if len(suggestion.TitleSelectors) > 0 {
		learned.Title = suggestion.TitleSelectors[0]
	}
	if len(suggestion.DateSelectors) > 0 {
		learned.Date = suggestion.DateSelectors[0]
	}
	if learned.Item == "" {
		return nil
	}
	m.logger.Info("learned page selectors",
		slog.String("item", learned.Item),
		slog.String("page_type", suggestion.PageType))
	return learned
}

// classifyPage tags the page content by keyword classes; two matches are
// required, otherwise the page is general.
func classifyPage(body string) string {
	for _, class := range []string{"changelog", "news", "blog"} {
		matches := 0
		for _, pattern := range pageClassPatterns[class] {
			if pattern.MatchString(body) {
				matches++
			}
		}
		if matches >= 2 {
			return class
		}
	}
	return "general"
}

// TestConnection fetches the page and requires parseable HTML.
func (m *PageMonitor) TestConnection(ctx context.Context) error {
	body, err := m.client.FetchText(ctx, m.source.URL, httpclient.BrowserHeaders())
	if err != nil {
		return err
	}
	if _, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err != nil {
		return fmt.Errorf("parse page: %w", err)
	}
	return nil
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
