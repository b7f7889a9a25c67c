package httpclient

import (
	"math/rand"
)

const defaultUserAgent = "newsflow/1.0 (+https://github.com/dzarlax/newsflow)"

// browserProfiles are realistic desktop header sets for scraping contexts
// where a bot User-Agent gets blocked (Telegram previews, JS-heavy pages).
var browserProfiles = []map[string]string{
	{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9,ru;q=0.8",
		"Sec-Ch-Ua":       `"Not/A)Brand";v="8", "Chromium";v="126", "Google Chrome";v="126"`,
	},
	{
		"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	},
	{
		"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
	},
	{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36 Edg/125.0.0.0",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9,sr;q=0.7",
	},
}

// BrowserHeaders returns a random realistic browser header set. The returned
// map is a copy and safe to mutate.
func BrowserHeaders() map[string]string {
	// #nosec G404 -- header rotation needs variety, not unpredictability.
	profile := browserProfiles[rand.Intn(len(browserProfiles))]
	out := make(map[string]string, len(profile)+2)
	for k, v := range profile {
		out[k] = v
	}
	return out
}

// AntiCacheHeaders augments headers with cache-busting directives, used on
// retry attempts against preview endpoints that serve stale empty pages.
func AntiCacheHeaders(headers map[string]string) map[string]string {
	headers["Cache-Control"] = "no-cache, no-store, must-revalidate"
	headers["Pragma"] = "no-cache"
	return headers
}

// RandomUserAgent returns just the User-Agent of a random browser profile.
func RandomUserAgent() string {
	// #nosec G404
	return browserProfiles[rand.Intn(len(browserProfiles))]["User-Agent"]
}
