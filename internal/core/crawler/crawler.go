// Package crawler implements a bounded, polite, same-origin web crawler
// that concatenates extracted page text for ingestion.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"

	"github.com/supportpilot/supportpilot/internal/core/retry"
	"github.com/supportpilot/supportpilot/internal/core/textutil"
	"github.com/supportpilot/supportpilot/internal/models"
)

const (
	// DefaultMaxPages bounds how many pages one crawl may visit.
	DefaultMaxPages = 50
	// DefaultUserAgent identifies the crawler to remote sites.
	DefaultUserAgent = "SupportPilotBot/1.0"

	maxHTMLBytes         = 1_500_000
	maxTotalCrawledChars = 300_000
	minMeaningfulChars   = 200
	minMeaningfulWords   = 40
	maxLinksPerPage      = 100
	maxQueueSize         = 300
	maxCrawlDelay        = 3 * time.Second

	pageFetchTimeout   = 12 * time.Second
	robotsFetchTimeout = 10 * time.Second
)

var trackingQueryKeys = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"gclid", "fbclid", "msclkid",
}

var binaryAssetPattern = regexp.MustCompile(`(?i)\.(?:jpg|jpeg|png|gif|webp|svg|ico|pdf|zip|rar|mp3|mp4|avi|mov|woff2?|ttf|eot)$`)

// ErrInvalidStartURL is returned when the start URL cannot be normalized.
var ErrInvalidStartURL = errors.New("a valid URL is required for crawling")

// ErrStartPathNotAllowed is returned when the start URL violates the
// configured path rules.
var ErrStartPathNotAllowed = errors.New("start url path is not allowed by the configured crawl rules")

// Options tunes one crawl run.
type Options struct {
	MaxPages               int
	UserAgent              string
	AllowedPathPrefixes    []string
	DisallowedPathPrefixes []string
	// ShouldStop is polled before each dequeue; returning true aborts the
	// crawl with a cancellation error.
	ShouldStop func(ctx context.Context) (bool, error)
	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// Result is the structured outcome of one crawl.
type Result struct {
	Content          string
	PagesCrawled     int
	PagesWithContent int
	VisitedURLs      []string
	Skipped          models.CrawlSkipCounts
	CrawlDelay       time.Duration
	Truncated        bool
	TotalCharacters  int
}

// Crawler fetches same-origin pages breadth-first while honoring
// robots.txt, path rules, and size ceilings.
type Crawler struct {
	client *http.Client
}

// New returns a crawler with a default per-request timeout.
func New() *Crawler {
	return &Crawler{client: &http.Client{Timeout: pageFetchTimeout}}
}

// Crawl walks up to opts.MaxPages same-origin pages starting from startURL
// and returns concatenated extracted text plus crawl accounting.
func (c *Crawler) Crawl(ctx context.Context, startURL string, opts Options) (*Result, error) {
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	client := c.client
	if opts.Client != nil {
		client = opts.Client
	}

	normalizedStart := normalizeCrawlURL(startURL, nil)
	if normalizedStart == "" {
		return nil, ErrInvalidStartURL
	}
	parsedStart, err := url.Parse(normalizedStart)
	if err != nil {
		return nil, ErrInvalidStartURL
	}
	origin := parsedStart.Scheme + "://" + parsedStart.Host

	allowed := normalizePathPrefixes(opts.AllowedPathPrefixes)
	disallowed := normalizePathPrefixes(opts.DisallowedPathPrefixes)

	if !pathAllowed(parsedStart.Path, allowed, disallowed) {
		return nil, ErrStartPathNotAllowed
	}

	robots := c.fetchRobots(ctx, client, origin, opts.UserAgent)
	group := robots.FindGroup(opts.UserAgent)

	crawlDelay := group.CrawlDelay
	if crawlDelay > maxCrawlDelay {
		crawlDelay = maxCrawlDelay
	}

	queue := []string{normalizedStart}
	enqueued := map[string]struct{}{normalizedStart: {}}
	visited := map[string]struct{}{}
	visitedOrder := make([]string, 0, opts.MaxPages)

	res := &Result{CrawlDelay: crawlDelay}
	var collected []string

	for len(queue) > 0 && len(visited) < opts.MaxPages && !res.Truncated {
		if opts.ShouldStop != nil {
			stop, stopErr := opts.ShouldStop(ctx)
			if stopErr != nil {
				return nil, stopErr
			}
			if stop {
				return nil, retry.NewCancelled()
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]

		if _, seen := visited[current]; seen {
			res.Skipped.InvalidOrDuplicate++
			continue
		}

		currentURL, parseErr := url.Parse(current)
		if parseErr != nil {
			res.Skipped.InvalidOrDuplicate++
			continue
		}
		if !pathAllowed(currentURL.Path, allowed, disallowed) {
			res.Skipped.PathRule++
			continue
		}
		if !group.Test(currentURL.RequestURI()) {
			res.Skipped.DisallowedByRobots++
			continue
		}

		visited[current] = struct{}{}
		visitedOrder = append(visitedOrder, current)

		if crawlDelay > 0 && len(visited) > 1 {
			select {
			case <-time.After(crawlDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		page, fetchErr := retry.Do(ctx, func(int) (*fetchedPage, error) {
			return c.fetchPage(ctx, client, current, opts.UserAgent)
		}, retry.Options{
			ShouldRetry: func(err error, _ int) bool {
				return !strings.Contains(err.Error(), "status 4")
			},
		})
		if fetchErr != nil {
			res.Skipped.FetchFailed++
			continue
		}

		finalURL := normalizeCrawlURL(page.finalURL, nil)
		if finalURL == "" || !sameOrigin(finalURL, origin) {
			res.Skipped.NonHTML++
			continue
		}
		if !strings.Contains(page.contentType, "text/html") {
			res.Skipped.NonHTML++
			continue
		}
		if page.oversized {
			res.Skipped.Oversized++
			continue
		}

		doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(page.html))
		if docErr != nil {
			res.Skipped.FetchFailed++
			continue
		}

		content := extractPageText(doc)
		if !isMeaningfulContent(content) {
			res.Skipped.LowValue++
		} else {
			segment := "URL: " + current + "\n" + content
			if res.TotalCharacters+len(segment) > maxTotalCrawledChars {
				remaining := maxTotalCrawledChars - res.TotalCharacters
				if remaining > 0 {
					collected = append(collected, segment[:remaining])
					res.TotalCharacters += remaining
				}
				res.Truncated = true
			} else {
				collected = append(collected, segment)
				res.TotalCharacters += len(segment)
			}
			res.PagesWithContent++
		}

		for _, link := range sameOriginLinks(doc, currentURL, origin, allowed, disallowed) {
			if _, seen := visited[link]; seen {
				continue
			}
			if _, queued := enqueued[link]; queued {
				continue
			}
			if len(queue) >= maxQueueSize {
				break
			}
			enqueued[link] = struct{}{}
			queue = append(queue, link)
		}
	}

	res.Content = textutil.Clean(strings.Join(collected, "\n\n"))
	res.PagesCrawled = len(visited)
	res.VisitedURLs = visitedOrder
	return res, nil
}

type fetchedPage struct {
	finalURL    string
	contentType string
	html        string
	oversized   bool
}

func (c *Crawler) fetchPage(ctx context.Context, client *http.Client, pageURL, userAgent string) (*fetchedPage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, pageFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build crawl request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawl fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("crawl fetch failed with status %d", resp.StatusCode)
	}

	page := &fetchedPage{
		finalURL:    resp.Request.URL.String(),
		contentType: resp.Header.Get("Content-Type"),
	}

	if lengthHeader := resp.Header.Get("Content-Length"); lengthHeader != "" {
		if length, convErr := strconv.Atoi(lengthHeader); convErr == nil && length > maxHTMLBytes {
			page.oversized = true
			return page, nil
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTMLBytes+1))
	if err != nil {
		return nil, fmt.Errorf("crawl body read failed: %w", err)
	}
	if len(body) > maxHTMLBytes {
		page.oversized = true
		return page, nil
	}
	page.html = string(body)
	return page, nil
}

// fetchRobots loads and parses robots.txt; on any failure the crawl
// proceeds permissively.
func (c *Crawler) fetchRobots(ctx context.Context, client *http.Client, origin, userAgent string) *robotstxt.RobotsData {
	reqCtx, cancel := context.WithTimeout(ctx, robotsFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return allowAllRobots()
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return allowAllRobots()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return allowAllRobots()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTMLBytes))
	if err != nil {
		return allowAllRobots()
	}
	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		return allowAllRobots()
	}
	return robots
}

func allowAllRobots() *robotstxt.RobotsData {
	robots, _ := robotstxt.FromString("")
	return robots
}

var strippedSelectors = "script,style,noscript,nav,footer,header,aside,form,svg"

func extractPageText(doc *goquery.Document) string {
	doc.Find(strippedSelectors).Remove()

	text := doc.Find("main").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Find("article").Text()
	}
	if strings.TrimSpace(text) == "" {
		text = doc.Find("body").Text()
	}
	return textutil.Clean(text)
}

func isMeaningfulContent(content string) bool {
	if len(content) < minMeaningfulChars {
		return false
	}
	return len(strings.Fields(content)) >= minMeaningfulWords
}

func sameOriginLinks(doc *goquery.Document, current *url.URL, origin string, allowed, disallowed []string) []string {
	seen := map[string]struct{}{}
	var links []string

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok || href == "" ||
			strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "javascript:") {
			return true
		}

		normalized := normalizeCrawlURL(href, current)
		if normalized == "" {
			return true
		}
		parsed, err := url.Parse(normalized)
		if err != nil {
			return true
		}
		if parsed.Scheme+"://"+parsed.Host != origin {
			return true
		}
		if !pathAllowed(parsed.Path, allowed, disallowed) {
			return true
		}
		if _, dup := seen[normalized]; dup {
			return true
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
		return len(links) < maxLinksPerPage
	})

	return links
}

// normalizeCrawlURL resolves input against base (when relative), rejects
// non-http(s) schemes and binary asset paths, and strips tracking query
// parameters, fragments, and trailing slashes.
func normalizeCrawlURL(input string, base *url.URL) string {
	var parsed *url.URL
	var err error
	if base != nil {
		parsed, err = base.Parse(input)
	} else {
		parsed, err = url.Parse(input)
	}
	if err != nil {
		return ""
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	if parsed.Host == "" {
		return ""
	}
	if binaryAssetPattern.MatchString(parsed.Path) {
		return ""
	}

	query := parsed.Query()
	for _, key := range trackingQueryKeys {
		query.Del(key)
	}
	parsed.RawQuery = query.Encode()
	parsed.Fragment = ""

	if len(parsed.Path) > 1 {
		parsed.Path = strings.TrimRight(parsed.Path, "/")
	}

	return parsed.String()
}

func sameOrigin(rawURL, origin string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Scheme+"://"+parsed.Host == origin
}

func normalizePathPrefixes(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		trimmed := strings.TrimSpace(prefix)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "/") {
			trimmed = "/" + trimmed
		}
		if len(trimmed) > 1 {
			trimmed = strings.TrimRight(trimmed, "/")
			if trimmed == "" {
				trimmed = "/"
			}
		}
		out = append(out, trimmed)
	}
	return out
}

func pathAllowed(pathname string, allowed, disallowed []string) bool {
	if pathname == "" {
		pathname = "/"
	}
	for _, prefix := range disallowed {
		if pathname == prefix || strings.HasPrefix(pathname, prefix+"/") {
			return false
		}
	}
	if len(allowed) == 0 {
		return true
	}
	for _, prefix := range allowed {
		if pathname == prefix || strings.HasPrefix(pathname, prefix+"/") {
			return true
		}
	}
	return false
}
