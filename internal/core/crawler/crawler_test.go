package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filler(topic string) string {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "This page explains %s in enough detail to count as meaningful support content. ", topic)
	}
	return b.String()
}

func page(topic string, links ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><script>ignored()</script></head><body><nav>menu</nav><main><p>")
	b.WriteString(filler(topic))
	b.WriteString("</p>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</main><footer>footer text</footer></body></html>")
	return b.String()
}

func TestCrawlFollowsSameOriginLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, page("the start page", "/help", "https://elsewhere.example.com/offsite", "mailto:x@example.com"))
		case "/help":
			fmt.Fprint(w, page("the help page"))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New()
	res, err := c.Crawl(context.Background(), srv.URL, Options{MaxPages: 10, Client: srv.Client()})
	require.NoError(t, err)

	assert.Equal(t, 2, res.PagesCrawled)
	assert.Equal(t, 2, res.PagesWithContent)
	assert.Contains(t, res.Content, "URL: "+srv.URL)
	assert.Contains(t, res.Content, "the help page")
	assert.NotContains(t, res.Content, "menu")
	assert.NotContains(t, res.Content, "footer text")
}

func TestCrawlHonorsRobotsDisallow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page("a page robots should protect"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New()
	res, err := c.Crawl(context.Background(), srv.URL, Options{MaxPages: 10, Client: srv.Client()})
	require.NoError(t, err)

	assert.Equal(t, 0, res.PagesCrawled)
	assert.Equal(t, 1, res.Skipped.DisallowedByRobots)
	assert.Empty(t, res.Content)
}

func TestCrawlConfinesToAllowedPathPrefix(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/help":
			fmt.Fprint(w, page("help index", "/help/billing", "/pricing"))
		case "/help/billing":
			fmt.Fprint(w, page("billing help"))
		default:
			fmt.Fprint(w, page("an out of scope page"))
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New()
	res, err := c.Crawl(context.Background(), srv.URL+"/help", Options{
		MaxPages:            10,
		AllowedPathPrefixes: []string{"/help"},
		Client:              srv.Client(),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.PagesCrawled)
	assert.NotContains(t, res.Content, "out of scope")
}

func TestCrawlRejectsStartURLOutsidePathRules(t *testing.T) {
	c := New()
	_, err := c.Crawl(context.Background(), "https://example.com/blog", Options{
		AllowedPathPrefixes: []string{"/help"},
	})
	require.ErrorIs(t, err, ErrStartPathNotAllowed)
}

func TestCrawlSkipsLowValuePages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><main>tiny</main></body></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New()
	res, err := c.Crawl(context.Background(), srv.URL, Options{MaxPages: 5, Client: srv.Client()})
	require.NoError(t, err)

	assert.Equal(t, 1, res.PagesCrawled)
	assert.Equal(t, 0, res.PagesWithContent)
	assert.Equal(t, 1, res.Skipped.LowValue)
}

func TestCrawlStopsWhenStopCheckFires(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page("anything"))
	}))
	defer srv.Close()

	c := New()
	_, err := c.Crawl(context.Background(), srv.URL, Options{
		Client: srv.Client(),
		ShouldStop: func(context.Context) (bool, error) {
			return true, nil
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestNormalizeCrawlURL(t *testing.T) {
	cases := map[string]string{
		"https://example.com/help/":                        "https://example.com/help",
		"https://example.com/help?utm_source=x&page=2":     "https://example.com/help?page=2",
		"https://example.com/help#section":                 "https://example.com/help",
		"https://example.com/logo.png":                     "",
		"ftp://example.com/file":                           "",
		"https://example.com/help?gclid=abc&fbclid=def":    "https://example.com/help",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeCrawlURL(in, nil), in)
	}
}

func TestPathAllowed(t *testing.T) {
	allowed := normalizePathPrefixes([]string{"/help"})
	disallowed := normalizePathPrefixes([]string{"/help/internal"})

	assert.True(t, pathAllowed("/help", allowed, disallowed))
	assert.True(t, pathAllowed("/help/billing", allowed, disallowed))
	assert.False(t, pathAllowed("/helpdesk", allowed, disallowed))
	assert.False(t, pathAllowed("/pricing", allowed, disallowed))
	assert.False(t, pathAllowed("/help/internal/runbook", allowed, disallowed))
}
