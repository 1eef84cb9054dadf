package extract

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"

	"noema/internal/config"
)

// article is the result of fetching and cleaning a URL.
type article struct {
	Title      string
	Text       string
	ImageURL   string
	FinalURL   string
}

// fetcher fetches a URL with hardened defaults (bounded dial/TLS timeouts,
// capped redirects, size-capped reads), producing article text plus an
// optional hero image URL rather than a Markdown document meant for direct
// display.
type fetcher struct {
	client *http.Client
	opts   fetchOptions
}

type fetchOptions struct {
	timeout   time.Duration
	maxBytes  int64
	userAgent string
}

func newFetcher(cfg config.ExtractConfig) *fetcher {
	timeout := time.Duration(cfg.FetchTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxBytes := cfg.FetchMaxBytes
	if maxBytes <= 0 {
		maxBytes = 8 << 20
	}

	dialer := &net.Dialer{Timeout: 7 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   7 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	checkRedirect := func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return nil
	}
	client := &http.Client{Transport: transport, CheckRedirect: checkRedirect, Timeout: timeout}

	ua := cfg.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (compatible; noemad/1.0; +https://github.com)"
	}
	return &fetcher{client: client, opts: fetchOptions{timeout: timeout, maxBytes: maxBytes, userAgent: ua}}
}

// fetchArticle GETs rawURL, runs a readability pass, and returns the article
// body text and title. Non-HTML responses are returned as plain decoded
// text (best-effort) rather than failing outright.
func (f *fetcher) fetchArticle(ctx context.Context, rawURL string) (article, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return article{}, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return article{}, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return article{}, err
	}
	req.Header.Set("User-Agent", f.opts.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return article{}, err
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	ct, cs := parseContentType(resp.Header.Get("Content-Type"))

	limited := io.LimitReader(resp.Body, f.opts.maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return article{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.opts.maxBytes {
		return article{}, fmt.Errorf("response exceeds max bytes (%d)", f.opts.maxBytes)
	}

	utf8Body, err := toUTF8(body, cs)
	if err != nil {
		return article{}, fmt.Errorf("charset decode: %w", err)
	}

	if !isHTML(ct) {
		return article{Text: strings.TrimSpace(string(utf8Body)), FinalURL: finalURL}, nil
	}

	html := string(utf8Body)
	base, _ := url.Parse(finalURL)

	var (
		contentHTML string
		title       string
		imageURL    string
	)
	if art, rerr := readability.FromReader(strings.NewReader(html), base); rerr == nil && strings.TrimSpace(art.Content) != "" {
		contentHTML = art.Content
		title = strings.TrimSpace(art.Title)
		imageURL = art.Image
	} else {
		contentHTML = html
	}

	text, mdErr := htmltomarkdown.ConvertString(contentHTML, converter.WithDomain(baseOrigin(finalURL)))
	if mdErr != nil {
		return article{}, fmt.Errorf("html to text: %w", mdErr)
	}

	return article{
		Title:    title,
		Text:     strings.TrimSpace(text),
		ImageURL: imageURL,
		FinalURL: finalURL,
	}, nil
}

// fetchBytes downloads rawURL in full, used for hero-image caching.
func (f *fetcher) fetchBytes(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", f.opts.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	ct, _ := parseContentType(resp.Header.Get("Content-Type"))
	limited := io.LimitReader(resp.Body, f.opts.maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > f.opts.maxBytes {
		return nil, "", fmt.Errorf("hero image exceeds max bytes (%d)", f.opts.maxBytes)
	}
	return data, ct, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func parseContentType(h string) (ctype, cs string) {
	if h == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(h)
	if err != nil {
		return h, ""
	}
	return strings.ToLower(mt), strings.ToLower(params["charset"])
}

func isHTML(ct string) bool {
	return ct == "text/html" || ct == "application/xhtml+xml" || strings.HasSuffix(ct, "html")
}

func toUTF8(b []byte, charsetLabel string) ([]byte, error) {
	if charsetLabel == "" || strings.EqualFold(charsetLabel, "utf-8") || strings.EqualFold(charsetLabel, "utf8") {
		return b, nil
	}
	r, err := charset.NewReaderLabel(charsetLabel, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func baseOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
