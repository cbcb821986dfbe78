package dataflows

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/dyike/StockMateGo/internal/ticker"
	"github.com/dyike/StockMateGo/models"
)

type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

type Channel struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	Items       []Item `xml:"item"`
}

type Item struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Source      Source `xml:"source"`
	GUID        string `xml:"guid"`
}

type Source struct {
	URL  string `xml:"url,attr"`
	Text string `xml:",chardata"`
}

const defaultGoogleNewsURL = "https://news.google.com/rss"

type GoogleNewsOptions struct {
	BaseURL  string
	Language string
	Country  string
	Timeout  time.Duration
	Retry    *RetryConfig
}

// GoogleNewsClient searches the Google News RSS feed.
type GoogleNewsClient struct {
	client   *resty.Client
	baseURL  string
	language string
	country  string
	retry    *RetryConfig
}

func NewGoogleNewsClient(opts GoogleNewsOptions) *GoogleNewsClient {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultGoogleNewsURL
	}
	if opts.Language == "" {
		opts.Language = "zh-CN"
	}
	if opts.Country == "" {
		opts.Country = "CN"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry == nil {
		opts.Retry = DefaultRetryConfig()
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")

	return &GoogleNewsClient{
		client:   client,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		language: opts.Language,
		country:  opts.Country,
		retry:    opts.Retry,
	}
}

// FetchNews returns up to limit items about sym, newest first. An empty feed is not an error.
func (gnc *GoogleNewsClient) FetchNews(ctx context.Context, sym ticker.Symbol, limit int) (models.NewsDigest, error) {
	if limit <= 0 {
		limit = DefaultNewsLimit
	}
	rssURL := gnc.buildRSSURL(sym.Code + " 股票")

	var articles []*NewsArticle
	err := WithRetry(ctx, gnc.retry, func() error {
		resp, err := gnc.client.R().SetContext(ctx).Get(rssURL)
		if err != nil {
			return fmt.Errorf("failed to fetch RSS feed: %w", err)
		}
		switch {
		case resp.StatusCode() == http.StatusOK:
		case resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests:
			return fmt.Errorf("HTTP error %d when fetching RSS feed", resp.StatusCode())
		default:
			return Permanent(fmt.Errorf("HTTP error %d when fetching RSS feed", resp.StatusCode()))
		}

		var rss RSS
		if err := xml.Unmarshal(resp.Body(), &rss); err != nil {
			return Permanent(fmt.Errorf("failed to parse RSS XML: %w", err))
		}
		articles = articles[:0]
		for _, item := range rss.Channel.Items {
			articles = append(articles, convertRSSItem(item, sym.Code))
		}
		return nil
	})
	if err != nil {
		return models.NewsDigest{}, dataUnavailable(sym, err, "google news request failed")
	}

	items := make([]models.NewsItem, 0, len(articles))
	for _, a := range articles {
		if a.Title == "" {
			continue
		}
		items = append(items, a.Item())
	}
	digest := models.NewNewsDigest(items)
	if digest.Len() > limit {
		digest = models.NewNewsDigest(digest.Items()[:limit])
	}
	log.Debug().Str("ticker", sym.String()).Int("items", digest.Len()).Msg("google news fetched")
	return digest, nil
}

func (gnc *GoogleNewsClient) buildRSSURL(query string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("hl", gnc.language)
	v.Set("gl", gnc.country)
	v.Set("ceid", fmt.Sprintf("%s:%s", gnc.country, strings.Split(gnc.language, "-")[0]))
	return gnc.baseURL + "/search?" + v.Encode()
}

// pubDateLayouts are tried in order. Google uses RFC1123 with a GMT zone name; other feeds
// send a numeric offset or a two digit year.
var pubDateLayouts = []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700", "Mon, 2 Jan 2006 15:04:05 MST"}

func parsePubDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized pubDate %q", raw)
}

// convertRSSItem maps one feed item. An unparseable pubDate leaves PublishedAt zero, which
// sorts the item last in the digest, and is logged.
func convertRSSItem(item Item, query string) *NewsArticle {
	pubTime, err := parsePubDate(item.PubDate)
	if err != nil {
		log.Warn().Err(err).Str("title", item.Title).Str("guid", item.GUID).Msg("news item has no usable publish time")
	}

	source := item.Source.Text
	if source == "" && item.Source.URL != "" {
		if u, err := url.Parse(item.Source.URL); err == nil {
			source = u.Host
		}
	}

	return &NewsArticle{
		Title:       strings.TrimSpace(item.Title),
		Content:     cleanHTMLContent(item.Description),
		URL:         item.Link,
		Source:      source,
		PublishedAt: pubTime,
		Keywords:    []string{query},
		Metadata: map[string]string{
			"scraper":    "google_news_rss",
			"guid":       item.GUID,
			"source_url": item.Source.URL,
		},
	}
}

// cleanHTMLContent strips the markup Google puts into RSS descriptions.
func cleanHTMLContent(htmlContent string) string {
	if htmlContent == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return strings.TrimSpace(htmlContent)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
