package probe

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/hitoshi/feedaudit/internal/security"
)

// FeedLink はHTMLのheadから検出されたフィードへのリンク。
type FeedLink struct {
	URL   string
	Type  string // rss または atom
	Title string
}

// Inspector は応答ボディを解析し、分類結果の補足情報を作る。
type Inspector struct {
	sanitizer *security.TextSanitizer
}

// NewInspector はInspectorを生成する。
func NewInspector(sanitizer *security.TextSanitizer) *Inspector {
	return &Inspector{sanitizer: sanitizer}
}

// InspectHTML はHTMLページからフィードへのリンクを探し、補足情報を返す。
// フィードURLが移転してWebページを返しているケースの調査に使う。
func (i *Inspector) InspectHTML(body []byte, pageURL string) string {
	links := FindFeedLinks(body, pageURL)
	if len(links) == 0 {
		return "feed_links=0"
	}
	detail := fmt.Sprintf("feed_links=%d first=%s", len(links), links[0].URL)
	if title := i.sanitizer.Plain(links[0].Title); title != "" {
		detail += fmt.Sprintf(" title=%q", title)
	}
	return detail
}

// InspectFeed はボディをRSS/Atom/JSON Feedとして解析し、結果を返す。
func (i *Inspector) InspectFeed(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return "parse_error=empty body"
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return fmt.Sprintf("parse_error=%s", i.sanitizer.Plain(err.Error()))
	}
	detail := fmt.Sprintf("feed_type=%s items=%d", feed.FeedType, len(feed.Items))
	if title := i.sanitizer.Plain(feed.Title); title != "" {
		detail += fmt.Sprintf(" title=%q", title)
	}
	return detail
}

// FindFeedLinks はHTMLのheadタグ内の rel="alternate" なRSS/Atomリンクを返す。
// 相対URLはpageURLを基準に解決する。
func FindFeedLinks(body []byte, pageURL string) []FeedLink {
	var links []FeedLink

	base, err := url.Parse(pageURL)
	if err != nil {
		return links
	}

	z := html.NewTokenizer(bytes.NewReader(body))
	inHead := false

	for {
		switch z.Next() {
		case html.ErrorToken:
			return links

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := z.TagName()
			switch string(tn) {
			case "head":
				inHead = true
				continue
			case "body":
				return links
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			var rel, linkType, href, title string
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				case "title":
					title = string(val)
				}
			}

			if !hasToken(rel, "alternate") || href == "" {
				continue
			}

			var feedType string
			switch linkType {
			case "application/rss+xml":
				feedType = "rss"
			case "application/atom+xml":
				feedType = "atom"
			default:
				continue
			}

			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			links = append(links, FeedLink{
				URL:   base.ResolveReference(ref).String(),
				Type:  feedType,
				Title: title,
			})

		case html.EndTagToken:
			if tn, _ := z.TagName(); string(tn) == "head" {
				return links
			}
		}
	}
}

// hasToken は空白区切りのrel属性値に指定のトークンが含まれるかを返す。
func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if f == token {
			return true
		}
	}
	return false
}
