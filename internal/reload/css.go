package reload

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"hotreload/internal/dom"
	"hotreload/pkg/types"
)

// CSSStrategy cache-busts every stylesheet link in place. Links are never
// removed or reordered, only their href changes.
type CSSStrategy struct {
	doc   *dom.Document
	param string
	now   func() time.Time
	diag  *slog.Logger

	last int64
}

// NewCSS builds the css strategy. An empty param selects types.CacheBustParam;
// a nil clock selects time.Now.
func NewCSS(doc *dom.Document, param string, now func() time.Time, diag *slog.Logger) *CSSStrategy {
	if param == "" {
		param = types.CacheBustParam
	}
	if now == nil {
		now = time.Now
	}
	if diag == nil {
		diag = slog.New(slog.DiscardHandler)
	}
	return &CSSStrategy{doc: doc, param: param, now: now, diag: diag}
}

// Apply rewrites each stylesheet href with a fresh cache-busting stamp.
func (c *CSSStrategy) Apply(ctx context.Context) error {
	stamp := c.now().UnixMilli()
	if stamp <= c.last {
		stamp = c.last + 1
	}
	c.last = stamp

	links := c.doc.StylesheetLinks()
	for _, link := range links {
		href, ok := c.doc.Attr(link, "href")
		if !ok || href == "" {
			continue
		}
		fresh := AppendCacheBust(StripCacheBust(href, c.param), c.param, stamp)

		// Clearing first forces a new request even when only the query changes
		c.doc.SetAttr(link, "href", "")
		c.doc.SetAttr(link, "href", fresh)
	}

	c.diag.Info("stylesheets reloaded", "count", len(links), "stamp", stamp)
	return nil
}

// StripCacheBust removes every param=<value> pair from href's query.
func StripCacheBust(href, param string) string {
	base, fragment := splitFragment(href)
	path, query, hasQuery := strings.Cut(base, "?")
	if !hasQuery {
		return href
	}

	kept := lo.Filter(strings.Split(query, "&"), func(pair string, _ int) bool {
		return pair != "" && pair != param && !strings.HasPrefix(pair, param+"=")
	})
	if len(kept) > 0 {
		path += "?" + strings.Join(kept, "&")
	}
	return path + fragment
}

// AppendCacheBust adds param=stamp to href's query.
func AppendCacheBust(href, param string, stamp int64) string {
	base, fragment := splitFragment(href)
	sep := "&"
	switch {
	case !strings.Contains(base, "?"):
		sep = "?"
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		sep = ""
	}
	return base + sep + param + "=" + strconv.FormatInt(stamp, 10) + fragment
}

func splitFragment(href string) (string, string) {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i], href[i:]
	}
	return href, ""
}
