package browser

import (
	"fmt"
	"strconv"

	"github.com/chromedp/chromedp"
)

// By selects the query engine used to resolve a locator.
type By int

const (
	// ByCSS resolves the query with document.querySelectorAll semantics.
	ByCSS By = iota
	// ByXPath resolves the query with document.evaluate semantics.
	ByXPath
)

// Locator names a page element semantically and records how to find it.
// Index picks the Nth match when several elements share a query; a negative
// index means "the only/first match". Keeping every selector behind a named
// Locator confines site-markup drift to the locator tables.
type Locator struct {
	Name  string
	Query string
	By    By
	Index int
}

// CSS builds a CSS locator for the Nth match of query.
func CSS(name, query string, index int) Locator {
	return Locator{Name: name, Query: query, By: ByCSS, Index: index}
}

// XPath builds an XPath locator for the Nth match of query.
func XPath(name, query string, index int) Locator {
	return Locator{Name: name, Query: query, By: ByXPath, Index: index}
}

func (l Locator) String() string {
	if l.Index >= 0 {
		return fmt.Sprintf("%s (%s #%d)", l.Name, l.Query, l.Index)
	}
	return fmt.Sprintf("%s (%s)", l.Name, l.Query)
}

// queryOption maps the locator kind onto the chromedp query engine.
func (l Locator) queryOption() chromedp.QueryOption {
	if l.By == ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQueryAll
}

// index normalizes a negative index to the first match.
func (l Locator) index() int {
	if l.Index < 0 {
		return 0
	}
	return l.Index
}

// jsElement returns a JavaScript expression evaluating to the located element
// or null. Used for actions the site only reacts to when driven in-page
// (synthetic clicks on overlapped controls, option selection).
func (l Locator) jsElement() string {
	q := strconv.Quote(l.Query)
	if l.By == ByXPath {
		return fmt.Sprintf(
			"document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null).snapshotItem(%d)",
			q, l.index())
	}
	return fmt.Sprintf("document.querySelectorAll(%s)[%d]", q, l.index())
}
