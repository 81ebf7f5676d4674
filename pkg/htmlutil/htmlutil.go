package htmlutil

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// TextChildren returns the direct text node children of the first node in
// sel, skipping those made of whitespace only. Text nested in child elements
// is not included.
func TextChildren(sel *goquery.Selection) []string {
	if sel.Length() == 0 {
		return nil
	}
	var out []string
	for child := sel.Nodes[0].FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.TextNode {
			continue
		}
		if strings.TrimSpace(child.Data) == "" {
			continue
		}
		out = append(out, child.Data)
	}
	return out
}

// FirstText returns the first text node under node in document order.
func FirstText(node *html.Node) (string, bool) {
	if node == nil {
		return "", false
	}
	if node.Type == html.TextNode {
		return node.Data, true
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		text, ok := FirstText(child)
		if ok {
			return text, true
		}
	}
	return "", false
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// Clean drops non printable runes, trims and collapses inner whitespace.
func Clean(s string) string {
	var b strings.Builder
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			b.WriteRune(c)
		}
	}
	out := strings.TrimSpace(b.String())
	return innerWhitespace.ReplaceAllString(out, " ")
}

// LeadingInt parses the run of digits at the start of s, ignoring leading
// whitespace. "12 (40%)" yields 12. Values that do not fit an int32 are
// rejected.
func LeadingInt(s string) (int32, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(n), true
}
