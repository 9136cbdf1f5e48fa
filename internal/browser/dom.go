// Package browser provides board.Session implementations: a headless Chrome
// session driven by chromedp and a plain HTTP session driven by colly. Both
// answer DOM queries from the last rendered document using goquery.
package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/board-crawler/internal/board"
)

func parseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func toElement(s *goquery.Selection) board.Element {
	el := board.Element{
		Text:  strings.TrimSpace(s.Text()),
		Attrs: make(map[string]string),
	}
	if len(s.Nodes) == 0 {
		return el
	}
	for _, attr := range s.Nodes[0].Attr {
		el.Attrs[attr.Key] = attr.Val
	}
	return el
}

func queryAll(html, selector string) ([]board.Element, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}
	var out []board.Element
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, toElement(s))
	})
	return out, nil
}

// queryByText finds the first tag element carrying every class in class
// whose text contains text.
func queryByText(html, tag, class, text string) (board.Element, bool, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return board.Element{}, false, err
	}
	classes := strings.Fields(class)
	match := doc.Find(tag).FilterFunction(func(_ int, s *goquery.Selection) bool {
		for _, c := range classes {
			if !s.HasClass(c) {
				return false
			}
		}
		return strings.Contains(s.Text(), text)
	}).First()
	if match.Length() == 0 {
		return board.Element{}, false, nil
	}
	return toElement(match), true, nil
}
