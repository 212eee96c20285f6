// Package parser converts cafeteria menu pages into structured menus.
//
// Parsing is pure: no I/O, no shared state. Malformed or unexpected markup
// never produces an error; missing pieces come back as empty strings and
// empty lists.
package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/cafeteria-menu/internal/menu"
)

// DefaultBaseURL is the origin that relative image paths resolve against.
const DefaultBaseURL = "https://www.hanyang.ac.kr"

const (
	restaurantSelector = "strong.font-point5"
	daySelector        = "div.day-selc"
	sectionSelector    = "h4.d-title2"
	itemSelector       = "div.bbs ul.thumbnails li.span3"
	placeholderText    = "-"
)

// Config controls parser behavior.
type Config struct {
	BaseURL string
}

// Parser implements menu.Parser for the cafeteria portlet markup.
type Parser struct {
	base *url.URL
}

var _ menu.Parser = (*Parser)(nil)

// New builds a Parser. An empty or unparsable BaseURL leaves relative image
// paths untouched.
func New(cfg Config) *Parser {
	p := &Parser{}
	if cfg.BaseURL == "" {
		return p
	}
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.IsAbs() {
		p.base = u
	}
	return p
}

// Parse extracts the restaurant name, date label, and per-meal-type items.
func (p *Parser) Parse(html string) menu.Menu {
	out := menu.Menu{
		Breakfast: []menu.MenuItem{},
		Lunch:     []menu.MenuItem{},
		Dinner:    []menu.MenuItem{},
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return out
	}

	out.Restaurant = cleanText(doc.Find(restaurantSelector).First().Text())
	out.Date, out.DayOfWeek = parseDay(doc.Find(daySelector).First())

	sections := map[menu.MealType][]menu.MenuItem{}
	doc.Find(sectionSelector).Each(func(_ int, heading *goquery.Selection) {
		mealType, ok := menu.MealTypeFromHeading(cleanText(heading.Text()))
		if !ok {
			return
		}
		heading.Parent().Find(itemSelector).Each(func(_ int, block *goquery.Selection) {
			if item, ok := p.parseBlock(block); ok {
				sections[mealType] = append(sections[mealType], item)
			}
		})
	})

	out.Breakfast = dedupe(sections[menu.Breakfast])
	out.Lunch = dedupe(sections[menu.Lunch])
	out.Dinner = dedupe(sections[menu.Dinner])
	return out
}

func parseDay(sel *goquery.Selection) (date, dayOfWeek string) {
	if sel.Length() == 0 {
		return "", ""
	}
	date = cleanText(sel.Find("strong").First().Text())
	sel.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		text := cleanText(span.Text())
		if text == "" || hasClass(span) {
			return true
		}
		dayOfWeek = text
		return false
	})
	return date, dayOfWeek
}

func hasClass(sel *goquery.Selection) bool {
	class, ok := sel.Attr("class")
	return ok && strings.TrimSpace(class) != ""
}

func (p *Parser) parseBlock(block *goquery.Selection) (menu.MenuItem, bool) {
	raw := blockText(block.Find("h3").First())
	item, ok := BuildItem(raw)
	if !ok {
		return menu.MenuItem{}, false
	}
	item.Price = cleanText(block.Find("p.price").First().Text())
	if src, exists := block.Find("img").First().Attr("src"); exists {
		item.ImageURL = p.resolveImage(strings.TrimSpace(src))
	}
	return item, true
}

// blockText renders the heading text with line breaks preserved as newlines.
func blockText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	sel.Find("br").ReplaceWithHtml("\n")
	return cleanText(sel.Text())
}

func (p *Parser) resolveImage(src string) string {
	if src == "" || p.base == nil {
		return src
	}
	ref, err := url.Parse(src)
	if err != nil || ref.IsAbs() {
		return src
	}
	return p.base.ResolveReference(ref).String()
}

// BuildItem runs notice filtering, tag extraction, segmentation, and
// validation over one block's raw text. Price and image are left empty.
func BuildItem(raw string) (menu.MenuItem, bool) {
	raw = cleanText(raw)
	if raw == "" || raw == placeholderText {
		return menu.MenuItem{}, false
	}
	if IsNotice(raw) {
		return menu.MenuItem{}, false
	}
	tags, rest := ExtractTags(raw)
	dishes := Segment(rest)
	if !ValidDishes(dishes) {
		return menu.MenuItem{}, false
	}
	return menu.MenuItem{Dishes: dishes, Tags: tags}, true
}

func dedupe(items []menu.MenuItem) []menu.MenuItem {
	out := make([]menu.MenuItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		key := strings.Join(item.Dishes, "\x00")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func cleanText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
