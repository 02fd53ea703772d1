package scraper

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"pricetracker/internal/lib/pricing"
	"pricetracker/internal/models"
)

// fields holds what one strategy managed to pull out of a page.
// Absent values stay at their zero value; availability is a tri-state
// because most strategies carry no stock signal at all.
type fields struct {
	name      string
	current   decimal.NullDecimal
	list      decimal.NullDecimal
	imageURL  string
	available *bool
}

// strategy is one extraction layer. Layers are tried in priority
// order and each field keeps the first present value it sees, so
// adding or reordering layers is a data change.
type strategy struct {
	name string
	run  func(doc *goquery.Document) fields
}

func defaultStrategies() []strategy {
	return []strategy{
		{name: "structured-metadata", run: extractJSONLD},
		{name: "semantic-attributes", run: extractSemantic},
		{name: "class-heuristics", run: extractHeuristic},
	}
}

// Extractor turns one fetched page body into a best-effort product
// snapshot. Fields are extracted independently: a page may yield a
// name without a price or the other way around.
type Extractor struct {
	strategies []strategy
}

func NewExtractor() *Extractor {
	return &Extractor{strategies: defaultStrategies()}
}

// Extract parses pageHTML and assembles a snapshot. It returns a
// *ParseError only when no strategy produced a name or a price;
// malformed markup alone never fails the whole page.
func (e *Extractor) Extract(pageHTML, sourceURL string) (models.ProductSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return models.ProductSnapshot{}, &ParseError{URL: sourceURL, Reason: "unparseable document"}
	}

	var merged fields
	for _, s := range e.strategies {
		merge(&merged, s.run(doc))
	}

	// Last-resort price layer: currency-prefixed tokens in text that
	// sits near price-indicating hints.
	if !merged.current.Valid {
		if d, ok := priceFromText(doc); ok {
			merged.current = decimal.NullDecimal{Decimal: d, Valid: true}
		}
	}

	if merged.name == "" && !merged.current.Valid {
		return models.ProductSnapshot{}, &ParseError{URL: sourceURL, Reason: "no product name or price found"}
	}

	// A list price at or below the current price is not a markdown.
	if merged.current.Valid && merged.list.Valid && !merged.list.Decimal.GreaterThan(merged.current.Decimal) {
		merged.list = decimal.NullDecimal{}
	}

	available := true
	if merged.available != nil {
		available = *merged.available
	}
	// An out-of-stock marker in the page overrides optimistic signals.
	if available && hasOutOfStockMarker(doc) {
		available = false
	}

	return models.ProductSnapshot{
		Name:         merged.name,
		CurrentPrice: merged.current,
		ListPrice:    merged.list,
		ImageURL:     merged.imageURL,
		IsAvailable:  available,
		ObservedAt:   time.Now().UTC(),
	}, nil
}

// merge fills dst's still-absent fields from src.
func merge(dst *fields, src fields) {
	if dst.name == "" {
		dst.name = src.name
	}
	if !dst.current.Valid {
		dst.current = src.current
	}
	if !dst.list.Valid {
		dst.list = src.list
	}
	if dst.imageURL == "" {
		dst.imageURL = src.imageURL
	}
	if dst.available == nil {
		dst.available = src.available
	}
}

// ---- layer 1: structured product metadata (schema.org JSON-LD) ----

var jsonLDSelectors = strings.Join([]string{
	"script.qa-pdp-schema-org",
	"script.schema-org",
	"script.product-schema",
	`script[type="application/ld+json"]`,
}, ", ")

func extractJSONLD(doc *goquery.Document) fields {
	var f fields

	doc.Find(jsonLDSelectors).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		got, ok := parseJSONLD(s.Text())
		if !ok {
			return true
		}
		f = got
		return false
	})

	return f
}

func parseJSONLD(raw string) (fields, bool) {
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fields{}, false
	}

	obj, ok := productNode(payload)
	if !ok {
		return fields{}, false
	}

	var f fields
	f.name, _ = obj["name"].(string)
	f.name = strings.TrimSpace(f.name)

	var offer map[string]any
	switch v := obj["offers"].(type) {
	case []any:
		if len(v) > 0 {
			offer, _ = v[0].(map[string]any)
		}
	case map[string]any:
		offer = v
	}
	if offer != nil {
		if d, ok := jsonAmount(offer["price"]); ok {
			f.current = decimal.NullDecimal{Decimal: d, Valid: true}
		}
		if avail, ok := offer["availability"].(string); ok {
			switch {
			case strings.Contains(avail, "OutOfStock"):
				f.available = boolPtr(false)
			case strings.Contains(avail, "InStock"):
				f.available = boolPtr(true)
			}
		}
	}

	switch img := obj["image"].(type) {
	case string:
		f.imageURL = img
	case []any:
		if len(img) > 0 {
			f.imageURL, _ = img[0].(string)
		}
	}

	if f.name == "" && !f.current.Valid {
		return fields{}, false
	}

	return f, true
}

// productNode digs the Product object out of a JSON-LD payload, which
// may be a single node or an array of nodes.
func productNode(payload any) (map[string]any, bool) {
	switch v := payload.(type) {
	case map[string]any:
		if t, _ := v["@type"].(string); t == "Product" {
			return v, true
		}
	case []any:
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := obj["@type"].(string); t == "Product" {
				return obj, true
			}
		}
	}

	return nil, false
}

// jsonAmount accepts the price shapes JSON-LD uses in the wild:
// a bare number or a numeric string.
func jsonAmount(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case string:
		return pricing.Parse(x)
	case float64:
		d := decimal.NewFromFloat(x)
		if d.Sign() <= 0 {
			return decimal.Decimal{}, false
		}
		return d, true
	}

	return decimal.Decimal{}, false
}

// ---- layer 2: semantic attributes (microdata, OpenGraph) ----

func extractSemantic(doc *goquery.Document) fields {
	var f fields

	f.name = firstText(doc, `[itemprop="name"]`)
	if f.name == "" {
		f.name = strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	}

	if raw := contentOrText(doc, `[itemprop="price"]`); raw != "" {
		if d, ok := pricing.Parse(raw); ok {
			f.current = decimal.NullDecimal{Decimal: d, Valid: true}
		}
	}
	if !f.current.Valid {
		if raw := doc.Find(`meta[property="product:price:amount"]`).AttrOr("content", ""); raw != "" {
			if d, ok := pricing.Parse(raw); ok {
				f.current = decimal.NullDecimal{Decimal: d, Valid: true}
			}
		}
	}

	if img := doc.Find(`[itemprop="image"]`).First(); img.Length() > 0 {
		f.imageURL = img.AttrOr("src", img.AttrOr("content", ""))
	}
	if f.imageURL == "" {
		f.imageURL = doc.Find(`meta[property="og:image"]`).AttrOr("content", "")
	}

	if avail := doc.Find(`[itemprop="availability"]`).First(); avail.Length() > 0 {
		v := avail.AttrOr("href", avail.AttrOr("content", ""))
		switch {
		case strings.Contains(v, "OutOfStock"):
			f.available = boolPtr(false)
		case strings.Contains(v, "InStock"):
			f.available = boolPtr(true)
		}
	}

	return f
}

// ---- layer 3: known class/id naming patterns ----

var (
	nameSelectors = []string{
		"h1.product-name",
		".product-title",
		`h1[data-testid="product-name"]`,
		".product__title",
		"h1",
	}
	priceSelectors = []string{
		".product-price-text",
		".product-price",
		`[data-testid="current-price"]`,
		".current-price",
		".price",
		".product__price",
	}
	listPriceSelectors = []string{
		".product-list-price",
		".old-price",
		`[data-testid="list-price"]`,
		".list-price",
		".was-price",
	}
	imageSelectors = []string{
		".product-image img",
		".product__image img",
		`img[data-testid="product-image"]`,
		".gallery img",
	}
)

func extractHeuristic(doc *goquery.Document) fields {
	var f fields

	for _, sel := range nameSelectors {
		if t := firstText(doc, sel); t != "" {
			f.name = t
			break
		}
	}

	for _, sel := range priceSelectors {
		if d, ok := priceFromSelection(doc.Find(sel)); ok {
			f.current = decimal.NullDecimal{Decimal: d, Valid: true}
			break
		}
	}

	for _, sel := range listPriceSelectors {
		if d, ok := priceFromSelection(doc.Find(sel)); ok {
			f.list = decimal.NullDecimal{Decimal: d, Valid: true}
			break
		}
	}

	for _, sel := range imageSelectors {
		img := doc.Find(sel).First()
		if img.Length() == 0 {
			continue
		}
		if src := img.AttrOr("src", img.AttrOr("data-src", "")); src != "" {
			f.imageURL = src
			break
		}
	}

	return f
}

// ---- layer 4: regex over price-hinting text (price only) ----

var (
	currencyToken = regexp.MustCompile(`[$€£]\s*([0-9][0-9.,]*)`)
	priceHint     = regexp.MustCompile(`(?i)\b(price|now|sale|from)\b`)
)

func priceFromText(doc *goquery.Document) (decimal.Decimal, bool) {
	var out decimal.Decimal
	found := false

	doc.Find(`[class*="price"], [id*="price"], [data-testid*="price"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if d, ok := currencyAmount(s.Text()); ok {
			out, found = d, true
			return false
		}
		return true
	})
	if found {
		return out, true
	}

	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		text := s.Text()
		if !priceHint.MatchString(text) {
			return true
		}
		if d, ok := currencyAmount(text); ok {
			out, found = d, true
			return false
		}
		return true
	})

	return out, found
}

// ---- availability markers ----

var oosSelectors = []string{
	"div[data-test-oos-label]",
	`[class*="oos-label"]`,
	".product-swatches-oos",
	`[class*="out-of-stock"]`,
	`[class*="sold-out"]`,
}

var oosText = regexp.MustCompile(`(?i)\b(out of stock|sold out|currently unavailable)\b`)

func hasOutOfStockMarker(doc *goquery.Document) bool {
	for _, sel := range oosSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}

	found := false
	doc.Find(`[class*="stock"], [class*="avail"], [id*="stock"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if oosText.MatchString(s.Text()) {
			found = true
			return false
		}
		return true
	})

	return found
}

// ---- shared helpers ----

func firstText(doc *goquery.Document, selector string) string {
	var out string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = t
			return false
		}
		return true
	})

	return out
}

// contentOrText prefers a machine-readable content attribute over the
// rendered text of the first matching element.
func contentOrText(doc *goquery.Document, selector string) string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
		return v
	}

	return strings.TrimSpace(sel.Text())
}

// priceFromSelection parses the first element in sel whose text reads
// as a price.
func priceFromSelection(sel *goquery.Selection) (decimal.Decimal, bool) {
	var out decimal.Decimal
	found := false

	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if d, ok := pricing.Parse(s.Text()); ok {
			out, found = d, true
			return false
		}
		return true
	})

	return out, found
}

// currencyAmount pulls the first currency-prefixed token out of text.
func currencyAmount(text string) (decimal.Decimal, bool) {
	m := currencyToken.FindStringSubmatch(text)
	if m == nil {
		return decimal.Decimal{}, false
	}

	return pricing.Parse(m[1])
}

func boolPtr(b bool) *bool { return &b }
