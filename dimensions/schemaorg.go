package dimensions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	schemaOrgConfidence = 0.9
	pageTextConfidence  = 0.5
	sourceSchemaOrg     = "schema.org"
	sourcePageText      = "page text"
	htmlAccept          = "text/html,application/xhtml+xml"
)

// productFields maps schema.org Product properties to dimension keys.
var productFields = []struct{ prop, key string }{
	{"depth", KeyLength},
	{"length", KeyLength},
	{"width", KeyWidth},
	{"height", KeyHeight},
}

// SchemaOrg reads Product dimensions from manufacturer and shop pages.
type SchemaOrg struct {
	client *Client
	text   *TextScanner
}

func NewSchemaOrg(client *Client) *SchemaOrg {
	return &SchemaOrg{client: client, text: NewTextScanner()}
}

// Fetch downloads pageURL and extracts dimensions. A nil result and nil
// error mean the page has none.
func (s *SchemaOrg) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	body, err := s.client.GetUntrusted(ctx, pageURL, htmlAccept)
	if err != nil {
		return nil, err
	}
	return s.Extract(pageURL, body)
}

// Extract parses an already downloaded page. Structured data wins; the
// visible page text is only scanned when there is none.
func (s *SchemaOrg) Extract(pageURL string, body []byte) (*Result, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	doc := goquery.NewDocumentFromNode(root)

	dims := map[string]float64{}
	products := 0
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var blob any
		if err := json.Unmarshal([]byte(sel.Text()), &blob); err != nil {
			return
		}
		for _, p := range collectProducts(blob) {
			products++
			for k, v := range productDims(p) {
				dims[k] = v
			}
		}
	})
	for k, v := range microdataDims(doc) {
		if _, ok := dims[k]; !ok {
			dims[k] = v
		}
	}
	if len(dims) > 0 {
		return &Result{
			Dims:       dims,
			Source:     sourceSchemaOrg,
			SourceURL:  pageURL,
			Confidence: schemaOrgConfidence,
			Evidence:   []string{fmt.Sprintf("schema.org Product fields from %s (json-ld products=%d)", pageURL, products)},
		}, nil
	}

	doc.Find("script, style, noscript, nav, footer").Remove()
	page, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", pageURL, err)
	}
	found, line, ok := s.text.Scan(page)
	if !ok {
		return nil, nil
	}
	return &Result{
		Dims:       found,
		Source:     sourcePageText,
		SourceURL:  pageURL,
		Confidence: pageTextConfidence,
		Evidence:   []string{"Page text: " + line},
	}, nil
}

func isProduct(obj map[string]any) bool {
	switch t := obj["@type"].(type) {
	case string:
		return t == "Product"
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

// collectProducts walks a JSON-LD blob: a single object, an array of
// objects, or an object with an @graph.
func collectProducts(blob any) []map[string]any {
	var out []map[string]any
	switch v := blob.(type) {
	case map[string]any:
		if isProduct(v) {
			out = append(out, v)
		}
		if g, ok := v["@graph"]; ok {
			out = append(out, collectProducts(g)...)
		}
	case []any:
		for _, item := range v {
			out = append(out, collectProducts(item)...)
		}
	}
	return out
}

// quantityToMM converts a QuantitativeValue object, a "12 cm" string or a
// bare number (millimetres) to millimetres.
func quantityToMM(v any) (float64, bool) {
	switch q := v.(type) {
	case float64:
		return q, q > 0
	case string:
		if val, unit, ok := ParseSingle(q); ok {
			return ToMM(val, unit)
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(q), 64); err == nil && f > 0 {
			return f, true
		}
	case map[string]any:
		var amount float64
		switch a := q["value"].(type) {
		case float64:
			amount = a
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(strings.Replace(a, ",", ".", 1)), 64)
			if err != nil {
				return 0, false
			}
			amount = f
		default:
			return 0, false
		}
		for _, key := range []string{"unitCode", "unitText"} {
			if unit, ok := q[key].(string); ok && unit != "" {
				return ToMM(amount, unit)
			}
		}
		return amount, amount > 0
	}
	return 0, false
}

func productDims(p map[string]any) map[string]float64 {
	dims := map[string]float64{}
	for _, f := range productFields {
		if _, done := dims[f.key]; done {
			continue
		}
		if v, ok := p[f.prop]; ok {
			if mm, ok := quantityToMM(v); ok {
				dims[f.key] = mm
			}
		}
	}

	switch size := p["size"].(type) {
	case map[string]any:
		if mm, ok := quantityToMM(size); ok {
			if _, ok := dims[KeyLength]; !ok {
				dims[KeyLength] = mm
			}
		}
	case string:
		fillMissing(dims, NormalizeText(size))
	}

	var props []any
	switch ap := p["additionalProperty"].(type) {
	case []any:
		props = ap
	case map[string]any:
		props = []any{ap}
	}
	for _, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := prop["name"].(string)
		val := fmt.Sprint(prop["value"])
		if prop["value"] == nil || val == "" {
			continue
		}
		parsed := NormalizeText(val)
		if len(parsed) == 1 {
			if key := keyForName(name); key != "" {
				parsed = map[string]float64{key: parsed[KeyLength]}
			}
		}
		fillMissing(dims, parsed)
	}
	return dims
}

// keyForName maps a property label such as "Product width" to a key.
func keyForName(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.Contains(name, "width"):
		return KeyWidth
	case strings.Contains(name, "height"):
		return KeyHeight
	case strings.Contains(name, "depth"), strings.Contains(name, "length"):
		return KeyLength
	case strings.Contains(name, "thickness"):
		return KeyThickness
	case strings.Contains(name, "diameter"):
		return KeyDiameter
	}
	return ""
}

func fillMissing(dst, src map[string]float64) {
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}

func attrOrText(sel *goquery.Selection) string {
	if v, ok := sel.Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(sel.Text())
}

// microdataDims reads itemprop depth/width/height inside a Product
// itemscope. Properties may be plain text or nested QuantitativeValues.
func microdataDims(doc *goquery.Document) map[string]float64 {
	dims := map[string]float64{}
	doc.Find(`[itemscope][itemtype*="schema.org/Product"]`).Each(func(_ int, product *goquery.Selection) {
		for _, f := range productFields {
			if _, done := dims[f.key]; done {
				continue
			}
			sel := product.Find(`[itemprop="` + f.prop + `"]`).First()
			if sel.Length() == 0 {
				continue
			}
			var mm float64
			var ok bool
			if _, scoped := sel.Attr("itemscope"); scoped {
				q := map[string]any{"value": attrOrText(sel.Find(`[itemprop="value"]`).First())}
				if unit := attrOrText(sel.Find(`[itemprop="unitCode"]`).First()); unit != "" {
					q["unitCode"] = unit
				} else if unit := attrOrText(sel.Find(`[itemprop="unitText"]`).First()); unit != "" {
					q["unitText"] = unit
				}
				mm, ok = quantityToMM(q)
			} else {
				mm, ok = quantityToMM(attrOrText(sel))
			}
			if ok {
				dims[f.key] = mm
			}
		}
	})
	return dims
}

// TextScanner finds a dimension triplet in the readable text of a page.
type TextScanner struct {
	converter *md.Converter
}

func NewTextScanner() *TextScanner {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &TextScanner{converter: converter}
}

// Scan converts page to markdown and returns the first triplet found on a
// line mentioning dimensions or size, or on the line right after one.
func (t *TextScanner) Scan(page string) (map[string]float64, string, bool) {
	text, err := t.converter.ConvertString(page)
	if err != nil {
		return nil, "", false
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "dimension") && !strings.Contains(lower, "size") {
			continue
		}
		for _, candidate := range lines[i:min(i+2, len(lines))] {
			if _, ok := ParseTriplet(candidate); ok {
				candidate = strings.TrimSpace(candidate)
				return NormalizeText(candidate), candidate, true
			}
		}
	}
	return nil, "", false
}
