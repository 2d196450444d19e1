package dimensions

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultSPARQLEndpoint = "https://query.wikidata.org/sparql"
	DefaultWikidataAPI    = "https://www.wikidata.org/w/api.php"

	wikidataConfidence    = 0.8
	wikidataRefBonus      = 0.1
	wikidataMaxConfidence = 0.95
	sourceWikidata        = "Wikidata"
	sparqlAccept          = "application/sparql-results+json"
)

var qidPattern = regexp.MustCompile(`^Q\d+$`)

// IsQID reports whether id is a Wikidata item id such as Q12345.
func IsQID(id string) bool {
	return qidPattern.MatchString(id)
}

// Wikidata resolves items and reads their physical dimensions.
type Wikidata struct {
	client         *Client
	sparqlEndpoint string
	apiEndpoint    string
}

func NewWikidata(client *Client, sparqlEndpoint, apiEndpoint string) *Wikidata {
	if sparqlEndpoint == "" {
		sparqlEndpoint = DefaultSPARQLEndpoint
	}
	if apiEndpoint == "" {
		apiEndpoint = DefaultWikidataAPI
	}
	return &Wikidata{client: client, sparqlEndpoint: sparqlEndpoint, apiEndpoint: apiEndpoint}
}

type searchResponse struct {
	Search []struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	} `json:"search"`
}

// Resolve finds the best matching item for free text. An empty id and no
// error means nothing matched.
func (w *Wikidata) Resolve(ctx context.Context, query string) (string, string, error) {
	params := url.Values{
		"action":   {"wbsearchentities"},
		"search":   {query},
		"language": {"en"},
		"format":   {"json"},
		"limit":    {"1"},
		"type":     {"item"},
	}
	body, err := w.client.Get(ctx, w.apiEndpoint+"?"+params.Encode(), "application/json")
	if err != nil {
		return "", "", fmt.Errorf("wikidata search: %w", err)
	}
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", fmt.Errorf("decode wikidata search: %w", err)
	}
	if len(resp.Search) == 0 {
		return "", "", nil
	}
	return resp.Search[0].ID, resp.Search[0].Label, nil
}

// dimensionQuery reads every length-like quantity with its unit and
// reference count, plus the official website and English label.
func dimensionQuery(qid string) string {
	return strings.ReplaceAll(`SELECT ?prop ?amount ?unit (COUNT(DISTINCT ?ref) AS ?refs) ?official ?label WHERE {
  VALUES (?prop ?p ?psv) {
    ("height" p:P2048 psv:P2048)
    ("width" p:P2049 psv:P2049)
    ("length" p:P2043 psv:P2043)
    ("depth" p:P5524 psv:P5524)
    ("thickness" p:P2610 psv:P2610)
    ("diameter" p:P2386 psv:P2386)
  }
  wd:QID ?p ?st .
  ?st ?psv ?node .
  ?node wikibase:quantityAmount ?amount ;
        wikibase:quantityUnit ?unit .
  OPTIONAL { ?st prov:wasDerivedFrom ?ref . }
  OPTIONAL { wd:QID wdt:P856 ?official . }
  OPTIONAL { wd:QID rdfs:label ?label . FILTER(LANG(?label) = "en") }
}
GROUP BY ?prop ?amount ?unit ?official ?label`, "QID", qid)
}

type sparqlValue struct {
	Value string `json:"value"`
}

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]sparqlValue `json:"bindings"`
	} `json:"results"`
}

// WikidataItem is what Dimensions learns about an item.
type WikidataItem struct {
	Result   *Result // nil when the item has no convertible dimensions
	Label    string
	Official string
}

// Dimensions queries the item's dimension statements.
func (w *Wikidata) Dimensions(ctx context.Context, qid string) (WikidataItem, error) {
	if !IsQID(qid) {
		return WikidataItem{}, fmt.Errorf("invalid QID %q", qid)
	}
	params := url.Values{"query": {dimensionQuery(qid)}, "format": {"json"}}
	body, err := w.client.Get(ctx, w.sparqlEndpoint+"?"+params.Encode(), sparqlAccept)
	if err != nil {
		return WikidataItem{}, fmt.Errorf("wikidata sparql: %w", err)
	}
	var resp sparqlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return WikidataItem{}, fmt.Errorf("decode sparql: %w", err)
	}
	return parseBindings(qid, resp.Results.Bindings), nil
}

func parseBindings(qid string, rows []map[string]sparqlValue) WikidataItem {
	var item WikidataItem
	dims := map[string]float64{}
	refsTotal := 0
	for _, b := range rows {
		if v, ok := b["official"]; ok && item.Official == "" {
			item.Official = v.Value
		}
		if v, ok := b["label"]; ok && item.Label == "" {
			item.Label = v.Value
		}
		amount, err := strconv.ParseFloat(strings.TrimPrefix(b["amount"].Value, "+"), 64)
		if err != nil {
			continue
		}
		mm, ok := ToMM(amount, b["unit"].Value)
		if !ok {
			continue
		}
		switch b["prop"].Value {
		case "height":
			dims[KeyHeight] = mm
		case "width":
			dims[KeyWidth] = mm
		case "length", "depth":
			// length wins over depth
			if b["prop"].Value == "length" {
				dims[KeyLength] = mm
			} else if _, ok := dims[KeyLength]; !ok {
				dims[KeyLength] = mm
			}
		case "thickness":
			dims[KeyThickness] = mm
		case "diameter":
			dims[KeyDiameter] = mm
		}
		if refs, err := strconv.Atoi(b["refs"].Value); err == nil {
			refsTotal += refs
		}
	}
	if len(dims) == 0 {
		return item
	}

	conf := wikidataConfidence
	if refsTotal > 0 {
		conf += wikidataRefBonus
	}
	item.Result = &Result{
		ItemID:     qid,
		Name:       item.Label,
		Dims:       dims,
		Source:     sourceWikidata,
		SourceURL:  "https://www.wikidata.org/wiki/" + qid,
		Confidence: math.Min(conf, wikidataMaxConfidence),
		Evidence:   []string{fmt.Sprintf("SPARQL rows=%d refs_total=%d", len(rows), refsTotal)},
	}
	return item
}
