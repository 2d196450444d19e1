package dimensions

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hannes/gridfinity-cutout/storage"
)

// ErrNoQuery means the query named neither an id, text nor URLs.
var ErrNoQuery = errors.New("one of id, q or urls is required")

const (
	DefaultCacheTTL = 24 * time.Hour
	maxParallelURLs = 4
)

// Query selects an item by id, free text and candidate product URLs.
type Query struct {
	ID   string
	Text string
	URLs []string
}

func (q Query) empty() bool {
	return q.ID == "" && q.Text == "" && len(q.URLs) == 0
}

func (q Query) cacheKey() string {
	return strings.ToLower(strings.Join([]string{q.ID, q.Text, strings.Join(q.URLs, ",")}, "|"))
}

// FetcherOptions wires the sources. Empty endpoints use the public ones.
type FetcherOptions struct {
	Client         *Client
	SPARQLEndpoint string
	WikidataAPI    string
	WikipediaBase  string
	Catalog        *Catalog
	Cache          storage.DimensionCache // optional
	CacheTTL       time.Duration
	Logger         *zap.Logger
}

// Fetcher aggregates dimension sources for one query.
type Fetcher struct {
	catalog   *Catalog
	wikidata  *Wikidata
	schema    *SchemaOrg
	wikipedia *Wikipedia
	cache     storage.DimensionCache
	cacheTTL  time.Duration
	logger    *zap.Logger
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	client := opts.Client
	if client == nil {
		client = NewClient(DefaultClientConfig())
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Fetcher{
		catalog:   opts.Catalog,
		wikidata:  NewWikidata(client, opts.SPARQLEndpoint, opts.WikidataAPI),
		schema:    NewSchemaOrg(client),
		wikipedia: NewWikipedia(client, opts.WikipediaBase),
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		logger:    opts.Logger,
	}
}

type cachedLookup struct {
	Result     *Result `json:"result"`
	ResolvedID string  `json:"resolved_id"`
}

// Fetch runs the lookup chain: catalog, Wikidata, schema.org pages in
// parallel, then Wikipedia when the box is still incomplete. It returns
// the merged result and the id the query resolved to.
func (f *Fetcher) Fetch(ctx context.Context, q Query) (*Result, string, error) {
	if q.empty() {
		return nil, "", ErrNoQuery
	}
	key := q.cacheKey()
	if r, id, ok := f.fromCache(ctx, key); ok {
		return r, id, nil
	}

	best := f.catalog.Lookup(q.ID, q.Text)
	if best.HasBox() {
		f.store(ctx, key, best, best.ItemID)
		return best, best.ItemID, nil
	}

	qid := ""
	if IsQID(q.ID) {
		qid = q.ID
	} else if q.Text != "" {
		id, _, err := f.wikidata.Resolve(ctx, q.Text)
		if err != nil {
			f.logger.Warn("wikidata resolve failed", zap.String("query", q.Text), zap.Error(err))
		}
		qid = id
	}

	var label, official string
	if qid != "" {
		item, err := f.wikidata.Dimensions(ctx, qid)
		if err != nil {
			f.logger.Warn("wikidata lookup failed", zap.String("qid", qid), zap.Error(err))
		}
		label, official = item.Label, item.Official
		best = best.MergeMissing(item.Result)
	}

	urls := q.URLs
	if official != "" && !slices.Contains(urls, official) {
		urls = append(append([]string{}, urls...), official)
	}
	for _, r := range f.scrape(ctx, urls) {
		best = best.MergeMissing(r)
	}

	if !best.HasBox() && label != "" {
		wi, err := f.wikipedia.Fetch(ctx, label)
		if err != nil {
			f.logger.Warn("wikipedia lookup failed", zap.String("title", label), zap.Error(err))
		}
		best = best.MergeMissing(wi)
	}

	if best == nil || len(best.Dims) == 0 {
		return nil, "", ErrNotFound
	}
	resolved := firstNonEmpty(qid, q.ID, best.ItemID)
	if best.ItemID == "" {
		best.ItemID = resolved
	}
	if best.Name == "" {
		best.Name = firstNonEmpty(label, q.Text)
	}
	f.store(ctx, key, best, resolved)
	return best, resolved, nil
}

// scrape fetches every URL concurrently. Results keep the order of urls;
// failed or empty pages are nil.
func (f *Fetcher) scrape(ctx context.Context, urls []string) []*Result {
	results := make([]*Result, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelURLs)
	for i, u := range urls {
		g.Go(func() error {
			r, err := f.schema.Fetch(gctx, u)
			if err != nil {
				f.logger.Warn("page lookup failed", zap.String("url", u), zap.Error(err))
				return nil
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (f *Fetcher) fromCache(ctx context.Context, key string) (*Result, string, bool) {
	if f.cache == nil {
		return nil, "", false
	}
	payload, ok, err := f.cache.GetDimensions(ctx, key, f.cacheTTL)
	if err != nil {
		f.logger.Warn("dimension cache read failed", zap.Error(err))
		return nil, "", false
	}
	if !ok {
		return nil, "", false
	}
	var c cachedLookup
	if err := json.Unmarshal(payload, &c); err != nil || c.Result == nil {
		return nil, "", false
	}
	c.Result.Cached = true
	return c.Result, c.ResolvedID, true
}

func (f *Fetcher) store(ctx context.Context, key string, r *Result, resolved string) {
	if f.cache == nil {
		return
	}
	payload, err := json.Marshal(cachedLookup{Result: r, ResolvedID: resolved})
	if err != nil {
		return
	}
	if err := f.cache.StoreDimensions(ctx, key, payload); err != nil {
		f.logger.Warn("dimension cache write failed", zap.Error(err))
	}
}
