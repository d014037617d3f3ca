package expand

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/extract"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// ErrNoQuery is returned when no search query can be built for an anchor.
var ErrNoQuery = errors.New("no search query for anchor")

// Fetcher returns the readable text of a web page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Expander grows a graph around one node: it searches the web for the
// node, extracts entities from the result pages and merges them anchored at
// the node.
//
// An Expander should be created using NewExpander.
type Expander struct {
	searcher  Searcher
	fetcher   Fetcher
	extractor extract.Extractor
	ai        ai.GraphAIClient
	queryOpts []ai.GenerateOption

	nameKeys      []string
	maxResults    int
	concurrency   int
	maxPageTokens int
	entityTypes   []string
}

// NewExpanderParams configures an Expander.
//
// AI is optional and only used to phrase the search query; without it the
// query is the anchor's name and type. QueryOpts are passed to every query
// completion, e.g. ai.WithModel to phrase queries with a smaller model.
// MaxResults defaults to 3,
// Concurrency to 4 and MaxPageTokens to 3000. NameKeys defaults to the
// name keys of graph.DefaultPolicy.
type NewExpanderParams struct {
	Searcher  Searcher
	Fetcher   Fetcher
	Extractor extract.Extractor
	AI        ai.GraphAIClient
	QueryOpts []ai.GenerateOption

	NameKeys      []string
	MaxResults    int
	Concurrency   int
	MaxPageTokens int
	EntityTypes   []string
}

// NewExpander creates an Expander.
//
// Example:
//
//	exp := expand.NewExpander(expand.NewExpanderParams{
//		Searcher:  expand.NewSearxSearcher("http://searxng:8080", nil),
//		Fetcher:   web.NewFetcher(web.NewFetcherParams{}),
//		Extractor: extractor,
//	})
//	res, err := exp.Expand(ctx, ws.Handle(graphID), nodeID)
func NewExpander(params NewExpanderParams) *Expander {
	nameKeys := params.NameKeys
	if len(nameKeys) == 0 {
		nameKeys = graph.DefaultPolicy().NameKeys
	}
	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = 3
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	maxTokens := params.MaxPageTokens
	if maxTokens <= 0 {
		maxTokens = 3000
	}
	return &Expander{
		searcher:      params.Searcher,
		fetcher:       params.Fetcher,
		extractor:     params.Extractor,
		ai:            params.AI,
		queryOpts:     params.QueryOpts,
		nameKeys:      nameKeys,
		maxResults:    maxResults,
		concurrency:   concurrency,
		maxPageTokens: maxTokens,
		entityTypes:   params.EntityTypes,
	}
}

type pageGraph struct {
	index   int
	partial *common.PartialGraph
}

// Expand runs one web-search expansion of anchorID in target and returns
// the merge result. Pages that cannot be fetched fall back to their search
// snippet; pages whose extraction fails are skipped. The expansion fails
// with graph.ErrExtractionFailed only if no page could be extracted.
func (e *Expander) Expand(ctx context.Context, target graph.Target, anchorID string) (*graph.MergeResult, error) {
	snapshot, err := target.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	anchor, ok := snapshot.Node(anchorID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", graph.ErrUnknownAnchor, anchorID)
	}
	name, ok := anchor.Properties.DisplayName(e.nameKeys)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoQuery, anchorID)
	}

	query := e.query(ctx, *anchor, name)
	results, err := e.searcher.Search(ctx, query, e.maxResults)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	logger.Info("[Expand] Searched", "anchor", anchorID, "query", query, "results", len(results))

	opts := extract.Options{
		EntityTypes: e.entityTypes,
		Context:     fmt.Sprintf("Web search results about %s (%s)", name, anchor.Type),
	}

	var (
		mu      sync.Mutex
		pages   []pageGraph
		lastErr error
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, r := range results {
		g.Go(func() error {
			text, err := e.fetcher.Fetch(gCtx, r.URL)
			if err != nil || strings.TrimSpace(text) == "" {
				logger.Warn("[Expand] Using search snippet", "url", r.URL, "err", err)
				text = r.Snippet
			}
			text = e.truncate(text)
			if strings.TrimSpace(text) == "" {
				return nil
			}

			partial, err := e.extractor.Extract(gCtx, text, opts)
			if err != nil {
				if ctxErr := gCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("[Expand] Extraction failed", "url", r.URL, "err", err)
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return nil
			}

			mu.Lock()
			pages = append(pages, pageGraph{index: i, partial: partial})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(pages) == 0 && lastErr != nil {
		if !errors.Is(lastErr, graph.ErrExtractionFailed) {
			lastErr = fmt.Errorf("%w: %w", graph.ErrExtractionFailed, lastErr)
		}
		return nil, lastErr
	}

	partial := combine(pages)
	res, err := target.Apply(ctx, partial, graph.ApplyOptions{
		Anchor: anchorID,
		Source: graph.SourceWebSearch,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("[Expand] Merged",
		"anchor", anchorID,
		"batch", res.Batch,
		"inserted", res.NodesInserted,
		"merged", res.NodesMerged,
		"bridge", res.BridgeEdgeID != "",
	)
	return res, nil
}

// query phrases the search with the AI client if there is one and falls
// back to "<name> <type>".
func (e *Expander) query(ctx context.Context, anchor common.Node, name string) string {
	fallback := strings.TrimSpace(name + " " + anchor.Type)
	if e.ai == nil {
		return fallback
	}

	prompt := fmt.Sprintf(ai.SearchQueryPrompt, name, anchor.Type, knownProperties(anchor.Properties, e.nameKeys))
	opts := append([]ai.GenerateOption{ai.WithTemperature(0.2)}, e.queryOpts...)
	q, err := e.ai.GenerateCompletion(ctx, prompt, opts...)
	if err != nil {
		logger.Warn("[Expand] Query generation failed, using name", "err", err)
		return fallback
	}
	q, _, _ = strings.Cut(strings.TrimSpace(q), "\n")
	q = strings.TrimSpace(strings.Trim(strings.TrimSpace(q), `"'`))
	if q == "" {
		return fallback
	}
	return q
}

func knownProperties(props common.Properties, nameKeys []string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		if !slices.Contains(nameKeys, k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "none"
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + props[k].String()
	}
	return strings.Join(parts, ", ")
}

// truncate cuts text to the page token budget.
func (e *Expander) truncate(text string) string {
	enc, err := ai.Encoder()
	if err != nil {
		return text
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= e.maxPageTokens {
		return text
	}
	return enc.Decode(tokens[:e.maxPageTokens])
}

// combine joins the page graphs in result order into one partial graph.
// Ids are prefixed per page so they stay unique; duplicates across pages
// are resolved by the merge.
func combine(pages []pageGraph) common.PartialGraph {
	sort.Slice(pages, func(i, j int) bool { return pages[i].index < pages[j].index })

	out := common.PartialGraph{Nodes: []common.Node{}, Edges: []common.Edge{}}
	for _, p := range pages {
		if p.partial == nil {
			continue
		}
		prefix := fmt.Sprintf("p%d-", p.index)
		for _, n := range p.partial.Nodes {
			n = n.Clone()
			n.ID = prefix + n.ID
			out.Nodes = append(out.Nodes, n)
		}
		for _, ed := range p.partial.Edges {
			ed = ed.Clone()
			ed.ID = prefix + ed.ID
			ed.Source = prefix + ed.Source
			ed.Target = prefix + ed.Target
			out.Edges = append(out.Edges, ed)
		}
	}
	return out
}
