package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kiwi/graphmerge/internal/util"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/logger"
)

// Options steer one extraction.
type Options struct {
	// EntityTypes restricts the entity types to extract. Empty means any.
	EntityTypes []string
	// Context is a short hint about where the text comes from, such as the
	// entity a web search expanded.
	Context string
}

// Extractor turns text into a partial graph. Returned ids are local to the
// partial graph.
type Extractor interface {
	Extract(ctx context.Context, text string, opts Options) (*common.PartialGraph, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, text string, opts Options) (*common.PartialGraph, error)

func (f ExtractorFunc) Extract(ctx context.Context, text string, opts Options) (*common.PartialGraph, error) {
	return f(ctx, text, opts)
}

type extractedProperty struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type extractedEntity struct {
	Name       string              `json:"name"`
	Type       string              `json:"type"`
	Label      string              `json:"label"`
	Properties []extractedProperty `json:"properties"`
}

type extractedRelationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type extractionResponse struct {
	Entities      []extractedEntity       `json:"entities"`
	Relationships []extractedRelationship `json:"relationships"`
}

// LLMExtractor extracts partial graphs with a language model using a
// structured JSON response.
//
// An LLMExtractor should be created using NewLLMExtractor.
type LLMExtractor struct {
	client   ai.GraphAIClient
	maxTries int
	backoff  util.Backoff
	genOpts  []ai.GenerateOption
}

// NewLLMExtractorParams configures an LLMExtractor. MaxTries defaults to 3.
// Every request carries ai.ExtractSystemPrompt; GenerateOpts are applied
// after it and may replace it.
type NewLLMExtractorParams struct {
	Client       ai.GraphAIClient
	MaxTries     int
	Backoff      util.Backoff
	GenerateOpts []ai.GenerateOption
}

func NewLLMExtractor(params NewLLMExtractorParams) *LLMExtractor {
	tries := params.MaxTries
	if tries <= 0 {
		tries = 3
	}
	return &LLMExtractor{
		client:   params.Client,
		maxTries: tries,
		backoff:  params.Backoff,
		genOpts:  append([]ai.GenerateOption{ai.WithSystemPrompts(ai.ExtractSystemPrompt)}, params.GenerateOpts...),
	}
}

// Extract calls the model and converts its answer. Any failure is wrapped
// in graph.ErrExtractionFailed.
func (e *LLMExtractor) Extract(ctx context.Context, text string, opts Options) (*common.PartialGraph, error) {
	text = strings.TrimSpace(util.SanitizeText(text))
	if text == "" {
		return &common.PartialGraph{Nodes: []common.Node{}, Edges: []common.Edge{}}, nil
	}

	types := "any"
	if len(opts.EntityTypes) > 0 {
		types = strings.Join(opts.EntityTypes, ", ")
	}
	hint := opts.Context
	if hint == "" {
		hint = "none"
	}
	prompt := fmt.Sprintf(ai.ExtractGraphPrompt, types, hint, text)

	res, err := util.RetryWithBackoff(ctx, e.maxTries, e.backoff, func(ctx context.Context) (extractionResponse, error) {
		var out extractionResponse
		err := e.client.GenerateCompletionWithFormat(
			ctx,
			"graph_fragment",
			"Entities and relationships stated in the text",
			prompt,
			&out,
			e.genOpts...,
		)
		if err != nil {
			logger.Warn("[Extract] Extraction attempt failed", "err", err)
		}
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", graph.ErrExtractionFailed, err)
	}

	partial := toPartialGraph(res, opts.EntityTypes)
	logger.Debug("[Extract] Extracted", "nodes", len(partial.Nodes), "edges", len(partial.Edges))
	return partial, nil
}

// toPartialGraph converts a model response. Entities without a name are
// skipped, repeated entities (same name and type) collapse into the first,
// and relationships naming unknown entities are dropped. Types matching one
// of entityTypes up to case are written the way entityTypes spells them,
// since entity resolution compares types exactly.
func toPartialGraph(res extractionResponse, entityTypes []string) *common.PartialGraph {
	partial := &common.PartialGraph{Nodes: []common.Node{}, Edges: []common.Edge{}}

	byNameType := make(map[string]int)
	byName := make(map[string]string)
	for _, ent := range res.Entities {
		name := strings.TrimSpace(util.SanitizeText(ent.Name))
		if name == "" {
			continue
		}
		typ := strings.TrimSpace(util.SanitizeText(ent.Type))
		if typ == "" {
			typ = "Entity"
		}
		typ = canonicalType(typ, entityTypes)
		label := strings.TrimSpace(util.SanitizeText(ent.Label))
		if label == "" {
			label = typ
		}

		key := strings.ToLower(name) + "\x00" + strings.ToLower(typ)
		pos, seen := byNameType[key]
		if !seen {
			id := fmt.Sprintf("x%d", len(partial.Nodes)+1)
			partial.Nodes = append(partial.Nodes, common.Node{
				ID:         id,
				Label:      label,
				Type:       typ,
				Properties: common.Properties{"name": common.String(name)},
			})
			pos = len(partial.Nodes) - 1
			byNameType[key] = pos
			if _, ok := byName[strings.ToLower(name)]; !ok {
				byName[strings.ToLower(name)] = id
			}
		}

		props := partial.Nodes[pos].Properties
		for _, p := range ent.Properties {
			k := strings.TrimSpace(util.SanitizeText(p.Key))
			if k == "" || k == "name" {
				continue
			}
			if _, exists := props[k]; exists {
				continue
			}
			props[k] = common.ParseScalar(util.SanitizeText(p.Value))
		}
	}

	for _, rel := range res.Relationships {
		source, okS := byName[strings.ToLower(strings.TrimSpace(rel.Source))]
		target, okT := byName[strings.ToLower(strings.TrimSpace(rel.Target))]
		if !okS || !okT {
			logger.Debug("[Extract] Dropping relationship to unknown entity", "source", rel.Source, "target", rel.Target)
			continue
		}
		label := strings.TrimSpace(util.SanitizeText(rel.Type))
		if label == "" {
			label = "RELATED_TO"
		}
		edge := common.Edge{
			ID:     fmt.Sprintf("r%d", len(partial.Edges)+1),
			Source: source,
			Target: target,
			Label:  label,
		}
		if desc := strings.TrimSpace(util.SanitizeText(rel.Description)); desc != "" {
			edge.Properties = common.Properties{"description": common.String(desc)}
		}
		partial.Edges = append(partial.Edges, edge)
	}

	return partial
}

func canonicalType(typ string, entityTypes []string) string {
	for _, t := range entityTypes {
		if strings.EqualFold(t, typ) {
			return t
		}
	}
	return typ
}
