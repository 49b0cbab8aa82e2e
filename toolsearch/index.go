package toolsearch

import (
	"context"
	"regexp"

	"github.com/blevesearch/bleve/v2"
	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	"github.com/stratumsec/toolgate/mcptools"
)

// LocalSearchToolName is the catalog name of the client-side search
// capability backed by Index.
const LocalSearchToolName = "capability_search"

// SearchRequest is the input of the local search capability.
type SearchRequest struct {
	Query string `json:"query" jsonschema:"title=Query,description=Keywords or a regular expression to match against capability names and descriptions."`
	Limit int    `json:"limit,omitempty" jsonschema:"title=Limit,description=Maximum number of matches to return. Defaults to 10."`
}

// Match is one search hit.
type Match struct {
	Capability  *mcptools.Capability `json:"-"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Score       float64              `json:"score,omitempty"`
}

type indexedDoc struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Index is an in-memory full-text index over a capability catalog. It is
// built once after orchestration and is read-only afterwards.
type Index struct {
	caps   []*mcptools.Capability
	byName map[string]*mcptools.Capability
	idx    bleve.Index
}

func NewIndex(caps []*mcptools.Capability) (*Index, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create search index")
	}

	ix := &Index{
		caps:   caps,
		byName: make(map[string]*mcptools.Capability, len(caps)),
		idx:    idx,
	}
	for _, cap := range caps {
		ix.byName[cap.Name] = cap
		doc := indexedDoc{Name: cap.Name, Description: cap.Description}
		if err := idx.Index(cap.Name, doc); err != nil {
			_ = idx.Close()
			return nil, errors.Wrapf(err, "unable to index capability %q", cap.Name)
		}
	}
	return ix, nil
}

// Search ranks capabilities against a free-text query.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 10
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := ix.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "search failed: %q", query)
	}

	matches := make([]Match, 0, len(res.Hits))
	for _, hit := range res.Hits {
		cap, ok := ix.byName[hit.ID]
		if !ok {
			continue
		}
		matches = append(matches, Match{
			Capability:  cap,
			Name:        cap.Name,
			Description: cap.Description,
			Score:       hit.Score,
		})
	}
	return matches, nil
}

// Regex returns capabilities whose name or description matches the
// pattern, in catalog order.
func (ix *Index) Regex(pattern string) ([]Match, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "bad pattern: %q", pattern)
	}
	var matches []Match
	for _, cap := range ix.caps {
		if re.MatchString(cap.Name) || re.MatchString(cap.Description) {
			matches = append(matches, Match{
				Capability:  cap,
				Name:        cap.Name,
				Description: cap.Description,
			})
		}
	}
	return matches, nil
}

func (ix *Index) Close() error {
	return ix.idx.Close()
}

// Capability describes the local search tool for the catalog.
func Capability() *mcptools.Capability {
	return &mcptools.Capability{
		Name:        LocalSearchToolName,
		Description: "Search the discovered capability catalog by keywords or regular expression.",
		InputSchema: searchRequestSchema,
		Builtin:     true,
	}
}

var searchRequestSchema = func() *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true}
	return r.Reflect(&SearchRequest{})
}()
