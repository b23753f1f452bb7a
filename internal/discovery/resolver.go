package discovery

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sebcbi1/postgres-mcp/pkg/dberrors"
)

// Selector chooses among candidates that survive deduplication with more
// than one distinct URI. It receives the full candidate list and returns
// the index of the chosen one. Implementations typically present redacted
// URIs to a human and wait for the answer.
type Selector func(ctx context.Context, candidates []Candidate) (int, error)

// Resolver turns a scanned candidate list into exactly one active
// configuration, persisting the choice so later sessions skip selection.
type Resolver struct {
	envFile  *EnvFile
	selector Selector
	logger   *zap.Logger
}

func NewResolver(envFile *EnvFile, selector Selector, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{envFile: envFile, selector: selector, logger: logger}
}

// Resolve deduplicates candidates by normalized URI and picks one:
//
//   - zero distinct URIs: ErrNoConfigurationFound
//   - one distinct URI: selected automatically, no selector involved
//   - several: the selector is consulted exactly once; without one,
//     AmbiguousConfigurationError carrying redacted URIs
//
// The chosen URI is persisted to the project .env under MCP_DATABASE
// (after backing the file up) so the decision survives restarts.
func (r *Resolver) Resolve(ctx context.Context, candidates []Candidate) (Candidate, error) {
	distinct := Deduplicate(candidates)

	switch len(distinct) {
	case 0:
		return Candidate{}, dberrors.ErrNoConfigurationFound

	case 1:
		chosen := distinct[0]
		r.logger.Info("single database candidate selected automatically",
			zap.String("uri", chosen.Config.Redacted()),
			zap.String("source", chosen.Source))
		return chosen, r.persist(chosen)

	default:
		if r.selector == nil {
			redacted := make([]string, len(distinct))
			for i, c := range distinct {
				redacted[i] = c.Config.Redacted()
			}
			return Candidate{}, &dberrors.AmbiguousConfigurationError{Candidates: redacted}
		}

		idx, err := r.selector(ctx, distinct)
		if err != nil {
			return Candidate{}, err
		}
		if idx < 0 || idx >= len(distinct) {
			return Candidate{}, dberrors.ErrNoConfigurationFound
		}
		chosen := distinct[idx]
		r.logger.Info("database candidate selected",
			zap.String("uri", chosen.Config.Redacted()),
			zap.String("source", chosen.Source))
		return chosen, r.persist(chosen)
	}
}

func (r *Resolver) persist(c Candidate) error {
	if r.envFile == nil {
		return nil
	}
	if err := r.envFile.SetDatabaseURI(c.Config.ConnString()); err != nil {
		return err
	}
	r.logger.Info("configuration persisted", zap.String("path", r.envFile.Path()))
	return nil
}

// Deduplicate collapses candidates sharing a normalized URI, keeping the
// best representative of each group: highest confidence, then earliest
// source path for determinism.
func Deduplicate(candidates []Candidate) []Candidate {
	byURI := make(map[string]Candidate)
	order := make([]string, 0, len(candidates))

	for _, c := range candidates {
		key := c.Config.Normalized()
		existing, ok := byURI[key]
		if !ok {
			byURI[key] = c
			order = append(order, key)
			continue
		}
		if c.Confidence > existing.Confidence ||
			(c.Confidence == existing.Confidence && c.Source < existing.Source) {
			byURI[key] = c
		}
	}

	distinct := make([]Candidate, 0, len(byURI))
	for _, key := range order {
		distinct = append(distinct, byURI[key])
	}
	sort.SliceStable(distinct, func(i, j int) bool {
		if distinct[i].Confidence != distinct[j].Confidence {
			return distinct[i].Confidence > distinct[j].Confidence
		}
		return distinct[i].Source < distinct[j].Source
	})
	return distinct
}
