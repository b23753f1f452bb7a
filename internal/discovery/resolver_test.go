package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebcbi1/postgres-mcp/internal/config"
	"github.com/sebcbi1/postgres-mcp/pkg/dberrors"
)

func candidateFor(t *testing.T, uri, source string, confidence float64) Candidate {
	t.Helper()
	cfg, err := config.ParseConnectionURI(uri)
	require.NoError(t, err)
	return Candidate{Config: cfg, Source: source, Format: FormatDotenv, Confidence: confidence}
}

func TestResolve_ZeroCandidates(t *testing.T) {
	r := NewResolver(nil, nil, nil)
	_, err := r.Resolve(context.Background(), nil)
	require.ErrorIs(t, err, dberrors.ErrNoConfigurationFound)
}

func TestResolve_SingleURIAutoSelectsWithoutSelector(t *testing.T) {
	// Several candidates, one distinct URI: the selector must not run.
	selectorCalls := 0
	selector := func(ctx context.Context, candidates []Candidate) (int, error) {
		selectorCalls++
		return 0, nil
	}
	r := NewResolver(nil, selector, nil)

	candidates := []Candidate{
		candidateFor(t, "postgres://u:p@h:5432/db", "a/.env", ConfidenceRawScan),
		candidateFor(t, "postgresql://u:p@h/db", "b/config.json", ConfidenceExplicit),
	}
	chosen, err := r.Resolve(context.Background(), candidates)
	require.NoError(t, err)
	assert.Equal(t, 0, selectorCalls)
	assert.Equal(t, "b/config.json", chosen.Source, "highest confidence representative wins")
}

func TestResolve_AmbiguousWithoutSelector(t *testing.T) {
	r := NewResolver(nil, nil, nil)
	candidates := []Candidate{
		candidateFor(t, "postgres://u:secretpw@h1:5432/db", "a/.env", ConfidenceExplicit),
		candidateFor(t, "postgres://u:secretpw@h2:5432/db", "b/.env", ConfidenceExplicit),
	}

	_, err := r.Resolve(context.Background(), candidates)
	var ambErr *dberrors.AmbiguousConfigurationError
	require.ErrorAs(t, err, &ambErr)
	require.Len(t, ambErr.Candidates, 2)
	for _, uri := range ambErr.Candidates {
		assert.NotContains(t, uri, "secretpw", "ambiguity report must redact credentials")
	}
}

func TestResolve_SelectorConsultedExactlyOnce(t *testing.T) {
	selectorCalls := 0
	selector := func(ctx context.Context, candidates []Candidate) (int, error) {
		selectorCalls++
		require.Len(t, candidates, 2)
		return 1, nil
	}
	r := NewResolver(nil, selector, nil)

	candidates := []Candidate{
		candidateFor(t, "postgres://u@h1:5432/db", "a/.env", ConfidenceExplicit),
		candidateFor(t, "postgres://u@h2:5432/db", "b/.env", ConfidenceExplicit),
	}
	chosen, err := r.Resolve(context.Background(), candidates)
	require.NoError(t, err)
	assert.Equal(t, 1, selectorCalls)
	assert.Equal(t, "h2", chosen.Config.Host)
}

func TestResolve_SelectorErrorPropagates(t *testing.T) {
	wantErr := errors.New("selection aborted")
	selector := func(ctx context.Context, candidates []Candidate) (int, error) {
		return 0, wantErr
	}
	r := NewResolver(nil, selector, nil)

	candidates := []Candidate{
		candidateFor(t, "postgres://u@h1:5432/db", "a/.env", ConfidenceExplicit),
		candidateFor(t, "postgres://u@h2:5432/db", "b/.env", ConfidenceExplicit),
	}
	_, err := r.Resolve(context.Background(), candidates)
	require.ErrorIs(t, err, wantErr)
}

func TestResolve_PersistsChoiceToEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("EXISTING_KEY=kept\n"), 0o644))

	r := NewResolver(NewEnvFile(dir), nil, nil)
	candidates := []Candidate{
		candidateFor(t, "postgres://app:pw@db:5432/prod", ".env", ConfidenceExplicit),
	}
	_, err := r.Resolve(context.Background(), candidates)
	require.NoError(t, err)

	env, err := godotenv.Read(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:pw@db:5432/prod", env[config.EnvKeyDatabase])
	assert.Equal(t, "kept", env["EXISTING_KEY"], "unrelated keys survive")

	backup, err := os.ReadFile(filepath.Join(dir, ".env.bak"))
	require.NoError(t, err)
	assert.Contains(t, string(backup), "EXISTING_KEY=kept")
	assert.NotContains(t, string(backup), config.EnvKeyDatabase,
		"backup reflects the file before mutation")
}

func TestEnvFile_SetDatabaseURICreatesFile(t *testing.T) {
	dir := t.TempDir()
	f := NewEnvFile(dir)
	require.NoError(t, f.SetDatabaseURI("postgres://u@h:5432/db"))

	env, err := godotenv.Read(f.Path())
	require.NoError(t, err)
	assert.Equal(t, "postgres://u@h:5432/db", env[config.EnvKeyDatabase])

	_, err = os.Stat(f.Path() + ".bak")
	assert.True(t, os.IsNotExist(err), "no backup when there was nothing to back up")
}

func TestDeduplicate_OrdersByConfidenceThenSource(t *testing.T) {
	candidates := []Candidate{
		candidateFor(t, "postgres://u@h1:5432/db", "z/.env", ConfidenceRawScan),
		candidateFor(t, "postgres://u@h2:5432/db", "m/.env", ConfidenceExplicit),
		candidateFor(t, "postgres://u@h3:5432/db", "a/.env", ConfidenceExplicit),
	}
	distinct := Deduplicate(candidates)
	require.Len(t, distinct, 3)
	assert.Equal(t, "a/.env", distinct[0].Source)
	assert.Equal(t, "m/.env", distinct[1].Source)
	assert.Equal(t, "z/.env", distinct[2].Source)
}
