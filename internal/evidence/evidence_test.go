package evidence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/sleuth/internal/embedding"
	"github.com/moolen/sleuth/internal/models"
)

func testSteps() []models.DiagnosticStep {
	return []models.DiagnosticStep{
		{ID: "a2", IncidentID: "a", StepIndex: 2, ObservedFact: "too many clients errors", RootCause: "pool exhaustion"},
		{ID: "a1", IncidentID: "a", StepIndex: 1, ObservedFact: "connections reach max_connections", RootCause: "pool exhaustion"},
		{ID: "b1", IncidentID: "b", StepIndex: 1, ObservedFact: "disk await above 50ms", RootCause: "disk saturation"},
		{ID: "b2", IncidentID: "b", StepIndex: 2, ObservedFact: "disk await above 50ms", RootCause: "disk saturation"},
	}
}

func ids(steps []models.ScoredStep) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Step.ID
	}
	return out
}

func TestMemoryStore_GetStep(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(ctx, testSteps(), nil)
	require.NoError(t, err)

	step, err := s.GetStep(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "disk saturation", step.RootCause)

	_, err = s.GetStep(ctx, "missing")
	assert.True(t, models.IsNotFound(err))
	assert.Equal(t, 4, s.Len())
}

func TestMemoryStore_RejectsDuplicateIDs(t *testing.T) {
	steps := append(testSteps(), models.DiagnosticStep{ID: "a1"})
	_, err := NewMemoryStore(context.Background(), steps, nil)
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
}

func TestMemoryStore_StepsByRootCause(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(ctx, testSteps(), nil)
	require.NoError(t, err)

	steps, err := s.StepsByRootCause(ctx, "pool exhaustion")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "a1", steps[0].ID)
	assert.Equal(t, "a2", steps[1].ID)

	none, err := s.StepsByRootCause(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_SearchLexical(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(ctx, testSteps(), nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		query   string
		topK    int
		exclude map[string]bool
		want    []string
	}{
		{"ties keep catalog order", "disk await", 2, nil, []string{"b1", "b2"}},
		{"exclusion", "disk await", 2, map[string]bool{"b1": true}, []string{"b2", "a2"}},
		{"best match first", "max_connections reached", 1, nil, []string{"a1"}},
		{"empty query keeps catalog order", "   ", 10, nil, []string{"a2", "a1", "b1", "b2"}},
		{"zero topK", "disk", 0, nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(ctx, tt.query, tt.topK, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestMemoryStore_SearchScoresDescending(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(ctx, testSteps(), nil)
	require.NoError(t, err)

	got, err := s.Search(ctx, "clients connections disk", 10, nil)
	require.NoError(t, err)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestMemoryStore_EmptyCatalog(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(ctx, nil, embedding.NewHashingEmbedder(8))
	require.NoError(t, err)

	got, err := s.Search(ctx, "anything", 20, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_SearchEmbedded(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(ctx, testSteps(), embedding.NewHashingEmbedder(128))
	require.NoError(t, err)

	got, err := s.Search(ctx, "disk await above 50ms", 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].Step.ID)
}

type brokenEmbedder struct{ dim int }

func (b brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return make([]float32, b.dim+1), nil
}
func (b brokenEmbedder) Dimensions() int { return b.dim }
func (b brokenEmbedder) Name() string    { return "broken" }

func TestMemoryStore_DimensionMismatchIsFatal(t *testing.T) {
	_, err := NewMemoryStore(context.Background(), testSteps(), embedding.Checked(brokenEmbedder{dim: 4}, 4))
	var dm *models.DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 4, dm.Expected)
	assert.Equal(t, 5, dm.Got)
}

func TestOchiai(t *testing.T) {
	a := tokenSet("disk await high")
	b := tokenSet("disk await")
	assert.InDelta(t, 2/2.449489742783178, ochiai(a, b), 1e-9)
	assert.Zero(t, ochiai(a, tokenSet("")))
}

func TestLoadCatalogFile(t *testing.T) {
	c, err := LoadCatalogFile(filepath.Join("testdata", "catalog.yaml"), "1.0.0")
	require.NoError(t, err)

	steps := c.Steps()
	require.Len(t, steps, 4)

	assert.Equal(t, "conn-storm-1", steps[0].ID)
	assert.Equal(t, 1, steps[0].StepIndex)
	assert.Equal(t, "connection pool exhaustion", steps[0].RootCause)
	assert.Equal(t, "conn-storm-2", steps[1].ID)
	assert.Equal(t, "io-await", steps[2].ID)
	assert.Equal(t, "disk io saturation", steps[2].RootCause)
	assert.Equal(t, "replica apply bottleneck", steps[3].RootCause)
	assert.Equal(t, 2, steps[3].StepIndex)
}

func TestParseCatalog_Validation(t *testing.T) {
	tests := []struct {
		name       string
		yaml       string
		minVersion string
		wantErr    string
	}{
		{
			name:    "missing version",
			yaml:    "incidents: []",
			wantErr: "catalog version is required",
		},
		{
			name:       "below minimum",
			yaml:       "version: 0.9.0\nincidents: []",
			minVersion: "1.0.0",
			wantErr:    "below minimum",
		},
		{
			name: "duplicate step id",
			yaml: `version: 1.0.0
incidents:
  - id: x
    root_cause: rc
    steps:
      - id: dup
        observed_fact: one
      - id: dup
        observed_fact: two`,
			wantErr: `duplicate step id "dup"`,
		},
		{
			name: "missing root cause",
			yaml: `version: 1.0.0
incidents:
  - id: x
    steps:
      - observed_fact: one`,
			wantErr: "root_cause is required",
		},
		{
			name: "missing observed fact",
			yaml: `version: 1.0.0
incidents:
  - id: x
    root_cause: rc
    steps:
      - method: look`,
			wantErr: "observed_fact is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml), tt.minVersion)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSQLiteStore_MatchesMemoryStore(t *testing.T) {
	ctx := context.Background()
	embedder := embedding.NewHashingEmbedder(32)
	path := filepath.Join(t.TempDir(), "catalog.db")

	db, err := OpenSQLiteStore(ctx, path, embedder)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Import(ctx, "1.2.0", testSteps()))
	assert.Equal(t, 4, db.Len())

	mem, err := NewMemoryStore(ctx, testSteps(), embedder)
	require.NoError(t, err)

	for _, q := range []string{"disk await", "too many clients", ""} {
		want, err := mem.Search(ctx, q, 3, map[string]bool{"a2": true})
		require.NoError(t, err)
		got, err := db.Search(ctx, q, 3, map[string]bool{"a2": true})
		require.NoError(t, err)
		assert.Equal(t, ids(want), ids(got), "query %q", q)
	}

	step, err := db.GetStep(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, testSteps()[1], step)

	_, err = db.GetStep(ctx, "nope")
	assert.True(t, models.IsNotFound(err))

	byRC, err := db.StepsByRootCause(ctx, "pool exhaustion")
	require.NoError(t, err)
	require.Len(t, byRC, 2)
	assert.Equal(t, "a1", byRC[0].ID)

	ver, err := db.CatalogVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", ver)
}

func TestSQLiteStore_ReopenWithDifferentDimension(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	db, err := OpenSQLiteStore(ctx, path, embedding.NewHashingEmbedder(16))
	require.NoError(t, err)
	require.NoError(t, db.Import(ctx, "1.0.0", testSteps()))
	require.NoError(t, db.Close())

	_, err = OpenSQLiteStore(ctx, path, embedding.NewHashingEmbedder(8))
	var dm *models.DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 8, dm.Expected)
	assert.Equal(t, 16, dm.Got)
}

func TestSQLiteStore_LexicalWithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLiteStore(ctx, filepath.Join(t.TempDir(), "c.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Search(ctx, "disk", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, db.Import(ctx, "1.0.0", testSteps()))
	got, err = db.Search(ctx, "disk await", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2"}, ids(got))
}
