package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) titles(t *testing.T, path string) []string {
	t.Helper()
	rec := e.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return titlesOf(decodeBody[[]bookResponse](t, rec))
}

func TestSearchWithoutParamsReturnsCatalog(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooks(t)

	for _, path := range []string{"/api/search", "/api/advanced-search", "/api/filter"} {
		assert.Len(t, env.titles(t, path), 4, path)
	}
}

func TestSearchNarrowsWithEveryParameter(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooks(t)

	steps := []struct {
		path string
		want []string
	}{
		{"/api/search", []string{"The Go Programming Language", "The Hobbit", "Dune", "100% Go"}},
		{"/api/search?query=go", []string{"The Go Programming Language", "100% Go"}},
		{"/api/search?query=go&genre=programming", []string{"The Go Programming Language", "100% Go"}},
		{"/api/search?query=go&genre=programming&maxPrice=10", []string{"100% Go"}},
		{"/api/search?query=go&genre=programming&maxPrice=10&minPrice=6", []string{}},
	}

	prev := -1
	for _, step := range steps {
		got := env.titles(t, step.path)
		assert.ElementsMatch(t, step.want, got, step.path)
		if prev >= 0 {
			assert.LessOrEqual(t, len(got), prev, step.path)
		}
		prev = len(got)
	}
}

func TestSearchTitleFallback(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooks(t)

	assert.Equal(t, []string{"Dune"}, env.titles(t, "/api/search?title=DUNE"))
	assert.Equal(t, []string{"The Hobbit"}, env.titles(t, "/api/search?query=tolkien"))
	assert.Equal(t, []string{"The Hobbit"}, env.titles(t, "/api/search?query=adventure"))
}

func TestAdvancedSearch(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooks(t)

	assert.Equal(t, []string{"The Go Programming Language"}, env.titles(t, "/api/advanced-search?author=kernighan"))
	assert.Equal(t, []string{"The Hobbit", "Dune"}, env.titles(t, "/api/advanced-search?minPrice=12.50&maxPrice=16.99"))
	assert.Equal(t, []string{"100% Go"}, env.titles(t, "/api/advanced-search?title=%25"))
	assert.Empty(t, env.titles(t, "/api/advanced-search?title=_"))
	assert.Empty(t, env.titles(t, "/api/advanced-search?title=go&author=tolkien"))
}

func TestFilterMatchesWholeElements(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooks(t)

	assert.Equal(t, []string{"The Hobbit"}, env.titles(t, "/api/filter?genre=adventure"))
	assert.Empty(t, env.titles(t, "/api/filter?genre=advent"))
	assert.Equal(t, []string{"The Go Programming Language"}, env.titles(t, "/api/filter?author=Brian%20Kernighan"))
	assert.Equal(t, []string{"100% Go"}, env.titles(t, "/api/filter?genre=Programming&maxPrice=20"))
	assert.Equal(t, []string{"The Go Programming Language"}, env.titles(t, "/api/filter?genre=programming&title=language"))
}

func TestSearchRejectsBadPrice(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooks(t)

	for _, path := range []string{
		"/api/search?minPrice=abc",
		"/api/advanced-search?maxPrice=1O",
		"/api/filter?minPrice=ten",
	} {
		rec := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Contains(t, errorOf(t, rec), "must be a number")
	}
}
