package ports

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RetrieverContractCase configures RunRetrieverContract for a seeded retriever.
type RetrieverContractCase struct {
	// Query is expected to match at least one seeded document.
	Query string
	// ExpectedSource is the source of the document that must rank first for Query.
	ExpectedSource string
	// NoMatchQuery is expected to match nothing.
	NoMatchQuery string
}

// RunRetrieverContract runs a suite of tests to verify that a Retriever implementation
// adheres to the defined interface contract.
func RunRetrieverContract(t *testing.T, r Retriever, tc RetrieverContractCase) {
	ctx := context.Background()

	t.Run("Best First", func(t *testing.T) {
		docs, err := r.Retrieve(ctx, tc.Query)
		require.NoError(t, err, "Retrieve should not return error")
		require.NotEmpty(t, docs, "Retrieve should return documents for a matching query")
		assert.Equal(t, tc.ExpectedSource, docs[0].Source)
	})

	t.Run("Empty Result Is Not An Error", func(t *testing.T) {
		docs, err := r.Retrieve(ctx, tc.NoMatchQuery)
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("Deterministic", func(t *testing.T) {
		first, err := r.Retrieve(ctx, tc.Query)
		require.NoError(t, err)
		second, err := r.Retrieve(ctx, tc.Query)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("Concurrent Read Only", func(t *testing.T) {
		want, err := r.Retrieve(ctx, tc.Query)
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make([]error, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				got, err := r.Retrieve(ctx, tc.Query)
				if err == nil && !assert.ObjectsAreEqual(want, got) {
					err = assert.AnError
				}
				results[i] = err
			}(i)
		}
		wg.Wait()
		for _, err := range results {
			assert.NoError(t, err)
		}
	})

	t.Run("Returned Documents Are Caller Owned", func(t *testing.T) {
		docs, err := r.Retrieve(ctx, tc.Query)
		require.NoError(t, err)
		docs[0].Content = "mutated by caller"

		again, err := r.Retrieve(ctx, tc.Query)
		require.NoError(t, err)
		assert.NotEqual(t, "mutated by caller", again[0].Content)
	})
}
