package ensemble_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/ragloop/internal/testutils"
	"github.com/aretw0/ragloop/pkg/adapters/ensemble"
	"github.com/aretw0/ragloop/pkg/adapters/memory"
	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsemble_Contract(t *testing.T) {
	keyword := memory.New([]domain.Document{testutils.DocUnrelated, testutils.DocX200Spec})
	other := memory.New([]domain.Document{testutils.DocX200Warranty, testutils.DocX200Spec})

	r, err := ensemble.New([]ensemble.Member{
		{Name: "bm25", Retriever: keyword, Weight: 0.8},
		{Name: "vector", Retriever: other, Weight: 0.2},
	})
	require.NoError(t, err)

	ports.RunRetrieverContract(t, r, ports.RetrieverContractCase{
		Query:          "X200 lumens",
		ExpectedSource: "x200-datasheet.pdf",
		NoMatchQuery:   "submarine",
	})
}

func TestEnsemble_WeightsDecideOrder(t *testing.T) {
	a := testutils.NewRetriever([]domain.Document{testutils.DocX200Spec})
	b := testutils.NewRetriever([]domain.Document{testutils.DocX200Warranty})

	r, err := ensemble.New([]ensemble.Member{
		{Name: "a", Retriever: a, Weight: 0.2},
		{Name: "b", Retriever: b, Weight: 0.8},
	})
	require.NoError(t, err)

	docs, err := r.Retrieve(context.Background(), "X200")
	require.NoError(t, err)
	assert.Equal(t, []domain.Document{testutils.DocX200Warranty, testutils.DocX200Spec}, docs)
}

func TestEnsemble_DeduplicatesAndRewardsAgreement(t *testing.T) {
	a := testutils.NewRetriever([]domain.Document{testutils.DocUnrelated, testutils.DocX200Spec})
	b := testutils.NewRetriever([]domain.Document{testutils.DocX200Spec})

	r, err := ensemble.New([]ensemble.Member{
		{Name: "a", Retriever: a, Weight: 0.5},
		{Name: "b", Retriever: b, Weight: 0.5},
	})
	require.NoError(t, err)

	docs, err := r.Retrieve(context.Background(), "X200")
	require.NoError(t, err)
	assert.Equal(t, []domain.Document{testutils.DocX200Spec, testutils.DocUnrelated}, docs)
	assert.Equal(t, []string{"X200"}, a.Calls())
	assert.Equal(t, []string{"X200"}, b.Calls())
}

func TestEnsemble_TopK(t *testing.T) {
	a := testutils.NewRetriever([]domain.Document{testutils.DocX200Spec, testutils.DocX200Warranty, testutils.DocUnrelated})

	r, err := ensemble.New([]ensemble.Member{{Name: "a", Retriever: a, Weight: 1}}, ensemble.WithTopK(2))
	require.NoError(t, err)

	docs, err := r.Retrieve(context.Background(), "X200")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestEnsemble_MemberFailure(t *testing.T) {
	bad := testutils.NewRetriever()
	bad.Err = errors.New("weaviate unreachable")

	r, err := ensemble.New([]ensemble.Member{
		{Name: "bm25", Retriever: testutils.NewRetriever([]domain.Document{testutils.DocX200Spec}), Weight: 0.8},
		{Name: "vector", Retriever: bad, Weight: 0.2},
	})
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "X200")
	assert.ErrorContains(t, err, `ensemble member "vector"`)
	assert.ErrorContains(t, err, "weaviate unreachable")
}

func TestNew_Validation(t *testing.T) {
	_, err := ensemble.New(nil)
	assert.Error(t, err)

	_, err = ensemble.New([]ensemble.Member{{Name: "x"}})
	assert.Error(t, err)

	_, err = ensemble.New([]ensemble.Member{{Name: "x", Retriever: testutils.NewRetriever(), Weight: -1}})
	assert.Error(t, err)

	_, err = ensemble.New([]ensemble.Member{
		{Name: "a", Retriever: testutils.NewRetriever(), Weight: 0},
		{Name: "b", Retriever: testutils.NewRetriever(), Weight: 0},
	})
	assert.ErrorContains(t, err, "weight is zero")

	_, err = ensemble.New([]ensemble.Member{
		{Name: "a", Retriever: testutils.NewRetriever(), Weight: 0},
		{Name: "b", Retriever: testutils.NewRetriever(), Weight: 1},
	})
	assert.NoError(t, err)
}
