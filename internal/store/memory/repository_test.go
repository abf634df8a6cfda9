package memory

import (
	"context"
	"testing"

	aggregator "github.com/nyxfolio/portfolio-aggregator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositorySaveAndFindByID(t *testing.T) {
	repo := New()
	p := aggregator.NewPortfolio("p1", "user-1")
	require.NoError(t, repo.Save(context.Background(), p))

	found, err := repo.FindByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", found.ID())
}

func TestRepositoryFindByIDNotFound(t *testing.T) {
	repo := New()
	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, aggregator.ErrPortfolioNotFound)
}

func TestRepositoryFindByUserID(t *testing.T) {
	repo := New()
	p := aggregator.NewPortfolio("p1", "user-1")
	require.NoError(t, repo.Save(context.Background(), p))

	found, err := repo.FindByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", found.ID())
}

func TestRepositoryDeleteAndExists(t *testing.T) {
	repo := New()
	p := aggregator.NewPortfolio("p1", "user-1")
	require.NoError(t, repo.Save(context.Background(), p))

	exists, err := repo.Exists(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.Delete(context.Background(), "p1"))
	exists, err = repo.Exists(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, exists)
}
