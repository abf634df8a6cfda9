package mysql

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	aggregator "github.com/nyxfolio/portfolio-aggregator"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &Repository{db: gormDB}, mock
}

func TestPortfolioRecordTableName(t *testing.T) {
	require.Equal(t, "portfolios", PortfolioRecord{}.TableName())
}

func TestRepositorySaveUpserts(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `portfolios`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p := aggregator.NewPortfolio("p1", "user-1")
	bal, err := aggregator.NewBalance(big.NewRat(1, 1), 18)
	require.NoError(t, err)
	asset, err := aggregator.NewAsset(aggregator.AssetParams{ID: "a1", Symbol: "ETH", Chain: "ethereum", Balance: bal})
	require.NoError(t, err)
	require.NoError(t, p.AddAsset(asset))

	err = repo.Save(context.Background(), p)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryFindByIDNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT \\* FROM `portfolios`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "snapshot", "last_updated", "created_at", "updated_at"}))

	_, err := repo.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, aggregator.ErrPortfolioNotFound)
}

func TestRepositoryFindByIDReturnsPortfolio(t *testing.T) {
	repo, mock := newMockRepository(t)

	snap := aggregator.PortfolioSnapshot{
		ID:          "p1",
		UserID:      "user-1",
		LastUpdated: time.Now(),
		TotalValue:  aggregator.MoneySnapshot{Value: "0", Currency: "USD"},
	}
	payload, err := json.Marshal(snap)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "user_id", "snapshot", "last_updated", "created_at", "updated_at"}).
		AddRow("p1", "user-1", string(payload), snap.LastUpdated, snap.LastUpdated, snap.LastUpdated)
	mock.ExpectQuery("SELECT \\* FROM `portfolios`").WillReturnRows(rows)

	found, err := repo.FindByID(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "p1", found.ID())
}
