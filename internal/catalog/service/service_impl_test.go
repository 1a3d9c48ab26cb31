package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/internal/catalog/domain"
	"github.com/smallbiznis/clinicdesk/internal/catalog/repository"
	"github.com/smallbiznis/clinicdesk/internal/clock"
	"github.com/smallbiznis/clinicdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T, billing *config.BillingConfigHolder) domain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&domain.Procedure{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		Repo:    repository.Provide(),
		Billing: billing,
	})
}

func mustCreate(t *testing.T, svc domain.Service, req domain.CreateProcedureRequest) domain.Procedure {
	t.Helper()
	p, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	return p
}

func TestCreate_DefaultsCodeFromName(t *testing.T) {
	svc := setupService(t, nil)

	p := mustCreate(t, svc, domain.CreateProcedureRequest{Name: "  X-Ray Chest ", UnitCharge: decimal.NewFromInt(650)})
	assert.NotZero(t, p.ID)
	assert.Equal(t, "X-Ray Chest", p.Name)
	assert.Equal(t, "x-ray-chest", p.Code)
	assert.True(t, p.Active)

	got, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "x-ray-chest", got.Code)
	assert.True(t, decimal.NewFromInt(650).Equal(got.UnitCharge))
}

func TestCreate_Validation(t *testing.T) {
	svc := setupService(t, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateProcedureRequest{Name: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, domain.CreateProcedureRequest{Name: "ECG", UnitCharge: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, domain.ErrInvalidUnitCharge)

	_, err = svc.Create(ctx, domain.CreateProcedureRequest{Name: "ECG", UnitCharge: decimal.RequireFromString("300.005")})
	assert.ErrorIs(t, err, domain.ErrInvalidUnitCharge)

	mustCreate(t, svc, domain.CreateProcedureRequest{Name: "ECG", Code: "ecg", UnitCharge: decimal.NewFromInt(300)})
	_, err = svc.Create(ctx, domain.CreateProcedureRequest{Name: "ECG again", Code: "ecg"})
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)
}

func TestGet_NotFound(t *testing.T) {
	svc := setupService(t, nil)

	_, err := svc.Get(context.Background(), snowflake.ID(42))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetMany(t *testing.T) {
	svc := setupService(t, nil)
	a := mustCreate(t, svc, domain.CreateProcedureRequest{Name: "CBC", UnitCharge: decimal.NewFromInt(350)})
	b := mustCreate(t, svc, domain.CreateProcedureRequest{Name: "ECG", UnitCharge: decimal.NewFromInt(300)})

	got, err := svc.GetMany(context.Background(), []snowflake.ID{a.ID, b.ID, 999})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "CBC", got[a.ID].Name)
	assert.Equal(t, "ECG", got[b.ID].Name)
}

func TestSearchCatalog(t *testing.T) {
	svc := setupService(t, nil)
	mustCreate(t, svc, domain.CreateProcedureRequest{Name: "X-Ray Chest", UnitCharge: decimal.NewFromInt(650)})
	mustCreate(t, svc, domain.CreateProcedureRequest{Name: "X-Ray Knee", UnitCharge: decimal.NewFromInt(700), Inactive: true})
	mustCreate(t, svc, domain.CreateProcedureRequest{Name: "100% Oxygen", Code: "oxygen", UnitCharge: decimal.NewFromInt(200)})
	mustCreate(t, svc, domain.CreateProcedureRequest{Name: "ECG", UnitCharge: decimal.NewFromInt(300)})

	ctx := context.Background()

	t.Run("active only", func(t *testing.T) {
		got, err := svc.SearchCatalog(ctx, billingdomain.CatalogQuery{SearchText: "x-ray", ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "X-Ray Chest", got[0].Name)
		assert.True(t, decimal.NewFromInt(650).Equal(got[0].UnitPrice))
	})

	t.Run("include inactive", func(t *testing.T) {
		got, err := svc.SearchCatalog(ctx, billingdomain.CatalogQuery{SearchText: "XRAY"})
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = svc.SearchCatalog(ctx, billingdomain.CatalogQuery{SearchText: "X-RAY"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("matches code", func(t *testing.T) {
		got, err := svc.SearchCatalog(ctx, billingdomain.CatalogQuery{SearchText: "oxy"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "oxygen", got[0].Code)
	})

	t.Run("wildcards are literal", func(t *testing.T) {
		got, err := svc.SearchCatalog(ctx, billingdomain.CatalogQuery{SearchText: "%"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "100% Oxygen", got[0].Name)
	})

	t.Run("page size", func(t *testing.T) {
		got, err := svc.SearchCatalog(ctx, billingdomain.CatalogQuery{PageSize: 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestSearchCatalog_PageSizeCappedByConfig(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.SearchPageSize = 1
	svc := setupService(t, config.NewStaticBillingConfigHolder(cfg))

	mustCreate(t, svc, domain.CreateProcedureRequest{Name: "CBC"})
	mustCreate(t, svc, domain.CreateProcedureRequest{Name: "ECG"})

	got, err := svc.SearchCatalog(context.Background(), billingdomain.CatalogQuery{PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
