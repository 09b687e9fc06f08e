package seed

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/dojohq/dojobill/internal/config"
	taxdomain "github.com/dojohq/dojobill/internal/tax/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var seedDBSeq int64

func newSeedDB(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()
	dsn := fmt.Sprintf("file:seed_test_%d?mode=memory&cache=shared", atomic.AddInt64(&seedDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&taxdomain.TaxRate{}))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return db, node
}

func TestEnsureStandardTaxRatesIdempotent(t *testing.T) {
	db, node := newSeedDB(t)
	orgID := node.Generate()
	cfg := config.Config{DefaultCountry: "CA", SeedOrgID: orgID.String()}

	require.NoError(t, EnsureStandardTaxRates(db, node, cfg))
	require.NoError(t, EnsureStandardTaxRates(db, node, cfg))

	var rates []taxdomain.TaxRate
	require.NoError(t, db.Where("org_id = ?", orgID).Find(&rates).Error)
	assert.Len(t, rates, 4)

	byName := map[string]taxdomain.TaxRate{}
	for _, r := range rates {
		byName[r.Name] = r
	}
	assert.Equal(t, "0.05", byName["GST"].Rate.String())
	assert.Equal(t, "0.09975", byName["QST"].Rate.String())
	assert.True(t, byName["HST"].IsActive)
}

func TestEnsureStandardTaxRatesNoOrgConfigured(t *testing.T) {
	db, node := newSeedDB(t)

	require.NoError(t, EnsureStandardTaxRates(db, node, config.Config{DefaultCountry: "CA"}))

	var count int64
	require.NoError(t, db.Model(&taxdomain.TaxRate{}).Count(&count).Error)
	assert.Zero(t, count)
}
