package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dojohq/dojobill/internal/clock"
	"github.com/dojohq/dojobill/internal/config"
	invoicedomain "github.com/dojohq/dojobill/internal/invoice/domain"
	taxdomain "github.com/dojohq/dojobill/internal/tax/domain"
	taxrepository "github.com/dojohq/dojobill/internal/tax/repository"
	taxservice "github.com/dojohq/dojobill/internal/tax/service"
	"github.com/dojohq/dojobill/pkg/money"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var dbSeq int64

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clk   *clock.FakeClock
	svc   invoicedomain.Service
	orgID snowflake.ID
	famID snowflake.ID
	gst   taxdomain.TaxRate
	pst   taxdomain.TaxRate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:invoice_svc_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&taxdomain.TaxRate{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLineItem{},
		&invoicedomain.InvoiceLineItemTax{},
		&invoicedomain.InvoiceStatusChange{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	logger := zap.NewNop()
	taxRepo := taxrepository.NewRepository(db)
	registry := taxservice.NewRegistry(taxservice.ServiceParam{
		Log:        logger,
		GenID:      node,
		Repository: taxRepo,
	})

	f := &fixture{
		db:    db,
		node:  node,
		clk:   clock.NewFakeClock(time.Now()),
		orgID: node.Generate(),
		famID: node.Generate(),
	}
	f.svc = NewService(ServiceParam{
		DB:       db,
		Log:      logger,
		GenID:    node,
		Clock:    f.clk,
		Registry: registry,
		Config:   config.Config{DefaultCurrency: "CAD"},
	})

	f.gst = f.seedRate(t, "GST", "0.05")
	f.pst = f.seedRate(t, "PST", "0.07")
	return f
}

func (f *fixture) seedRate(t *testing.T, name, fraction string) taxdomain.TaxRate {
	t.Helper()
	rate := taxdomain.TaxRate{
		ID:        f.node.Generate(),
		OrgID:     f.orgID,
		Name:      name,
		Rate:      decimal.RequireFromString(fraction),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(&rate).Error)
	return rate
}

func (f *fixture) draft(amount int64, quantity int64, discount string, rateIDs ...snowflake.ID) invoicedomain.LineItemDraft {
	return invoicedomain.LineItemDraft{
		ItemType:     invoicedomain.ItemTypeEnrollment,
		Description:  "monthly tuition",
		Quantity:     quantity,
		UnitPrice:    money.New(amount, "CAD"),
		TaxRateIDs:   rateIDs,
		DiscountRate: decimal.RequireFromString(discount),
	}
}

func (f *fixture) create(t *testing.T, drafts ...invoicedomain.LineItemDraft) *invoicedomain.Invoice {
	t.Helper()
	invoice, err := f.svc.Create(context.Background(), invoicedomain.CreateRequest{
		OrgID:     f.orgID,
		FamilyID:  f.famID,
		LineItems: drafts,
	})
	require.NoError(t, err)
	return invoice
}

func TestCreateInvoiceMultiRate(t *testing.T) {
	f := newFixture(t)

	invoice := f.create(t,
		f.draft(10000, 1, "0", f.gst.ID, f.pst.ID),
		f.draft(5000, 1, "0", f.gst.ID),
	)

	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, int64(15000), invoice.SubtotalAmount)
	assert.Equal(t, int64(1450), invoice.TaxAmount) // 1200 + 250
	assert.Equal(t, int64(0), invoice.DiscountAmount)
	assert.Equal(t, int64(16450), invoice.TotalAmount)
	require.NotNil(t, invoice.InvoiceNumber)
	assert.Equal(t, int64(1), *invoice.InvoiceNumber)

	require.Len(t, invoice.LineItems, 2)
	assert.Equal(t, int64(1200), invoice.LineItems[0].TaxAmount)
	assert.Len(t, invoice.LineItems[0].Taxes, 2)
	assert.Len(t, invoice.LineItems[1].Taxes, 1)

	// Snapshot rows carry the rate identity as of invoicing.
	var gstLine *invoicedomain.InvoiceLineItemTax
	for i := range invoice.LineItems[0].Taxes {
		if invoice.LineItems[0].Taxes[i].TaxRateID == f.gst.ID {
			gstLine = &invoice.LineItems[0].Taxes[i]
		}
	}
	require.NotNil(t, gstLine)
	assert.Equal(t, "GST", gstLine.TaxName)
	assert.True(t, gstLine.TaxRate.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, int64(500), gstLine.Amount)
}

func TestCreateInvoiceDiscountBeforeTax(t *testing.T) {
	f := newFixture(t)

	invoice := f.create(t, f.draft(10000, 1, "10", f.gst.ID, f.pst.ID))

	assert.Equal(t, int64(10000), invoice.SubtotalAmount)
	assert.Equal(t, int64(1000), invoice.DiscountAmount)
	assert.Equal(t, int64(1080), invoice.TaxAmount)
	assert.Equal(t, int64(10080), invoice.TotalAmount)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, invoicedomain.CreateRequest{OrgID: f.orgID, FamilyID: f.famID})
	assert.ErrorIs(t, err, invoicedomain.ErrNoLineItems)

	bad := f.draft(10000, 0, "0")
	_, err = f.svc.Create(ctx, invoicedomain.CreateRequest{
		OrgID: f.orgID, FamilyID: f.famID,
		LineItems: []invoicedomain.LineItemDraft{bad},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidQuantity)

	bad = f.draft(10000, 1, "101")
	_, err = f.svc.Create(ctx, invoicedomain.CreateRequest{
		OrgID: f.orgID, FamilyID: f.famID,
		LineItems: []invoicedomain.LineItemDraft{bad},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidDiscount)

	bad = f.draft(10000, 1, "0")
	bad.ItemType = "TUITION_FREEFORM"
	_, err = f.svc.Create(ctx, invoicedomain.CreateRequest{
		OrgID: f.orgID, FamilyID: f.famID,
		LineItems: []invoicedomain.LineItemDraft{bad},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidItemType)

	var count int64
	f.db.Model(&invoicedomain.Invoice{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

// An unknown tax-rate id must fail the whole creation with zero partial
// records persisted.
func TestCreateUnknownRateNothingPersisted(t *testing.T) {
	f := newFixture(t)

	unknown := f.node.Generate()
	_, err := f.svc.Create(context.Background(), invoicedomain.CreateRequest{
		OrgID:    f.orgID,
		FamilyID: f.famID,
		LineItems: []invoicedomain.LineItemDraft{
			f.draft(10000, 1, "0", f.gst.ID),
			f.draft(5000, 1, "0", unknown),
		},
	})
	assert.ErrorIs(t, err, taxdomain.ErrUnknownTaxRate)

	var invoices, items, taxes int64
	f.db.Model(&invoicedomain.Invoice{}).Count(&invoices)
	f.db.Model(&invoicedomain.InvoiceLineItem{}).Count(&items)
	f.db.Model(&invoicedomain.InvoiceLineItemTax{}).Count(&taxes)
	assert.Equal(t, int64(0), invoices)
	assert.Equal(t, int64(0), items)
	assert.Equal(t, int64(0), taxes)
}

// Disabled rates leave the registry snapshot, so referencing one fails the
// same way an unknown id does.
func TestCreateDisabledRateRejected(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.db.Model(&taxdomain.TaxRate{}).
		Where("id = ?", f.pst.ID).
		Update("is_active", false).Error)

	_, err := f.svc.Create(context.Background(), invoicedomain.CreateRequest{
		OrgID:     f.orgID,
		FamilyID:  f.famID,
		LineItems: []invoicedomain.LineItemDraft{f.draft(10000, 1, "0", f.pst.ID)},
	})
	assert.ErrorIs(t, err, taxdomain.ErrUnknownTaxRate)
}

// Editing a tax rate after invoicing must not change persisted snapshots.
func TestTaxSnapshotImmutability(t *testing.T) {
	f := newFixture(t)

	invoice := f.create(t, f.draft(10000, 1, "0", f.gst.ID, f.pst.ID))
	assert.Equal(t, int64(1200), invoice.TaxAmount)

	require.NoError(t, f.db.Model(&taxdomain.TaxRate{}).
		Where("id = ?", f.gst.ID).
		Update("rate", decimal.RequireFromString("0.15")).Error)

	reloaded, err := f.svc.GetByID(context.Background(), f.orgID, invoice.ID.String())
	require.NoError(t, err)

	assert.Equal(t, int64(1200), reloaded.TaxAmount)
	require.Len(t, reloaded.LineItems, 1)
	assert.Equal(t, int64(1200), reloaded.LineItems[0].TaxAmount)

	var snapshot invoicedomain.InvoiceLineItemTax
	require.NoError(t, f.db.
		Where("invoice_line_item_id = ? AND tax_rate_id = ?", reloaded.LineItems[0].ID, f.gst.ID).
		First(&snapshot).Error)
	assert.True(t, snapshot.TaxRate.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, int64(500), snapshot.Amount)
}

func TestUpdateDraftReplacesWholesale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice := f.create(t, f.draft(10000, 1, "0", f.gst.ID, f.pst.ID))
	oldItemID := invoice.LineItems[0].ID

	updated, err := f.svc.UpdateDraft(ctx, f.orgID, invoice.ID.String(), []invoicedomain.LineItemDraft{
		f.draft(2500, 3, "0", f.gst.ID),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(7500), updated.SubtotalAmount)
	assert.Equal(t, int64(375), updated.TaxAmount)
	assert.Equal(t, int64(7875), updated.TotalAmount)
	require.Len(t, updated.LineItems, 1)
	assert.NotEqual(t, oldItemID, updated.LineItems[0].ID)

	// Old line and its tax snapshots are gone.
	var orphanTaxes int64
	f.db.Model(&invoicedomain.InvoiceLineItemTax{}).
		Where("invoice_line_item_id = ?", oldItemID).
		Count(&orphanTaxes)
	assert.Equal(t, int64(0), orphanTaxes)
}

func TestUpdateNonDraftRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice := f.create(t, f.draft(10000, 1, "0", f.gst.ID))
	require.NoError(t, f.svc.TransitionStatus(ctx, f.orgID, invoice.ID.String(), invoicedomain.InvoiceStatusSent, ""))

	_, err := f.svc.UpdateDraft(ctx, f.orgID, invoice.ID.String(), []invoicedomain.LineItemDraft{
		f.draft(2500, 1, "0"),
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotDraft)
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice := f.create(t, f.draft(10000, 1, "0", f.gst.ID))
	id := invoice.ID.String()

	// Draft cannot jump straight to paid.
	err := f.svc.TransitionStatus(ctx, f.orgID, id, invoicedomain.InvoiceStatusPaid, "")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	require.NoError(t, f.svc.TransitionStatus(ctx, f.orgID, id, invoicedomain.InvoiceStatusSent, "emailed to family"))
	require.NoError(t, f.svc.TransitionStatus(ctx, f.orgID, id, invoicedomain.InvoiceStatusViewed, ""))

	// Transitions never touch the money columns.
	reloaded, err := f.svc.GetByID(ctx, f.orgID, id)
	require.NoError(t, err)
	assert.Equal(t, int64(10500), reloaded.TotalAmount)

	var changes []invoicedomain.InvoiceStatusChange
	require.NoError(t, f.db.Where("invoice_id = ?", invoice.ID).Order("created_at ASC").Find(&changes).Error)
	require.Len(t, changes, 2)
	require.NotNil(t, changes[0].Note)
	assert.Equal(t, "emailed to family", *changes[0].Note)

	err = f.svc.TransitionStatus(ctx, f.orgID, id, "SHREDDED", "")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)
}

// Regression guard for the "$-7 outstanding" defect: once multi-rate tax is
// summed correctly, paying the full total leaves exactly zero outstanding.
func TestOutstandingZeroAfterFullPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice := f.create(t, f.draft(10000, 1, "0", f.gst.ID, f.pst.ID))
	id := invoice.ID.String()
	require.NoError(t, f.svc.TransitionStatus(ctx, f.orgID, id, invoicedomain.InvoiceStatusSent, ""))

	paid, err := f.svc.RecordPayment(ctx, f.orgID, id, money.New(invoice.TotalAmount, "CAD"))
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, paid.TotalAmount, paid.AmountPaid)
	assert.Equal(t, int64(0), paid.OutstandingAmount())
	require.NotNil(t, paid.PaidAt)
}

func TestRecordPaymentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice := f.create(t, f.draft(10000, 1, "0", f.gst.ID))
	id := invoice.ID.String()

	_, err := f.svc.RecordPayment(ctx, f.orgID, id, money.New(0, "CAD"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPayment)

	_, err = f.svc.RecordPayment(ctx, f.orgID, id, money.New(500, "USD"))
	assert.ErrorIs(t, err, invoicedomain.ErrCurrencyMismatch)

	_, err = f.svc.RecordPayment(ctx, f.orgID, id, money.New(invoice.TotalAmount+1, "CAD"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPayment)
}

func TestDeleteDraftHardDeletes(t *testing.T) {
	f := newFixture(t)

	invoice := f.create(t, f.draft(10000, 1, "0", f.gst.ID))

	outcome, err := f.svc.Delete(context.Background(), f.orgID, invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.DeleteOutcomeDeleted, outcome)

	var invoices, items, taxes int64
	f.db.Model(&invoicedomain.Invoice{}).Count(&invoices)
	f.db.Model(&invoicedomain.InvoiceLineItem{}).Count(&items)
	f.db.Model(&invoicedomain.InvoiceLineItemTax{}).Count(&taxes)
	assert.Equal(t, int64(0), invoices)
	assert.Equal(t, int64(0), items)
	assert.Equal(t, int64(0), taxes)
}

func TestDeleteNonDraftCancels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice := f.create(t, f.draft(10000, 1, "0", f.gst.ID))
	id := invoice.ID.String()
	require.NoError(t, f.svc.TransitionStatus(ctx, f.orgID, id, invoicedomain.InvoiceStatusSent, ""))

	outcome, err := f.svc.Delete(ctx, f.orgID, id)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.DeleteOutcomeCancelled, outcome)

	reloaded, err := f.svc.GetByID(ctx, f.orgID, id)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusCancelled, reloaded.Status)
	require.NotNil(t, reloaded.CancelledAt)
}

func TestDeleteWithPaymentsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice := f.create(t, f.draft(10000, 1, "0", f.gst.ID))
	id := invoice.ID.String()
	require.NoError(t, f.svc.TransitionStatus(ctx, f.orgID, id, invoicedomain.InvoiceStatusSent, ""))

	_, err := f.svc.RecordPayment(ctx, f.orgID, id, money.New(500, "CAD"))
	require.NoError(t, err)

	_, err = f.svc.Delete(ctx, f.orgID, id)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceHasPayments)
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	overdueAt := f.clk.Now().Add(-48 * time.Hour)

	// Paid in full.
	first := f.create(t, f.draft(10000, 1, "0", f.gst.ID, f.pst.ID)) // total 11200
	require.NoError(t, f.svc.TransitionStatus(ctx, f.orgID, first.ID.String(), invoicedomain.InvoiceStatusSent, ""))
	_, err := f.svc.RecordPayment(ctx, f.orgID, first.ID.String(), money.New(first.TotalAmount, "CAD"))
	require.NoError(t, err)

	// Sent, unpaid, overdue.
	second, err := f.svc.Create(ctx, invoicedomain.CreateRequest{
		OrgID:     f.orgID,
		FamilyID:  f.famID,
		DueAt:     &overdueAt,
		LineItems: []invoicedomain.LineItemDraft{f.draft(5000, 1, "0", f.gst.ID)}, // total 5250
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.TransitionStatus(ctx, f.orgID, second.ID.String(), invoicedomain.InvoiceStatusSent, ""))

	// Cancelled: excluded from every aggregate.
	third := f.create(t, f.draft(99900, 1, "0"))
	require.NoError(t, f.svc.TransitionStatus(ctx, f.orgID, third.ID.String(), invoicedomain.InvoiceStatusCancelled, ""))

	stats, err := f.svc.Statistics(ctx, f.orgID)
	require.NoError(t, err)

	assert.Equal(t, int64(16450), stats.TotalInvoiced.Amount) // 11200 + 5250
	assert.Equal(t, int64(11200), stats.TotalPaid.Amount)
	assert.Equal(t, int64(5250), stats.TotalOutstanding.Amount)
	assert.Equal(t, int64(1), stats.OverdueCount)
	assert.Equal(t, int64(2), stats.InvoiceCount)
	assert.Equal(t, "CAD", stats.TotalOutstanding.Currency)
}
