package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dojohq/dojobill/internal/clock"
	"github.com/dojohq/dojobill/internal/config"
	"github.com/dojohq/dojobill/internal/invoice/calc"
	invoicedomain "github.com/dojohq/dojobill/internal/invoice/domain"
	taxdomain "github.com/dojohq/dojobill/internal/tax/domain"
	"github.com/dojohq/dojobill/pkg/db"
	"github.com/dojohq/dojobill/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Registry taxdomain.Registry
	Config   config.Config
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	registry        taxdomain.Registry
	defaultCurrency string
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("invoice.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		registry:        p.Registry,
		defaultCurrency: p.Config.DefaultCurrency,
	}
}

// computedLine pairs a persisted line item with its tax snapshot rows.
type computedLine struct {
	item  invoicedomain.InvoiceLineItem
	taxes []invoicedomain.InvoiceLineItemTax
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateRequest) (*invoicedomain.Invoice, error) {
	if req.OrgID == 0 {
		return nil, invoicedomain.ErrInvalidOrganization
	}
	if req.FamilyID == 0 {
		return nil, invoicedomain.ErrInvalidFamily
	}
	if len(req.LineItems) == 0 {
		return nil, invoicedomain.ErrNoLineItems
	}

	// One registry snapshot per operation: every line in this invoice
	// sees the same rates.
	rates, err := s.registry.GetActiveTaxRates(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	invoiceID := s.genID.Generate()
	currency, lines, totals, err := s.computeLines(req.OrgID, invoiceID, req.LineItems, rates, now)
	if err != nil {
		return nil, err
	}

	invoice := invoicedomain.Invoice{
		ID:             invoiceID,
		OrgID:          req.OrgID,
		FamilyID:       req.FamilyID,
		Status:         invoicedomain.InvoiceStatusDraft,
		Currency:       currency,
		SubtotalAmount: totals.Subtotal.Amount,
		TaxAmount:      totals.TaxAmount.Amount,
		DiscountAmount: totals.DiscountAmount.Amount,
		TotalAmount:    totals.TotalAmount.Amount,
		Notes:          req.Notes,
		IssuedAt:       &now,
		DueAt:          req.DueAt,
		Metadata:       datatypes.JSONMap{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Invoice header, line items and tax snapshots are one logical unit:
	// any failure rolls back everything. A partial invoice is a
	// correctness hazard, not a recoverable state. Concurrent creates can
	// race on the per-org invoice number; the unique index catches the
	// loser, which retries with a fresh number.
	for attempt := 0; ; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, err := s.nextInvoiceNumber(ctx, tx, req.OrgID)
			if err != nil {
				return err
			}
			invoice.InvoiceNumber = &number

			if err := tx.Create(&invoice).Error; err != nil {
				return err
			}
			return s.insertLines(ctx, tx, lines)
		})
		if err == nil {
			break
		}
		if attempt < 2 && db.IsDuplicateKeyErr(err) {
			continue
		}
		return nil, err
	}

	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.Int64("total_amount", invoice.TotalAmount),
		zap.String("currency", invoice.Currency),
		zap.Int("line_items", len(lines)),
	)

	return s.GetByID(ctx, req.OrgID, invoice.ID.String())
}

func (s *Service) GetByID(ctx context.Context, orgID snowflake.ID, id string) (*invoicedomain.Invoice, error) {
	invoiceID, err := parseInvoiceID(id)
	if err != nil {
		return nil, err
	}
	if orgID == 0 {
		return nil, invoicedomain.ErrInvalidOrganization
	}

	var invoice invoicedomain.Invoice
	err = s.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, id ASC")
		}).
		Preload("LineItems.Taxes").
		Where("org_id = ? AND id = ?", orgID, invoiceID).
		Limit(1).
		Find(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return &invoice, nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID) ([]invoicedomain.Invoice, error) {
	if orgID == 0 {
		return nil, invoicedomain.ErrInvalidOrganization
	}

	var invoices []invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) UpdateDraft(ctx context.Context, orgID snowflake.ID, id string, drafts []invoicedomain.LineItemDraft) (*invoicedomain.Invoice, error) {
	invoiceID, err := parseInvoiceID(id)
	if err != nil {
		return nil, err
	}
	if orgID == 0 {
		return nil, invoicedomain.ErrInvalidOrganization
	}
	if len(drafts) == 0 {
		return nil, invoicedomain.ErrNoLineItems
	}

	rates, err := s.registry.GetActiveTaxRates(ctx, orgID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	currency, lines, totals, err := s.computeLines(orgID, invoiceID, drafts, rates, now)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoice(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != invoicedomain.InvoiceStatusDraft {
			return invoicedomain.ErrInvoiceNotDraft
		}

		if err := s.deleteLines(ctx, tx, invoiceID); err != nil {
			return err
		}
		if err := s.insertLines(ctx, tx, lines); err != nil {
			return err
		}

		return tx.Exec(
			`UPDATE invoices
			 SET currency = ?, subtotal_amount = ?, tax_amount = ?, discount_amount = ?,
			     total_amount = ?, updated_at = ?
			 WHERE id = ?`,
			currency,
			totals.Subtotal.Amount,
			totals.TaxAmount.Amount,
			totals.DiscountAmount.Amount,
			totals.TotalAmount.Amount,
			now,
			invoiceID,
		).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("draft invoice line items replaced",
		zap.String("invoice_id", invoiceID.String()),
		zap.Int("line_items", len(lines)),
	)

	return s.GetByID(ctx, orgID, id)
}

func (s *Service) TransitionStatus(ctx context.Context, orgID snowflake.ID, id string, next invoicedomain.InvoiceStatus, note string) error {
	invoiceID, err := parseInvoiceID(id)
	if err != nil {
		return err
	}
	if orgID == 0 {
		return invoicedomain.ErrInvalidOrganization
	}
	if !next.Valid() {
		return invoicedomain.ErrInvalidStatus
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoice(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if !invoice.Status.CanTransitionTo(next) {
			return invoicedomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		updates := map[string]any{"status": next, "updated_at": now}
		switch next {
		case invoicedomain.InvoiceStatusPaid:
			updates["paid_at"] = now
		case invoicedomain.InvoiceStatusCancelled:
			updates["cancelled_at"] = now
		}
		if err := tx.Model(&invoicedomain.Invoice{}).
			Where("id = ?", invoiceID).
			Updates(updates).Error; err != nil {
			return err
		}

		// Status changes never recompute financial totals.
		return s.recordStatusChange(ctx, tx, invoice, next, note, now)
	})
}

func (s *Service) Delete(ctx context.Context, orgID snowflake.ID, id string) (invoicedomain.DeleteOutcome, error) {
	invoiceID, err := parseInvoiceID(id)
	if err != nil {
		return "", err
	}
	if orgID == 0 {
		return "", invoicedomain.ErrInvalidOrganization
	}

	var outcome invoicedomain.DeleteOutcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoice(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}

		// Recorded payments block deletion entirely.
		if invoice.AmountPaid > 0 {
			return invoicedomain.ErrInvoiceHasPayments
		}

		if invoice.Status == invoicedomain.InvoiceStatusDraft {
			if err := s.deleteLines(ctx, tx, invoiceID); err != nil {
				return err
			}
			if err := tx.Where("invoice_id = ?", invoiceID).
				Delete(&invoicedomain.InvoiceStatusChange{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&invoicedomain.Invoice{}, "id = ?", invoiceID).Error; err != nil {
				return err
			}
			outcome = invoicedomain.DeleteOutcomeDeleted
			return nil
		}

		// Non-draft unpaid invoices are cancelled, never removed.
		outcome = invoicedomain.DeleteOutcomeCancelled
		if invoice.Status == invoicedomain.InvoiceStatusCancelled {
			return nil
		}

		now := s.clock.Now()
		if err := tx.Model(&invoicedomain.Invoice{}).
			Where("id = ?", invoiceID).
			Updates(map[string]any{
				"status":       invoicedomain.InvoiceStatusCancelled,
				"cancelled_at": now,
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}
		return s.recordStatusChange(ctx, tx, invoice, invoicedomain.InvoiceStatusCancelled, "cancelled on delete request", now)
	})
	if err != nil {
		return "", err
	}

	s.log.Info("invoice delete handled",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

func (s *Service) RecordPayment(ctx context.Context, orgID snowflake.ID, id string, amount money.Money) (*invoicedomain.Invoice, error) {
	invoiceID, err := parseInvoiceID(id)
	if err != nil {
		return nil, err
	}
	if orgID == 0 {
		return nil, invoicedomain.ErrInvalidOrganization
	}
	if amount.Amount <= 0 {
		return nil, invoicedomain.ErrInvalidPayment
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoice(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status == invoicedomain.InvoiceStatusCancelled {
			return invoicedomain.ErrInvalidTransition
		}
		if amount.Currency != invoice.Currency {
			return invoicedomain.ErrCurrencyMismatch
		}

		paid := invoice.AmountPaid + amount.Amount
		if paid > invoice.TotalAmount {
			return invoicedomain.ErrInvalidPayment
		}

		now := s.clock.Now()
		updates := map[string]any{"amount_paid": paid, "updated_at": now}
		if paid == invoice.TotalAmount && invoice.Status != invoicedomain.InvoiceStatusPaid {
			updates["status"] = invoicedomain.InvoiceStatusPaid
			updates["paid_at"] = now
			if err := s.recordStatusChange(ctx, tx, invoice, invoicedomain.InvoiceStatusPaid, "paid in full", now); err != nil {
				return err
			}
		}
		return tx.Model(&invoicedomain.Invoice{}).
			Where("id = ?", invoiceID).
			Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	return s.GetByID(ctx, orgID, id)
}

func (s *Service) Statistics(ctx context.Context, orgID snowflake.ID) (invoicedomain.Statistics, error) {
	if orgID == 0 {
		return invoicedomain.Statistics{}, invoicedomain.ErrInvalidOrganization
	}

	// Read-only reduction over persisted, already-rounded invoice totals.
	var row struct {
		TotalInvoiced int64
		TotalPaid     int64
		InvoiceCount  int64
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(total_amount), 0) AS total_invoiced,
		        COALESCE(SUM(amount_paid), 0) AS total_paid,
		        COUNT(*) AS invoice_count
		 FROM invoices
		 WHERE org_id = ? AND status <> ?`,
		orgID,
		invoicedomain.InvoiceStatusCancelled,
	).Scan(&row).Error
	if err != nil {
		return invoicedomain.Statistics{}, err
	}

	var overdue int64
	err = s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*)
		 FROM invoices
		 WHERE org_id = ? AND due_at IS NOT NULL AND due_at < ?
		   AND status NOT IN (?, ?)`,
		orgID,
		s.clock.Now(),
		invoicedomain.InvoiceStatusPaid,
		invoicedomain.InvoiceStatusCancelled,
	).Scan(&overdue).Error
	if err != nil {
		return invoicedomain.Statistics{}, err
	}

	return invoicedomain.Statistics{
		TotalInvoiced:    money.New(row.TotalInvoiced, s.defaultCurrency),
		TotalPaid:        money.New(row.TotalPaid, s.defaultCurrency),
		TotalOutstanding: money.New(row.TotalInvoiced-row.TotalPaid, s.defaultCurrency),
		OverdueCount:     overdue,
		InvoiceCount:     row.InvoiceCount,
	}, nil
}

// computeLines runs the calculator for every draft against one rate
// snapshot and materializes the rows to insert. Purely in memory: nothing
// is written until every line has computed successfully.
func (s *Service) computeLines(
	orgID, invoiceID snowflake.ID,
	drafts []invoicedomain.LineItemDraft,
	rates []taxdomain.TaxRate,
	now time.Time,
) (string, []computedLine, calc.InvoiceCalculations, error) {
	currency := ""
	lines := make([]computedLine, 0, len(drafts))
	items := make([]invoicedomain.InvoiceLineItem, 0, len(drafts))

	for _, draft := range drafts {
		if !draft.ItemType.Valid() {
			return "", nil, calc.InvoiceCalculations{}, invoicedomain.ErrInvalidItemType
		}
		if currency == "" {
			currency = draft.UnitPrice.Currency
		} else if draft.UnitPrice.Currency != currency {
			return "", nil, calc.InvoiceCalculations{}, invoicedomain.ErrCurrencyMismatch
		}

		result, err := calc.LineItem(calc.LineItemInput{
			Quantity:        draft.Quantity,
			UnitPrice:       draft.UnitPrice,
			TaxRateIDs:      draft.TaxRateIDs,
			DiscountPercent: draft.DiscountRate,
			Rates:           rates,
		})
		if err != nil {
			return "", nil, calc.InvoiceCalculations{}, err
		}

		itemID := s.genID.Generate()
		item := invoicedomain.InvoiceLineItem{
			ID:                 itemID,
			OrgID:              orgID,
			InvoiceID:          invoiceID,
			ItemType:           draft.ItemType,
			Description:        strings.TrimSpace(draft.Description),
			Quantity:           draft.Quantity,
			UnitPrice:          draft.UnitPrice.Amount,
			DiscountRate:       draft.DiscountRate,
			LineTotal:          result.LineTotal.Amount,
			DiscountAmount:     result.DiscountAmount.Amount,
			TaxAmount:          result.TaxAmount.Amount,
			FinalAmount:        result.FinalAmount.Amount,
			EnrollmentID:       draft.EnrollmentID,
			ProductID:          draft.ProductID,
			ServicePeriodStart: draft.ServicePeriodStart,
			ServicePeriodEnd:   draft.ServicePeriodEnd,
			SortOrder:          draft.SortOrder,
			CreatedAt:          now,
		}

		taxes := make([]invoicedomain.InvoiceLineItemTax, 0, len(result.TaxLines))
		for _, line := range result.TaxLines {
			taxes = append(taxes, invoicedomain.InvoiceLineItemTax{
				ID:                s.genID.Generate(),
				OrgID:             orgID,
				InvoiceLineItemID: itemID,
				TaxRateID:         line.TaxRateID,
				TaxName:           line.Name,
				TaxRate:           line.Rate,
				TaxDescription:    line.Description,
				Amount:            line.Amount.Amount,
				CreatedAt:         now,
			})
		}

		lines = append(lines, computedLine{item: item, taxes: taxes})
		items = append(items, item)
	}

	return currency, lines, calc.InvoiceTotals(items, currency), nil
}

func (s *Service) insertLines(ctx context.Context, tx *gorm.DB, lines []computedLine) error {
	for _, line := range lines {
		if err := tx.WithContext(ctx).Create(&line.item).Error; err != nil {
			return err
		}
		for i := range line.taxes {
			if err := tx.WithContext(ctx).Create(&line.taxes[i]).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) deleteLines(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) error {
	// Tax snapshot rows cascade with their line items.
	err := tx.WithContext(ctx).Exec(
		`DELETE FROM invoice_line_item_taxes
		 WHERE invoice_line_item_id IN (
			SELECT id FROM invoice_line_items WHERE invoice_id = ?
		 )`,
		invoiceID,
	).Error
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Delete(&invoicedomain.InvoiceLineItem{}).Error
}

func (s *Service) loadInvoice(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return &invoice, nil
}

func (s *Service) recordStatusChange(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, next invoicedomain.InvoiceStatus, note string, now time.Time) error {
	change := invoicedomain.InvoiceStatusChange{
		ID:        s.genID.Generate(),
		OrgID:     invoice.OrgID,
		InvoiceID: invoice.ID,
		From:      invoice.Status,
		To:        next,
		CreatedAt: now,
	}
	note = strings.TrimSpace(note)
	if note != "" {
		change.Note = &note
	}
	return tx.WithContext(ctx).Create(&change).Error
}

func (s *Service) nextInvoiceNumber(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (int64, error) {
	var next int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(invoice_number), 0) + 1
		 FROM invoices
		 WHERE org_id = ?`,
		orgID,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func parseInvoiceID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, invoicedomain.ErrInvalidInvoiceID
	}
	return id, nil
}
