package service

import (
	"context"
	"sort"
	"time"

	"github.com/edulane/billing/internal/api/dto"
	"github.com/edulane/billing/internal/domain/discount"
	"github.com/edulane/billing/internal/domain/invoice"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/samber/lo"
)

// InvoiceService defines the interface for invoice operations. Every
// invoice it persists has been recomputed.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, req dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error)
	GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	AddItem(ctx context.Context, id string, req dto.CreateInvoiceItemRequest) (*dto.InvoiceResponse, error)
	AddTax(ctx context.Context, id string, req dto.AddInvoiceTaxRequest) (*dto.InvoiceResponse, error)
	ApplyDiscount(ctx context.Context, id string, req dto.ApplyInvoiceDiscountRequest) (*dto.ApplyInvoiceDiscountResponse, error)
	RecomputeInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	SendInvoice(ctx context.Context, id string, req dto.SendInvoiceRequest) (*dto.InvoiceResponse, error)
	MarkPaid(ctx context.Context, id string, req dto.MarkInvoicePaidRequest) (*dto.InvoiceResponse, error)
	VoidInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	ListOverdue(ctx context.Context) ([]*dto.InvoiceResponse, error)
}

type invoiceService struct {
	ServiceParams
	discounts *discountService
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(params ServiceParams) InvoiceService {
	return newInvoiceService(params)
}

func newInvoiceService(params ServiceParams) *invoiceService {
	return &invoiceService{
		ServiceParams: params,
		discounts:     &discountService{ServiceParams: params},
	}
}

func (s *invoiceService) CreateInvoice(ctx context.Context, req dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv, err := req.ToInvoice(ctx)
	if err != nil {
		return nil, err
	}

	if err := inv.Recompute(); err != nil {
		return nil, err
	}

	if err := inv.Validate(); err != nil {
		return nil, err
	}

	if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		return nil, err
	}

	s.Logger.Infow("created invoice",
		"invoice_id", inv.ID,
		"student_id", inv.StudentID,
		"items", len(inv.Items),
		"total_amount", inv.TotalAmount,
	)
	return dto.NewInvoiceResponse(inv, s.now()), nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewInvoiceResponse(inv, s.now()), nil
}

func (s *invoiceService) get(ctx context.Context, id string) (*invoice.Invoice, error) {
	if id == "" {
		return nil, ierr.NewError("invoice_id is required").
			WithHint("Invoice ID is required").
			Mark(ierr.ErrValidation)
	}
	return s.InvoiceRepo.Get(ctx, id)
}

// save recomputes inv, checks it and writes it conditioned on the version
// it was read at
func (s *invoiceService) save(ctx context.Context, inv *invoice.Invoice) error {
	if err := inv.RecomputeWithTaxRates(); err != nil {
		return err
	}

	if err := inv.Validate(); err != nil {
		return err
	}

	inv.Version++
	inv.Touch(ctx)
	return s.InvoiceRepo.Update(ctx, inv)
}

func (s *invoiceService) AddItem(ctx context.Context, id string, req dto.CreateInvoiceItemRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := inv.AddItem(req.ToItem()); err != nil {
		return nil, err
	}

	if err := s.save(ctx, inv); err != nil {
		return nil, err
	}

	s.Logger.Infow("added invoice item",
		"invoice_id", inv.ID,
		"subtotal", inv.Subtotal,
		"total_amount", inv.TotalAmount,
	)
	return dto.NewInvoiceResponse(inv, s.now()), nil
}

func (s *invoiceService) AddTax(ctx context.Context, id string, req dto.AddInvoiceTaxRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	var entry *invoice.TaxEntry
	if req.Rate != nil {
		entry = invoice.TaxEntryFromRate(req.Name, *req.Rate, inv.TaxableAmount(), inv.Currency)
	} else {
		entry = &invoice.TaxEntry{
			Name:          req.Name,
			AppliedAmount: *req.Amount,
			Currency:      inv.Currency,
		}
	}

	if err := inv.AddTaxEntry(entry); err != nil {
		return nil, err
	}

	if err := s.save(ctx, inv); err != nil {
		return nil, err
	}

	s.Logger.Infow("added invoice tax",
		"invoice_id", inv.ID,
		"tax_name", entry.Name,
		"applied_amount", entry.AppliedAmount,
		"total_amount", inv.TotalAmount,
	)
	return dto.NewInvoiceResponse(inv, s.now()), nil
}

func (s *invoiceService) ApplyDiscount(ctx context.Context, id string, req dto.ApplyInvoiceDiscountRequest) (*dto.ApplyInvoiceDiscountResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.applyDiscount(ctx, inv, req)
	if err != nil {
		return nil, err
	}

	if result.Valid {
		if err := s.save(ctx, inv); err != nil {
			return nil, err
		}
	}

	return &dto.ApplyInvoiceDiscountResponse{
		Evaluation: result,
		Invoice:    dto.NewInvoiceResponse(inv, s.now()),
	}, nil
}

// applyDiscount evaluates the code against the invoice subtotal and adds
// the entry to inv in memory. A rejected code leaves inv untouched.
func (s *invoiceService) applyDiscount(ctx context.Context, inv *invoice.Invoice, req dto.ApplyInvoiceDiscountRequest) (discount.EvaluationResult, error) {
	code := discount.NormalizeCode(req.Code)

	if !inv.InvoiceStatus.IsEditable() {
		return discount.EvaluationResult{}, ierr.NewError("invoice can no longer be edited").
			WithHintf("Discounts cannot be applied to a %s invoice", inv.InvoiceStatus).
			Mark(ierr.ErrInvalidOperation)
	}

	if inv.DiscountEntryByCode(code) != nil {
		return discount.EvaluationResult{}, ierr.NewError("discount already applied to invoice").
			WithHint("This discount code is already applied to the invoice").
			WithReportableDetails(map[string]any{
				"invoice_id":    inv.ID,
				"discount_code": code,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	d, err := s.discounts.getByCode(ctx, code)
	if err != nil {
		return discount.EvaluationResult{}, err
	}

	result := discount.Evaluate(d, discount.EvaluationContext{
		Now:            s.now(),
		UserID:         lo.Ternary(req.UserID != "", req.UserID, inv.StudentID),
		ProposedAmount: inv.Subtotal,
		TargetEntityID: lo.Ternary(req.TargetEntityID != "", req.TargetEntityID, lo.FromPtr(inv.SubscriptionID)),
	})

	// a flat amount only means something in its own currency
	if result.Valid && d.Type == types.DiscountTypeFixedAmount && d.Currency != "" && d.Currency != inv.Currency {
		result = discount.EvaluationResult{Reason: types.DiscountRejectReasonNotApplicable}
	}

	if !result.Valid {
		s.Logger.Infow("discount rejected for invoice",
			"invoice_id", inv.ID,
			"discount_code", code,
			"reason", result.Reason,
		)
		return result, nil
	}

	if err := inv.AddDiscountEntry(&invoice.DiscountEntry{
		DiscountID:    lo.ToPtr(d.ID),
		Code:          lo.ToPtr(d.Code),
		Type:          d.Type,
		Value:         d.Value,
		Description:   d.Description,
		AppliedAmount: result.Amount,
		MaxAmount:     d.MaxDiscountAmount,
		Currency:      inv.Currency,
	}); err != nil {
		return discount.EvaluationResult{}, err
	}

	s.Logger.Infow("applied discount to invoice",
		"invoice_id", inv.ID,
		"discount_code", code,
		"amount", result.Amount,
		"caller_applied", result.CallerApplied,
	)
	return result, nil
}

func (s *invoiceService) RecomputeInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	before := inv.Copy()
	if err := inv.RecomputeWithTaxRates(); err != nil {
		return nil, err
	}

	if inv.TotalAmount.Equal(before.TotalAmount) &&
		inv.Subtotal.Equal(before.Subtotal) &&
		inv.TotalDiscounts.Equal(before.TotalDiscounts) &&
		inv.TotalTaxes.Equal(before.TotalTaxes) {
		return dto.NewInvoiceResponse(inv, s.now()), nil
	}

	// only editable invoices may have their stored totals repaired
	if !inv.InvoiceStatus.IsEditable() {
		return nil, ierr.NewError("invoice totals drifted on a closed invoice").
			WithReportableDetails(map[string]any{
				"invoice_id":   inv.ID,
				"status":       inv.InvoiceStatus,
				"stored_total": before.TotalAmount,
				"total":        inv.TotalAmount,
			}).
			Mark(ierr.ErrInvariantViolation)
	}

	s.Logger.Warnw("repaired invoice totals",
		"invoice_id", inv.ID,
		"stored_total", before.TotalAmount,
		"total", inv.TotalAmount,
	)

	if err := s.save(ctx, inv); err != nil {
		return nil, err
	}
	return dto.NewInvoiceResponse(inv, s.now()), nil
}

func (s *invoiceService) SendInvoice(ctx context.Context, id string, req dto.SendInvoiceRequest) (*dto.InvoiceResponse, error) {
	inv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if inv.InvoiceStatus != types.InvoiceStatusDraft && inv.InvoiceStatus != types.InvoiceStatusSent {
		return nil, ierr.NewError("invoice cannot be sent").
			WithHintf("A %s invoice cannot be sent", inv.InvoiceStatus).
			Mark(ierr.ErrInvalidOperation)
	}

	now := s.now()
	if err := s.issueNumber(ctx, inv, now.Year()); err != nil {
		return nil, err
	}

	if req.DueDate != nil {
		inv.DueDate = req.DueDate
	}
	inv.InvoiceStatus = types.InvoiceStatusSent
	inv.SentAt = lo.ToPtr(now)

	if err := s.save(ctx, inv); err != nil {
		return nil, err
	}

	s.Logger.Infow("sent invoice",
		"invoice_id", inv.ID,
		"invoice_number", lo.FromPtr(inv.InvoiceNumber),
		"total_amount", inv.TotalAmount,
	)
	return dto.NewInvoiceResponse(inv, now), nil
}

// issueNumber assigns the next number of the tenant's yearly sequence.
// An invoice keeps its number forever, even when voided.
func (s *invoiceService) issueNumber(ctx context.Context, inv *invoice.Invoice, year int) error {
	if inv.InvoiceNumber != nil {
		return nil
	}

	key := invoice.SequenceKey{Scope: inv.TenantID, Year: year}
	if key.Scope == "" {
		key.Scope = types.DefaultTenantID
	}
	if err := key.Validate(); err != nil {
		return err
	}

	value, err := s.InvoiceRepo.NextSequenceValue(ctx, key)
	if err != nil {
		return err
	}

	digits := invoice.DefaultNumberDigits
	if s.Config != nil {
		digits = s.Config.Billing.InvoiceNumberDigits
	}
	inv.InvoiceNumber = lo.ToPtr(invoice.FormatInvoiceNumber(year, value, digits))
	return nil
}

// MarkPaid settles the remaining amount outside the payment flow. Coded
// discounts are redeemed in the same transaction, and an entry whose cap
// was reached is dropped before the amount due is taken.
func (s *invoiceService) MarkPaid(ctx context.Context, id string, req dto.MarkInvoicePaidRequest) (*dto.InvoiceResponse, error) {
	now := s.now()
	paidAt := lo.FromPtrOr(req.PaidAt, now)

	var inv *invoice.Invoice
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.get(ctx, id)
		if err != nil {
			return err
		}

		if inv.InvoiceStatus.IsEditable() {
			if _, err := s.redeemDiscounts(ctx, inv, inv.StudentID, nil, now); err != nil {
				return err
			}
			if err := inv.RecomputeWithTaxRates(); err != nil {
				return err
			}
		}

		if _, err := inv.ApplyPayment(inv.AmountDue(), paidAt); err != nil {
			return err
		}
		return s.save(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("marked invoice paid",
		"invoice_id", inv.ID,
		"amount_paid", inv.AmountPaid,
		"total_discounts", inv.TotalDiscounts,
	)
	return dto.NewInvoiceResponse(inv, now), nil
}

// redeemDiscounts commits one usage per coded discount entry on the
// invoice for userID. The invoice id is the ledger transaction, so partial
// payments of one invoice redeem a code only once. An entry whose cap was
// reached since it was applied is removed from the invoice. The returned
// redemption is the one for preferred when set, else the first.
func (s *invoiceService) redeemDiscounts(ctx context.Context, inv *invoice.Invoice, userID string, preferred *string, now time.Time) (*dto.CommitDiscountUsageResponse, error) {
	var redemption *dto.CommitDiscountUsageResponse

	entries := lo.Filter(inv.Discounts, func(e *invoice.DiscountEntry, _ int) bool {
		return e.Code != nil
	})

	for _, entry := range entries {
		committed, err := s.discounts.CommitUsage(ctx, dto.CommitDiscountUsageRequest{
			Code:          *entry.Code,
			UserID:        userID,
			TransactionID: inv.ID,
			At:            lo.ToPtr(now),
		})
		if err != nil {
			return nil, err
		}

		if !committed.Committed && !committed.AlreadyRecorded {
			if _, err := inv.RemoveDiscountEntry(entry.ID); err != nil {
				return nil, err
			}
			s.Logger.Infow("removed discount from invoice at settlement",
				"invoice_id", inv.ID,
				"discount_code", *entry.Code,
				"reason", committed.Reason,
			)
		}

		if redemption == nil || (preferred != nil && discount.NormalizeCode(*entry.Code) == discount.NormalizeCode(*preferred)) {
			redemption = committed
		}
	}
	return redemption, nil
}

func (s *invoiceService) VoidInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := inv.Void(s.now()); err != nil {
		return nil, err
	}

	if err := s.save(ctx, inv); err != nil {
		return nil, err
	}

	s.Logger.Infow("voided invoice",
		"invoice_id", inv.ID,
		"invoice_number", lo.FromPtr(inv.InvoiceNumber),
	)
	return dto.NewInvoiceResponse(inv, s.now()), nil
}

// ListOverdue returns sent, unpaid invoices past their due date, the most
// overdue first
func (s *invoiceService) ListOverdue(ctx context.Context) ([]*dto.InvoiceResponse, error) {
	sent, err := s.InvoiceRepo.ListByStatus(ctx, types.InvoiceStatusSent)
	if err != nil {
		return nil, err
	}

	now := s.now()
	overdue := lo.FilterMap(sent, func(inv *invoice.Invoice, _ int) (*dto.InvoiceResponse, bool) {
		if !inv.IsOverdue(now) {
			return nil, false
		}
		return dto.NewInvoiceResponse(inv, now), true
	})

	sort.SliceStable(overdue, func(i, j int) bool {
		if overdue[i].DaysOverdue != overdue[j].DaysOverdue {
			return overdue[i].DaysOverdue > overdue[j].DaysOverdue
		}
		return overdue[i].ID < overdue[j].ID
	})
	return overdue, nil
}
