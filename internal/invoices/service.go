package invoices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/medimart/storefront/pkg/db"
	"github.com/medimart/storefront/pkg/db/models"
	"github.com/medimart/storefront/pkg/enums"
	pkgerrors "github.com/medimart/storefront/pkg/errors"
	"github.com/medimart/storefront/pkg/logger"
)

const (
	numberUniqueConstraint  = "invoices_invoice_number_key"
	paymentUniqueConstraint = "invoices_payment_id_key"
	sequenceTTL             = 48 * time.Hour
	defaultPrefix           = "INV"
)

type Service interface {
	// Create issues the invoice for a payment owned by userID. Issuing twice
	// for the same payment returns the original invoice.
	Create(ctx context.Context, userID, paymentID uuid.UUID) (*Issued, error)
	Get(ctx context.Context, viewer Viewer, id uuid.UUID) (*models.Invoice, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error)
}

// Issued wraps an invoice with whether this call created it.
type Issued struct {
	Invoice *models.Invoice
	Created bool
}

type Viewer struct {
	UserID uuid.UUID
	Role   enums.Role
}

// Sequencer hands out per-day invoice counters. The redis client satisfies it.
type Sequencer interface {
	NextSequence(ctx context.Context, name string, ttl time.Duration) (int64, error)
}

type paymentOwner interface {
	Owned(ctx context.Context, userID, paymentID uuid.UUID) (*models.Payment, error)
}

type repository interface {
	Create(ctx context.Context, inv *models.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.Invoice, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error)
}

type ServiceParams struct {
	Repo      repository
	Payments  paymentOwner
	Sequencer Sequencer
	Prefix    string
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo     repository
	payments paymentOwner
	seq      Sequencer
	prefix   string
	logg     *logger.Logger
	now      func() time.Time
	group    singleflight.Group
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("invoices repository is required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service is required")
	}
	if params.Sequencer == nil {
		return nil, fmt.Errorf("invoice sequencer is required")
	}
	prefix := strings.ToUpper(strings.TrimSpace(params.Prefix))
	if prefix == "" {
		prefix = defaultPrefix
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		payments: params.Payments,
		seq:      params.Sequencer,
		prefix:   prefix,
		logg:     logg,
		now:      now,
	}, nil
}

func (s *service) Create(ctx context.Context, userID, paymentID uuid.UUID) (*Issued, error) {
	payment, err := s.payments.Owned(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not paid").
			WithDetails(map[string]any{"status": payment.Status})
	}

	// Concurrent requests for one payment in this process share a single issue.
	v, err, _ := s.group.Do(paymentID.String(), func() (any, error) {
		return s.issue(context.WithoutCancel(ctx), payment)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Issued), nil
}

func (s *service) issue(ctx context.Context, payment *models.Payment) (*Issued, error) {
	if existing, err := s.existing(ctx, payment.ID); err != nil || existing != nil {
		return existing, err
	}

	issuedAt := s.now().UTC()
	number, err := s.nextNumber(ctx, issuedAt)
	if err != nil {
		return nil, err
	}
	inv := &models.Invoice{
		InvoiceNumber: number,
		PaymentID:     payment.ID,
		UserID:        payment.UserID,
		TotalCents:    payment.AmountCents,
		Currency:      payment.Currency,
		Status:        enums.InvoiceStatusPaid,
		IssuedAt:      issuedAt,
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		if db.IsUniqueViolation(err, paymentUniqueConstraint) || db.IsUniqueViolation(err, "payment_id") {
			if existing, lookupErr := s.existing(ctx, payment.ID); lookupErr != nil || existing != nil {
				return existing, lookupErr
			}
		}
		if db.IsUniqueViolation(err, numberUniqueConstraint) || db.IsUniqueViolation(err, "invoice_number") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "invoice number already issued")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create invoice")
	}

	created, err := s.repo.FindByID(ctx, inv.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload invoice")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"invoice_id": created.ID.String(), "invoice_number": number, "payment_id": payment.ID.String()})
	s.logg.Info(ctx, "invoice.issued")
	return &Issued{Invoice: created, Created: true}, nil
}

func (s *service) existing(ctx context.Context, paymentID uuid.UUID) (*Issued, error) {
	inv, err := s.repo.FindByPaymentID(ctx, paymentID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup invoice")
	}
	return &Issued{Invoice: inv}, nil
}

// nextNumber formats PREFIX-YYYYMMDD-NNNNNN from the day's counter.
func (s *service) nextNumber(ctx context.Context, at time.Time) (string, error) {
	day := at.Format("20060102")
	n, err := s.seq.NextSequence(ctx, "invoice:"+day, sequenceTTL)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate invoice number")
	}
	return fmt.Sprintf("%s-%s-%06d", s.prefix, day, n), nil
}

func (s *service) Get(ctx context.Context, viewer Viewer, id uuid.UUID) (*models.Invoice, error) {
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
	}
	if inv.UserID != viewer.UserID && viewer.Role != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	return inv, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list invoices")
	}
	return rows, nil
}
