package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medimart/storefront/pkg/db"
	"github.com/medimart/storefront/pkg/db/models"
	"github.com/medimart/storefront/pkg/enums"
	pkgerrors "github.com/medimart/storefront/pkg/errors"
	"github.com/medimart/storefront/pkg/logger"
	"github.com/medimart/storefront/pkg/money"
	"github.com/medimart/storefront/pkg/pagination"
	pkgstripe "github.com/medimart/storefront/pkg/stripe"
	"github.com/medimart/storefront/pkg/types"
)

const (
	metadataUserID         = "user_id"
	intentUniqueConstraint = "payments_intent_id_key"
)

type Service interface {
	CreateIntent(ctx context.Context, userID uuid.UUID, req types.CreateIntentRequest) (*types.PaymentIntent, error)
	// Record stores a captured intent. The bool reports whether a new record
	// was created; a repeated intent id returns the existing one.
	Record(ctx context.Context, userID uuid.UUID, req types.RecordPaymentRequest) (*types.Payment, bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]types.Payment, error)
	ListAll(ctx context.Context, params pagination.Params) ([]types.Payment, string, error)
	// Owned loads a payment that must belong to userID.
	Owned(ctx context.Context, userID, paymentID uuid.UUID) (*models.Payment, error)
}

// IntentGateway is the slice of the Stripe client used here.
type IntentGateway interface {
	CreateIntent(ctx context.Context, in pkgstripe.CreateIntentInput) (pkgstripe.Intent, error)
	RetrieveIntent(ctx context.Context, id string) (pkgstripe.Intent, error)
}

type cartTotals interface {
	TotalCents(ctx context.Context, userID uuid.UUID) (int64, int, error)
}

type repository interface {
	Create(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Payment, error)
	ListAll(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Payment, error)
}

type ServiceParams struct {
	Repo    repository
	Gateway IntentGateway
	Carts   cartTotals
	Logger  *logger.Logger
}

type service struct {
	repo    repository
	gateway IntentGateway
	carts   cartTotals
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository is required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart totals are required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: params.Repo, gateway: params.Gateway, carts: params.Carts, logg: logg}, nil
}

func (s *service) CreateIntent(ctx context.Context, userID uuid.UUID, req types.CreateIntentRequest) (*types.PaymentIntent, error) {
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured")
	}
	if req.AmountMinorUnits <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	currency, err := enums.ParseCurrency(req.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency")
	}

	total, lines, err := s.carts.TotalCents(ctx, userID)
	if err != nil {
		return nil, err
	}
	if lines > 0 && total != req.AmountMinorUnits {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "amount does not match cart total").
			WithDetails(map[string]any{"expected": total, "requested": req.AmountMinorUnits})
	}

	intent, err := s.gateway.CreateIntent(ctx, pkgstripe.CreateIntentInput{
		Amount:   req.AmountMinorUnits,
		Currency: currency.String(),
		Metadata: map[string]string{metadataUserID: userID.String()},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"intent_id": intent.ID, "amount": intent.Amount}), "payment.intent_created")
	return &types.PaymentIntent{
		IntentID:         intent.ID,
		ClientSecret:     intent.ClientSecret,
		AmountMinorUnits: intent.Amount,
		Currency:         currency.String(),
	}, nil
}

func (s *service) Record(ctx context.Context, userID uuid.UUID, req types.RecordPaymentRequest) (*types.Payment, bool, error) {
	intentID := strings.TrimSpace(req.IntentID)
	if existing, err := s.existing(ctx, userID, intentID); err != nil || existing != nil {
		return existing, false, err
	}

	if s.gateway == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured")
	}
	currency, err := enums.ParseCurrency(req.Currency)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency")
	}
	items, sum, err := itemsFromRequest(req.Items)
	if err != nil {
		return nil, false, err
	}
	if sum != req.AmountMinorUnits {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "items do not add up to amount").
			WithDetails(map[string]any{"items": sum, "amount": req.AmountMinorUnits})
	}

	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		if pkgstripe.IsNotFound(err) {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown payment intent")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve payment intent")
	}
	if owner := intent.Metadata[metadataUserID]; owner != "" && owner != userID.String() {
		return nil, false, pkgerrors.New(pkgerrors.CodeForbidden, "payment intent belongs to another user")
	}
	if !intent.Succeeded() {
		return nil, false, pkgerrors.New(pkgerrors.CodePayment, "payment intent has not succeeded").
			WithDetails(map[string]any{"status": intent.Status})
	}
	if intent.Amount != req.AmountMinorUnits || !strings.EqualFold(intent.Currency, currency.String()) {
		return nil, false, pkgerrors.New(pkgerrors.CodePayment, "payment intent amount mismatch").
			WithDetails(map[string]any{"captured": intent.Amount, "requested": req.AmountMinorUnits})
	}

	created, err := s.repo.Create(ctx, &models.Payment{
		UserID:      userID,
		IntentID:    intentID,
		AmountCents: req.AmountMinorUnits,
		Currency:    currency,
		Method:      enums.PaymentMethodCard,
		Status:      enums.PaymentStatusPaid,
		Items:       items,
	})
	if err != nil {
		if db.IsUniqueViolation(err, intentUniqueConstraint) || db.IsUniqueViolation(err, "intent_id") {
			existing, lookupErr := s.existing(ctx, userID, intentID)
			if lookupErr != nil || existing != nil {
				return existing, false, lookupErr
			}
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"payment_id": created.ID.String(), "intent_id": intentID}), "payment.recorded")
	return FromModel(created), true, nil
}

func (s *service) existing(ctx context.Context, userID uuid.UUID, intentID string) (*types.Payment, error) {
	found, err := s.repo.FindByIntentID(ctx, intentID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup payment")
	}
	if found.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment intent already recorded")
	}
	return FromModel(found), nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]types.Payment, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	return toList(rows), nil
}

func (s *service) ListAll(ctx context.Context, params pagination.Params) ([]types.Payment, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListAll(ctx, pagination.LimitWithBuffer(limit), cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	rows, next := pagination.Page(rows, limit, func(p models.Payment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return toList(rows), next, nil
}

func (s *service) Owned(ctx context.Context, userID, paymentID uuid.UUID) (*models.Payment, error) {
	p, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if p.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return p, nil
}

func itemsFromRequest(in []types.PaymentItemInput) ([]models.PaymentItem, int64, error) {
	if len(in) == 0 {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	out := make([]models.PaymentItem, 0, len(in))
	var sum int64
	for _, item := range in {
		id, err := uuid.Parse(strings.TrimSpace(item.ProductID))
		if err != nil {
			return nil, 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id").
				WithDetails(map[string]any{"productId": item.ProductID})
		}
		if item.Quantity < 1 || item.UnitPrice.IsNegative() {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid item").
				WithDetails(map[string]any{"productId": item.ProductID})
		}
		unit := money.ToMinorUnits(item.UnitPrice)
		sum += unit * int64(item.Quantity)
		out = append(out, models.PaymentItem{
			MedicineID:     id,
			Name:           strings.TrimSpace(item.Name),
			Brand:          strings.TrimSpace(item.Brand),
			Quantity:       item.Quantity,
			UnitPriceCents: unit,
		})
	}
	return out, sum, nil
}

func toList(rows []models.Payment) []types.Payment {
	out := make([]types.Payment, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}
