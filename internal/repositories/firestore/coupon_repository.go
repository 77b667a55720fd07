package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/threadcraft/api/internal/domain"
	pfirestore "github.com/threadcraft/api/internal/platform/firestore"
)

const couponsCollection = "coupons"

// CouponRepository resolves coupon codes. Documents are keyed by the
// lowercased code so lookups stay case-insensitive.
type CouponRepository struct {
	coupons *pfirestore.BaseRepository[couponDocument]
}

func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{
		coupons: pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection, nil, nil),
	}, nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.coupons == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return domain.Coupon{}, errors.New("coupon find: code is required")
	}
	doc, err := r.coupons.Get(ctx, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type couponDocument struct {
	Type        string     `firestore:"type"`
	Value       int64      `firestore:"value"`
	MinSubtotal int64      `firestore:"minSubtotal"`
	ExpiresAt   *time.Time `firestore:"expiresAt,omitempty"`
	Active      bool       `firestore:"active"`
}

func (d couponDocument) toDomain(code string) domain.Coupon {
	return domain.Coupon{
		Code:        code,
		Type:        domain.CouponType(d.Type),
		Value:       d.Value,
		MinSubtotal: d.MinSubtotal,
		ExpiresAt:   d.ExpiresAt,
		Active:      d.Active,
	}
}
