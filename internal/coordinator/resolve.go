package coordinator

import (
	"context"
	"errors"

	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/linktoken"
)

// DefaultLegacyScanLimit bounds how many orders a legacy token is tested
// against.
const DefaultLegacyScanLimit = 10000

var (
	ErrInvalidLink = apperr.BadRequest("", "this link is not valid")
	ErrLinkNoMatch = apperr.NotFound("", "order not found for this link")
)

// Resolver maps an email-link token to the order it was issued for.
type Resolver struct {
	codec  *linktoken.Codec
	orders Orders
	limit  int
}

func NewResolver(codec *linktoken.Codec, orders Orders, legacyScanLimit int) *Resolver {
	if legacyScanLimit <= 0 {
		legacyScanLimit = DefaultLegacyScanLimit
	}
	return &Resolver{codec: codec, orders: orders, limit: legacyScanLimit}
}

// OrderID returns the id of the order token grants purpose on. Signed
// tokens carry the id. Legacy digests carry nothing, so the newest orders
// are tested one by one up to the scan limit. Any other shape is rejected
// before touching storage.
func (r *Resolver) OrderID(ctx context.Context, token string, purpose linktoken.Purpose) (string, error) {
	switch linktoken.Detect(token) {
	case linktoken.KindSigned:
		claims, err := r.codec.Parse(token, purpose)
		if errors.Is(err, linktoken.ErrMalformed) {
			return "", ErrInvalidLink
		}
		if err != nil {
			return "", ErrLinkNoMatch
		}
		return claims.OrderID, nil
	case linktoken.KindLegacy:
		return r.scan(ctx, token, purpose)
	default:
		return "", ErrInvalidLink
	}
}

func (r *Resolver) scan(ctx context.Context, token string, purpose linktoken.Purpose) (string, error) {
	var (
		found   string
		visited int
	)
	err := r.orders.ForEachOrderID(ctx, func(id string) bool {
		visited++
		if r.codec.Verify(token, id, purpose) {
			found = id
			return false
		}
		return visited < r.limit
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", ErrLinkNoMatch
	}
	return found, nil
}
