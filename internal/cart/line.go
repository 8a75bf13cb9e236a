package cart

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/marketplace"
)

// Owner identifies whose cart an operation acts on. Authenticated carts live in the
// marketplace backend; guest carts live in Redis under the guest token.
type Owner struct {
	UserID     string
	GuestToken string
}

func (o Owner) IsGuest() bool {
	return strings.TrimSpace(o.UserID) == ""
}

// Line is a cart line with the product snapshot taken when it was added.
type Line struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	Price     decimal.Decimal `json:"price"`
	SellerID  string          `json:"sellerId,omitempty"`
	Quantity  int             `json:"quantity"`
}

// LineTotal is price × quantity.
func (l Line) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot converts the line into the form stored with a checkout session.
func (l Line) Snapshot() models.CartLineSnapshot {
	return models.CartLineSnapshot{
		ProductID: l.ProductID,
		Name:      l.Name,
		Image:     l.Image,
		Price:     l.Price,
		SellerID:  l.SellerID,
		Quantity:  l.Quantity,
	}
}

// FromSnapshot rebuilds a line from a session snapshot.
func FromSnapshot(s models.CartLineSnapshot) Line {
	return Line{
		ProductID: s.ProductID,
		Name:      s.Name,
		Image:     s.Image,
		Price:     s.Price,
		SellerID:  s.SellerID,
		Quantity:  s.Quantity,
	}
}

func lineFromProduct(p marketplace.Product, qty int) Line {
	return Line{
		ProductID: p.ID,
		Name:      p.Name,
		Image:     p.PrimaryImage(),
		Price:     p.Price,
		SellerID:  p.Seller.ID,
		Quantity:  qty,
	}
}

func linesFromBackend(items []marketplace.CartItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 || item.Product.ID == "" {
			continue
		}
		lines = append(lines, lineFromProduct(item.Product, item.Quantity))
	}
	return lines
}

// Fingerprint identifies the cart contents independent of line order.
// Checkout compares fingerprints to detect a cart edited mid-checkout.
func Fingerprint(lines []Line) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, l.ProductID+"|"+strconv.Itoa(l.Quantity)+"|"+l.Price.StringFixed(2))
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, ";")))
	return hex.EncodeToString(sum[:])
}
