package enums

import "testing"

func TestParsePaymentMethod(t *testing.T) {
	for _, raw := range []string{"card", "upi", "cod", "barter"} {
		got, err := ParsePaymentMethod(raw)
		if err != nil {
			t.Fatalf("ParsePaymentMethod(%q): %v", raw, err)
		}
		if got.String() != raw {
			t.Fatalf("expected %q got %q", raw, got)
		}
	}
	if _, err := ParsePaymentMethod("paypal"); err == nil {
		t.Fatal("expected unknown method to fail")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderStatusDelivered: true,
		OrderStatusCancelled: true,
		OrderStatusRefunded:  true,
	}
	for _, status := range validOrderStatuses {
		if status.IsTerminal() != terminal[status] {
			t.Fatalf("status %s terminal=%v", status, status.IsTerminal())
		}
	}
}

func TestCheckoutStateHelpers(t *testing.T) {
	if !CheckoutStateSettled.IsTerminal() || !CheckoutStateExpired.IsTerminal() {
		t.Fatal("settled and expired are terminal")
	}
	if CheckoutStateFailed.IsTerminal() {
		t.Fatal("failed sessions can retry")
	}
	if CheckoutStateMethodChosen.HasOrders() {
		t.Fatal("method_chosen has no orders yet")
	}
	if !CheckoutStateFailed.HasOrders() {
		t.Fatal("failed sessions keep their orders")
	}
}

func TestParseBarterCategoryRejectsUnknown(t *testing.T) {
	if _, err := ParseBarterCategory("vehicles"); err == nil {
		t.Fatal("expected unknown category to fail")
	}
	if got, err := ParseBarterCategory("collectibles"); err != nil || got != BarterCategoryCollectibles {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
}
