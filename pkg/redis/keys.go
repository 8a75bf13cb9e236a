package redis

import "strings"

// Every key lives under the lk: namespace so the service can share a Redis instance.
const (
	keyNamespace      = "lk"
	idempotencyPrefix = "idempotency"
	guestCartPrefix   = "guest_cart"
	migrationPrefix   = "cart_migration"
	upiSessionPrefix  = "upi_session"
	checkoutLock      = "checkout_lock"
	cronLockPrefix    = "cron_lock"
	rateLimitPrefix   = "rl"
)

func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

func (c *Client) RateLimitKey(scope string) string {
	return key(rateLimitPrefix, scope)
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return key(idempotencyPrefix, scope, id)
}

func (c *Client) GuestCartKey(guestToken string) string {
	return key(guestCartPrefix, guestToken)
}

// CartMigrationKey marks a guest cart as already merged into an account.
func (c *Client) CartMigrationKey(guestToken string) string {
	return key(migrationPrefix, guestToken)
}

// UPISessionKey holds the UPI payment session of one order of a checkout session.
func (c *Client) UPISessionKey(sessionID, orderID string) string {
	return key(upiSessionPrefix, sessionID, orderID)
}

// CheckoutLockKey guards order creation for a checkout session.
func (c *Client) CheckoutLockKey(sessionID string) string {
	return key(checkoutLock, sessionID)
}

func (c *Client) CronLockKey(job string) string {
	return key(cronLockPrefix, job)
}
