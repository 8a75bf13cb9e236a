package models

// All lists every persisted model. Dev sqlite databases and tests AutoMigrate
// these; Postgres uses the goose migrations under pkg/migrate/migrations.
func All() []any {
	return []any{
		&CheckoutSession{},
		&CheckoutSessionOrder{},
		&BarterDraft{},
		&StatusMutation{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
