package types

import "strings"

// ShippingAddress is the delivery address attached to a checkout session.
// It is copied onto every order the session creates and never edited afterwards.
type ShippingAddress struct {
	Name         string `json:"name" validate:"required,max=120"`
	AddressLine1 string `json:"addressLine1" validate:"required,max=200"`
	AddressLine2 string `json:"addressLine2,omitempty" validate:"omitempty,max=200"`
	City         string `json:"city" validate:"required,max=100"`
	State        string `json:"state" validate:"required,max=100"`
	PinCode      string `json:"pinCode" validate:"required,numeric,len=6"`
	Phone        string `json:"phone" validate:"required,min=10,max=15"`
	Email        string `json:"email" validate:"required,email"`
}

// Normalize trims surrounding whitespace from every field.
func (a ShippingAddress) Normalize() ShippingAddress {
	return ShippingAddress{
		Name:         strings.TrimSpace(a.Name),
		AddressLine1: strings.TrimSpace(a.AddressLine1),
		AddressLine2: strings.TrimSpace(a.AddressLine2),
		City:         strings.TrimSpace(a.City),
		State:        strings.TrimSpace(a.State),
		PinCode:      strings.TrimSpace(a.PinCode),
		Phone:        strings.TrimSpace(a.Phone),
		Email:        strings.ToLower(strings.TrimSpace(a.Email)),
	}
}

// IsZero reports whether no address was provided.
func (a ShippingAddress) IsZero() bool {
	return a == ShippingAddress{}
}
