package enums

import "slices"

// ExchangeMethod is how the bartered item changes hands.
type ExchangeMethod string

const (
	ExchangeMethodPickup  ExchangeMethod = "pickup"
	ExchangeMethodCourier ExchangeMethod = "courier"
	ExchangeMethodMeetup  ExchangeMethod = "meetup"
)

var validExchangeMethods = []ExchangeMethod{
	ExchangeMethodPickup,
	ExchangeMethodCourier,
	ExchangeMethodMeetup,
}

func (e ExchangeMethod) String() string {
	return string(e)
}

func (e ExchangeMethod) IsValid() bool {
	return slices.Contains(validExchangeMethods, e)
}

// ParseExchangeMethod converts raw input into a ExchangeMethod.
func ParseExchangeMethod(value string) (ExchangeMethod, error) {
	return parse(validExchangeMethods, value, "exchange method")
}
