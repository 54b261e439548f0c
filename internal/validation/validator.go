package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// delivery orders must carry an address; pickup must not be rejected for omitting one
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	if req.Fulfillment.Type == "delivery" && req.Fulfillment.Address == "" {
		sl.ReportError(req.Fulfillment.Address, "fulfillment.address", "Address", "required_for_delivery", "")
	}
}
