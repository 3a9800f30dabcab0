package validator

// Validator validates tagged structs and reports field errors.
type Validator interface {
	Validate(data any) error
}
