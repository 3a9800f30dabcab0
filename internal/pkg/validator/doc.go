// Package validator validates request payloads and dependency structs against
// their struct tags.
//
// Use cases depend on the Validator interface; the concrete implementation
// wraps go-playground/validator v10 and registers the custom tags the modules
// rely on, such as phone and alphaspace.
package validator
