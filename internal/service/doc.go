// Package service is the console's single entry point for mutations.
//
// Console runs every write through the same pipeline:
//
//	form ──► ValidateForm ──► Form.Device / Form.Register ──► repository ──► events
//	              │                     │
//	              ▼                     ▼
//	   *form.ValidationError     *form.ParseError
//
// Nothing is persisted when validation fails. Mutations are serialised so
// that the uniqueness checks see the collection they are about to modify.
package service
