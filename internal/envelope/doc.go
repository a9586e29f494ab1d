// Package envelope dispatches versioned JSON requests to application
// services.
//
// Each service exposes a closed set of request variants, one per operation.
// A request variant is a polymorphic value whose discriminator names the
// operation; it carries the operation arguments, validates them, and invokes
// exactly one method of the service.
//
// Service ties the pieces together for one service type:
//
//	parse -> read apiVersion -> migrate request -> decode -> validate ->
//	invoke -> encode response -> migrate response down -> deterministic bytes
//
// Every failure along that pipeline becomes a structured error response
// carrying a stable discriminator and a message.
package envelope
