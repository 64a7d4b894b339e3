// Package auth authenticates and authorizes inbound requests.
//
// A request moves through a small state machine:
//
//	extract credential -> validate (strategy) -> authorize -> accept
//
// Any step may reject the request. The Service returns an Outcome instead of
// an error so every branch is explicit, and it emits exactly one audit event
// per outcome.
//
// Validation is pluggable through Strategy. The static key strategy lives in
// the apikey subpackage and the signed token strategy in the jwt
// subpackage; both return *Error values carrying an ErrorKind.
//
// GinMiddleware and Middleware adapt the Service to gin and net/http. On
// success the principal is stored in the request context and can be read
// with PrincipalFromContext.
package auth
