// Package jwt implements the signed token strategy.
//
// Tokens are verified with lestrrat-go/jwx: the header algorithm is checked
// against an allow-list, HMAC tokens are verified with the shared secret and
// asymmetric ones against a key set loaded from a JWKS file or URL. The
// registered claims are validated, the token is checked against a
// revocation store and a principal is built from the claims.
package jwt
