package auth

// HTTP header constants.
const (
	// HeaderAuthorization is the Authorization header name.
	HeaderAuthorization = "Authorization"

	// HeaderWWWAuthenticate is the WWW-Authenticate header name.
	HeaderWWWAuthenticate = "WWW-Authenticate"

	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderUserAgent is the User-Agent header name.
	HeaderUserAgent = "User-Agent"

	// HeaderPrincipal carries the authenticated principal ID upstream.
	HeaderPrincipal = "X-Auth-Principal"
)

// ContentTypeJSON is the JSON content type.
const ContentTypeJSON = "application/json"

// AuthSchemeBearer is the Bearer authentication scheme prefix.
const AuthSchemeBearer = "Bearer "

// QueryParamToken is the query parameter accepted for signed tokens.
const QueryParamToken = "token"

// Error codes returned in rejection bodies.
const (
	CodeMissingAPIKey           = "MISSING_API_KEY"
	CodeInvalidAPIKey           = "INVALID_API_KEY"
	CodeInvalidToken            = "INVALID_TOKEN"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeInternalError           = "INTERNAL_ERROR"
)
