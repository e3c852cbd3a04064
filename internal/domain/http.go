package domain

// HTTPRequestParams describes a single outbound request to the
// manager. Token takes precedence over BasicAuth when both are set.
type HTTPRequestParams struct {
	Method    string
	Host      string
	Port      string
	Path      string
	UserAgent string
	Token     string
	BasicAuth string // pre-encoded "base64(user:pass)", empty if unused
	Body      []byte
	UseTLS    bool
}
