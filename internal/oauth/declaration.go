package oauth

// Declaration names the token endpoint a client exchanges credentials at.
type Declaration struct {
	Provider string
	TokenURL string
	Scope    string
}
