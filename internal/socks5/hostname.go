package socks5

import "golang.org/x/net/idna"

// idnaProfile normalizes and validates domain names decoded from an
// ATYP=DOMAIN request before they reach the resolver. This mirrors
// the corpus's habit of normalizing untrusted wire-format strings
// before use (internal/filetransfer/stream.go does the same for
// transferred filenames with golang.org/x/text/unicode/norm); here
// the untrusted string is a SOCKS5 destination hostname instead of a
// filename.
var idnaProfile = idna.New(
	idna.ValidateLabels(true),
	idna.StrictDomainName(false),
)

// normalizeHostname converts a raw, possibly-Unicode hostname taken
// from a DOMAIN request into its ASCII (punycode) form for
// resolution. On any normalization failure the original string is
// returned unchanged so that plain ASCII hostnames — the overwhelming
// common case — are never rejected by a stricter-than-necessary IDNA
// pass.
func normalizeHostname(name string) string {
	ascii, err := idnaProfile.ToASCII(name)
	if err != nil {
		return name
	}
	return ascii
}
