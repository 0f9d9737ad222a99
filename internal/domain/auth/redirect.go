package auth

import "net/http"

// RedirectDirective tells the response layer to send the caller elsewhere instead of
// resolving an identity. It only lives for the duration of one authentication attempt.
type RedirectDirective struct {
	Location  string
	Status    int
	Permanent bool
}

// RedirectOptions tune the status policy applied by NewRedirect.
type RedirectOptions struct {
	// Permanent selects 301 instead of 302 when Status is zero.
	Permanent bool
	// Status, when non-zero, is used verbatim and wins over both defaults.
	Status int
}

// NewRedirect builds a directive for location. Without options the status is 302.
// Permanent redirects use 301. An explicit status (e.g. 401) overrides both.
// The location is kept verbatim; no validation or normalisation happens here.
func NewRedirect(location string, opts ...RedirectOptions) RedirectDirective {
	var o RedirectOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	status := http.StatusFound
	if o.Permanent {
		status = http.StatusMovedPermanently
	}
	if o.Status != 0 {
		status = o.Status
	}

	return RedirectDirective{
		Location:  location,
		Status:    status,
		Permanent: o.Permanent,
	}
}
