package httpx

import "net/http"

// redirectResponder hands strategy redirects to the ResponseWriter. The location is
// written as given; http.Redirect would rewrite relative paths.
type redirectResponder struct {
	w       http.ResponseWriter
	written bool
}

func (r *redirectResponder) Redirect(location string, status int, _ bool) {
	r.w.Header().Set("Location", location)
	r.w.Header().Set("Cache-Control", "no-store")
	r.w.WriteHeader(status)
	r.written = true
}
