package api

import "net/http"

// ownerID extracts the authenticated caller's owner id from the
// request. Real deployments terminate a proper identity layer (e.g.
// a JWT validated by an API gateway) in front of this service and
// forward the subject as this header; this front door trusts it
// verbatim, matching spec.md's framing of authentication as already
// having happened by the time a request reaches the core's public
// operations.
func ownerID(r *http.Request) (string, bool) {
	id := r.Header.Get("X-Owner-Id")
	if id == "" {
		return "", false
	}
	return id, true
}

func writeUnauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "missing X-Owner-Id header")
}
