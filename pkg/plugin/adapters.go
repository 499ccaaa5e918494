package plugin

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// HTTPHandlerAdapter mounts a plain handler on an httprouter route
func HTTPHandlerAdapter(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		handler(w, r)
	}
}

// ParamsFromRequest returns the route parameters httprouter stored in the
// request context, if any
func ParamsFromRequest(r *http.Request) httprouter.Params {
	return httprouter.ParamsFromContext(r.Context())
}
