package xhttp

import (
	"github.com/fasthttp/router"
)

type Router = router.Router
type Group = router.Group

func NewRouter() *Router {
	return router.New()
}

// CreateDefaultRouter returns a router whose unmatched routes answer with the
// same JSON error shape the treasury handlers use.
func CreateDefaultRouter() *Router {
	r := NewRouter()
	r.RedirectFixedPath = true
	r.RedirectTrailingSlash = true
	r.SaveMatchedRoutePath = true
	r.NotFound = NotFoundHandler
	r.MethodNotAllowed = MethodNotAllowedHandler
	r.HandleOPTIONS = false
	r.HandleMethodNotAllowed = true
	return r
}

func NotFoundHandler(ctx *RequestCtx) {
	writeRouteError(ctx, StatusNotFound, "route_not_found")
}

func MethodNotAllowedHandler(ctx *RequestCtx) {
	writeRouteError(ctx, StatusMethodNotAllowed, "method_not_allowed")
}

func writeRouteError(ctx *RequestCtx, status int, code string) {
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyString(`{"error":"` + StatusText(status) + `","code":"` + code + `"}`)
}
