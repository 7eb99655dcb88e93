package api

import (
	"net/http"

	"github.com/revittco/toolgw/internal/auth"
	"github.com/revittco/toolgw/internal/config"
	"github.com/revittco/toolgw/internal/jobs"
	"github.com/revittco/toolgw/internal/mcpserver"
	"github.com/revittco/toolgw/internal/policy"
	"github.com/revittco/toolgw/internal/registry"
	"github.com/revittco/toolgw/internal/store"
)

// RouterDeps holds the dependencies needed by the HTTP API router.
type RouterDeps struct {
	Config     *config.Config
	Store      store.Store
	Registry   *registry.Registry
	Policy     *policy.Engine
	Validator  *auth.Validator
	Dispatcher *mcpserver.Dispatcher
	JobRunner  *jobs.Runner
	Files      FileFetcher // optional; /files/... is 404 without one
}

// NewRouter creates an http.Handler with every external route named in the
// gateway's interface contract.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	authn := newAuthenticator(deps.Validator, deps.Policy)

	mux.HandleFunc("GET /health", healthHandler(deps.Config.AppName))

	// Scope validation runs before authentication: an unknown scope is 404
	// regardless of what (if anything) is in the Authorization header.
	mcp := &mcpHandler{dispatcher: deps.Dispatcher}
	sseGet := requireValidScope(authn.middleware(http.HandlerFunc(mcp.sse)))
	mux.Handle("POST /{scope}/sse", requireValidScope(authn.middleware(http.HandlerFunc(mcp.message))))

	tools := &toolsHandler{registry: deps.Registry, policy: deps.Policy}
	mux.Handle("GET /mcp/tools", authn.middleware(http.HandlerFunc(tools.list)))

	jh := &jobsHandler{runner: deps.JobRunner, store: deps.Store}
	mux.Handle("POST /mcp/jobs", authn.middleware(http.HandlerFunc(jh.submit)))
	mux.Handle("GET /mcp/jobs/{id}", authn.middleware(http.HandlerFunc(jh.get)))
	mux.Handle("DELETE /mcp/jobs", authn.middleware(requireAdmin(http.HandlerFunc(jh.reap))))

	auditH := &auditHandler{store: deps.Store}
	mux.Handle("GET /admin/audit-logs", authn.middleware(requireAdmin(http.HandlerFunc(auditH.query))))

	files := &filesHandler{fetcher: deps.Files}
	filesGet := authn.middleware(http.HandlerFunc(files.get))
	// GET /{scope}/sse and GET /files/{path...} both match /files/sse, a pair
	// ServeMux refuses to register, so one pattern serves both routes.
	mux.HandleFunc("GET /{first}/{rest...}", func(w http.ResponseWriter, r *http.Request) {
		if first, rest := r.PathValue("first"), r.PathValue("rest"); first == "files" {
			r.SetPathValue("path", rest)
			filesGet.ServeHTTP(w, r)
		} else if rest == "sse" {
			r.SetPathValue("scope", first)
			sseGet.ServeHTTP(w, r)
		} else {
			http.NotFound(w, r)
		}
	})

	// Middleware chain: requestID -> logging -> body-limit -> mux. The
	// request ID must be assigned before the logging wrapper runs so the
	// per-request log line can carry it.
	var handler http.Handler = mux
	handler = requestBodyLimitMiddleware(handler)
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return handler
}
