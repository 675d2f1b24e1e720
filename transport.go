package pltm

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"

	"github.com/pltm/engine/internal/auth"
	"github.com/pltm/engine/internal/config"
	"github.com/pltm/engine/internal/mcp"
	"github.com/pltm/engine/internal/ratelimit"
	"github.com/pltm/engine/internal/storage"
)

// mcpserverHandler mounts the MCP server over the streamable HTTP transport,
// the same call mark3labs/mcp-go expects a caller to make to expose an
// *mcpserver.MCPServer as a plain http.Handler.
func mcpserverHandler(s *mcp.Server) http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.MCPServer())
}

func redisOptionsFromURL(rawURL string) (*redis.Options, error) {
	return redis.ParseURL(rawURL)
}

func redisClientFrom(opts *redis.Options) *redis.Client {
	return redis.NewClient(opts)
}

// authMiddleware requires a valid bearer JWT, or a managed API key exchanged
// for one on the fly, on every MCP request. The resolved source_user is
// attached to the request context so downstream middleware (the rate
// limiter) can key off it; tool handlers still take source_user explicitly
// as an RPC argument, since one engine serves many users over the same
// connection. db may be nil, in which case the ApiKey scheme is rejected.
func authMiddleware(mgr *auth.JWTManager, db *storage.DB, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		var claims *auth.Claims
		switch {
		case strings.HasPrefix(header, "Bearer "):
			token := strings.TrimPrefix(header, "Bearer ")
			if token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			c, err := mgr.ValidateToken(token)
			if err != nil {
				http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
				return
			}
			claims = c
		case strings.HasPrefix(header, "ApiKey "):
			raw := strings.TrimPrefix(header, "ApiKey ")
			if raw == "" || db == nil {
				http.Error(w, "invalid api key", http.StatusUnauthorized)
				return
			}
			token, _, err := auth.AuthenticateAPIKey(r.Context(), db, mgr, raw)
			if err != nil {
				http.Error(w, "invalid api key: "+err.Error(), http.StatusUnauthorized)
				return
			}
			c, err := mgr.ValidateToken(token)
			if err != nil {
				http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
				return
			}
			claims = c
		default:
			http.Error(w, "missing bearer token or api key", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), sourceUserContextKey{}, claims.SourceUser)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type sourceUserContextKey struct{}

// rateLimitMiddleware applies the RPC-call rate limit, keyed by the
// authenticated caller's source_user. If limiter is nil, every call is
// allowed.
func rateLimitMiddleware(limiter *ratelimit.Limiter, cfg config.Config, logger *slog.Logger, next http.Handler) http.Handler {
	rule := ratelimit.Rule{Prefix: "mcp", Limit: int(cfg.RateLimitRPS * 60), Window: 60 * time.Second}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, _ := r.Context().Value(sourceUserContextKey{}).(string)
		if err := ratelimit.Guard(r.Context(), limiter, rule, key); err != nil {
			for k, v := range err.(*ratelimit.CallError).Result.FormatHeaders() {
				w.Header().Set(k, v)
			}
			http.Error(w, err.Error(), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
