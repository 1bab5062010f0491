package protect

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Policy is the request budget applied to one family of endpoints.
type Policy struct {
	Name   string        `mapstructure:"name"`
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// Built-in policies.
var (
	DefaultPolicy = Policy{Name: "default", Limit: 10, Window: 60 * time.Second}
	UploadPolicy  = Policy{Name: "upload", Limit: 5, Window: 300 * time.Second}
)

// Rejection is a terminal response produced by the gate.
type Rejection struct {
	Status  int
	Reason  string
	Body    any
	Headers map[string]string
}

// Write sends the rejection to the client as JSON.
func (rj *Rejection) Write(w http.ResponseWriter) {
	for k, v := range rj.Headers {
		w.Header().Set(k, v)
	}
	writeJSON(w, rj.Status, rj.Body)
}

// UserFunc extracts the authenticated user ID from a request context.
type UserFunc func(ctx context.Context) string

// Gate runs the blocklist and rate-limit checks in order. It is the first
// thing every inference and upload handler calls.
type Gate struct {
	filter  *Filter
	limiter Limiter
	user    UserFunc
	logger  *zap.Logger
}

// NewGate composes a filter and a limiter. user may be nil, in which case
// every caller is keyed by address.
func NewGate(filter *Filter, limiter Limiter, user UserFunc, logger *zap.Logger) *Gate {
	if user == nil {
		user = func(context.Context) string { return "" }
	}
	return &Gate{filter: filter, limiter: limiter, user: user, logger: logger}
}

// IdentityOf returns the rate-limit identity of the caller of r.
func (g *Gate) IdentityOf(r *http.Request) string {
	return Identity(ClientAddress(r), g.user(r.Context()))
}

// Check returns nil when the request may proceed.
func (g *Gate) Check(r *http.Request, userID string, p Policy) *Rejection {
	addr := ClientAddress(r)
	if g.filter != nil && g.filter.IsBlocked(addr) {
		g.logger.Warn("blocked address rejected",
			zap.String("addr", addr),
			zap.String("path", r.URL.Path),
		)
		rejectionsTotal.WithLabelValues(ReasonBlocked).Inc()
		return &Rejection{
			Status: http.StatusForbidden,
			Reason: ReasonBlocked,
			Body:   map[string]string{"message": "Access denied"},
		}
	}

	identity := Identity(addr, userID)
	_, err := g.limiter.Check(r.Context(), identity, p.Limit, p.Window)
	switch {
	case errors.Is(err, ErrRateLimited):
		g.logger.Info("rate limit exceeded",
			zap.String("identity", identity),
			zap.String("policy", p.Name),
		)
		rejectionsTotal.WithLabelValues(ReasonRateLimited).Inc()
		return &Rejection{
			Status: http.StatusTooManyRequests,
			Reason: ReasonRateLimited,
			Body:   map[string]string{"message": "Too many requests"},
			Headers: map[string]string{
				"Retry-After":           strconv.Itoa(int(math.Ceil(p.Window.Seconds()))),
				"X-RateLimit-Limit":     strconv.Itoa(p.Limit),
				"X-RateLimit-Remaining": "0",
			},
		}
	case err != nil:
		// The rate table backend is down; serve rather than lock everyone out.
		g.logger.Error("rate limiter unavailable, allowing request",
			zap.String("identity", identity),
			zap.Error(err),
		)
	}
	return nil
}

// Protect runs Check for the caller of r and writes the terminal response
// when the request is rejected. It reports whether the handler may proceed.
func (g *Gate) Protect(w http.ResponseWriter, r *http.Request, p Policy) bool {
	if rj := g.Check(r, g.user(r.Context()), p); rj != nil {
		rj.Write(w)
		return false
	}
	return true
}

// Invalid writes the validation failure response.
func (g *Gate) Invalid(w http.ResponseWriter, details []string) {
	rejectionsTotal.WithLabelValues(ReasonInvalidInput).Inc()
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"message": "Invalid input",
		"details": details,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
