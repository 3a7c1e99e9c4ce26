package gmailprov

import (
	"testing"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"

	"mailtriage/internal/provider"
)

func TestWrapErr(t *testing.T) {
	g := New(Config{}, zap.NewNop())

	tests := []struct {
		name  string
		code  int
		msg   string
		check func(error) bool
	}{
		{"unauthorized", 401, "invalid credentials", provider.IsAuthError},
		{"forbidden", 403, "insufficient permissions", provider.IsAuthError},
		{"quota as 403", 403, "User-rate limit exceeded", provider.IsRateLimitError},
		{"throttled", 429, "too many requests", provider.IsRateLimitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.wrapErr(&googleapi.Error{Code: tt.code, Message: tt.msg})
			if !tt.check(err) {
				t.Errorf("wrapErr(%d %q) = %v, wrong classification", tt.code, tt.msg, err)
			}
		})
	}
}

func TestWrapErr_PassesThroughOtherErrors(t *testing.T) {
	g := New(Config{}, zap.NewNop())
	err := g.wrapErr(&googleapi.Error{Code: 500, Message: "backend error"})
	if provider.IsAuthError(err) || provider.IsRateLimitError(err) {
		t.Errorf("5xx misclassified: %v", err)
	}
	if g.wrapErr(nil) != nil {
		t.Error("nil must stay nil")
	}
}
