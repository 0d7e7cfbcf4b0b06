package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/cart-checkout/internal/port"
)

const (
	UserIDHeader   = "X-User-ID"
	UserIDMetadata = "user-id"
	maxUserIDLen   = 64
)

type ctxKey struct{}

// HeaderIdentity trusts the user id forwarded by the gateway in front of the
// service. Credential checks happen there.
type HeaderIdentity struct{}

func (HeaderIdentity) Resolve(_ context.Context, credential string) (string, error) {
	id := strings.TrimSpace(credential)
	if id == "" {
		return "", fmt.Errorf("missing user id: %w", ErrUnauthenticated)
	}
	if len(id) > maxUserIDLen || strings.ContainsAny(id, " \t\r\n") {
		return "", fmt.Errorf("malformed user id: %w", ErrUnauthenticated)
	}
	return id, nil
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func Authenticate(resolver port.IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolver.Resolve(r.Context(), r.Header.Get(UserIDHeader))
			if err != nil {
				respondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// AuthInterceptor resolves the user-id metadata for every method except the
// public catalog reads.
func AuthInterceptor(resolver port.IdentityResolver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if publicMethods[info.FullMethod] {
			return next(ctx, req)
		}

		var credential string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(UserIDMetadata); len(v) > 0 {
				credential = v[0]
			}
		}
		userID, err := resolver.Resolve(ctx, credential)
		if err != nil {
			return nil, status.Error(grpcCode(err), err.Error())
		}
		return next(WithUserID(ctx, userID), req)
	}
}
