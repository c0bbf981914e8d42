package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type ctxKey struct{}

// Actor identifies the operator on whose behalf remote calls are made.
type Actor struct {
	ID    string
	Token string
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// GetActor returns the actor placed by ContextInterceptor, falling back to
// the raw incoming metadata.
func GetActor(ctx context.Context) (Actor, bool) {
	if a, ok := ctx.Value(ctxKey{}).(Actor); ok {
		return a, true
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return Actor{}, false
	}
	a := fromMetadata(md)
	return a, a.ID != "" || a.Token != ""
}

func fromMetadata(md metadata.MD) Actor {
	var a Actor
	if v := md.Get("x-actor-id"); len(v) > 0 {
		a.ID = v[0]
	}
	if v := md.Get("authorization"); len(v) > 0 {
		a.Token = strings.TrimSpace(strings.TrimPrefix(v[0], "Bearer "))
	}
	return a
}

// ContextInterceptor copies the actor headers into the request context.
func ContextInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if a := fromMetadata(md); a.ID != "" || a.Token != "" {
				ctx = WithActor(ctx, a)
			}
		}
		return handler(ctx, req)
	}
}
