package grpcsvc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/vladislavdragonenkov/storefront/internal/client/backend"
)

const authorizationHeader = "authorization"

// AccessTokenInterceptor переносит токен сессии из метаданных authorization
// в контекст запроса, откуда его берёт клиент бэкенда.
func AccessTokenInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token := bearerToken(ctx); token != "" {
			ctx = backend.WithAccessToken(ctx, token)
		}
		return handler(ctx, req)
	}
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(authorizationHeader)
	if len(values) == 0 {
		return ""
	}
	token := strings.TrimSpace(values[0])
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
