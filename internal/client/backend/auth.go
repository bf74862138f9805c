package backend

import "context"

type accessTokenKey struct{}

// WithAccessToken кладёт токен сессии пользователя в контекст запроса.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessToken достаёт токен сессии из контекста.
func AccessToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey{}).(string)
	return token, ok && token != ""
}
