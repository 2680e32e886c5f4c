package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
)

const (
	// TokenHeader is the header name for the API token.
	TokenHeader = "X-Groovebox-Token"
)

// authInterceptor validates the API token on the server side and attaches
// it on the client side. Unary and streaming calls are both covered.
type authInterceptor struct {
	token string
}

// NewAuthInterceptor creates a server interceptor that rejects requests
// whose token header does not match token.
func NewAuthInterceptor(token string) connect.Interceptor {
	return &authInterceptor{token: token}
}

// NewTokenInterceptor creates a client interceptor that sends token.
func NewTokenInterceptor(token string) connect.Interceptor {
	return &authInterceptor{token: token}
}

func (i *authInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			req.Header().Set(TokenHeader, i.token)
			return next(ctx, req)
		}
		if err := i.check(req.Header().Get(TokenHeader)); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *authInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		conn.RequestHeader().Set(TokenHeader, i.token)
		return conn
	}
}

func (i *authInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := i.check(conn.RequestHeader().Get(TokenHeader)); err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (i *authInterceptor) check(token string) error {
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(i.token)) != 1 {
		return connect.NewError(connect.CodeUnauthenticated, nil)
	}
	return nil
}
