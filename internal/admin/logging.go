package admin

import (
	"context"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// UnaryLogging logs every unary call with its procedure, code and latency.
func UnaryLogging(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(
			ctx context.Context,
			req connect.AnyRequest,
		) (connect.AnyResponse, error) {
			start := time.Now()

			res, err := next(ctx, req)
			level := slog.LevelInfo
			code := "ok"
			if err != nil {
				level = slog.LevelError
				code = connect.CodeOf(err).String()
			}

			logger.Log(ctx, level, "rpc",
				"procedure", req.Spec().Procedure,
				"peer", req.Peer().Addr,
				"code", code,
				"lat_ms", time.Since(start).Milliseconds(),
			)

			return res, err
		}
	}
}
