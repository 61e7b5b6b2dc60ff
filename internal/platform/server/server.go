package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/ogurasousui/checkin-ledger/internal/adapters/grpc/handler"
)

// RPCObserver は RPC ごとの結果を受け取ります。
type RPCObserver interface {
	ObserveRPC(method, code string, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveRPC(string, string, time.Duration) {}

// Server は gRPC サーバーのライフサイクルを管理します。
type Server struct {
	listenAddr string
	grpcServer *grpc.Server
}

// New は指定されたアドレスで待ち受ける gRPC サーバーを構築します。
// 全ての unary 呼び出しはログと RPCObserver に記録されます。
func New(listenAddr string, checkIns handler.CheckInServiceServer, logger logrus.FieldLogger, observer RPCObserver, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if observer == nil {
		observer = noopObserver{}
	}

	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryInterceptor(logger, observer))}, opts...)
	srv := grpc.NewServer(opts...)
	handler.RegisterCheckInServiceServer(srv, checkIns)

	return &Server{
		listenAddr: listenAddr,
		grpcServer: srv,
	}
}

// UnaryInterceptor は RPC の所要時間とステータスコードを記録します。
func UnaryInterceptor(logger logrus.FieldLogger, observer RPCObserver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := next(ctx, req)
		elapsed := time.Since(started)

		code := status.Code(err)
		observer.ObserveRPC(info.FullMethod, code.String(), elapsed)

		entry := logger.WithFields(logrus.Fields{
			"method":     info.FullMethod,
			"code":       code.String(),
			"elapsed_ms": elapsed.Milliseconds(),
		})
		if err != nil {
			entry.WithError(err).Warn("rpc failed")
		} else {
			entry.Debug("rpc completed")
		}
		return resp, err
	}
}

// Run はサーバーを起動し、コンテキストがキャンセルされると GracefulStop します。
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.listenAddr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve は与えられたリスナーで待ち受けます。
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.grpcServer.GracefulStop()
	}()

	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	return nil
}

// GracefulStop はサーバーを安全に停止します。
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}
