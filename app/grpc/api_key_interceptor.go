package grpc

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

type apiKeyAuthenticator interface {
	Authenticate(key string) error
}

func APIKeyUnaryInterceptor(keyring apiKeyAuthenticator) gogrpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			if err := validateIncomingAPIKey(ctx, keyring); err != nil {
				return nil, err
			}
		}
		return handler(ctx, req)
	}
}

func APIKeyStreamInterceptor(keyring apiKeyAuthenticator) gogrpc.StreamServerInterceptor {
	return func(srv any, ss gogrpc.ServerStream, info *gogrpc.StreamServerInfo, handler gogrpc.StreamHandler) error {
		if !strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			if err := validateIncomingAPIKey(ss.Context(), keyring); err != nil {
				return err
			}
		}
		return handler(srv, ss)
	}
}

func validateIncomingAPIKey(ctx context.Context, keyring apiKeyAuthenticator) error {
	if err := keyring.Authenticate(incomingAPIKeyFromMetadata(ctx)); err != nil {
		logrus.Debug("Rejected x-api-key metadata (grpc)")
		return status.Error(codes.Unauthenticated, "unauthorized")
	}
	return nil
}

func incomingAPIKeyFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("x-api-key")
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
