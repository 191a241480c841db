package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-market-auth/app/entity"
	"github.com/vibast-solutions/ms-go-market-auth/app/service"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type currentUserResolver interface {
	CurrentUser(ctx context.Context, accessToken string) (*entity.User, *entity.ActiveToken, error)
}

type TokenServer struct {
	resolver currentUserResolver
}

func NewTokenServer(resolver currentUserResolver) *TokenServer {
	return &TokenServer{resolver: resolver}
}

// NewServer builds a gRPC server exposing TokenService and the standard health
// service, with every TokenService call guarded by the API key interceptors.
func NewServer(keyring apiKeyAuthenticator, resolver currentUserResolver) (*gogrpc.Server, *health.Server) {
	srv := gogrpc.NewServer(
		gogrpc.UnaryInterceptor(APIKeyUnaryInterceptor(keyring)),
		gogrpc.StreamInterceptor(APIKeyStreamInterceptor(keyring)),
	)
	RegisterTokenServiceServer(srv, NewTokenServer(resolver))

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(TokenServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, healthSrv)
	return srv, healthSrv
}

func (s *TokenServer) Verify(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	accessToken := strings.TrimSpace(req.GetValue())
	if accessToken == "" {
		return nil, status.Error(codes.InvalidArgument, "access token is required")
	}

	user, err := s.resolve(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	permissions := make([]any, 0, len(user.Permissions))
	for _, p := range user.Permissions {
		permissions = append(permissions, p)
	}
	out, err := structpb.NewStruct(map[string]any{
		"user_id":     user.ID,
		"email":       user.Email,
		"username":    user.Username,
		"role":        user.Role,
		"permissions": permissions,
	})
	if err != nil {
		logrus.WithError(err).Error("Verify failed: encode response (grpc)")
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}

func (s *TokenServer) Authorize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	accessToken := strings.TrimSpace(fields["access_token"].GetStringValue())
	permission := strings.TrimSpace(fields["permission"].GetStringValue())
	if accessToken == "" || permission == "" {
		return nil, status.Error(codes.InvalidArgument, "access_token and permission are required")
	}

	user, err := s.resolve(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if err := service.CheckPermission(user, permission); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id":    user.ID,
			"permission": permission,
		}).Info("Authorize denied (grpc)")
		return nil, status.Error(codes.PermissionDenied, "access denied")
	}

	out, err := structpb.NewStruct(map[string]any{
		"user_id": user.ID,
		"allowed": true,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}

func (s *TokenServer) resolve(ctx context.Context, accessToken string) (*entity.User, error) {
	user, _, err := s.resolver.CurrentUser(ctx, accessToken)
	if err == nil {
		return user, nil
	}
	if errors.Is(err, service.ErrCredentialRejected) || errors.Is(err, service.ErrIdentityNotFound) {
		logrus.Debug("Rejected access token (grpc)")
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	logrus.WithError(err).Error("Failed to resolve access token (grpc)")
	return nil, status.Error(codes.Internal, "internal server error")
}
