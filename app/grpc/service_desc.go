package grpc

import (
	"context"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	TokenServiceName = "auth.v1.TokenService"

	verifyMethod    = "/" + TokenServiceName + "/Verify"
	authorizeMethod = "/" + TokenServiceName + "/Authorize"
)

// TokenServiceServer resolves access tokens for other marketplace services.
// Messages are well-known protobuf types, so no generated code is needed.
type TokenServiceServer interface {
	Verify(ctx context.Context, accessToken *wrapperspb.StringValue) (*structpb.Struct, error)
	Authorize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var TokenServiceDesc = gogrpc.ServiceDesc{
	ServiceName: TokenServiceName,
	HandlerType: (*TokenServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{MethodName: "Verify", Handler: verifyHandler},
		{MethodName: "Authorize", Handler: authorizeHandler},
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "auth/v1/token_service.proto",
}

func RegisterTokenServiceServer(s gogrpc.ServiceRegistrar, srv TokenServiceServer) {
	s.RegisterService(&TokenServiceDesc, srv)
}

func verifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenServiceServer).Verify(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: verifyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TokenServiceServer).Verify(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func authorizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenServiceServer).Authorize(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: authorizeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TokenServiceServer).Authorize(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// TokenServiceClient calls TokenService over an existing connection.
type TokenServiceClient struct {
	cc gogrpc.ClientConnInterface
}

func NewTokenServiceClient(cc gogrpc.ClientConnInterface) *TokenServiceClient {
	return &TokenServiceClient{cc: cc}
}

func (c *TokenServiceClient) Verify(ctx context.Context, accessToken string, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, verifyMethod, wrapperspb.String(accessToken), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TokenServiceClient) Authorize(ctx context.Context, accessToken, permission string, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{
		"access_token": accessToken,
		"permission":   permission,
	})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, authorizeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
