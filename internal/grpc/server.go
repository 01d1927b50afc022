package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"settlement-service/internal/middleware"
	"settlement-service/internal/services"
)

const ServiceName = "settlement.v1.AdminService"

// AdminServiceServer is the admin surface exposed to back-office tools.
// Messages are google.protobuf.Struct so clients need no generated stubs.
type AdminServiceServer interface {
	DeclareResult(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReviewRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetWallet(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type Server struct {
	Settlement *services.SettlementService
	Approvals  *services.ApprovalService
	Wallets    *services.WalletService
}

func NewServer(settlement *services.SettlementService, approvals *services.ApprovalService, wallets *services.WalletService) *Server {
	return &Server{Settlement: settlement, Approvals: approvals, Wallets: wallets}
}

func unaryHandler(method string, call func(AdminServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AdminServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(AdminServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("DeclareResult", AdminServiceServer.DeclareResult),
		unaryHandler("ReviewRequest", AdminServiceServer.ReviewRequest),
		unaryHandler("GetWallet", AdminServiceServer.GetWallet),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "settlement/v1/admin.proto",
}

// NewGRPCServer builds a server with every admin call behind auth.
func NewGRPCServer(auth *middleware.AdminAuth, srv AdminServiceServer) *grpc.Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryInterceptor()))
	s.RegisterService(&AdminServiceDesc, srv)
	return s
}

// StartGRPCServer listens on port and blocks until the server stops.
func StartGRPCServer(port string, auth *middleware.AdminAuth, srv AdminServiceServer) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	log.Infof("gRPC server listening at %v", lis.Addr())
	return NewGRPCServer(auth, srv).Serve(lis)
}

func (s *Server) DeclareResult(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	report, err := s.Settlement.DeclareResult(ctx, services.DeclareResultInput{
		GameID:      uint(number(req, "game_id")),
		ResultDate:  str(req, "result_date"),
		ResultValue: str(req, "result_value"),
		DeclaredBy:  middleware.AdminFromContext(ctx),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(report)
}

func (s *Server) ReviewRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.Approvals.Review(ctx, services.ReviewInput{
		RequestID:  uint(number(req, "request_id")),
		Action:     str(req, "action"),
		ReviewerID: middleware.AdminFromContext(ctx),
		Notes:      str(req, "notes"),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(res)
}

func (s *Server) GetWallet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	wallet, err := s.Wallets.GetByUser(ctx, int(number(req, "user_id")))
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{
		"wallet":  wallet,
		"balance": wallet.Total(),
	})
}

func number(req *structpb.Struct, key string) float64 {
	return req.GetFields()[key].GetNumberValue()
}

func str(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

// toStruct renders v through its JSON tags so gRPC and HTTP clients see the
// same field names.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	var code codes.Code
	switch services.KindOf(err) {
	case services.KindValidation:
		code = codes.InvalidArgument
	case services.KindConflict:
		code = codes.FailedPrecondition
	case services.KindResource:
		code = codes.ResourceExhausted
	case services.KindNotFound:
		code = codes.NotFound
	case services.KindSystem:
		code = codes.Internal
	default:
		log.WithError(err).Error("gRPC call failed")
		return status.Error(codes.Unavailable, "temporary failure, re-read the entity before retrying")
	}
	return status.Errorf(code, "%s: %s", services.CodeOf(err), err.Error())
}
