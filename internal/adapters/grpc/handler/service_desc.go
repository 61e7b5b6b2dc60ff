package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName は CheckInService の完全修飾名です。
const ServiceName = "checkin.v1.CheckInService"

// CheckInServiceServer は CheckInService のサーバー実装です。
// メッセージは google.protobuf.Struct で、JSON 形式の契約をそのまま運びます。
type CheckInServiceServer interface {
	FinalizeCheckIns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetAssignmentEnergy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	StartCheckIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListCheckIns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SubmitEmployeeSide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SubmitManagerSide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListSnapshots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DiffSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ExecuteSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	BootstrapSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv CheckInServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func methodHandler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CheckInServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CheckInServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// CheckInServiceDesc は手書きの ServiceDesc です。
var CheckInServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CheckInServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodHandler("FinalizeCheckIns", CheckInServiceServer.FinalizeCheckIns),
		methodHandler("SetAssignmentEnergy", CheckInServiceServer.SetAssignmentEnergy),
		methodHandler("StartCheckIn", CheckInServiceServer.StartCheckIn),
		methodHandler("ListCheckIns", CheckInServiceServer.ListCheckIns),
		methodHandler("SubmitEmployeeSide", CheckInServiceServer.SubmitEmployeeSide),
		methodHandler("SubmitManagerSide", CheckInServiceServer.SubmitManagerSide),
		methodHandler("ListSnapshots", CheckInServiceServer.ListSnapshots),
		methodHandler("DiffSnapshot", CheckInServiceServer.DiffSnapshot),
		methodHandler("ExecuteSnapshot", CheckInServiceServer.ExecuteSnapshot),
		methodHandler("BootstrapSnapshot", CheckInServiceServer.BootstrapSnapshot),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "checkin/v1/checkin.proto",
}

// RegisterCheckInServiceServer は srv を登録します。
func RegisterCheckInServiceServer(s grpc.ServiceRegistrar, srv CheckInServiceServer) {
	s.RegisterService(&CheckInServiceDesc, srv)
}
