// Package indexservice exposes the index manager over gRPC. Messages are
// google.protobuf.Struct values, so the service is declared by hand below
// instead of being generated from a .proto file.
package indexservice

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "idxtree.v1.IndexService"

const (
	MethodCreateIndex = "CreateIndex"
	MethodDropIndex   = "DropIndex"
	MethodAddRecord   = "AddRecord"
	MethodFindRecord  = "FindRecord"
	MethodScanIndex   = "ScanIndex"
	MethodDumpIndex   = "DumpIndex"
	MethodCheckIndex  = "CheckIndex"
	MethodIndexStats  = "IndexStats"
	MethodListIndexes = "ListIndexes"
)

// IndexServiceServer is the server API for the index service.
type IndexServiceServer interface {
	CreateIndex(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DropIndex(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ScanIndex(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DumpIndex(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckIndex(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IndexStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListIndexes(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(IndexServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryMethod builds the handler a generated service descriptor would carry
// for one unary method.
func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(IndexServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(IndexServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

// IndexService_ServiceDesc is the grpc.ServiceDesc for the index service.
var IndexService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IndexServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodCreateIndex, IndexServiceServer.CreateIndex),
		unaryMethod(MethodDropIndex, IndexServiceServer.DropIndex),
		unaryMethod(MethodAddRecord, IndexServiceServer.AddRecord),
		unaryMethod(MethodFindRecord, IndexServiceServer.FindRecord),
		unaryMethod(MethodScanIndex, IndexServiceServer.ScanIndex),
		unaryMethod(MethodDumpIndex, IndexServiceServer.DumpIndex),
		unaryMethod(MethodCheckIndex, IndexServiceServer.CheckIndex),
		unaryMethod(MethodIndexStats, IndexServiceServer.IndexStats),
		unaryMethod(MethodListIndexes, IndexServiceServer.ListIndexes),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "idxtree/v1/index_service.proto",
}

// RegisterIndexServiceServer registers srv with the gRPC server.
func RegisterIndexServiceServer(s grpc.ServiceRegistrar, srv IndexServiceServer) {
	s.RegisterService(&IndexService_ServiceDesc, srv)
}
