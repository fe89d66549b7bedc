package dataset

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joshp123/smartmeter/internal/schema"
)

// GetDataSetMethod is the full gRPC method name of DataSets/GetDataSet.
const GetDataSetMethod = "/smartmeter.v1.DataSets/GetDataSet"

// DataSetsServer is the server API for the smartmeter.v1.DataSets service.
type DataSetsServer interface {
	GetDataSet(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

var dataSetsServiceDesc = grpc.ServiceDesc{
	ServiceName: string(schema.DataSetsService),
	HandlerType: (*DataSetsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetDataSet",
			Handler:    getDataSetHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: schema.DataSetsFile,
}

func getDataSetHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DataSetsServer).GetDataSet(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetDataSetMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DataSetsServer).GetDataSet(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

type service struct {
	store   *Store
	metrics *Metrics
	logger  *log.Logger
}

// RegisterDataSetsService exposes the store over gRPC.
func RegisterDataSetsService(server *grpc.Server, store *Store, metrics *Metrics, logger *log.Logger) error {
	if err := schema.RegisterDataSets(); err != nil {
		return err
	}
	if logger == nil {
		logger = log.Default()
	}
	server.RegisterService(&dataSetsServiceDesc, &service{store: store, metrics: metrics, logger: logger})
	return nil
}

func (s *service) GetDataSet(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	set := req.GetValue()
	result, err := s.store.Lookup(set)
	switch {
	case errors.Is(err, ErrInvalidSet):
		s.metrics.observe(transportGRPC, resultInvalid, 0)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case err != nil:
		s.metrics.observe(transportGRPC, resultError, 0)
		s.logger.Error("data set lookup failed", "set", set, "err", err)
		return nil, status.Errorf(codes.Internal, "get data set: %v", err)
	case !result.Found:
		s.metrics.observe(transportGRPC, resultMiss, 0)
		return nil, status.Error(codes.NotFound, MissingMessage(result.Path))
	}
	s.metrics.observe(transportGRPC, resultHit, len(result.Body))
	return wrapperspb.Bytes(result.Body), nil
}

// GetDataSet fetches a data set from a remote DataSets service.
func GetDataSet(ctx context.Context, conn grpc.ClientConnInterface, set string) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := conn.Invoke(ctx, GetDataSetMethod, wrapperspb.String(set), out); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}
