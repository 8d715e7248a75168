package wireproto

import (
	"context"

	"google.golang.org/grpc"
)

// WorkerServiceName is the grpc service name clients dial against.
const WorkerServiceName = "hodei.wireproto.WorkerService"

// WorkerServiceServer is implemented by pkg/workermanager: one bidirectional
// stream per connected worker, exactly ("One RPC... This
// single channel replaces every per-operation RPC").
type WorkerServiceServer interface {
	Session(stream WorkerService_SessionServer) error
}

// WorkerService_SessionServer is the server-side handle on the stream. It
// is hand-written rather than protoc-generated (see codec.go), but has the
// exact shape protoc-gen-go-grpc would produce for a bidi-streaming RPC.
type WorkerService_SessionServer interface {
	Send(*OrchestratorMessage) error
	Recv() (*WorkerMessage, error)
	grpc.ServerStream
}

type workerServiceSessionServer struct {
	grpc.ServerStream
}

func (s *workerServiceSessionServer) Send(m *OrchestratorMessage) error {
	return s.ServerStream.SendMsg(m)
}

func (s *workerServiceSessionServer) Recv() (*WorkerMessage, error) {
	m := new(WorkerMessage)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func sessionHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(WorkerServiceServer).Session(&workerServiceSessionServer{ServerStream: stream})
}

// ServiceDesc is registered with a *grpc.Server in place of the
// protoc-generated _WorkerService_serviceDesc.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: WorkerServiceName,
	HandlerType: (*WorkerServiceServer)(nil),
	Methods: []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "Session",
			Handler: sessionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "hodei/wireproto/worker_service.proto",
}

// RegisterWorkerServiceServer wires srv into s exactly as generated code
// would via _WorkerService_serviceDesc.
func RegisterWorkerServiceServer(s grpc.ServiceRegistrar, srv WorkerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// WorkerServiceClient is the client-side counterpart, used by pkg/client's
// reference worker agent.
type WorkerServiceClient interface {
	Session(ctx context.Context, opts...grpc.CallOption) (WorkerService_SessionClient, error)
}

type workerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewWorkerServiceClient builds a client bound to cc, in place of the
// protoc-generated constructor of the same name.
func NewWorkerServiceClient(cc grpc.ClientConnInterface) WorkerServiceClient {
	return &workerServiceClient{cc: cc}
}

func (c *workerServiceClient) Session(ctx context.Context, opts...grpc.CallOption) (WorkerService_SessionClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+WorkerServiceName+"/Session", opts...)
	if err != nil {
		return nil, err
	}
	return &workerServiceSessionClient{ClientStream: stream}, nil
}

// WorkerService_SessionClient is the client-side stream handle.
type WorkerService_SessionClient interface {
	Send(*WorkerMessage) error
	Recv() (*OrchestratorMessage, error)
	grpc.ClientStream
}

type workerServiceSessionClient struct {
	grpc.ClientStream
}

func (c *workerServiceSessionClient) Send(m *WorkerMessage) error {
	return c.ClientStream.SendMsg(m)
}

func (c *workerServiceSessionClient) Recv() (*OrchestratorMessage, error) {
	m := new(OrchestratorMessage)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
