package scope

import (
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const defaultOutBufferSize = 10

const (
	serviceName       = "channelizer.scope.Scope"
	getFramesMethod   = "/" + serviceName + "/GetFrames"
	getFramesStreamID = "GetFrames"
)

// frameService is the server side of the scope service.
type frameService interface {
	GetFrames(*emptypb.Empty, grpc.ServerStream) error
}

var scopeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*frameService)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    getFramesStreamID,
			Handler:       getFramesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "scope.proto",
}

func getFramesHandler(srv any, stream grpc.ServerStream) error {
	request := new(emptypb.Empty)
	if err := stream.RecvMsg(request); err != nil {
		return err
	}
	return srv.(frameService).GetFrames(request, stream)
}

type grpcServer struct {
	address *net.TCPAddr

	serverLock sync.Mutex
	server     *grpc.Server
	listener   net.Listener

	outBufferSize int
	in            chan *structpb.Struct
	register      chan chan *structpb.Struct
	out           []chan *structpb.Struct
	shutdown      chan struct{}
}

func newGRPCServer(address string, outBufferSize int) (*grpcServer, error) {
	result := &grpcServer{
		outBufferSize: outBufferSize,
		in:            make(chan *structpb.Struct),
		register:      make(chan chan *structpb.Struct),
		shutdown:      make(chan struct{}),
	}

	localAddress, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve address %s: %w", address, err)
	}
	result.address = localAddress

	return result, nil
}

func (s *grpcServer) run() {
	for {
		select {
		case <-s.shutdown:
			for _, out := range s.out {
				close(out)
			}
			s.out = nil
			return
		case out := <-s.register:
			s.out = append(s.out, out)
		case frame := <-s.in:
			s.sendFrameToStreams(frame)
		}
	}
}

// sendFrameToStreams closes every stream that cannot keep up.
func (s *grpcServer) sendFrameToStreams(frame *structpb.Struct) {
	active := s.out[:0]
	for _, out := range s.out {
		select {
		case out <- frame:
			active = append(active, out)
		default:
			close(out)
		}
	}
	clear(s.out[len(active):])
	s.out = active
}

func (s *grpcServer) getFrameStream() chan *structpb.Struct {
	result := make(chan *structpb.Struct, s.outBufferSize)
	select {
	case s.register <- result:
	case <-s.shutdown:
		close(result)
	}
	return result
}

// Addr returns the address the server is listening on, or nil if it is not listening.
func (s *grpcServer) Addr() net.Addr {
	s.serverLock.Lock()
	defer s.serverLock.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start listening and serve until Stop is called.
func (s *grpcServer) Start() error {
	s.serverLock.Lock()
	if s.server != nil {
		s.serverLock.Unlock()
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.address.String())
	if err != nil {
		s.serverLock.Unlock()
		return fmt.Errorf("cannot listen on address %s: %w", s.address, err)
	}
	s.listener = listener
	server := grpc.NewServer()
	server.RegisterService(&scopeServiceDesc, s)
	s.server = server
	s.serverLock.Unlock()

	go s.run()

	err = server.Serve(listener)
	close(s.shutdown)
	return err
}

func (s *grpcServer) Running() bool {
	s.serverLock.Lock()
	defer s.serverLock.Unlock()
	return s.server != nil
}

func (s *grpcServer) Stop() {
	s.serverLock.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.serverLock.Unlock()

	if server != nil {
		server.Stop()
	}
}

func (s *grpcServer) GetFrames(_ *emptypb.Empty, stream grpc.ServerStream) error {
	frames := s.getFrameStream()
	for {
		select {
		case frame, open := <-frames:
			if !open {
				return nil
			}
			if err := stream.SendMsg(frame); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

// SendFrame passes the frame on to all connected streams. It returns immediately when the
// server is shut down.
func (s *grpcServer) SendFrame(frame *structpb.Struct) {
	if !s.Running() {
		return
	}
	select {
	case s.in <- frame:
	case <-s.shutdown:
	}
}
