package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/jab.report/internal/guidance"
	"github.com/banshee-data/jab.report/internal/monitoring"
)

var grpcLogf = monitoring.Component("gRPC")

// guidanceWatcher is the server side of jabreport.Guidance.
type guidanceWatcher interface {
	Watch(*emptypb.Empty, grpc.ServerStream) error
}

// GuidanceServiceDesc describes jabreport.Guidance. Messages are well-known
// types so the standard proto codec carries them without generated code.
var GuidanceServiceDesc = grpc.ServiceDesc{
	ServiceName: "jabreport.Guidance",
	HandlerType: (*guidanceWatcher)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "jabreport/guidance.proto",
}

// WatchMethod is the full gRPC method name of the watch stream.
const WatchMethod = "/jabreport.Guidance/Watch"

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(guidanceWatcher).Watch(in, stream)
}

// WatchServer streams guidance events to gRPC clients.
type WatchServer struct {
	guidance Guidance

	mu       sync.Mutex
	server   *grpc.Server
	listener net.Listener
	wg       sync.WaitGroup
}

func NewWatchServer(g Guidance) *WatchServer {
	return &WatchServer{guidance: g}
}

// Register adds the service to an existing gRPC server.
func (ws *WatchServer) Register(s *grpc.Server) {
	s.RegisterService(&GuidanceServiceDesc, ws)
}

// Watch sends the current snapshot, then one message per guidance event
// until the client goes away or the guidance loop shuts down.
func (ws *WatchServer) Watch(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()
	id, events := ws.guidance.Subscribe()
	defer ws.guidance.Unsubscribe(id)
	grpcLogf("watch client %s connected", id)

	first, err := snapshotStruct("snapshot", ws.guidance.Snapshot())
	if err != nil {
		return err
	}
	if err := stream.SendMsg(first); err != nil {
		grpcLogf("send error: %v", err)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			grpcLogf("watch client %s cancelled", id)
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			msg, err := eventStruct(ev)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				grpcLogf("send error: %v", err)
				return err
			}
		}
	}
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func snapshotStruct(kind string, snap guidance.Snapshot) (*structpb.Struct, error) {
	return toStruct(map[string]any{"kind": kind, "snapshot": snap})
}

func eventStruct(ev guidance.Event) (*structpb.Struct, error) {
	return toStruct(ev)
}

// Start listens on addr and serves the watch stream in the background.
func (ws *WatchServer) Start(addr string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.server != nil {
		return fmt.Errorf("watch server already running")
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return ws.serveLocked(lis)
}

// Serve serves the watch stream on an existing listener in the background.
func (ws *WatchServer) Serve(lis net.Listener) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.server != nil {
		return fmt.Errorf("watch server already running")
	}
	return ws.serveLocked(lis)
}

func (ws *WatchServer) serveLocked(lis net.Listener) error {
	ws.listener = lis
	ws.server = grpc.NewServer()
	ws.Register(ws.server)

	srv := ws.server
	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		grpcLogf("watch server listening on %s", lis.Addr())
		if err := srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			grpcLogf("server error: %v", err)
		}
	}()
	return nil
}

// Stop ends every stream and waits for the server goroutine.
func (ws *WatchServer) Stop(ctx context.Context) {
	ws.mu.Lock()
	srv := ws.server
	ws.server = nil
	ws.mu.Unlock()
	if srv == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		srv.Stop()
		<-done
	}
	ws.wg.Wait()
	grpcLogf("watch server stopped")
}
