package api

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/jab.report/internal/guidance"
)

func dialWatch(t *testing.T, g Guidance) (*grpc.ClientConn, *WatchServer) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ws := NewWatchServer(g)
	require.NoError(t, ws.Serve(lis))
	require.Error(t, ws.Serve(lis), "second serve is refused")

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	return conn, ws
}

func openWatch(t *testing.T, ctx context.Context, conn *grpc.ClientConn) grpc.ClientStream {
	t.Helper()
	stream, err := conn.NewStream(ctx, &GuidanceServiceDesc.Streams[0], WatchMethod)
	require.NoError(t, err)
	require.NoError(t, stream.SendMsg(&emptypb.Empty{}))
	require.NoError(t, stream.CloseSend())
	return stream
}

func TestWatch_StreamsSnapshotThenEvents(t *testing.T) {
	t.Parallel()

	g := newFakeGuidance()
	conn, ws := dialWatch(t, g)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream := openWatch(t, ctx, conn)

	first := new(structpb.Struct)
	require.NoError(t, stream.RecvMsg(first))
	m := first.AsMap()
	assert.Equal(t, "snapshot", m["kind"])
	assert.Equal(t, "awaiting_body", m["snapshot"].(map[string]any)["state"])

	g.publish(guidance.Event{
		Kind:       guidance.EventCompleted,
		AttemptID:  "attempt-1",
		OutputPath: "out/jab_attempt-1.mov",
		Snapshot:   guidance.Snapshot{State: guidance.Finalizing, Completed: true, Progress: 1},
	})
	next := new(structpb.Struct)
	require.NoError(t, stream.RecvMsg(next))
	m = next.AsMap()
	assert.Equal(t, "completed", m["kind"])
	assert.Equal(t, "out/jab_attempt-1.mov", m["output_path"])
	assert.Equal(t, 1.0, m["snapshot"].(map[string]any)["progress"])

	// The loop shutting down ends the stream cleanly, which lets the
	// graceful stop finish.
	g.closeAll()
	assert.Error(t, stream.RecvMsg(new(structpb.Struct)))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	ws.Stop(stopCtx)
	ws.Stop(stopCtx)
}

func TestWatch_ClientCancelUnsubscribes(t *testing.T) {
	t.Parallel()

	g := newFakeGuidance()
	conn, ws := dialWatch(t, g)
	defer conn.Close()
	defer ws.Stop(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	stream := openWatch(t, ctx, conn)
	require.NoError(t, stream.RecvMsg(new(structpb.Struct)))
	cancel()

	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.subs) == 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestWatch_UnknownMethod(t *testing.T) {
	t.Parallel()

	conn, ws := dialWatch(t, newFakeGuidance())
	defer conn.Close()
	defer ws.Stop(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, "/jabreport.Guidance/Nope")
	require.NoError(t, err)
	require.NoError(t, stream.SendMsg(&emptypb.Empty{}))
	require.NoError(t, stream.CloseSend())
	assert.Error(t, stream.RecvMsg(new(structpb.Struct)))
}
