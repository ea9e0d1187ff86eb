package errors

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// fakeGateway captures the fail and throw requests a handler sends.
type fakeGateway struct {
	pb.GatewayClient

	mu       sync.Mutex
	fails    []*pb.FailJobRequest
	throws   []*pb.ThrowErrorRequest
	ctxErrs  []error
	deadline []time.Time
	sendErr  error
}

func (g *fakeGateway) FailJob(ctx context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fails = append(g.fails, in)
	g.record(ctx)
	return &pb.FailJobResponse{}, g.sendErr
}

func (g *fakeGateway) ThrowError(ctx context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.throws = append(g.throws, in)
	g.record(ctx)
	return &pb.ThrowErrorResponse{}, g.sendErr
}

func (g *fakeGateway) record(ctx context.Context) {
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	d, _ := ctx.Deadline()
	g.deadline = append(g.deadline, d)
}

func noRetry(context.Context, error) bool { return false }

// fakeJobClient builds real commands over the fake gateway.
type fakeJobClient struct {
	gateway *fakeGateway
}

func (c fakeJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gateway, noRetry)
}

func (c fakeJobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gateway, noRetry)
}

func (c fakeJobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gateway, noRetry)
}

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) Error(msg string, _ map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func testJob(retries int32) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 42, Type: "recommend-opportunities", Retries: retries}}
}

func TestRemainingRetries(t *testing.T) {
	tests := []struct {
		jobRetries int32
		maxRetries int
		want       int32
	}{
		{jobRetries: 3, maxRetries: 3, want: 2},
		{jobRetries: 5, maxRetries: 3, want: 2},
		{jobRetries: 2, maxRetries: 3, want: 1},
		{jobRetries: 1, maxRetries: 3, want: 0},
		{jobRetries: 3, maxRetries: 1, want: 0},
		{jobRetries: 0, maxRetries: 3, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, remainingRetries(tt.jobRetries, tt.maxRetries), "job=%d max=%d", tt.jobRetries, tt.maxRetries)
	}
}

func TestHandleJobError_RetriesRunOutOnPersistentFailure(t *testing.T) {
	gw := &fakeGateway{}
	h := NewErrorHandler(&recordingLogger{})
	upstream := NewUpstreamError("embedding", stderrors.New("provider down"))

	retries := int32(3)
	for i := 0; i < 5 && retries > 0; i++ {
		h.HandleJobError(context.Background(), fakeJobClient{gw}, testJob(retries), upstream)
		require.NotEmpty(t, gw.fails)
		retries = gw.fails[len(gw.fails)-1].Retries
	}

	var sent []int32
	for _, f := range gw.fails {
		sent = append(sent, f.Retries)
	}
	assert.Equal(t, []int32{2, 1, 0}, sent)
	assert.Empty(t, gw.throws)
}

func TestHandleJobError_NonRetryableThrows(t *testing.T) {
	gw := &fakeGateway{}
	h := NewErrorHandler(&recordingLogger{})

	h.HandleJobError(context.Background(), fakeJobClient{gw}, testJob(3), NewValidationError("age", "must be between 0 and 150"))

	require.Len(t, gw.throws, 1)
	assert.Equal(t, string(ErrCodeValidation), gw.throws[0].ErrorCode)
	assert.Empty(t, gw.fails)
}

func TestHandleJobError_ReportsAfterJobDeadline(t *testing.T) {
	gw := &fakeGateway{}
	h := NewErrorHandler(&recordingLogger{})

	jobCtx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-jobCtx.Done()

	h.HandleJobError(jobCtx, fakeJobClient{gw}, testJob(3), NewUpstreamTimeoutError("embedding", context.DeadlineExceeded))

	require.Len(t, gw.fails, 1)
	assert.NoError(t, gw.ctxErrs[0], "the fail command must not inherit the expired job context")
	assert.WithinDuration(t, time.Now().Add(CommandTimeout), gw.deadline[0], time.Second)
}

func TestHandleJobError_LogsSendFailure(t *testing.T) {
	gw := &fakeGateway{sendErr: stderrors.New("gateway unavailable")}
	log := &recordingLogger{}
	h := NewErrorHandler(log)

	h.HandleJobError(context.Background(), fakeJobClient{gw}, testJob(3), NewStoreError("postgres", stderrors.New("connection refused")))

	assert.Contains(t, log.messages, "Failed to send job command")
}
