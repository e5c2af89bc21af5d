package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/livepeer/pipectl/internal/apierrors"
	"github.com/livepeer/pipectl/internal/obslog"
)

// Handler processes one request envelope and returns its response
// body or an error. Implementations run on their own goroutine for
// each connection; a panic is recovered by Serve and turned into an
// INTERNAL_ERROR response so one bad request can never take the
// listener down.
type Handler func(ctx context.Context, env Envelope) Response

// Serve accepts connections on l and dispatches each frame it reads to
// handle, writing back whatever Response it returns. Serve blocks
// until ctx is done or the listener errors; it closes l on return.
func Serve(ctx context.Context, l net.Listener, handle Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, conn, handle)
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, handle Handler) {
	defer conn.Close()
	for {
		var env Envelope
		if err := ReadFrame(conn, &env); err != nil {
			return
		}
		resp := safeHandle(ctx, env, handle)
		if err := WriteFrame(conn, resp); err != nil {
			obslog.LogNoID("rpc: write response failed", "err", err.Error())
			return
		}
	}
}

func safeHandle(ctx context.Context, env Envelope, handle Handler) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			we := apierrors.New(apierrors.InternalError, "internal error", fmt.Errorf("panic: %v", r)).ToWireError()
			resp = Response{
				RequestID:  env.RequestID,
				PipelineID: env.PipelineID,
				Error:      &we,
			}
		}
	}()
	return handle(ctx, env)
}
