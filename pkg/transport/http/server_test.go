package http

import (
	"context"
	"io"
	"net"
	gohttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/transport"
)

func startServer(t *testing.T, srv *Server) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeOn(ctx, ln) }()

	return ln.Addr().String(), func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	}
}

func TestServerStartsAndAcceptsRequests(t *testing.T) {
	srv := NewServer(okExecutor(), nil, WithAddr("127.0.0.1:0"))
	addr, stop := startServer(t, srv)
	defer stop()

	resp, err := gohttp.Post("http://"+addr+"/api/code/execute", "application/json",
		strings.NewReader(`{"code":"x","language":"python"}`))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != gohttp.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusOK)
	}
}

func TestServerGracefulShutdown(t *testing.T) {
	slow := transport.ExecutorFunc(func(ctx context.Context, _ *api.Submission) (*api.ExecutionResult, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return &api.ExecutionResult{Success: true}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	srv := NewServer(slow, nil, WithShutdownTimeout(5*time.Second))
	addr, stop := startServer(t, srv)

	responseCh := make(chan int, 1)
	go func() {
		resp, err := gohttp.Post("http://"+addr+"/api/code/execute", "application/json",
			strings.NewReader(`{"code":"x","language":"python"}`))
		if err != nil {
			responseCh <- 0
			return
		}
		defer resp.Body.Close()
		responseCh <- resp.StatusCode
	}()

	time.Sleep(50 * time.Millisecond)
	stop()

	if status := <-responseCh; status != gohttp.StatusOK {
		t.Errorf("slow request status = %d, want %d", status, gohttp.StatusOK)
	}
}

func TestServerShutdownCancelsStragglers(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	stuck := transport.ExecutorFunc(func(ctx context.Context, _ *api.Submission) (*api.ExecutionResult, error) {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})

	srv := NewServer(stuck, nil)
	addr, stop := startServer(t, srv)
	defer stop()

	go func() {
		resp, err := gohttp.Post("http://"+addr+"/api/code/execute", "application/json",
			strings.NewReader(`{"code":"x","language":"python"}`))
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(ctx); err == nil {
		t.Error("expected deadline error while an execution is stuck")
	}

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("stuck execution was not cancelled")
	}
}

func TestServerMountsHandlersAndMiddleware(t *testing.T) {
	var sawRequest bool
	mw := func(next gohttp.Handler) gohttp.Handler {
		return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
			sawRequest = true
			next.ServeHTTP(w, r)
		})
	}
	extra := gohttp.HandlerFunc(func(w gohttp.ResponseWriter, _ *gohttp.Request) {
		io.WriteString(w, "extra")
	})

	srv := NewServer(okExecutor(), nil, WithMiddleware(mw), WithHandler("GET /extra", extra))
	addr, stop := startServer(t, srv)
	defer stop()

	resp, err := gohttp.Get("http://" + addr + "/extra")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if string(body) != "extra" {
		t.Errorf("body = %q", body)
	}
	if !sawRequest {
		t.Error("middleware did not run")
	}
}

func TestServerFunctionalOptions(t *testing.T) {
	srv := NewServer(okExecutor(), nil,
		WithAddr(":9999"),
		WithMaxBodySize(1024),
		WithMaxConcurrent(4),
		WithShutdownTimeout(3*time.Second),
	)

	if srv.config.Addr != ":9999" {
		t.Errorf("addr = %q, want %q", srv.config.Addr, ":9999")
	}
	if srv.config.MaxBodySize != 1024 {
		t.Errorf("max body size = %d, want %d", srv.config.MaxBodySize, 1024)
	}
	if srv.config.MaxConcurrent != 4 {
		t.Errorf("max concurrent = %d, want 4", srv.config.MaxConcurrent)
	}
	if srv.config.ShutdownTimeout != 3*time.Second {
		t.Errorf("shutdown timeout = %v, want %v", srv.config.ShutdownTimeout, 3*time.Second)
	}
}

func TestDefaultShutdownTimeout(t *testing.T) {
	if got := DefaultServerConfig().ShutdownTimeout; got != 10*time.Second {
		t.Errorf("default shutdown timeout = %v, want 10s", got)
	}
}
