package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fake struct {
	name    string
	runErr  error
	stopErr error
	log     *[]string
}

func (f *fake) Run() error {
	*f.log = append(*f.log, "run "+f.name)
	return f.runErr
}

func (f *fake) Shutdown(context.Context) error {
	*f.log = append(*f.log, "stop "+f.name)
	return f.stopErr
}

func (f *fake) String() string { return f.name }

func TestGroup(t *testing.T) {
	var log []string
	g := Group{}
	g.Add(&fake{name: "a", log: &log}, &fake{name: "b", log: &log, stopErr: errors.New("x")}, &fake{name: "c", log: &log, runErr: errors.New("y")})

	if err := g.Start(); err == nil {
		t.Errorf("expected start error")
	}
	if err := g.Shutdown(context.Background()); err == nil {
		t.Errorf("expected stop error")
	}
	expect := []string{"run a", "run b", "run c", "stop b", "stop a"}
	if len(log) != len(expect) {
		t.Fatalf("got %v", log)
	}
	for i := range expect {
		if log[i] != expect[i] {
			t.Errorf("step %v: %v != %v", i, log[i], expect[i])
		}
	}
}

func TestFunc(t *testing.T) {
	stopped := make(chan struct{})
	f := NewFunc("loop", func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	})
	if err := f.Run(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case <-stopped:
	default:
		t.Errorf("not stopped")
	}
}

func TestFuncShutdownIsBounded(t *testing.T) {
	f := NewFunc("stuck", func(context.Context) { time.Sleep(time.Second) })
	_ = f.Run()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := f.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("unexpected %v", err)
	}
}
