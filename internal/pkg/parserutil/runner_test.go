package parserutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestRunTasks_IsolatesFailures(t *testing.T) {
	var mu sync.Mutex
	done := map[string]bool{}
	failed := map[string]error{}

	RunTasks(context.Background(), []string{"a", "b", "c"}, func(ctx context.Context, name string) error {
		switch name {
		case "b":
			return errors.New("boom")
		case "c":
			panic("bad state")
		}
		mu.Lock()
		done[name] = true
		mu.Unlock()
		return nil
	}, RunOptions{
		WaitForCompletion: true,
		OnError: func(name string, err error) {
			mu.Lock()
			failed[name] = err
			mu.Unlock()
		},
	})

	if !done["a"] {
		t.Error("task a did not run")
	}
	var names []string
	for n := range failed {
		names = append(names, n)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "b" || names[1] != "c" {
		t.Fatalf("failed = %v", failed)
	}
	if !errors.Is(failed["c"], ErrPanic) {
		t.Errorf("panic not wrapped: %v", failed["c"])
	}
}

func TestSleep(t *testing.T) {
	if !Sleep(context.Background(), time.Millisecond) {
		t.Error("sleep should complete")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Sleep(ctx, time.Hour) {
		t.Error("sleep should stop on cancel")
	}
}
