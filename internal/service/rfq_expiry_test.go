package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockCloser struct {
	calls  atomic.Int32
	closed int
	err    error
}

func (m *mockCloser) CloseExpired(context.Context) (int, error) {
	m.calls.Add(1)
	return m.closed, m.err
}

// TestRFQExpiryService_RunOnce проверяет один проход.
func TestRFQExpiryService_RunOnce(t *testing.T) {
	closer := &mockCloser{closed: 3}
	svc := NewRFQExpiryService(closer, time.Minute, testLogger())

	if got := svc.RunOnce(context.Background()); got != 3 {
		t.Errorf("RunOnce = %d, ожидалось 3", got)
	}

	closer.err = errors.New("БД недоступна")
	closer.closed = 0
	if got := svc.RunOnce(context.Background()); got != 0 {
		t.Errorf("RunOnce = %d при ошибке, ожидался 0", got)
	}
}

// TestRFQExpiryService_StartStop проверяет периодический запуск и остановку.
func TestRFQExpiryService_StartStop(t *testing.T) {
	closer := &mockCloser{}
	svc := NewRFQExpiryService(closer, 10*time.Millisecond, testLogger())

	svc.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	svc.Stop()

	calls := closer.calls.Load()
	if calls == 0 {
		t.Error("CloseExpired не вызывался")
	}
	time.Sleep(30 * time.Millisecond)
	if closer.calls.Load() != calls {
		t.Error("CloseExpired вызывался после Stop")
	}
}

// TestRFQExpiryService_StopWithoutStart проверяет Stop без Start.
func TestRFQExpiryService_StopWithoutStart(t *testing.T) {
	svc := NewRFQExpiryService(&mockCloser{}, time.Minute, testLogger())
	svc.Stop()
}
