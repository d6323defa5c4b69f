package worker

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"shardwork/internal/progress"
	"shardwork/internal/storage"
)

// fakeUnit copies src to dst and lets tests inject failures per source.
type fakeUnit struct {
	fs       storage.FileSystem
	calls    atomic.Int64
	failWith func(src string, attempt int64) error
	panicOn  string

	mu       sync.Mutex
	attempts map[string]int64
}

func newFakeUnit(fs storage.FileSystem) *fakeUnit {
	return &fakeUnit{fs: fs, attempts: make(map[string]int64)}
}

func (u *fakeUnit) Kind() string       { return "fake" }
func (u *fakeUnit) Counters() []string { return []string{"documents"} }

func (u *fakeUnit) Process(ctx context.Context, src, dst string, _ map[string]any, rep progress.Reporter) error {
	u.calls.Add(1)
	u.mu.Lock()
	u.attempts[src]++
	attempt := u.attempts[src]
	u.mu.Unlock()

	if u.panicOn != "" && strings.HasSuffix(src, u.panicOn) {
		panic("boom")
	}
	if u.failWith != nil {
		if err := u.failWith(src, attempt); err != nil {
			return err
		}
	}

	r, err := u.fs.Open(ctx, src)
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := u.fs.Create(ctx, dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return rep.Increment(map[string]int64{"documents": 1})
}

func (u *fakeUnit) attemptsFor(src string) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.attempts[src]
}

type fakeSink struct {
	rec *progress.Recorder

	mu    sync.Mutex
	files []string
}

func newFakeSink() *fakeSink {
	return &fakeSink{rec: progress.NewRecorder()}
}

func (s *fakeSink) Reporter() progress.Reporter { return s.rec }

func (s *fakeSink) FileDone(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, source)
}

func (s *fakeSink) doneFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}
