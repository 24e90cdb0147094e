package runner

import (
	"context"
	"sync"
)

// Fake records every command and answers through Handler. A nil Handler
// succeeds with empty output.
type Fake struct {
	Handler func(opt *SpawnOpt) (string, error)

	mu    sync.Mutex
	calls []SpawnOpt
}

func (f *Fake) record(opt *SpawnOpt) (string, error) {
	f.mu.Lock()
	cp := *opt
	cp.Args = append([]string(nil), opt.Args...)
	f.calls = append(f.calls, cp)
	handler := f.Handler
	f.mu.Unlock()

	if handler == nil {
		return "", nil
	}
	return handler(opt)
}

func (f *Fake) Spawn(ctx context.Context, opt *SpawnOpt) error {
	_, err := f.record(opt)
	return err
}

func (f *Fake) Output(ctx context.Context, opt *SpawnOpt) (string, error) {
	return f.record(opt)
}

// Calls returns a copy of the recorded commands.
func (f *Fake) Calls() []SpawnOpt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SpawnOpt(nil), f.calls...)
}

// Commands returns the recorded commands as "name arg1 arg2" strings.
func (f *Fake) Commands() []string {
	calls := f.Calls()
	res := make([]string, 0, len(calls))
	for i := range calls {
		res = append(res, calls[i].String())
	}
	return res
}
