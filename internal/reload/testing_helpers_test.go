package reload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hotreload/internal/dom"
)

// testLoop queues posted tasks until the test drains them.
type testLoop struct {
	tasks chan func()
}

func newTestLoop() *testLoop {
	return &testLoop{tasks: make(chan func(), 64)}
}

func (l *testLoop) Post(task func()) bool {
	l.tasks <- task
	return true
}

func (l *testLoop) drain() int {
	n := 0
	for {
		select {
		case task := <-l.tasks:
			task()
			n++
		default:
			return n
		}
	}
}

type fetchResult struct {
	markup string
	err    error
}

// fetchCall is one outstanding Fetch; the test answers it.
type fetchCall struct {
	ctx    context.Context
	url    string
	result chan fetchResult
}

type controlledFetcher struct {
	calls chan *fetchCall
}

func newControlledFetcher() *controlledFetcher {
	return &controlledFetcher{calls: make(chan *fetchCall, 16)}
}

func (f *controlledFetcher) Fetch(ctx context.Context, url string) (string, error) {
	call := &fetchCall{ctx: ctx, url: url, result: make(chan fetchResult, 1)}
	f.calls <- call
	select {
	case r := <-call.result:
		return r.markup, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *controlledFetcher) next(t *testing.T) *fetchCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was never issued")
		return nil
	}
}

type failingMerger struct{}

func (failingMerger) Merge(doc *dom.Document, markup string) error {
	return errors.New("markup rejected")
}

func parseDoc(t *testing.T, markup string) *dom.Document {
	t.Helper()
	doc, err := dom.Parse("http://localhost:8080/index.html", markup)
	require.NoError(t, err)
	return doc
}

func render(t *testing.T, doc *dom.Document) string {
	t.Helper()
	out, err := doc.Render()
	require.NoError(t, err)
	return out
}
