// Package aftercommit はトランザクションのコミット後に実行する処理を扱います。
//
// トランザクション管理側が With で実行待ち列を用意し、コミットに成功した場合だけ flush を呼び出します。
// ロールバックや再試行で破棄された試行に積まれた処理は実行されません。
package aftercommit

import (
	"context"
	"sync"
)

type queueKey struct{}

type queue struct {
	mu  sync.Mutex
	fns []func()
}

// With は ctx に新しい実行待ち列を持たせ、コミット後に呼び出す flush を返します。
func With(ctx context.Context) (context.Context, func()) {
	q := &queue{}
	return context.WithValue(ctx, queueKey{}, q), q.flush
}

// Defer は ctx のトランザクションがコミットされた後に fn を実行します。
// 実行待ち列が無い場合はトランザクション外とみなし、即座に実行します。
func Defer(ctx context.Context, fn func()) {
	if fn == nil {
		return
	}
	if q, ok := ctx.Value(queueKey{}).(*queue); ok {
		q.mu.Lock()
		q.fns = append(q.fns, fn)
		q.mu.Unlock()
		return
	}
	fn()
}

func (q *queue) flush() {
	q.mu.Lock()
	fns := q.fns
	q.fns = nil
	q.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
