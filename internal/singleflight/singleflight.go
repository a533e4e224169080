// Package singleflight coalesces concurrent calls for the same key into a
// single execution whose result is shared by all callers.
package singleflight

import (
	"sync"
)

// Group deduplicates in-flight calls by key.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

type call struct {
	wg  sync.WaitGroup
	val interface{}
	err error
}

// New returns an empty Group.
func New() *Group {
	return &Group{m: make(map[string]*call)}
}

// Do invokes fn, ensuring only one execution is in flight for key at a
// time. Callers that arrive while an execution is in flight wait for it and
// receive the same result.
func (g *Group) Do(key string, fn func() (interface{}, error)) (interface{}, error) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err
	}

	c := &call{}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()

	// Drop the entry before releasing waiters: once a call has completed,
	// later arrivals must observe current state (a cache invalidation, a
	// recovered upstream), not a replay of this result.
	g.mu.Lock()
	if g.m[key] == c {
		delete(g.m, key)
	}
	g.mu.Unlock()
	c.wg.Done()

	return c.val, c.err
}
