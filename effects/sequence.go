package effects

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// Sequence is a resumable effect program. Next receives the result of the
// previously yielded descriptor (nil on the first call) and returns either the
// next descriptor, or the terminal value with done set.
type Sequence interface {
	Next(ctx context.Context, input any) (yielded any, done bool, err error)
}

// Stopper is implemented by sequences that hold resources while suspended.
// Stop is called when the interpreter abandons the sequence.
type Stopper interface {
	Stop()
}

// drive steps seq until it is done. Descriptors that settle synchronously are
// fed back in a loop rather than by recursion.
func drive(ctx context.Context, seq Sequence, env *Env, onSuccess func(any), onError func(error)) {
	stop := func() {
		if s, ok := seq.(Stopper); ok {
			s.Stop()
		}
	}
	release := env.track(stop)

	fail := func(err error) {
		stop()
		release()
		onError(err)
	}

	var step func(input any)
	step = func(input any) {
		for {
			if env.cancelled() {
				stop()
				release()
				env.Abandon()
				return
			}
			yielded, done, err := seq.Next(ctx, input)
			if err != nil {
				fail(err)
				return
			}
			if done {
				release()
				onSuccess(yielded)
				return
			}

			var (
				inline  = true
				settled bool
				result  any
			)
			Process(ctx, yielded, env, func(v any) {
				if inline {
					settled, result = true, v
					return
				}
				step(v)
			}, fail)
			inline = false

			if !settled {
				// suspended: the continuation calls step
				return
			}
			input = result
		}
	}
	step(nil)
}

// Yield suspends a Go program until the yielded descriptor settles and
// returns its result.
type Yield func(descriptor any) any

// Go turns body into a Sequence. body runs on its own goroutine but never
// concurrently with the interpreter: control is handed over at each yield.
// An abandoned body is unwound at its pending yield with runtime.Goexit, so
// its deferred calls still run.
func Go(body func(ctx context.Context, yield Yield) (any, error)) Sequence {
	return &coroutine{
		body:   body,
		resume: make(chan any),
		out:    make(chan coroutineStep),
		stop:   make(chan struct{}),
	}
}

type coroutineStep struct {
	value any
	done  bool
	err   error
}

type coroutine struct {
	body     func(ctx context.Context, yield Yield) (any, error)
	started  bool
	finished bool
	resume   chan any
	out      chan coroutineStep
	stop     chan struct{}
	stopOnce sync.Once
}

func (c *coroutine) Next(ctx context.Context, input any) (any, bool, error) {
	if c.finished {
		return nil, true, nil
	}
	if !c.started {
		c.started = true
		go c.run(ctx)
	} else {
		select {
		case c.resume <- input:
		case <-c.stop:
			return nil, true, nil
		}
	}
	s := <-c.out
	if s.done {
		c.finished = true
	}
	return s.value, s.done, s.err
}

func (c *coroutine) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *coroutine) run(ctx context.Context) {
	defer func() {
		r := recover()
		if r == nil {
			// finished normally or unwound by Goexit
			return
		}
		c.out <- coroutineStep{done: true, err: fmt.Errorf("%w: %v", ErrSequencePanic, r)}
	}()
	value, err := c.body(ctx, c.yield)
	c.out <- coroutineStep{value: value, done: true, err: err}
}

func (c *coroutine) yield(descriptor any) any {
	c.out <- coroutineStep{value: descriptor}
	select {
	case input := <-c.resume:
		return input
	case <-c.stop:
		runtime.Goexit()
		return nil
	}
}

// Step is one state of a Steps sequence: it receives the previous result and
// returns the next descriptor, or the terminal value for the last step.
type Step func(ctx context.Context, input any) (any, error)

// Steps builds a Sequence as an explicit state machine over steps.
func Steps(steps ...Step) Sequence {
	return &stepper{steps: steps}
}

type stepper struct {
	steps []Step
	pos   int
}

func (s *stepper) Next(ctx context.Context, input any) (any, bool, error) {
	if s.pos >= len(s.steps) {
		return input, true, nil
	}
	current := s.steps[s.pos]
	s.pos++
	out, err := current(ctx, input)
	if err != nil {
		return nil, true, err
	}
	return out, s.pos == len(s.steps), nil
}
