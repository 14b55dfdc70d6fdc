// Copyright 2026 The Thorn Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package thorn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPromiseCapability_Resolve(t *testing.T) {
	rt := NewRuntime(NewQueue(), WithRuntimeLogger(noOpLogger()))

	cap, err := rt.NewPromiseCapability(rt.PromiseConstructor())
	require.NoError(t, err)
	require.NotNil(t, cap.PromiseValue())
	assert.Equal(t, Pending, promiseState(cap.PromiseValue()))

	cap.Resolve(Number(7))
	assert.Equal(t, Fulfilled, promiseState(cap.PromiseValue()))
	result, _ := GetSlot(cap.PromiseValue(), slotResult)
	assert.Equal(t, Number(7), result)
}

func TestNewPromiseCapability_RequiresCallableConstructor(t *testing.T) {
	rt := NewRuntime(NewQueue())
	_, err := rt.NewPromiseCapability(String("not a constructor"))
	assert.Error(t, err)
}

func TestCapability_ExecutorCannotBeInvokedTwice(t *testing.T) {
	rt := NewRuntime(NewQueue())

	ctor := NewConstructor(
		func(Value, []Value) (Value, error) { return Null{}, nil },
		func(args []Value) (*Object, error) {
			executor := args[0]
			// Invoke twice synchronously, as a misbehaving constructor would.
			_, err1 := Call(executor, Null{}, []Value{
				NewCallable(func(Value, []Value) (Value, error) { return Null{}, nil }),
				NewCallable(func(Value, []Value) (Value, error) { return Null{}, nil }),
			})
			require.NoError(t, err1)
			_, err2 := Call(executor, Null{}, []Value{
				NewCallable(func(Value, []Value) (Value, error) { return Null{}, nil }),
				NewCallable(func(Value, []Value) (Value, error) { return Null{}, nil }),
			})
			assert.Error(t, err2)
			return NewObject(Null{}), nil
		},
	)

	_, err := rt.NewPromiseCapability(ctor)
	require.NoError(t, err)
}
