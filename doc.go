// Copyright 2026 The Thorn Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package thorn implements the Promise subsystem, cooperative job queue, and
// async-iterator network bridge shared by hosts embedding the thorn runtime.
//
// # Architecture
//
// Four layers build on each other:
//
//   - [Value] / [Object]: the minimal dynamically-typed value model the rest
//     of the package operates on - properties, internal slots, prototypes.
//   - [Queue]: a single-consumer FIFO of deferred work, drained cooperatively
//     by the host's run loop.
//   - [Runtime]: constructs Promise capabilities, settles promises, and
//     dispatches reaction jobs onto the [Queue].
//   - net-server endpoint ([NewEndpoint], [EndpointNext], [EndpointClose]):
//     couples a [Reactor] (externally driven I/O readiness) to a
//     promise-producing async-iteration protocol, used by network-facing
//     intrinsics.
//
// # Scope
//
// This package does not include a lexer, parser, bytecode evaluator, or any
// non-core intrinsics (array/string/number/object prototypes). Those belong
// to a host that embeds this package and drives it through [Runtime] and
// [Queue].
//
// # Concurrency
//
// The [Queue] is drained by exactly one goroutine at a time (the "loop
// goroutine"). [Queue.Enqueue] may be called from any goroutine. A promise's
// resolve/reject functions settle it synchronously on the calling goroutine;
// the reaction jobs that settlement enqueues run on the loop goroutine when
// it drains the [Queue].
package thorn
