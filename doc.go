// Package notifyexec is the execution and dispatch core of a notification
// message-handling server.
//
// A [Listener] (the transport) is polled continuously by a [PooledExecutor],
// which fans incoming messages out to a bounded worker pool. Each message is
// routed, via a [Dispatcher] or [BatchDispatcher], to every [Endpoint]
// handler registered under one of the seven fixed priorities (audit,
// debug, info, warn, error, critical, sample), subject to an optional
// [FilterRule]. Handler verdicts control whether the underlying message is
// acknowledged or requeued.
//
// # Architecture
//
// The [PooledExecutor] owns a single poller goroutine and a bounded worker
// pool. The poller never runs handler code itself: through its [Dispatch] it
// polls the [Listener], wraps the incoming unit in an [ExecutionContext], and
// submits that to the pool. Shutdown is cooperative, via a tombstone signal, and [PooledExecutor.Wait]
// drains in-flight work against a total deadline.
//
// The [Dispatcher] (single-message) and [BatchDispatcher] (batched) variants
// share routing logic: decode, group by priority, filter, invoke, and
// aggregate requeue verdicts. They differ only in how records are extracted
// from the incoming unit, and how filtered records are packaged for a
// handler call.
package notifyexec
