// Package errgroup runs named startup tasks that share a cancellation context.
//
// The first task error cancels the group context and is returned by Wait,
// prefixed with the task name. Recovered panics are converted into errors.
package errgroup
