// Package collector composes the rate limiter, retry executor and entity
// cache around a remote Telegram client.
//
// Every domain operation follows the same path: cache check (resolve only),
// rate-limiter wait for the operation's category, retry-wrapped remote call,
// cache update, return. A Collector owns its limiter and cache exclusively;
// constructing a second Collector never shares throttling or cache state
// with the first.
package collector
