// Package server exposes authorization over HTTP with gin.
//
//	POST   /v1/authorize         bearer token + {relation, object, timeoutMs}
//	POST   /v1/cache/invalidate  {subject?, relation?, object?}
//	DELETE /v1/cache
//	GET    /v1/cache/stats
//	GET    /healthz, /readyz, /metrics
//
// Every rejection is answered with 401 {"error":"unauthorized"}; the
// rejection reason is logged but never returned.
package server
