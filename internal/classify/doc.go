// Package classify submits video segments to the face classification service
// and waits for their results.
//
// A TokenProvider holds the client-credentials access token. It is cached in
// memory and on disk, and concurrent callers share one refresh. Client uploads
// a segment, polls until classification reaches 100 percent, and validates the
// payload before handing it to aggregation. Every request passes through a
// shared rate limiter.
package classify
