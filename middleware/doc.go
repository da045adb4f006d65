// Package middleware provides net/http handler wrappers that gate requests
// on a valid phishgate session and a minimum authorization tier.
//
// The guard extracts the session token from a cookie (or an Authorization
// bearer header), stamps the client IP into the request context, and calls
// [phishgate.Engine.Authorize]. Handlers downstream read the verified
// identity with [AuthResultFromContext].
package middleware
