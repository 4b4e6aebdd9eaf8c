// Package server hosts the OAuth redirect target used on headless machines.
//
// When the CLI waits for an authorization code in a file, `ytup callback serve`
// runs a [CodeHandler] behind the configured redirect URI. The handler writes
// the code it receives into that file and the waiting session picks it up.
//
// # Router Infrastructure
//
// [BasicRouter] wraps [http.ServeMux] with method filtering and [Middleware]
// (first added runs outermost). [RequestLogger] logs requests without their
// query strings.
package server
