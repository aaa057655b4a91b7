// Package apperr provides the error taxonomy shared by forkbox packages.
//
// Every error that crosses a package boundary carries a Kind so the
// transports can report it consistently:
//
//	KindNotFound    // unknown fork, missing tenant binding, unknown remote account
//	KindBadRequest  // malformed address, transaction or selector
//	KindUpstream    // external network fetch failed
//	KindInternal    // anything not attributable to the caller
//
// Usage:
//
//	if apperr.Is(err, apperr.KindNotFound) {
//	    // ...
//	}
package apperr
