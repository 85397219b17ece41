// Package link runs a packet receiver against a serial port on the host.
//
// Ownership boundary:
// - the pump goroutine owns the rx half and is the receive context: the only
//   caller of OnByte/Expire
// - the foreground loop polls the store, dispatches frames to a Handler and owns
//   the tx half (shared with status API sends under one lock)
// - port (re)opening with backoff
package link
