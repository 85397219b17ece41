// Package packet owns the framed-packet receive path and its send-side helper.
//
// Ownership boundary:
// - receive state machines (binary FF..FE and text @..\r\n)
// - packet store and the RxFlag handoff
// - framing error taxonomy and the sticky error log
// - frame encoding for transmit
//
// Context rules:
// - OnByte and Expire run in the receive context only (one goroutine, the pump).
// - Poll runs in the foreground context only.
// - The store buffer is written only while RxFlag is Start and read only while it
//   is End; the flag itself is the handoff.
package packet
