package packet

import "sync/atomic"

// ErrorLog is the sticky error record shared by the receive context (writer)
// and the foreground (reader/clearer). The total counter is monotonic and
// survives Clear.
type ErrorLog struct {
	total  atomic.Uint64
	byKind [numKinds]atomic.Uint64
	last   atomic.Pointer[FramingError]
}

// Record stamps err with the next sequence number and makes it the last error.
func (l *ErrorLog) Record(err *FramingError) {
	err.Seq = l.total.Add(1)
	if err.Kind < numKinds {
		l.byKind[err.Kind].Add(1)
	}
	l.last.Store(err)
}

// Count returns the number of errors recorded since creation.
func (l *ErrorLog) Count() uint64 {
	return l.total.Load()
}

// CountKind returns the number of errors of one kind.
func (l *ErrorLog) CountKind(kind ErrorKind) uint64 {
	if kind >= numKinds {
		return 0
	}
	return l.byKind[kind].Load()
}

// Last returns the sticky last error, or nil if cleared or none recorded.
func (l *ErrorLog) Last() *FramingError {
	return l.last.Load()
}

// Clear drops the sticky last error and returns it.
func (l *ErrorLog) Clear() *FramingError {
	return l.last.Swap(nil)
}
