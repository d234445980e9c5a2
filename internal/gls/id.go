package gls

import "runtime"

// ID returns the id of the calling goroutine.
//
// The runtime does not expose goroutine ids, so this parses the header line
// of a single-goroutine stack dump ("goroutine 123 [running]:"). The dump is
// bounded to a small buffer; only the header is needed.
func ID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	const prefix = len("goroutine ")
	var id uint64
	for _, c := range buf[prefix:n] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
