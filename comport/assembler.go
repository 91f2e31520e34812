package comport

// MaxNMEALen bounds an assembled sentence, terminator excluded.
const MaxNMEALen = 160

// Lines this short or shorter are noise between terminators and are dropped.
const minLineLen = 5

// LineAssembler turns a byte stream into CR/LF terminated lines.
// It is not safe for concurrent use, a port feeds it from its receive goroutine.
type LineAssembler struct {
	buf        []byte
	max        int
	discarding bool
}

func NewLineAssembler(size int) *LineAssembler {
	if size <= 0 {
		size = MaxNMEALen
	}
	return &LineAssembler{
		buf: make([]byte, 0, size),
		max: size,
	}
}

// ProcessChar appends c and passes every completed line to emit. It returns
// false when c overflowed the buffer: the partial line is dropped and input
// is discarded up to the next terminator.
func (a *LineAssembler) ProcessChar(c byte, emit func(line string)) bool {
	if c == '\r' || c == '\n' {
		if a.discarding {
			a.discarding = false
			a.buf = a.buf[:0]
			return true
		}
		if len(a.buf) > minLineLen {
			emit(string(a.buf))
		}
		a.buf = a.buf[:0]
		return true
	}

	if a.discarding {
		return true
	}

	if len(a.buf) >= a.max {
		a.buf = a.buf[:0]
		a.discarding = true
		return false
	}

	a.buf = append(a.buf, c)
	return true
}

// Reset drops any partial line.
func (a *LineAssembler) Reset() {
	a.buf = a.buf[:0]
	a.discarding = false
}
