package mqtt

// FakePublisher records published lines for test assertions.
type FakePublisher struct {
	// Headers contains all header lines that were published.
	Headers []string

	// Lines contains all data rows that were published.
	Lines []string

	// PublishError, if set, will be returned by PublishLine.
	PublishError error

	// HeaderError, if set, will be returned by PublishHeader.
	HeaderError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishHeader records the header line.
func (f *FakePublisher) PublishHeader(line string) error {
	if f.HeaderError != nil {
		return f.HeaderError
	}
	f.Headers = append(f.Headers, line)
	return nil
}

// PublishLine records the data row.
func (f *FakePublisher) PublishLine(line string) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Lines = append(f.Lines, line)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded lines.
func (f *FakePublisher) Reset() {
	f.Headers = nil
	f.Lines = nil
	f.Closed = false
	f.PublishError = nil
	f.HeaderError = nil
	f.Connected = false
}
