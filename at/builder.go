package at

// cmdBuf is the write cursor shared by every builder stage.
//
// Writes that do not fit are skipped whole, but the cursor still advances by
// their length, so after the terminator n is the exact size of the command
// whether or not the buffer could hold it.
type cmdBuf struct {
	buf []byte
	n   int
	// sep is set when the last thing written was a parameter separator.
	sep bool
}

func newCmdBuf(buf []byte, atPrefix bool) cmdBuf {
	c := cmdBuf{buf: buf}
	if atPrefix {
		c.write(Prefix)
	}
	return c
}

func (c *cmdBuf) write(s string) {
	if c.n+len(s) <= len(c.buf) {
		copy(c.buf[c.n:], s)
	}
	c.n += len(s)
	c.sep = false
}

func (c *cmdBuf) writeBytes(b []byte) {
	if c.n+len(b) <= len(c.buf) {
		copy(c.buf[c.n:], b)
	}
	c.n += len(b)
	c.sep = false
}

func (c *cmdBuf) separator() {
	c.write(",")
	c.sep = true
}

func (c cmdBuf) finish(terminator string) ([]byte, error) {
	// The last parameter carries no separator.
	if c.sep {
		c.n--
		c.sep = false
	}
	c.write(terminator)

	if c.n > len(c.buf) {
		return nil, &BufferTooSmallError{Required: c.n, Capacity: len(c.buf)}
	}
	return c.buf[:c.n:c.n], nil
}

// finisher is embedded by every named stage.
type finisher struct {
	c cmdBuf
}

// Finish terminates the command with CRLF. See FinishWith.
func (f finisher) Finish() ([]byte, error) {
	return f.c.finish(CRLF)
}

// FinishWith terminates the command with terminator and returns the command
// bytes, a prefix of the buffer the builder was created with.
//
// If the buffer was too small nothing usable was written and the error is a
// *BufferTooSmallError carrying the exact length required.
func (f finisher) FinishWith(terminator string) ([]byte, error) {
	return f.c.finish(terminator)
}

// Len is the number of bytes the command occupies so far, including bytes
// that did not fit.
func (f finisher) Len() int {
	return f.c.n
}

// TestBuilder is an unnamed test command, AT<name>=?.
type TestBuilder struct{ c cmdBuf }

// QueryBuilder is an unnamed query command, AT<name>?.
type QueryBuilder struct{ c cmdBuf }

// SetBuilder is an unnamed set command, AT<name>=<p1>,<p2>,...
type SetBuilder struct{ c cmdBuf }

// ExecuteBuilder is an unnamed execute command, AT<name>.
type ExecuteBuilder struct{ c cmdBuf }

// CreateTest starts a test command in buf. When atPrefix is set the command
// starts with "AT".
func CreateTest(buf []byte, atPrefix bool) TestBuilder {
	return TestBuilder{newCmdBuf(buf, atPrefix)}
}

// CreateQuery starts a query command in buf.
func CreateQuery(buf []byte, atPrefix bool) QueryBuilder {
	return QueryBuilder{newCmdBuf(buf, atPrefix)}
}

// CreateSet starts a set command in buf.
func CreateSet(buf []byte, atPrefix bool) SetBuilder {
	return SetBuilder{newCmdBuf(buf, atPrefix)}
}

// CreateExecute starts an execute command in buf.
func CreateExecute(buf []byte, atPrefix bool) ExecuteBuilder {
	return ExecuteBuilder{newCmdBuf(buf, atPrefix)}
}

type TestCommand struct{ finisher }
type QueryCommand struct{ finisher }
type ExecuteCommand struct{ finisher }

// SetCommand is a named set command accepting parameters.
type SetCommand struct{ finisher }

func (b TestBuilder) Named(name string) TestCommand {
	b.c.write(name)
	b.c.write("=?")
	return TestCommand{finisher{b.c}}
}

func (b QueryBuilder) Named(name string) QueryCommand {
	b.c.write(name)
	b.c.write("?")
	return QueryCommand{finisher{b.c}}
}

func (b SetBuilder) Named(name string) SetCommand {
	b.c.write(name)
	b.c.write("=")
	return SetCommand{finisher{b.c}}
}

func (b ExecuteBuilder) Named(name string) ExecuteCommand {
	b.c.write(name)
	return ExecuteCommand{finisher{b.c}}
}

func (s SetCommand) WithIntParameter(v int32) SetCommand {
	var scratch [MaxIntDigits]byte
	s.c.writeBytes(FormatInt(scratch[:], v))
	s.c.separator()
	return s
}

// WithStringParameter adds a quoted parameter. v is written verbatim between
// the quotes; it must not contain '"', CR or LF (see CheckString).
func (s SetCommand) WithStringParameter(v string) SetCommand {
	s.c.write(`"`)
	s.c.write(v)
	s.c.write(`"`)
	s.c.separator()
	return s
}

// WithRawParameter adds an already formatted parameter, unquoted.
func (s SetCommand) WithRawParameter(v []byte) SetCommand {
	s.c.writeBytes(v)
	s.c.separator()
	return s
}

// WithEmptyParameter adds an omitted optional parameter.
func (s SetCommand) WithEmptyParameter() SetCommand {
	s.c.separator()
	return s
}

func (s SetCommand) WithOptionalIntParameter(v *int32) SetCommand {
	if v == nil {
		return s.WithEmptyParameter()
	}
	return s.WithIntParameter(*v)
}

func (s SetCommand) WithOptionalStringParameter(v *string) SetCommand {
	if v == nil {
		return s.WithEmptyParameter()
	}
	return s.WithStringParameter(*v)
}
