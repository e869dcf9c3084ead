package at

import "fmt"

// MaxFields is the number of values a single parse can collect.
const MaxFields = 12

// FieldKind tags the value held by a Field.
type FieldKind uint8

const (
	FieldNone FieldKind = iota
	FieldInt
	FieldText
)

func (k FieldKind) String() string {
	switch k {
	case FieldInt:
		return "int"
	case FieldText:
		return "text"
	default:
		return "none"
	}
}

// Field is one parsed value. Text fields alias the parsed buffer.
type Field struct {
	kind FieldKind
	num  int32
	text []byte
}

// IntField returns an integer field holding v.
func IntField(v int32) Field { return Field{kind: FieldInt, num: v} }

// TextField returns a text field aliasing b.
func TextField(b []byte) Field { return Field{kind: FieldText, text: b} }

// Kind reports which value the field holds.
func (f Field) Kind() FieldKind { return f.kind }

// Int returns the integer value, or 0 for a text field.
func (f Field) Int() int32 { return f.num }

// Bytes returns the text value without copying it.
func (f Field) Bytes() []byte { return f.text }

// Text returns a copy of the text value as a string.
func (f Field) Text() string { return string(f.text) }

func (f Field) String() string {
	switch f.kind {
	case FieldInt:
		return fmt.Sprint(f.num)
	case FieldText:
		return fmt.Sprintf("%q", f.text)
	default:
		return "<none>"
	}
}

// Fields is the ordered result of a parse: one entry per Expect*Parameter or
// ExpectRawString call, in call order. It is a value type with inline storage.
type Fields struct {
	items [MaxFields]Field
	n     int
}

// with returns a copy of f with v appended. Going past MaxFields means the
// caller chained more parameter steps than a parse supports.
func (f Fields) with(v Field) Fields {
	if f.n == MaxFields {
		panic(fmt.Sprintf("at: more than %d fields in one parse", MaxFields))
	}
	f.items[f.n] = v
	f.n++
	return f
}

func (f Fields) Len() int {
	return f.n
}

// At returns the i-th field.
func (f Fields) At(i int) (Field, error) {
	if i < 0 || i >= f.n {
		return Field{}, fmt.Errorf("%w: %d of %d", ErrFieldIndex, i, f.n)
	}
	return f.items[i], nil
}

func (f Fields) Int(i int) (int32, error) {
	v, err := f.typed(i, FieldInt)
	return v.num, err
}

func (f Fields) Text(i int) (string, error) {
	v, err := f.typed(i, FieldText)
	return string(v.text), err
}

// Bytes returns the i-th text field without copying it out of the buffer.
func (f Fields) Bytes(i int) ([]byte, error) {
	v, err := f.typed(i, FieldText)
	return v.text, err
}

func (f Fields) typed(i int, kind FieldKind) (Field, error) {
	v, err := f.At(i)
	if err != nil {
		return Field{}, err
	}
	if v.kind != kind {
		return Field{}, fmt.Errorf("%w: field %d is %s, want %s", ErrFieldType, i, v.kind, kind)
	}
	return v, nil
}

// Scan copies the fields into dest, positionally. Supported destinations are
// *int32, *int, *string, *[]byte and *Field. The number of destinations must
// match Len.
func (f Fields) Scan(dest ...any) error {
	if len(dest) != f.n {
		return fmt.Errorf("%w: %d destinations for %d fields", ErrScanArity, len(dest), f.n)
	}
	for i, d := range dest {
		var err error
		switch d := d.(type) {
		case *int32:
			*d, err = f.Int(i)
		case *int:
			var v int32
			v, err = f.Int(i)
			*d = int(v)
		case *string:
			*d, err = f.Text(i)
		case *[]byte:
			*d, err = f.Bytes(i)
		case *Field:
			*d = f.items[i]
		default:
			err = fmt.Errorf("%w: unsupported destination %T for field %d", ErrFieldType, d, i)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
