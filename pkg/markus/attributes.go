package markus

import (
	"strings"
)

// Attributes is the ordered set of named attributes of a tag. A name can be
// set to a string, present without a value (rendered bare), or absent.
type Attributes struct {
	names  []string
	values map[string]*string
}

func newAttributes() *Attributes {
	return &Attributes{values: make(map[string]*string)}
}

// Get returns the value of the attribute and whether it is present.
// Valueless attributes report an empty string and true.
func (a *Attributes) Get(name string) (string, bool) {
	v, ok := a.values[name]
	if !ok {
		return "", false
	}
	if v == nil {
		return "", true
	}
	return *v, true
}

// Value returns the value of the attribute, or "" if it is absent or valueless.
func (a *Attributes) Value(name string) string {
	v, _ := a.Get(name)
	return v
}

// Has reports whether the attribute is present, with or without a value.
func (a *Attributes) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// Valueless reports whether the attribute is present without a value.
func (a *Attributes) Valueless(name string) bool {
	v, ok := a.values[name]
	return ok && v == nil
}

// Set assigns a value, keeping the attribute's original position if it was
// already present.
func (a *Attributes) Set(name, value string) {
	a.put(name, &value)
}

// SetValueless marks the attribute as present without a value.
func (a *Attributes) SetValueless(name string) {
	a.put(name, nil)
}

func (a *Attributes) put(name string, value *string) {
	if _, ok := a.values[name]; !ok {
		a.names = append(a.names, name)
	}
	a.values[name] = value
}

// Delete removes the attribute.
func (a *Attributes) Delete(name string) {
	if _, ok := a.values[name]; !ok {
		return
	}
	delete(a.values, name)
	for i, n := range a.names {
		if n == name {
			a.names = append(a.names[:i], a.names[i+1:]...)
			break
		}
	}
}

// Names returns the present attribute names in insertion order.
func (a *Attributes) Names() []string {
	return append([]string(nil), a.names...)
}

func (a *Attributes) Len() int {
	return len(a.names)
}

// Map returns a copy of the attributes. Valueless attributes map to "".
func (a *Attributes) Map() map[string]string {
	m := make(map[string]string, len(a.names))
	for _, n := range a.names {
		m[n] = a.Value(n)
	}
	return m
}

// String renders the attributes as `name="value"` pairs separated by spaces.
// Double quotes inside values are written as &quot;.
func (a *Attributes) String() string {
	var b strings.Builder
	for i, n := range a.names {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(n)
		if v := a.values[n]; v != nil {
			b.WriteString(`="`)
			b.WriteString(strings.ReplaceAll(*v, `"`, "&quot;"))
			b.WriteByte('"')
		}
	}
	return b.String()
}
