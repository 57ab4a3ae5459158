package raw

import "sort"

// Name object
type NameObj struct{ Val string }

func (n NameObj) Type() string     { return "name" }
func (n NameObj) IsIndirect() bool { return false }

// Number object
type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (n NumberObj) Type() string     { return "number" }
func (n NumberObj) IsIndirect() bool { return false }
func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}
func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}

// Boolean object
type BoolObj struct{ V bool }

func (b BoolObj) Type() string     { return "boolean" }
func (b BoolObj) IsIndirect() bool { return false }

// Null object
type NullObj struct{}

func (n NullObj) Type() string     { return "null" }
func (n NullObj) IsIndirect() bool { return false }

// String object. Hex records the source form so the writer can round-trip it.
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string     { return "string" }
func (s StringObj) IsIndirect() bool { return false }

// Array object
type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string     { return "array" }
func (a *ArrayObj) IsIndirect() bool { return false }
func (a *ArrayObj) Len() int         { return len(a.Items) }
func (a *ArrayObj) Append(o ...Object) {
	a.Items = append(a.Items, o...)
}

// Dictionary object
type DictObj struct{ KV map[string]Object }

func (d *DictObj) Type() string     { return "dict" }
func (d *DictObj) IsIndirect() bool { return false }
func (d *DictObj) Len() int         { return len(d.KV) }

func (d *DictObj) Get(key string) (Object, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.KV[key]
	return o, ok
}

func (d *DictObj) Set(key string, value Object) {
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key] = value
}

func (d *DictObj) Delete(key string) { delete(d.KV, key) }

// Keys returns the dictionary keys in sorted order.
func (d *DictObj) Keys() []string {
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Name returns the value stored under key when it is a direct name.
func (d *DictObj) Name(key string) (string, bool) {
	o, ok := d.Get(key)
	if !ok {
		return "", false
	}
	n, ok := o.(NameObj)
	return n.Val, ok
}

// Number returns the value stored under key when it is a direct number.
func (d *DictObj) Number(key string) (float64, bool) {
	o, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := o.(NumberObj)
	return n.Float(), ok
}

func (d *DictObj) Int(key string) (int64, bool) {
	o, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := o.(NumberObj)
	return n.Int(), ok
}

// Stream object
type StreamObj struct {
	Dict *DictObj
	Data []byte
}

func (s *StreamObj) Type() string     { return "stream" }
func (s *StreamObj) IsIndirect() bool { return false }

// Reference object
type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string     { return "ref" }
func (r RefObj) IsIndirect() bool { return true }

// Helpers
func Name(v string) NameObj                        { return NameObj{Val: v} }
func Int(i int64) NumberObj                        { return NumberObj{I: i, IsInt: true} }
func Real(f float64) NumberObj                     { return NumberObj{F: f} }
func Bool(v bool) BoolObj                          { return BoolObj{V: v} }
func Str(b []byte) StringObj                       { return StringObj{Bytes: b} }
func NewArray(items ...Object) *ArrayObj           { return &ArrayObj{Items: items} }
func Dict() *DictObj                               { return &DictObj{KV: make(map[string]Object)} }
func NewStream(dict *DictObj, data []byte) *StreamObj { return &StreamObj{Dict: dict, Data: data} }
func Ref(num, gen int) RefObj                      { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }

// Numbers builds an array of reals, collapsing integral values to integers.
func Numbers(vals ...float64) *ArrayObj {
	arr := &ArrayObj{Items: make([]Object, 0, len(vals))}
	for _, v := range vals {
		if v == float64(int64(v)) {
			arr.Items = append(arr.Items, Int(int64(v)))
			continue
		}
		arr.Items = append(arr.Items, Real(v))
	}
	return arr
}

// DeepCopy returns a copy of o that shares no mutable state with it.
func DeepCopy(o Object) Object {
	switch v := o.(type) {
	case *ArrayObj:
		out := &ArrayObj{Items: make([]Object, len(v.Items))}
		for i, it := range v.Items {
			out.Items[i] = DeepCopy(it)
		}
		return out
	case *DictObj:
		return v.clone()
	case *StreamObj:
		data := append([]byte(nil), v.Data...)
		return &StreamObj{Dict: v.Dict.clone(), Data: data}
	case StringObj:
		return StringObj{Bytes: append([]byte(nil), v.Bytes...), Hex: v.Hex}
	default:
		return o
	}
}

func (d *DictObj) clone() *DictObj {
	if d == nil {
		return nil
	}
	out := &DictObj{KV: make(map[string]Object, len(d.KV))}
	for k, it := range d.KV {
		out.KV[k] = DeepCopy(it)
	}
	return out
}
