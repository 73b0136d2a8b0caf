package fieldpath

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// AsMap views v as a string-keyed mapping. Typed maps are copied.
func AsMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// AsSequence views v as a sequence. Strings and byte slices are not
// sequences. Typed slices are copied.
func AsSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case string, []byte:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func parameterKeys(record any) any {
	m, ok := AsMap(record)
	if !ok {
		return nil
	}
	params, ok := m["parameters"]
	if !ok || params == nil {
		return []any{}
	}
	pm, ok := AsMap(params)
	if !ok {
		return params
	}

	keys := make([]string, 0, len(pm))
	for k := range pm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

func joinText(values []any) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if isEmpty(v) {
			continue
		}
		parts = append(parts, Stringify(v))
	}
	// Casers carry state; one per call keeps Extract safe for concurrent use.
	return cases.Lower(language.Und).String(strings.Join(parts, " "))
}

// isEmpty reports values that contribute nothing to joined text: nil, empty
// strings and collections, zero numbers and false.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	}
	return false
}

// Stringify renders a scalar the way it reads in a document: integral floats
// without a fractional part, everything else through fmt.
func Stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return "null"
	}
	return fmt.Sprint(v)
}
