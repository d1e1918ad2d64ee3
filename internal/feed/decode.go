package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"confsched/internal/apperr"
)

// Document is a decoded feed. Besides the generic tree it remembers the key
// order of every object, keyed by the object's JSON pointer, so rooms can be
// walked in the order the feed lists them.
type Document struct {
	tree  any
	order map[string][]string
}

// Decode parses raw JSON into a Document. Numbers are kept as json.Number so
// integer ids survive untouched. A repeated key keeps its first position and
// its last value.
func Decode(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	doc := Document{order: map[string][]string{}}
	tree, err := doc.value(dec, "")
	if err != nil {
		return Document{}, apperr.Schema("decode feed", []apperr.Issue{{Path: "$", Message: "invalid JSON: " + err.Error()}})
	}
	doc.tree = tree
	return doc, nil
}

// keys returns the object at ptr's keys in feed order.
func (d Document) keys(ptr string) []string {
	return d.order[ptr]
}

func (d Document) value(dec *json.Decoder, ptr string) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := map[string]any{}
		var keys []string
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("object key at %q is not a string", ptr)
			}
			v, err := d.value(dec, ptr+"/"+escapePointer(key))
			if err != nil {
				return nil, err
			}
			if _, dup := obj[key]; !dup {
				keys = append(keys, key)
			}
			obj[key] = v
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		d.order[ptr] = keys
		return obj, nil

	case '[':
		arr := []any{}
		for i := 0; dec.More(); i++ {
			v, err := d.value(dec, ptr+"/"+strconv.Itoa(i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected %q at %q", delim, ptr)
}

var (
	pointerEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
	pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

func escapePointer(s string) string   { return pointerEscaper.Replace(s) }
func unescapePointer(s string) string { return pointerUnescaper.Replace(s) }
