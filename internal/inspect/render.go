// Package inspect renders IMC messages for people: ordered JSON, protobuf
// Struct values, reflective dumps and an indented tree for the terminal
// viewer.
package inspect

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goforj/godump"
	"github.com/iancoleman/orderedmap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/imc-missions/imc"
)

// AbbrevKey names the message type inside rendered objects.
const AbbrevKey = "abbrev"

// scalar converts a leaf field value. Enumerations render by name.
func scalar(v any) any {
	switch x := v.(type) {
	case fmt.Stringer:
		return x.String()
	case float32:
		return float64(x)
	case []byte:
		return hex.EncodeToString(x)
	default:
		return v
	}
}

func ordered(m imc.Message) *orderedmap.OrderedMap {
	o := orderedmap.New()
	o.SetEscapeHTML(false)
	o.Set(AbbrevKey, m.Abbrev())
	for _, f := range m.Fields() {
		o.Set(f.Name, orderedValue(f.Value))
	}
	return o
}

func orderedValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case imc.Message:
		return ordered(x)
	case []imc.Message:
		list := make([]any, 0, len(x))
		for _, m := range x {
			list = append(list, orderedValue(m))
		}
		return list
	default:
		return scalar(v)
	}
}

// JSON renders msg as indented JSON with fields in wire order.
func JSON(msg imc.Message) ([]byte, error) {
	if msg == nil {
		return []byte("null"), nil
	}
	return json.MarshalIndent(ordered(msg), "", "  ")
}

func plain(m imc.Message) map[string]any {
	out := map[string]any{AbbrevKey: m.Abbrev()}
	for _, f := range m.Fields() {
		out[f.Name] = plainValue(f.Value)
	}
	return out
}

func plainValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case imc.Message:
		return plain(x)
	case []imc.Message:
		list := make([]any, 0, len(x))
		for _, m := range x {
			list = append(list, plainValue(m))
		}
		return list
	default:
		return scalar(v)
	}
}

// Struct converts msg to a protobuf Struct.
func Struct(msg imc.Message) (*structpb.Struct, error) {
	if msg == nil {
		return nil, fmt.Errorf("inspect: nil message")
	}
	s, err := structpb.NewStruct(plain(msg))
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", msg.Abbrev(), err)
	}
	return s, nil
}

// ProtoJSON renders msg through its protobuf Struct form.
func ProtoJSON(msg imc.Message) ([]byte, error) {
	s, err := Struct(msg)
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
}

// Dump writes a reflective dump of msg, including unexported detail, to w.
func Dump(w io.Writer, msg any) {
	godump.Fdump(w, msg)
}

// DumpString returns the reflective dump of msg.
func DumpString(msg any) string {
	return godump.DumpStr(msg)
}

// Tree flattens msg into indented "name: value" lines. Nested messages
// open a new level headed by their abbreviation.
func Tree(msg imc.Message) []string {
	if msg == nil {
		return []string{"<nil>"}
	}
	var lines []string
	tree(&lines, msg, 0)
	return lines
}

func tree(lines *[]string, m imc.Message, depth int) {
	pad := strings.Repeat("  ", depth)
	*lines = append(*lines, pad+m.Abbrev())
	pad += "  "
	for _, f := range m.Fields() {
		switch x := f.Value.(type) {
		case nil:
			*lines = append(*lines, pad+f.Name+": <nil>")
		case imc.Message:
			*lines = append(*lines, pad+f.Name+":")
			tree(lines, x, depth+2)
		case []imc.Message:
			if len(x) == 0 {
				*lines = append(*lines, pad+f.Name+": []")
				continue
			}
			*lines = append(*lines, fmt.Sprintf("%s%s: [%d]", pad, f.Name, len(x)))
			for _, item := range x {
				tree(lines, item, depth+2)
			}
		default:
			*lines = append(*lines, fmt.Sprintf("%s%s: %v", pad, f.Name, scalar(x)))
		}
	}
}
