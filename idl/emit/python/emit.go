// Package python is the Python code emitter (component C8, the other of
// two back-ends sharing the type registry of idl/registry), grounded on
// original_source's PythonGenerator in src/generator/templates.cpp.
// Output is a single deterministic module: Prologue, Type region,
// Serialization region (§4.8).
package python

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/routio/routio/idl"
	"github.com/routio/routio/idl/registry"
)

// Generate renders desc as a single Python module.
func Generate(desc *idl.Description, reg *registry.Registry) string {
	g := &generator{desc: desc, reg: reg}
	return g.generate()
}

type generator struct {
	desc *idl.Description
	reg  *registry.Registry
}

func (g *generator) generate() string {
	var out strings.Builder
	out.WriteString(g.prologue())
	out.WriteString(g.imports())
	out.WriteString(enumHelper)
	out.WriteString(g.externalTypes())
	out.WriteString(g.typeRegion())
	out.WriteString(g.serializationRegion())
	return out.String()
}

const enumHelper = `def enum(name, enums):
    reverse = dict((value, key) for key, value in enums.items())
    enums["str"] = staticmethod(lambda x: reverse[x])
    return type(name, (), enums)

def enum_conversion(enum, obj):
    if isinstance(obj, int):
        return obj
    if isinstance(obj, str):
        return getattr(enum, obj)
    return 0

`

func (g *generator) prologue() string {
	return "# This is an autogenerated file, do not modify!\n" +
		"from __future__ import absolute_import\n" +
		"from __future__ import division\n" +
		"from __future__ import print_function\n" +
		"from __future__ import unicode_literals\n\n" +
		"from builtins import super\n\n"
}

// imports aggregates every referenced type's Sources, deduplicated in
// first-seen order across the declarations (§4.8 determinism).
func (g *generator) imports() string {
	var all []string
	add := func(name string) {
		if t, ok := g.reg.Lookup(name); ok {
			all = append(all, t.Sources...)
		}
	}
	for _, decl := range g.desc.Decls {
		switch {
		case decl.Structure != nil:
			for _, f := range decl.Structure.Fields {
				add(f.Type)
			}
		case decl.Message != nil:
			for _, f := range decl.Message.Fields {
				add(f.Type)
			}
		}
	}
	order := lo.Uniq(all)

	var out strings.Builder
	for _, src := range order {
		fmt.Fprintf(&out, "import %s\n", src)
	}
	if len(order) > 0 {
		out.WriteString("\n")
	}
	return out.String()
}

// externalTypes registers the reader/writer pair of each external type
// carrying a python binding (§4.8), grounded on
// PythonGenerator::generateExternalTypes_ in templates.cpp:829.
func (g *generator) externalTypes() string {
	var out strings.Builder
	any := false
	for _, t := range g.reg.Externals() {
		reader := t.Readers["python"]
		writer := t.Writers["python"]
		if reader == "" || writer == "" {
			continue
		}
		any = true
		fmt.Fprintf(&out, "routio.registerType(%s, %s, %s)\n", t.Containers["python"], reader, writer)
	}
	if any {
		out.WriteString("\n")
	}
	return out.String()
}

func (g *generator) typeRegion() string {
	var out strings.Builder
	for _, decl := range g.desc.Decls {
		if decl.Enumerate != nil {
			out.WriteString(g.emitEnum(decl.Enumerate))
		}
	}
	for _, decl := range g.desc.Decls {
		switch {
		case decl.Structure != nil:
			out.WriteString(g.emitAggregate(decl.Structure.Name, decl.Structure.Fields))
		case decl.Message != nil:
			out.WriteString(g.emitAggregate(decl.Message.Name, decl.Message.Fields))
		}
	}
	return out.String()
}

func (g *generator) emitEnum(e *idl.Enumerate) string {
	var out strings.Builder
	fmt.Fprintf(&out, "%s = enum(\"%s\", { ", e.Name, e.Name)
	for i, m := range e.Members {
		if i > 0 {
			out.WriteString(", ")
		}
		fmt.Fprintf(&out, "'%s' : %d", m, i)
	}
	out.WriteString(" })\n\n")
	fmt.Fprintf(&out, "routio.registerType(%s, lambda x: x.readInt(), lambda x, o: x.writeInt(o), "+
		"lambda x: enum_conversion(%s, x))\n\n", e.Name, e.Name)
	return out.String()
}

func pythonType(reg *registry.Registry, fieldType string) string {
	if t, ok := reg.Lookup(fieldType); ok {
		if c, ok := t.Containers["python"]; ok && c != "" {
			return c
		}
	}
	return fieldType
}

func formatValue(v idl.Value) string {
	switch v.Kind {
	case idl.ValueNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case idl.ValueString:
		return `"` + v.String + `"`
	case idl.ValueBool:
		if v.Bool {
			return "True"
		}
		return "False"
	default:
		return "None"
	}
}

func (g *generator) defaultValue(f idl.Field) string {
	if f.Default != nil {
		return formatValue(*f.Default)
	}
	if f.Array != nil {
		return "None"
	}
	if t, ok := g.reg.Lookup(f.Type); ok {
		if d, ok := t.Defaults["python"]; ok && d != "" {
			return d
		}
	}
	return "None"
}

func (g *generator) emitAggregate(name string, fields []idl.Field) string {
	var out strings.Builder
	fmt.Fprintf(&out, "class %s(object):\n", name)
	out.WriteString("    def __init__(self")
	for _, f := range fields {
		fmt.Fprintf(&out, ",\n        %s = %s", f.Name, g.defaultValue(f))
	}
	out.WriteString("):\n")

	for _, f := range fields {
		switch {
		case f.Array != nil:
			fmt.Fprintf(&out, "        if %s is None:\n", f.Name)
			fmt.Fprintf(&out, "            self.%s = []\n", f.Name)
			out.WriteString("        else:\n")
			fmt.Fprintf(&out, "            self.%s = %s\n", f.Name, f.Name)
		case f.Default == nil && g.defaultValue(f) == "None":
			fmt.Fprintf(&out, "        if %s is None:\n", f.Name)
			fmt.Fprintf(&out, "            self.%s = %s()\n", f.Name, pythonType(g.reg, f.Type))
			out.WriteString("        else:\n")
			fmt.Fprintf(&out, "            self.%s = %s\n", f.Name, f.Name)
		default:
			fmt.Fprintf(&out, "        self.%s = %s\n", f.Name, f.Name)
		}
	}
	out.WriteString("        pass\n\n")

	out.WriteString("    @staticmethod\n")
	out.WriteString("    def read(reader):\n")
	fmt.Fprintf(&out, "        dst = %s()\n", name)
	for _, f := range fields {
		if f.Array != nil {
			fmt.Fprintf(&out, "        dst.%s = routio.readList(%s, reader)\n", f.Name, pythonType(g.reg, f.Type))
		} else {
			fmt.Fprintf(&out, "        dst.%s = routio.readType(%s, reader)\n", f.Name, pythonType(g.reg, f.Type))
		}
	}
	out.WriteString("        return dst\n\n")

	out.WriteString("    @staticmethod\n")
	out.WriteString("    def write(writer, obj):\n")
	for _, f := range fields {
		if f.Array != nil {
			fmt.Fprintf(&out, "        routio.writeList(%s, writer, obj.%s)\n", pythonType(g.reg, f.Type), f.Name)
		} else {
			fmt.Fprintf(&out, "        routio.writeType(%s, writer, obj.%s)\n", pythonType(g.reg, f.Type), f.Name)
		}
	}
	out.WriteString("        pass\n\n")

	fmt.Fprintf(&out, "routio.registerType(%s, %s.read, %s.write)\n\n", name, name, name)
	return out.String()
}

func (g *generator) serializationRegion() string {
	var out strings.Builder
	for _, msgName := range g.reg.Messages() {
		t, _ := g.reg.Lookup(msgName)
		hash := ""
		if t != nil {
			hash = t.Hash
		}

		fmt.Fprintf(&out, "class %sSubscriber(routio.Subscriber):\n\n", msgName)
		out.WriteString("    def __init__(self, client, alias, callback):\n")
		out.WriteString("        def _read(message):\n")
		out.WriteString("            reader = routio.MessageReader(message)\n")
		fmt.Fprintf(&out, "            return %s.read(reader)\n\n", msgName)
		fmt.Fprintf(&out, "        super(%sSubscriber, self).__init__(client, alias, \"%s\", lambda x: callback(_read(x)))\n\n\n",
			msgName, hash)

		fmt.Fprintf(&out, "class %sPublisher(routio.Publisher):\n\n", msgName)
		out.WriteString("    def __init__(self, client, alias):\n")
		fmt.Fprintf(&out, "        super(%sPublisher, self).__init__(client, alias, \"%s\")\n\n", msgName, hash)
		out.WriteString("    def send(self, obj):\n")
		out.WriteString("        writer = routio.MessageWriter()\n")
		fmt.Fprintf(&out, "        %s.write(writer, obj)\n", msgName)
		fmt.Fprintf(&out, "        super(%sPublisher, self).send(writer)\n\n", msgName)
	}
	return out.String()
}
