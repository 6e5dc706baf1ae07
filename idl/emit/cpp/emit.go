// Package cpp is the C++ code emitter (component C8, one of two back-ends
// sharing the type registry of idl/registry). Output is a single
// deterministic header: Prologue, Type region, Serialization region
// (§4.8), grounded on original_source's CppGenerator in
// src/generator/templates.cpp.
package cpp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/routio/routio/idl"
	"github.com/routio/routio/idl/registry"
)

// Generate renders desc as a single C++ header, named by basename for the
// include guard (basename may be empty when writing to stdout).
func Generate(desc *idl.Description, reg *registry.Registry, basename string) string {
	g := &generator{desc: desc, reg: reg, basename: basename}
	return g.generate()
}

type generator struct {
	desc     *idl.Description
	reg      *registry.Registry
	basename string
}

func (g *generator) generate() string {
	var out strings.Builder

	out.WriteString(g.prologue())
	out.WriteString(g.externalSpecializations())
	out.WriteString(g.namespaceOpen())
	out.WriteString(g.typeRegion())
	out.WriteString(g.serializationRegion())
	out.WriteString(g.namespaceClose())
	out.WriteString(g.headerFooter())

	return out.String()
}

func (g *generator) guardName() string {
	base := g.basename
	if base == "" {
		base = "ROUTIO_MSGS"
	}
	return strings.ToUpper(strings.ReplaceAll(base, ".", "_")) + "_MSGS_H"
}

func (g *generator) prologue() string {
	var out strings.Builder
	out.WriteString("// This is an autogenerated file, do not modify!\n\n")
	guard := g.guardName()
	fmt.Fprintf(&out, "#ifndef __%s\n", guard)
	fmt.Fprintf(&out, "#define __%s\n\n", guard)

	for _, src := range g.dependencySources() {
		if strings.HasPrefix(src, "<") || strings.HasPrefix(src, "\"") {
			fmt.Fprintf(&out, "#include %s\n", src)
		} else {
			fmt.Fprintf(&out, "#include <%s>\n", src)
		}
	}
	out.WriteString("\n")
	return out.String()
}

// dependencySources aggregates the Sources of every type referenced by a
// field or the built-ins each aggregate touches, deduplicated in
// first-seen order (§4.8 determinism requirement).
func (g *generator) dependencySources() []string {
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
	return lo.Uniq(all)
}

// externalSpecializations emits the routio::read/write template
// specializations for each external type carrying a cpp reader/writer
// pair (§4.8), grounded on CppGenerator::generateTypeSpecializations_ in
// templates.cpp:416.
func (g *generator) externalSpecializations() string {
	var out strings.Builder
	out.WriteString("namespace routio {\n\n")
	for _, t := range g.reg.Externals() {
		reader := t.Readers["cpp"]
		writer := t.Writers["cpp"]
		if reader == "" || writer == "" {
			continue
		}
		container := t.Containers["cpp"]
		fmt.Fprintf(&out, "template <> inline void read(MessageReader& reader, %s& dst) {\n", container)
		fmt.Fprintf(&out, "\tdst = %s(reader);\n", reader)
		out.WriteString("}\n\n")

		fmt.Fprintf(&out, "template <> inline void write(MessageWriter& writer, const %s& src) {\n", container)
		fmt.Fprintf(&out, "\t%s(writer, src);\n", writer)
		out.WriteString("}\n\n")
	}
	out.WriteString("}\n\n")
	return out.String()
}

func (g *generator) namespaceParts() []string {
	if g.desc.Namespace == "" {
		return nil
	}
	return strings.Split(g.desc.Namespace, ".")
}

func (g *generator) namespaceOpen() string {
	parts := g.namespaceParts()
	if len(parts) == 0 {
		return ""
	}
	var out strings.Builder
	for _, p := range parts {
		fmt.Fprintf(&out, "namespace %s {\n", p)
	}
	out.WriteString("\n")
	return out.String()
}

func (g *generator) namespaceClose() string {
	parts := g.namespaceParts()
	var out strings.Builder
	for range parts {
		out.WriteString("}\n")
	}
	return out.String()
}

func (g *generator) cppNamespacePrefix() string {
	parts := g.namespaceParts()
	if len(parts) == 0 {
		return ""
	}
	return "::" + strings.Join(parts, "::") + "::"
}

func (g *generator) headerFooter() string {
	return fmt.Sprintf("\n#endif // __%s\n", g.guardName())
}

func upperName(name string) string {
	return strings.ToUpper(name)
}

func (g *generator) typeRegion() string {
	var out strings.Builder

	for _, decl := range g.desc.Decls {
		if decl.Structure != nil {
			fmt.Fprintf(&out, "class %s;\n", decl.Structure.Name)
		}
		if decl.Message != nil {
			fmt.Fprintf(&out, "class %s;\n", decl.Message.Name)
		}
	}
	out.WriteString("\n")

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
	fmt.Fprintf(&out, "enum %s { ", e.Name)
	upper := upperName(e.Name)
	for i, m := range e.Members {
		if i > 0 {
			out.WriteString(", ")
		}
		fmt.Fprintf(&out, "%s_%s", upper, m)
	}
	out.WriteString(" };\n\n")
	return out.String()
}

func (g *generator) fieldType(f idl.Field) string {
	base := f.Type
	if t, ok := g.reg.Lookup(f.Type); ok {
		if c, ok := t.Containers["cpp"]; ok {
			base = c
		}
	}
	if f.Array == nil || f.Array.FixedLen != nil {
		return base
	}
	return "std::vector<" + base + ">"
}

// fieldDecl renders the C++ declarator for f; a fixed-length array puts
// its length after the name (`int32_t values[4]`).
func (g *generator) fieldDecl(f idl.Field) string {
	if f.Array != nil && f.Array.FixedLen != nil {
		return g.fieldType(f) + " " + f.Name + "[" + strconv.Itoa(*f.Array.FixedLen) + "]"
	}
	return g.fieldType(f) + " " + f.Name
}

func formatValue(v idl.Value) string {
	switch v.Kind {
	case idl.ValueNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case idl.ValueString:
		return `"` + v.String + `"`
	case idl.ValueBool:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func (g *generator) defaultValue(f idl.Field) string {
	if f.Default != nil {
		return formatValue(*f.Default)
	}

	t, hasType := g.reg.Lookup(f.Type)
	base := f.Type
	if hasType {
		base = t.Containers["cpp"]
	}

	if f.Array != nil {
		if f.Array.FixedLen != nil {
			return "{}"
		}
		return "std::vector<" + base + ">()"
	}

	if hasType {
		if d, ok := t.Defaults["cpp"]; ok && d != "" {
			return d
		}
	}
	return base + "()"
}

func (g *generator) emitAggregate(name string, fields []idl.Field) string {
	var out strings.Builder
	fmt.Fprintf(&out, "class %s {\npublic:\n", name)

	fmt.Fprintf(&out, "\t%s(\n", name)
	for i, f := range fields {
		if i > 0 {
			out.WriteString(",\n")
		}
		fmt.Fprintf(&out, "\t\t%s = %s", g.fieldDecl(f), g.defaultValue(f))
	}
	out.WriteString("\n\t) {\n")
	for _, f := range fields {
		fmt.Fprintf(&out, "\t\tthis->%s = %s;\n", f.Name, f.Name)
	}
	out.WriteString("\t};\n\n")

	fmt.Fprintf(&out, "\tvirtual ~%s() {};\n", name)
	for _, f := range fields {
		fmt.Fprintf(&out, "\t%s;\n", g.fieldDecl(f))
	}
	out.WriteString("};\n\n")

	return out.String()
}

func (g *generator) serializationRegion() string {
	var out strings.Builder
	ns := g.cppNamespacePrefix()

	for _, decl := range g.desc.Decls {
		if decl.Enumerate != nil {
			out.WriteString(g.emitEnumSerializer(decl.Enumerate, ns))
		}
	}

	for _, decl := range g.desc.Decls {
		switch {
		case decl.Structure != nil:
			out.WriteString(g.emitAggregateSerializer(decl.Structure.Name, decl.Structure.Fields, ns))
		case decl.Message != nil:
			out.WriteString(g.emitAggregateSerializer(decl.Message.Name, decl.Message.Fields, ns))
			out.WriteString(g.emitMessageHelpers(decl.Message.Name, ns))
		}
	}

	return out.String()
}

func (g *generator) emitEnumSerializer(e *idl.Enumerate, ns string) string {
	var out strings.Builder
	upper := upperName(e.Name)

	fmt.Fprintf(&out, "template <> inline void read(MessageReader& reader, %s%s& dst) {\n", ns, e.Name)
	out.WriteString("\tswitch (reader.read<int>()) {\n")
	for i, m := range e.Members {
		fmt.Fprintf(&out, "\tcase %d: dst = %s%s_%s; break;\n", i, ns, upper, m)
	}
	out.WriteString("\t}\n}\n\n")

	fmt.Fprintf(&out, "template <> inline void write(MessageWriter& writer, const %s%s& src) {\n", ns, e.Name)
	out.WriteString("\tswitch (src) {\n")
	for i, m := range e.Members {
		fmt.Fprintf(&out, "\tcase %s%s_%s: writer.write<int>(%d); return;\n", ns, upper, m, i)
	}
	out.WriteString("\t}\n}\n\n")

	return out.String()
}

func (g *generator) emitAggregateSerializer(name string, fields []idl.Field, ns string) string {
	var out strings.Builder

	fmt.Fprintf(&out, "template <> inline void read(MessageReader& reader, %s%s& dst) {\n", ns, name)
	for _, f := range fields {
		fmt.Fprintf(&out, "\tread(reader, dst.%s);\n", f.Name)
	}
	out.WriteString("}\n\n")

	fmt.Fprintf(&out, "template <> inline void write(MessageWriter& writer, const %s%s& src) {\n", ns, name)
	for _, f := range fields {
		fmt.Fprintf(&out, "\twrite(writer, src.%s);\n", f.Name)
	}
	out.WriteString("}\n\n")

	return out.String()
}

func (g *generator) emitMessageHelpers(name, ns string) string {
	var out strings.Builder
	t, _ := g.reg.Lookup(name)
	hash := ""
	if t != nil {
		hash = t.Hash
	}

	fmt.Fprintf(&out, "template <> inline string get_type_identifier<%s%s>() { return string(\"%s\"); }\n\n", ns, name, hash)

	fmt.Fprintf(&out, "template<> inline shared_ptr<Message> routio::Message::pack<%s%s>(const %s%s &data) {\n", ns, name, ns, name)
	out.WriteString("\tMessageWriter writer;\n")
	out.WriteString("\twrite(writer, data);\n")
	out.WriteString("\treturn make_shared<BufferedMessage>(writer);\n")
	out.WriteString("}\n\n")

	fmt.Fprintf(&out, "template<> inline shared_ptr<%s%s> routio::Message::unpack<%s%s>(SharedMessage message) {\n", ns, name, ns, name)
	out.WriteString("\tMessageReader reader(message);\n")
	fmt.Fprintf(&out, "\tshared_ptr<%s%s> result(new %s%s());\n", ns, name, ns, name)
	out.WriteString("\tread(reader, *result);\n")
	out.WriteString("\treturn result;\n")
	out.WriteString("}\n\n")

	return out.String()
}
