// Package registry implements the type registry (component C7): the
// built-in type table, structure/message/enum/external registration, and
// the content-derived 128-bit type-tag hash that appears on the wire and
// in generated code (§4.7).
package registry

// Type is one registered type: built-in, enum, struct, message, or
// external. Containers/Defaults/Readers/Writers are keyed by target
// language ("cpp", "python").
type Type struct {
	Name       string
	Hash       string
	IsBuiltin  bool
	IsExternal bool
	Containers map[string]string
	Defaults   map[string]string
	Readers    map[string]string
	Writers    map[string]string
	Sources    []string
}

func builtin(name string, containers, defaults map[string]string, sources ...string) *Type {
	return &Type{
		Name:       name,
		Hash:       computeHash(name),
		IsBuiltin:  true,
		Containers: containers,
		Defaults:   defaults,
		Sources:    sources,
	}
}

// registerBuiltins seeds the registry with the built-in type table of
// §4.7, identical across both target languages in name and semantics,
// differing only in the per-language container/default strings
// (grounded on original_source's templates.cpp registerBuiltinTypes_).
func (r *Registry) registerBuiltins() {
	num := func(name, cppType string) {
		r.put(builtin(name,
			map[string]string{"cpp": cppType, "python": "int"},
			map[string]string{"cpp": "0", "python": "0"}))
	}
	num("int8", "int8_t")
	num("int16", "int16_t")
	num("int32", "int32_t")
	num("uint8", "uint8_t")
	num("uint16", "uint16_t")
	num("uint32", "uint32_t")
	num("uint64", "uint64_t")
	num("int", "int32_t")

	r.put(builtin("int64",
		map[string]string{"cpp": "int64_t", "python": "routio.long"},
		map[string]string{"cpp": "0", "python": "0"}))

	r.put(builtin("float32",
		map[string]string{"cpp": "float", "python": "float"},
		map[string]string{"cpp": "0.0f", "python": "0.0"}))
	r.put(builtin("float",
		map[string]string{"cpp": "float", "python": "float"},
		map[string]string{"cpp": "0.0f", "python": "0.0"}))

	r.put(builtin("float64",
		map[string]string{"cpp": "double", "python": "routio.double"},
		map[string]string{"cpp": "0.0", "python": "0.0"}))
	r.put(builtin("double",
		map[string]string{"cpp": "double", "python": "routio.double"},
		map[string]string{"cpp": "0.0", "python": "0.0"}))

	r.put(builtin("bool",
		map[string]string{"cpp": "bool", "python": "bool"},
		map[string]string{"cpp": "false", "python": "False"}))

	r.put(builtin("string",
		map[string]string{"cpp": "std::string", "python": "str"},
		map[string]string{"cpp": "\"\"", "python": "\"\""},
		"string"))

	r.put(builtin("char",
		map[string]string{"cpp": "char", "python": "routio.char"},
		map[string]string{"cpp": "'\\0'", "python": "'\\0'"}))

	r.put(builtin("timestamp",
		map[string]string{"cpp": "std::chrono::system_clock::time_point", "python": "datetime.datetime"},
		nil,
		"chrono", "datetime"))

	r.put(builtin("header",
		map[string]string{"cpp": "routio::Header", "python": "routio.Header"},
		map[string]string{"cpp": "routio::Header()", "python": "routio.Header()"},
		"routio/datatypes.h"))

	r.put(builtin("array",
		map[string]string{"cpp": "routio::Array", "python": "numpy.ndarray"},
		map[string]string{"cpp": "routio::Array()", "python": "numpy.zeros((0,))"},
		"routio/array.h", "numpy"))

	r.put(builtin("tensor",
		map[string]string{"cpp": "routio::Tensor", "python": "numpy.ndarray"},
		map[string]string{"cpp": "routio::Tensor()", "python": "numpy.zeros((0,))"},
		"routio/array.h", "numpy"))
}
