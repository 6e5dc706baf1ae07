// Command idlc compiles description-language files into generated client
// bindings (§6 IDL CLI): `idlc [--language cpp|python] <file>...`. With no
// input files it reads one description from stdin and writes to stdout.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/routio/routio/idl"
	"github.com/routio/routio/idl/emit/cpp"
	"github.com/routio/routio/idl/emit/python"
	"github.com/routio/routio/idl/registry"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("idlc", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	language := flags.String("language", "cpp", "target language: cpp or python")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if *language != "cpp" && *language != "python" {
		fmt.Fprintf(stderr, "unknown output language: %s\n", *language)
		return 1
	}

	files := flags.Args()
	if len(files) == 0 {
		return compileOne(stdin, "input", "", *language, stdout, stderr)
	}

	exit := 0
	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			fmt.Fprintf(stderr, "failed to open input file: %s\n", file)
			exit = 1
			continue
		}
		if code := compileOne(f, file, file, *language, stdout, stderr); code != 0 {
			exit = code
		}
		f.Close()
	}
	return exit
}

func compileOne(r io.Reader, displayName, inputFilename, language string, stdout, stderr io.Writer) int {
	src, err := io.ReadAll(r)
	if err != nil {
		fmt.Fprintf(stderr, "failed to read input: %s\n", err)
		return 1
	}

	desc, err := idl.Parse(displayName, string(src))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	reg := registry.New(displayName)
	if err := reg.Build(desc); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	var (
		code string
		ext  string
	)
	switch language {
	case "cpp":
		var base string
		if inputFilename != "" {
			base = outputBasename(inputFilename)
		}
		code = cpp.Generate(desc, reg, base)
		ext = ".cpp"
	case "python":
		code = python.Generate(desc, reg)
		ext = ".py"
	}

	if inputFilename == "" {
		io.WriteString(stdout, code)
		return 0
	}

	outName := outputBasename(inputFilename) + ext
	if err := os.WriteFile(outName, []byte(code), 0o644); err != nil {
		fmt.Fprintf(stderr, "failed to open output file: %s\n", outName)
		return 1
	}
	return 0
}

// outputBasename strips directory and extension (§6: "strip directory and
// extension, append .cpp or .py").
func outputBasename(inputFilename string) string {
	base := filepath.Base(inputFilename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
