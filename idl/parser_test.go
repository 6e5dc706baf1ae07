package idl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNamespaceAndStructure(t *testing.T) {
	src := `
namespace demo.robot;

structure Point {
	float64 x;
	float64 y;
}
`
	d, err := Parse("test.desc", src)
	require.NoError(t, err)
	require.Equal(t, "demo.robot", d.Namespace)
	require.Len(t, d.Decls, 1)
	s := d.Decls[0].Structure
	require.NotNil(t, s)
	require.Equal(t, "Point", s.Name)
	require.Len(t, s.Fields, 2)
	require.Equal(t, "float64", s.Fields[0].Type)
	require.Equal(t, "x", s.Fields[0].Name)
}

func TestParseMessageWithArrayAndDefault(t *testing.T) {
	src := `
message Scan {
	float64[] ranges;
	int32[8] ids;
	string label = "lidar";
}
`
	d, err := Parse("test.desc", src)
	require.NoError(t, err)
	m := d.Decls[0].Message
	require.NotNil(t, m)
	require.Equal(t, "Scan", m.Name)

	require.NotNil(t, m.Fields[0].Array)
	require.Nil(t, m.Fields[0].Array.FixedLen)

	require.NotNil(t, m.Fields[1].Array)
	require.NotNil(t, m.Fields[1].Array.FixedLen)
	require.Equal(t, 8, *m.Fields[1].Array.FixedLen)

	require.NotNil(t, m.Fields[2].Default)
	require.Equal(t, ValueString, m.Fields[2].Default.Kind)
	require.Equal(t, "lidar", m.Fields[2].Default.String)
}

func TestParseFieldProperties(t *testing.T) {
	src := `
structure Reading {
	float64 value (0.0 : 100.0);
	int32 count (min=0 : max=10);
}
`
	d, err := Parse("test.desc", src)
	require.NoError(t, err)
	s := d.Decls[0].Structure

	props0 := s.Fields[0].Properties
	require.NotNil(t, props0)
	require.Len(t, props0.Positional, 2)
	require.Empty(t, props0.Keywords)

	props1 := s.Fields[1].Properties
	require.NotNil(t, props1)
	require.Empty(t, props1.Positional)
	require.Len(t, props1.Keywords, 2)
	require.Equal(t, "min", props1.Keywords[0].Name)
	require.Equal(t, "max", props1.Keywords[1].Name)
}

func TestParsePropertiesRejectsPositionalAfterKeyword(t *testing.T) {
	src := `
structure Bad {
	int32 count (min=0 : 10);
}
`
	_, err := Parse("test.desc", src)
	require.Error(t, err)
	require.Contains(t, err.Error(), "positional value may not follow a keyword argument")
}

func TestParseEnumerate(t *testing.T) {
	src := `
enumerate Mode {
	IDLE,
	RUNNING,
	FAULT
}
`
	d, err := Parse("test.desc", src)
	require.NoError(t, err)
	e := d.Decls[0].Enumerate
	require.NotNil(t, e)
	require.Equal(t, "Mode", e.Name)
	require.Equal(t, []string{"IDLE", "RUNNING", "FAULT"}, e.Members)
}

func TestParseIncludeAndImport(t *testing.T) {
	src := `
include "common.desc" (guard=true);
import "vendor/geometry.desc";
`
	d, err := Parse("test.desc", src)
	require.NoError(t, err)
	require.Len(t, d.Decls, 2)

	inc := d.Decls[0].Include
	require.NotNil(t, inc)
	require.Equal(t, "common.desc", inc.Path)
	require.NotNil(t, inc.Properties)
	require.Len(t, inc.Properties.Keywords, 1)

	imp := d.Decls[1].Import
	require.NotNil(t, imp)
	require.Equal(t, "vendor/geometry.desc", imp.Path)
}

func TestParseExternalWithLanguageBindings(t *testing.T) {
	src := `
external Matrix3 (
	language cpp "Eigen::Matrix3d" from "<Eigen/Dense>" default "Eigen::Matrix3d::Identity()" read "readMatrix3" write "writeMatrix3";
	language python "numpy.ndarray" from "numpy";
);
`
	d, err := Parse("test.desc", src)
	require.NoError(t, err)
	ext := d.Decls[0].External
	require.NotNil(t, ext)
	require.Equal(t, "Matrix3", ext.Name)
	require.Len(t, ext.Languages, 2)

	cpp := ext.Languages[0]
	require.Equal(t, "cpp", cpp.Language)
	require.Equal(t, "Eigen::Matrix3d", cpp.Source)
	require.Equal(t, []string{"<Eigen/Dense>"}, cpp.From)
	require.Equal(t, "Eigen::Matrix3d::Identity()", cpp.Default)
	require.Equal(t, "readMatrix3", cpp.Reader)
	require.Equal(t, "writeMatrix3", cpp.Writer)

	py := ext.Languages[1]
	require.Equal(t, "python", py.Language)
	require.Equal(t, []string{"numpy"}, py.From)
	require.Empty(t, py.Default)
}

func TestParseBooleanValue(t *testing.T) {
	src := `
structure Flag {
	bool enabled = true;
}
`
	d, err := Parse("test.desc", src)
	require.NoError(t, err)
	f := d.Decls[0].Structure.Fields[0]
	require.NotNil(t, f.Default)
	require.Equal(t, ValueBool, f.Default.Kind)
	require.True(t, f.Default.Bool)
}

func TestParseErrorReportsLineAndCol(t *testing.T) {
	src := "structure Foo {\n\tint32 x\n}\n"
	_, err := Parse("test.desc", src)
	require.Error(t, err)
	var de *DescriptionError
	require.ErrorAs(t, err, &de)
	require.Equal(t, 3, de.Line)
}
