package dasm

import (
	"fmt"
	"strings"

	"github.com/Trazarw/dotnet-ildasm/internal/filter"
	"github.com/Trazarw/dotnet-ildasm/internal/metadata"
)

// moduleScopeType is the synthetic compiler-generated type holding
// module-level members. It is never rendered.
const moduleScopeType = "<Module>"

// Features of the module header we deliberately do not reproduce.
// They are emitted as inert comments so a re-assembly attempt fails
// loudly instead of silently picking defaults.
var (
	moduleHeaderPreamble = []string{
		"// .imagebase [value not supported]",
		"// .file alignment [value not supported]",
		"// .stackreserve [value not supported]",
	}
	moduleHeaderTrailer = []string{
		"// .corflags [value not supported]",
		"// Image base: [value not supported]",
	}
)

// token is one conditional element of a signature line. Tokens are
// evaluated in declaration order so the emitted sequence is fixed no
// matter which flags are set.
type token struct {
	when bool
	text string
}

func joinTokens(tokens []token) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.when {
			parts = append(parts, t.text)
		}
	}
	return strings.Join(parts, " ")
}

// Render walks the decoded assembly once and writes its textual IL
// form through the sink, honouring the member filter. Traversal order
// follows the model's own ordering; no sorting is performed. The
// first sink failure aborts the walk.
func Render(asm *metadata.Assembly, f *filter.MemberFilter, sink Sink) error {
	w := &lineWriter{sink: sink}

	if !f.HasFilter() {
		writeExterns(w, asm)
		writeAssemblySection(w, asm)
	}

	for i := range asm.Modules {
		mod := &asm.Modules[i]
		if !f.HasFilter() {
			writeModuleHeader(w, mod)
		}
		for j := range mod.Types {
			t := &mod.Types[j]
			if t.Name == moduleScopeType {
				continue
			}
			if f.TypeIncluded(t.Name) {
				writeType(w, t, f)
			}
		}
	}
	return w.err
}

// lineWriter short-circuits after the first sink error so the render
// routines stay free of per-line error plumbing.
type lineWriter struct {
	sink Sink
	err  error
}

func (w *lineWriter) line(text string) {
	if w.err == nil {
		w.err = w.sink.WriteLine(text)
	}
}

func (w *lineWriter) blank() {
	if w.err == nil {
		w.err = w.sink.WriteBlankLine()
	}
}

func writeExterns(w *lineWriter, asm *metadata.Assembly) {
	for i := range asm.References {
		ref := &asm.References[i]
		w.line(fmt.Sprintf(".assembly extern '%s'", ref.Name))
		w.line("{")
		w.line(fmt.Sprintf("  .publickeytoken = ( %s )", hexPairs(ref.PublicKeyToken)))
		w.line("  .ver " + formatVersion(ref.Version))
		w.line("}")
	}
}

func writeAssemblySection(w *lineWriter, asm *metadata.Assembly) {
	w.line(fmt.Sprintf(".assembly '%s'", asm.Name))
	w.line("{")
	for i := range asm.CustomAttributes {
		writeCustomAttribute(w, &asm.CustomAttributes[i])
	}
	w.line(fmt.Sprintf("  .hash algorithm 0x%08x", asm.HashAlgorithm))
	w.line("  .ver " + formatVersion(asm.Version))
	w.line("}")
}

func writeCustomAttribute(w *lineWriter, attr *metadata.CustomAttribute) {
	// Only the first constructor argument is serialized.
	payload := "()"
	if attr.Resolved && len(attr.Arguments) > 0 && len(attr.Arguments[0]) > 0 {
		payload = fmt.Sprintf("( %s )", hexBytes(attr.Arguments[0]))
	}
	directive := fmt.Sprintf(".custom %s = %s", attr.Ctor, payload)

	// Debugging attributes would change the debug behaviour of a
	// re-assembled binary, so they are left in the output but
	// disarmed.
	if isDebugAttribute(attr.TypeName) {
		w.line("  // The following custom attribute is added automatically for debugging purposes, do not uncomment:")
		w.line("  // " + directive)
		return
	}
	w.line("  " + directive)
}

func isDebugAttribute(typeName string) bool {
	return strings.Contains(strings.ToLower(typeName), "debuggable")
}

func writeModuleHeader(w *lineWriter, mod *metadata.Module) {
	w.line(fmt.Sprintf(".module '%s' // MVID: {%s}", mod.AssemblyName, mod.MVID))
	for _, s := range moduleHeaderPreamble {
		w.line(s)
	}
	switch mod.Kind {
	case metadata.ModuleKindConsole:
		w.line("// .subsystem 0x003")
	case metadata.ModuleKindWindowed:
		w.line("// .subsystem 0x002")
	}
	for _, s := range moduleHeaderTrailer {
		w.line(s)
	}
}

func writeType(w *lineWriter, t *metadata.Type, f *filter.MemberFilter) {
	w.blank()
	w.line(typeSignature(t))
	w.blank()
	w.line("{")
	for i := range t.Methods {
		m := &t.Methods[i]
		if f.MethodIncluded(m.Name) {
			writeMethod(w, m)
		}
	}
	w.blank()
	w.line(fmt.Sprintf("} // End of class %s", t.FullName))
}

// typeSignature composes the .class line. Token order is fixed; a
// flag that is unset contributes nothing. Note that 'sealed' follows
// the abstract flag, faithfully reproducing the original tool's
// output.
func typeSignature(t *metadata.Type) string {
	sig := joinTokens([]token{
		{true, ".class"},
		{t.Visibility == metadata.VisibilityPublic, "public"},
		{t.Visibility == metadata.VisibilityPrivate, "private"},
		{t.Layout == metadata.LayoutSequential, "sequential"},
		{t.Interface, "interface"},
		{t.Abstract, "abstract"},
		{t.Layout == metadata.LayoutAuto, "auto"},
		{t.StringFormat == metadata.StringFormatANSI, "ansi"},
		{t.Abstract, "sealed"},
		{t.BeforeFieldInit, "beforefieldinit"},
		{true, t.FullName},
	})
	if t.BaseType != "" {
		sig += " extends " + t.BaseType
	}
	if len(t.Interfaces) > 0 {
		sig += " implements " + strings.Join(t.Interfaces, ", ")
	}
	return sig
}

func writeMethod(w *lineWriter, m *metadata.Method) {
	w.blank()
	w.line(methodSignature(m))
	w.blank()
	w.line("{")
	if m.EntryPoint {
		w.line("  .entrypoint")
	}
	if m.Body != nil {
		w.line(fmt.Sprintf("  // Code size %d (0x%x)", m.Body.CodeSize, m.Body.CodeSize))
		w.line(fmt.Sprintf("  .maxstack %d", m.Body.MaxStack))
		for _, inst := range m.Body.Instructions {
			w.line("  " + inst.String())
		}
	}
	w.line(fmt.Sprintf("}// End of method %s", m.FullName))
}

// methodSignature composes the .method line. Visibilities other than
// public and private contribute no token; 'instance' marks non-static
// methods.
func methodSignature(m *metadata.Method) string {
	return joinTokens([]token{
		{true, ".method"},
		{m.Visibility == metadata.VisibilityPublic, "public"},
		{m.Visibility == metadata.VisibilityPrivate, "private"},
		{m.HideBySig, "hidebysig"},
		{m.SpecialName, "specialname"},
		{m.RTSpecialName, "rtspecialname"},
		{!m.Static, "instance"},
		{true, m.FullName},
		{m.Managed, "cil managed"},
	})
}

// hexPairs renders bytes as uppercase hyphen-separated pairs (AB-01).
func hexPairs(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, "-")
}

// hexBytes renders bytes as uppercase space-separated pairs.
func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, " ")
}

// formatVersion renders a version in major:minor:revision:build
// order, matching the original tool's output.
func formatVersion(v metadata.Version) string {
	return fmt.Sprintf("%d:%d:%d:%d", v.Major, v.Minor, v.Revision, v.Build)
}
