package classfile

import (
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/mod/semver"
)

const (
	// Magic identifies an encoded module ("MGMD").
	Magic uint32 = 0x4D474D44

	// FormatVersion is the wire format version written for new modules.
	FormatVersion = "v1.0.0"

	// supportedMajor is the only major format version Decode accepts.
	supportedMajor = "v1"
)

// Decode parses raw module bytes into a Module.
//
// Decoding is strict: any input that would not re-encode to the same bytes
// is rejected, so a successful Decode followed by Encode (with no mutation
// in between) is byte-identical.
//
// Returns:
//   - *Module: Decoded structural model
//   - error: *DecodeError describing the first problem, or nil
func Decode(data []byte) (*Module, error) {
	br := newBinaryReader(data)

	magic, err := br.u4("magic")
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, &DecodeError{Offset: 0, Message: fmt.Sprintf("bad magic 0x%08x", magic)}
	}

	version, err := br.str("format version")
	if err != nil {
		return nil, err
	}
	if !supportedVersion(version) {
		return nil, br.fail(nil, "unsupported format version %q", version)
	}

	m := &Module{Version: version}
	if m.Name, err = br.str("module name"); err != nil {
		return nil, err
	}
	if m.Name == "" {
		return nil, br.fail(nil, "empty module name")
	}
	mods, err := br.u2("module modifiers")
	if err != nil {
		return nil, err
	}
	m.Modifiers = Modifiers(mods)
	if m.Super, err = br.str("superclass name"); err != nil {
		return nil, err
	}

	count, err := br.u2("interface count")
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(count); i++ {
		name, err := br.str("interface name")
		if err != nil {
			return nil, err
		}
		m.Interfaces = append(m.Interfaces, name)
	}

	if count, err = br.u2("field count"); err != nil {
		return nil, err
	}
	for i := 0; i < int(count); i++ {
		f, err := decodeField(br)
		if err != nil {
			return nil, err
		}
		m.Fields = append(m.Fields, f)
	}

	if count, err = br.u2("method count"); err != nil {
		return nil, err
	}
	for i := 0; i < int(count); i++ {
		meth, err := decodeMethod(br)
		if err != nil {
			return nil, err
		}
		m.Methods = append(m.Methods, meth)
	}

	if br.Remaining() != 0 {
		return nil, br.fail(nil, "%d trailing bytes after module %s", br.Remaining(), m.Name)
	}
	return m, nil
}

func decodeField(br *binaryReader) (*Field, error) {
	var (
		f   Field
		err error
	)
	if f.Name, err = br.str("field name"); err != nil {
		return nil, err
	}
	if f.Type, err = br.str("field type"); err != nil {
		return nil, err
	}
	mods, err := br.u2("field modifiers")
	if err != nil {
		return nil, err
	}
	f.Modifiers = Modifiers(mods)

	hasInit, err := br.u1("field initializer flag")
	if err != nil {
		return nil, err
	}
	switch hasInit {
	case 0:
	case 1:
		f.HasInitializer = true
		if f.Initializer, err = br.str("field initializer"); err != nil {
			return nil, err
		}
	default:
		return nil, br.fail(nil, "field %s: invalid initializer flag %d", f.Name, hasInit)
	}
	return &f, nil
}

func decodeMethod(br *binaryReader) (*Method, error) {
	var (
		meth Method
		err  error
	)
	if meth.Name, err = br.str("method name"); err != nil {
		return nil, err
	}
	if meth.Descriptor, err = br.str("method descriptor"); err != nil {
		return nil, err
	}
	mods, err := br.u2("method modifiers")
	if err != nil {
		return nil, err
	}
	meth.Modifiers = Modifiers(mods)

	tags, err := br.u2("tag count")
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(tags); i++ {
		tag, err := br.str("tag")
		if err != nil {
			return nil, err
		}
		meth.Tags = append(meth.Tags, tag)
	}

	if meth.Prologue, err = decodeProbes(br, "prologue"); err != nil {
		return nil, err
	}

	bodyLen, err := br.u4("body length")
	if err != nil {
		return nil, err
	}
	if bodyLen > 0 {
		if meth.Body, err = br.readN(int(bodyLen), "method body"); err != nil {
			return nil, err
		}
	}

	if meth.Epilogue, err = decodeProbes(br, "epilogue"); err != nil {
		return nil, err
	}
	return &meth, nil
}

func decodeProbes(br *binaryReader, where string) ([]Probe, error) {
	count, err := br.u2(where + " probe count")
	if err != nil {
		return nil, err
	}
	var probes []Probe
	for i := 0; i < int(count); i++ {
		op, err := br.u1("probe op")
		if err != nil {
			return nil, err
		}
		nargs, err := br.u1("probe argument count")
		if err != nil {
			return nil, err
		}
		p := Probe{Op: ProbeOp(op)}
		for j := 0; j < int(nargs); j++ {
			arg, err := br.str("probe argument")
			if err != nil {
				return nil, err
			}
			p.Args = append(p.Args, arg)
		}
		if !p.validate() {
			return nil, br.fail(nil, "invalid %s probe %s with %d arguments", where, p.Op, len(p.Args))
		}
		probes = append(probes, p)
	}
	return probes, nil
}

// Encode serializes m.
//
// The model is validated before any byte is written, so a model that
// cannot round-trip through Decode never produces output.
//
// Returns:
//   - []byte: Encoded module
//   - error: *EncodeError describing the first problem, or nil
func Encode(m *Module) ([]byte, error) {
	if err := validate(m); err != nil {
		return nil, err
	}

	version := m.Version
	if version == "" {
		version = FormatVersion
	}

	var bw binaryWriter
	bw.u4(Magic)
	bw.str(version)
	bw.str(m.Name)
	bw.u2(uint16(m.Modifiers))
	bw.str(m.Super)

	bw.u2(uint16(len(m.Interfaces)))
	for _, name := range m.Interfaces {
		bw.str(name)
	}

	bw.u2(uint16(len(m.Fields)))
	for _, f := range m.Fields {
		bw.str(f.Name)
		bw.str(f.Type)
		bw.u2(uint16(f.Modifiers))
		if f.HasInitializer {
			bw.u1(1)
			bw.str(f.Initializer)
		} else {
			bw.u1(0)
		}
	}

	bw.u2(uint16(len(m.Methods)))
	for _, meth := range m.Methods {
		bw.str(meth.Name)
		bw.str(meth.Descriptor)
		bw.u2(uint16(meth.Modifiers))
		bw.u2(uint16(len(meth.Tags)))
		for _, tag := range meth.Tags {
			bw.str(tag)
		}
		encodeProbes(&bw, meth.Prologue)
		bw.u4(uint32(len(meth.Body)))
		bw.buf.Write(meth.Body)
		encodeProbes(&bw, meth.Epilogue)
	}

	return bw.Bytes(), nil
}

func encodeProbes(bw *binaryWriter, probes []Probe) {
	bw.u2(uint16(len(probes)))
	for _, p := range probes {
		bw.u1(uint8(p.Op))
		bw.u1(uint8(len(p.Args)))
		for _, arg := range p.Args {
			bw.str(arg)
		}
	}
}

// validate checks every limit the wire format imposes.
func validate(m *Module) error {
	fail := func(format string, args ...any) error {
		return &EncodeError{Module: m.Name, Message: fmt.Sprintf(format, args...)}
	}

	if m.Version != "" && !supportedVersion(m.Version) {
		return fail("unsupported format version %q", m.Version)
	}
	if m.Name == "" {
		return fail("empty module name")
	}
	if err := checkStrings(m.Name, m.Super); err != "" {
		return fail("%s", err)
	}
	if err := checkCount("interfaces", len(m.Interfaces)); err != "" {
		return fail("%s", err)
	}
	if err := checkStrings(m.Interfaces...); err != "" {
		return fail("interface: %s", err)
	}

	if err := checkCount("fields", len(m.Fields)); err != "" {
		return fail("%s", err)
	}
	for _, f := range m.Fields {
		if f.Name == "" {
			return fail("field with empty name")
		}
		if err := checkStrings(f.Name, f.Type, f.Initializer); err != "" {
			return fail("field %s: %s", f.Name, err)
		}
		if !f.HasInitializer && f.Initializer != "" {
			return fail("field %s: initializer text without initializer flag", f.Name)
		}
	}

	if err := checkCount("methods", len(m.Methods)); err != "" {
		return fail("%s", err)
	}
	for _, meth := range m.Methods {
		if meth.Name == "" {
			return fail("method with empty name")
		}
		if err := checkStrings(meth.Name, meth.Descriptor); err != "" {
			return fail("method %s: %s", meth.Name, err)
		}
		if err := checkCount("tags", len(meth.Tags)); err != "" {
			return fail("method %s: %s", meth.Name, err)
		}
		if err := checkStrings(meth.Tags...); err != "" {
			return fail("method %s tag: %s", meth.Name, err)
		}
		if uint64(len(meth.Body)) > math.MaxUint32 {
			return fail("method %s: body too large", meth.Name)
		}
		for _, probes := range [][]Probe{meth.Prologue, meth.Epilogue} {
			if err := checkCount("probes", len(probes)); err != "" {
				return fail("method %s: %s", meth.Name, err)
			}
			for _, p := range probes {
				if !p.validate() {
					return fail("method %s: invalid probe %s with %d arguments", meth.Name, p.Op, len(p.Args))
				}
				if err := checkStrings(p.Args...); err != "" {
					return fail("method %s probe %s: %s", meth.Name, p.Op, err)
				}
			}
		}
	}
	return nil
}

func checkStrings(values ...string) string {
	for _, s := range values {
		if len(s) > math.MaxUint16 {
			return fmt.Sprintf("string of %d bytes exceeds %d", len(s), math.MaxUint16)
		}
		if !utf8.ValidString(s) {
			return fmt.Sprintf("string %q is not valid UTF-8", s)
		}
	}
	return ""
}

func checkCount(what string, n int) string {
	if n > math.MaxUint16 {
		return fmt.Sprintf("%d %s exceed %d", n, what, math.MaxUint16)
	}
	return ""
}

func supportedVersion(v string) bool {
	return semver.IsValid(v) && semver.Major(v) == supportedMajor
}
