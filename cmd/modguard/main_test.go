package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kolkov/modguard/agent"
	"github.com/kolkov/modguard/internal/classfile"
	"github.com/kolkov/modguard/internal/instrument"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func writeModule(t *testing.T, dir string, m *classfile.Module) []byte {
	t.Helper()
	raw, err := classfile.Encode(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, m.Name+".mgm"), raw, 0o644))
	return raw
}

func connModule() *classfile.Module {
	return &classfile.Module{
		Name:       "com.example.Conn",
		Interfaces: []string{"java.lang.AutoCloseable"},
		Methods: []*classfile.Method{
			{Name: classfile.ConstructorName, Descriptor: classfile.NoArgDescriptor, Modifiers: classfile.Public},
			{Name: "close", Descriptor: classfile.NoArgDescriptor, Modifiers: classfile.Public},
		},
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTransformCommand(t *testing.T) {
	in, out, platform := t.TempDir(), t.TempDir(), t.TempDir()
	writeModule(t, platform, &classfile.Module{Name: "java.lang.AutoCloseable", Modifiers: classfile.Interface})
	writeModule(t, in, connModule())
	plain := writeModule(t, in, &classfile.Module{Name: "com.example.Plain"})

	stdout, err := execute(t, "transform", "-o", out, "--classpath", platform, "-v", in)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Instrumented: com.example.Conn")
	assert.Contains(t, stdout, "Unchanged:    com.example.Plain")
	assert.Contains(t, stdout, "2 modules seen")

	raw, err := os.ReadFile(filepath.Join(out, "com.example.Conn.mgm"))
	require.NoError(t, err)
	m, err := classfile.Decode(raw)
	require.NoError(t, err)
	assert.True(t, m.HasInterface(instrument.CloseableSpec.Marker))

	copied, err := os.ReadFile(filepath.Join(out, "com.example.Plain.mgm"))
	require.NoError(t, err)
	assert.Equal(t, plain, copied, "unchanged modules are copied bit for bit")
}

func TestTransformCommandDisabled(t *testing.T) {
	in, out, platform := t.TempDir(), t.TempDir(), t.TempDir()
	writeModule(t, platform, &classfile.Module{Name: "java.lang.AutoCloseable", Modifiers: classfile.Interface})
	original := writeModule(t, in, connModule())

	_, err := execute(t, "transform", "-o", out, "--classpath", platform,
		"--leak-unreleased=false", "--unclosed-tracking=false", "--constant-drift=false", "--thread-affinity=false", in)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(out, "com.example.Conn.mgm"))
	require.NoError(t, err)
	assert.Equal(t, original, raw)
}

func TestTransformCommandFailure(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "com.example.Broken.mgm"), []byte("MGMD"), 0o644))
	writeModule(t, in, &classfile.Module{Name: "com.example.Fine"})

	stdout, err := execute(t, "transform", "-o", out, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, classfile.ErrDecode)
	assert.Contains(t, stdout, "FAILED:       com.example.Broken")

	_, statErr := os.Stat(filepath.Join(out, "com.example.Broken.mgm"))
	assert.True(t, os.IsNotExist(statErr), "failed loads write nothing")
	_, statErr = os.Stat(filepath.Join(out, "com.example.Fine.mgm"))
	assert.NoError(t, statErr, "other modules are still processed")
}

func TestTransformRequiresOutput(t *testing.T) {
	_, err := execute(t, "transform", t.TempDir())
	assert.Error(t, err)
}

func TestInspectCommand(t *testing.T) {
	dir := t.TempDir()
	m := connModule()
	m.Methods[1].Prologue = []classfile.Probe{classfile.NewProbe(classfile.ProbeLeakRelease, "$modguard$CloseTracked")}
	writeModule(t, dir, m)

	stdout, err := execute(t, "inspect", filepath.Join(dir, "com.example.Conn.mgm"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "module com.example.Conn")
	assert.Contains(t, stdout, "implements java.lang.AutoCloseable")
	assert.Contains(t, stdout, "method close()V (public)")
	assert.Contains(t, stdout, "before leak.release($modguard$CloseTracked)")
}

func TestVersionCommand(t *testing.T) {
	stdout, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "modguard version dev")
}

// TestWatcherHandle tests event filtering of the watch loop.
func TestWatcherHandle(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	ag, err := agent.New(agent.DefaultConfig())
	require.NoError(t, err)

	b := newBatch(ag, in, out, nil, 1, zap.NewNop())
	w, err := newModuleWatcher(b, in)
	require.NoError(t, err)
	defer w.Close()

	writeModule(t, in, &classfile.Module{Name: "com.example.Late"})

	w.handle(fsnotify.Event{Name: filepath.Join(in, "com.example.Late.mgm"), Op: fsnotify.Remove})
	_, err = os.Stat(filepath.Join(out, "com.example.Late.mgm"))
	assert.True(t, os.IsNotExist(err))

	w.handle(fsnotify.Event{Name: filepath.Join(in, ".com.example.Late.mgm"), Op: fsnotify.Create})
	w.handle(fsnotify.Event{Name: filepath.Join(in, "notes.txt"), Op: fsnotify.Create})
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)

	w.handle(fsnotify.Event{Name: filepath.Join(in, "com.example.Late.mgm"), Op: fsnotify.Create})
	_, err = os.Stat(filepath.Join(out, "com.example.Late.mgm"))
	assert.NoError(t, err)
	assert.Equal(t, int64(1), ag.Stats().Seen)
}

func TestModuleName(t *testing.T) {
	assert.Equal(t, "com.example.Conn", moduleName("/tmp/x/com.example.Conn.mgm"))
	assert.True(t, isModuleFile("a/b.mgm"))
	assert.False(t, isModuleFile("a/.b.mgm"))
	assert.False(t, isModuleFile("a/b.txt"))
}
