package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kolkov/modguard/internal/classfile"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <module-file>...",
		Short: "Print the structural model of encoded modules",
		Long: `Print the structural model of encoded modules, including every injected
probe. Useful to review what a transformation did.

Examples:
  modguard inspect out/com.example.Conn.mgm`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for i, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				m, err := classfile.Decode(raw)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				printModule(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

// printModule renders m in declaration order.
func printModule(w io.Writer, m *classfile.Module) {
	kind := "module"
	if m.IsInterface() {
		kind = "interface"
	}
	fmt.Fprintf(w, "%s %s%s\n", kind, m.Name, modifierSuffix(m.Modifiers))
	fmt.Fprintf(w, "  version %s\n", m.Version)
	if m.Super != "" {
		fmt.Fprintf(w, "  extends %s\n", m.Super)
	}
	if len(m.Interfaces) > 0 {
		fmt.Fprintf(w, "  implements %s\n", strings.Join(m.Interfaces, ", "))
	}

	for _, f := range m.Fields {
		fmt.Fprintf(w, "  field %s %s%s", f.Name, f.Type, modifierSuffix(f.Modifiers))
		if f.HasInitializer {
			fmt.Fprintf(w, " = %s", f.Initializer)
		}
		fmt.Fprintln(w)
	}

	for _, meth := range m.Methods {
		fmt.Fprintf(w, "  method %s%s%s [%d bytes]\n", meth.Name, meth.Descriptor, modifierSuffix(meth.Modifiers), len(meth.Body))
		for _, tag := range meth.Tags {
			fmt.Fprintf(w, "    @%s\n", tag)
		}
		for _, p := range meth.Prologue {
			fmt.Fprintf(w, "    before %s\n", p)
		}
		for _, p := range meth.Epilogue {
			fmt.Fprintf(w, "    after  %s\n", p)
		}
	}
}

func modifierSuffix(m classfile.Modifiers) string {
	if m == 0 {
		return ""
	}
	return " (" + m.String() + ")"
}
