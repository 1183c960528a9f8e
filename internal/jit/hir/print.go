package hir

import (
	"fmt"
	"strings"
)

// String renders fn as a readable listing, one block per paragraph, used by
// compiler diagnostics and by tests asserting on shape rather than on
// pointer identity.
func (fn *Func) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s\n", fn.Name)
	blocks := fn.RPOBlocks
	if blocks == nil {
		blocks = []*Block{fn.Entry}
	}
	for _, b := range blocks {
		fmt.Fprintf(&sb, "block%d:\n", b.ID)
		for _, instr := range b.Instrs {
			fmt.Fprintf(&sb, "  %s\n", instr.String())
		}
	}
	return sb.String()
}

func (i *Instr) String() string {
	var sb strings.Builder
	if i.HasResult() {
		fmt.Fprintf(&sb, "v%d = ", i.ID)
	}
	sb.WriteString(i.Op.String())
	for _, a := range i.Args {
		fmt.Fprintf(&sb, " v%d", a.ID)
	}
	switch i.Op {
	case OpLoadRoot:
		fmt.Fprintf(&sb, " #%d/%g/%q/%v", i.IntImm, i.FloatImm, i.StrImm, i.BoolImm)
	case OpLoadLocal, OpStoreLocal:
		fmt.Fprintf(&sb, " local%d", i.LocalIdx)
	case OpGetField, OpSetField:
		fmt.Fprintf(&sb, " .%s", i.FieldName)
	case OpCall, OpCallMethod, OpAllocateObject:
		fmt.Fprintf(&sb, " %s", i.CalleeName)
	case OpGoto, OpBranchBool:
		for _, t := range i.Targets {
			fmt.Fprintf(&sb, " ->block%d", t.ID)
		}
	}
	return sb.String()
}
