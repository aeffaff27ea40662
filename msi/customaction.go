package msi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

// Well-known tables read by the action analysis.
const (
	CustomActionTable = "CustomAction"
	PropertyTable     = "Property"
	BinaryTable       = "Binary"
)

// ActionType is the Type column of the CustomAction table.
type ActionType uint32

// ActionSource is where a custom action's code lives.
type ActionSource uint32

const (
	SourceBinary    ActionSource = 0x00
	SourceFile      ActionSource = 0x10
	SourceDirectory ActionSource = 0x20
	SourceProperty  ActionSource = 0x30
)

// ActionTarget is what a custom action executes.
type ActionTarget uint32

const (
	TargetDLL      ActionTarget = 0x01
	TargetEXE      ActionTarget = 0x02
	TargetText     ActionTarget = 0x03
	TargetJScript  ActionTarget = 0x05
	TargetVBScript ActionTarget = 0x06
	TargetInstall  ActionTarget = 0x07
)

const (
	actionSourceMask = 0x30
	actionTargetMask = 0x07

	actionContinue      = 0x0040
	actionAsync         = 0x0080
	actionRollback      = 0x0100
	actionCommit        = 0x0200
	actionInScript      = 0x0400
	actionNoImpersonate = 0x0800
)

// Source returns the source bits.
func (t ActionType) Source() ActionSource { return ActionSource(t & actionSourceMask) }

// Target returns the target bits.
func (t ActionType) Target() ActionTarget { return ActionTarget(t & actionTargetMask) }

// Deferred reports whether the action runs inside the installation script.
func (t ActionType) Deferred() bool { return t&actionInScript != 0 }

// NoImpersonate reports whether a deferred action runs as LocalSystem.
func (t ActionType) NoImpersonate() bool { return t&actionNoImpersonate != 0 }

// Execution names the scheduling of the action.
func (t ActionType) Execution() string {
	switch {
	case !t.Deferred():
		return "immediate"
	case t&actionRollback != 0:
		return "rollback"
	case t&actionCommit != 0:
		return "commit"
	default:
		return "deferred"
	}
}

// Kind names the well-known source and target combinations.
func (t ActionType) Kind() string {
	switch {
	case t.Target() == TargetText && t.Source() == SourceFile:
		return "error"
	case t.Target() == TargetText && t.Source() == SourceProperty:
		return "set-property"
	case t.Target() == TargetText && t.Source() == SourceDirectory:
		return "set-directory"
	case t.Target() == TargetInstall:
		return "nested-install"
	}
	return t.Target().String()
}

func (t ActionType) String() string {
	s := fmt.Sprintf("%d %s/%s %s", uint32(t), t.Source(), t.Target(), t.Execution())
	if t.NoImpersonate() {
		s += " system"
	}
	if t&actionContinue != 0 {
		s += " ignore-exit"
	}
	if t&actionAsync != 0 {
		s += " async"
	}
	return s
}

func (s ActionSource) String() string {
	switch s {
	case SourceBinary:
		return "binary"
	case SourceFile:
		return "file"
	case SourceDirectory:
		return "directory"
	case SourceProperty:
		return "property"
	default:
		return fmt.Sprintf("source(%#x)", uint32(s))
	}
}

func (t ActionTarget) String() string {
	switch t {
	case TargetDLL:
		return "dll"
	case TargetEXE:
		return "exe"
	case TargetText:
		return "text"
	case TargetJScript:
		return "jscript"
	case TargetVBScript:
		return "vbscript"
	case TargetInstall:
		return "install"
	default:
		return fmt.Sprintf("target(%d)", uint32(t))
	}
}

// ScriptKind classifies the script carried by a custom action.
type ScriptKind uint8

const (
	ScriptNone ScriptKind = iota
	ScriptJScript
	ScriptVBScript
	ScriptPowerShell
)

func (k ScriptKind) String() string {
	switch k {
	case ScriptJScript:
		return "jscript"
	case ScriptVBScript:
		return "vbscript"
	case ScriptPowerShell:
		return "powershell"
	default:
		return "none"
	}
}

// Ext returns the file extension used when saving a script of this kind.
func (k ScriptKind) Ext() string {
	switch k {
	case ScriptJScript:
		return ".js"
	case ScriptVBScript:
		return ".vbs"
	case ScriptPowerShell:
		return ".ps1"
	default:
		return ""
	}
}

// powerShellLauncher marks AdvancedInstaller's PowerShell custom action DLL.
const powerShellLauncher = "PowerShellScriptLauncher"

// CustomAction is one decoded row of the CustomAction table.
type CustomAction struct {
	Name         string
	Type         ActionType
	Source       string
	Target       string
	ExtendedType int32

	Script     string
	ScriptKind ScriptKind
	// Inline reports that Script came from the Target column or a property
	// rather than a Binary stream.
	Inline bool
}

// DecodeCustomActions types every row of t, a loaded CustomAction table.
// Script bodies are resolved from props and, for Binary-sourced scripts,
// from the "Binary.<Source>" stream of src. A missing Binary stream leaves
// Script empty.
func DecodeCustomActions(t *Table, props map[string]string, src StreamSource) ([]CustomAction, error) {
	colAction := t.ColumnIndex("Action")
	colType := t.ColumnIndex("Type")
	if colAction < 0 || colType < 0 {
		return nil, types.Wrap(types.ErrCorruptTables, "CustomAction table lacks Action or Type", nil)
	}
	colSource := t.ColumnIndex("Source")
	colTarget := t.ColumnIndex("Target")
	colExt := t.ColumnIndex("ExtendedType")

	out := make([]CustomAction, 0, t.Len())
	for r := 0; r < t.Len(); r++ {
		ca := CustomAction{
			Name:   t.Text(r, colAction),
			Type:   ActionType(t.Value(r, colType).Int),
			Source: t.Text(r, colSource),
			Target: t.Text(r, colTarget),
		}
		if colExt >= 0 {
			ca.ExtendedType = t.Value(r, colExt).Int
		}
		if err := ca.resolveScript(props, src); err != nil {
			return nil, fmt.Errorf("msi: custom action %q: %w", ca.Name, err)
		}
		out = append(out, ca)
	}
	return out, nil
}

func (ca *CustomAction) resolveScript(props map[string]string, src StreamSource) error {
	switch ca.Type.Target() {
	case TargetJScript:
		ca.ScriptKind = ScriptJScript
	case TargetVBScript:
		ca.ScriptKind = ScriptVBScript
	default:
		if ca.Type.Target() == TargetDLL && strings.Contains(ca.Source, powerShellLauncher) {
			ca.ScriptKind = ScriptPowerShell
			ca.Script, ca.Inline = props[ca.Name], true
		}
		return nil
	}

	switch ca.Type.Source() {
	case SourceDirectory:
		ca.Script, ca.Inline = ca.Target, true
	case SourceProperty:
		ca.Script, ca.Inline = props[ca.Source], true
	case SourceBinary:
		if src == nil || ca.Source == "" {
			return nil
		}
		b, err := src.ReadStream(BinaryTable + "." + ca.Source)
		if errors.Is(err, types.ErrStreamNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ca.Script = string(b)
	}
	return nil
}
