package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"acpicore/acpi"
	"acpicore/event"
	"acpicore/hostsvc/simulated"
	"acpicore/kfmt"
)

// main attaches a fresh Runtime backed entirely by the simulated hostsvc
// collaborators (no DSDT loaded) and starts the interactive debugger, the
// way the teacher's cpu.Debug is handed a Cpu to drive rather than
// constructing one itself; a host embedding amldbg against a real machine
// would pass its own live *acpi.Runtime into Debug instead.
func main() {
	log := kfmt.NewLogger(kfmt.LevelWarn)
	services := simulated.Services(0, 1<<20)
	rt := acpi.Initialize(services, 2, log)
	defer rt.Shutdown()

	rt.RegisterGPEBlock("GPE0", 8, event.TriggerEdge)

	if err := Debug(rt); err != nil {
		fmt.Fprintln(os.Stderr, "amldbg:", err)
		os.Exit(1)
	}
}

// Debug starts the interactive TUI against rt, blocking until the operator
// quits.
func Debug(rt *acpi.Runtime) error {
	_, err := tea.NewProgram(newModel(rt)).Run()
	return err
}
