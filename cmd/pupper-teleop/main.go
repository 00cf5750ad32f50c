// pupper-teleop is a keyboard remote for the pupper control API.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "pupper control API base URL")
	velocity := flag.Float64("velocity", 1.0, "Forward speed for the up/down keys")
	angular := flag.Float64("angular", 1.5, "Spin rate for the left/right keys")
	flag.Parse()

	m := newModel(newAPIClient(*addr), *velocity, *angular)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
