package whatsapp

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mdp/qrterminal/v3"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// stdoutIsTerminal reports whether QR codes can usefully be drawn.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// renderQR draws a pairing code with operator instructions.
func renderQR(w io.Writer, code string) {
	fmt.Fprintln(w, titleStyle.Render("Scan this QR code with WhatsApp"))
	fmt.Fprintln(w, hintStyle.Render("  WhatsApp > Settings > Linked Devices > Link a Device"))
	fmt.Fprintln(w)
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, hintStyle.Render("Waiting for scan..."))
}
