// Command wamcp runs the MCP gateway and the WhatsApp session host.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"

	"github.com/roelfdiedericks/wamcp/internal/config"
	. "github.com/roelfdiedericks/wamcp/internal/logging"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "2.0.0"

// Globals are flags shared by every command.
type Globals struct {
	ConfigFile string `name:"config" short:"c" help:"Config file (default: ./wamcp.json, then ~/.wamcp/)" type:"path"`
	EnvFile    string `name:"env-file" help:"dotenv file to load" default:".env"`
	LogLevel   string `name:"log-level" help:"Override log level (trace, debug, info, warn, error)"`
}

// CLI is the wamcp command tree.
type CLI struct {
	Globals

	Gateway  GatewayCmd  `cmd:"" help:"Run the cloud-facing MCP gateway"`
	Host     HostCmd     `cmd:"" help:"Run the WhatsApp session host"`
	WhatsApp WhatsAppCmd `cmd:"" name:"whatsapp" help:"Manage the paired WhatsApp device"`
	Cfg      ConfigCmd   `cmd:"" name:"config" help:"Inspect or create the config file"`
	Version  VersionCmd  `cmd:"" help:"Print the version"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("wamcp"),
		kong.Description("MCP server exposing ClickUp task creation and WhatsApp messaging."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		L_errorf("wamcp: %v", err)
		os.Exit(1)
	}
}

// load reads the configuration, validating it when the command serves
// traffic, then configures logging from it.
func (g *Globals) load(validate bool) (*config.LoadResult, error) {
	res, err := config.Load(config.LoadOptions{Path: g.ConfigFile, EnvFile: g.EnvFile})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.LogLevel != "" {
		res.Config.Log.Level = g.LogLevel
	}
	if validate {
		if err := res.Config.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}

	level, _ := ParseLevel(res.Config.Log.Level)
	Init(&LogConfig{
		Level:      level,
		JSON:       res.Config.Log.JSON,
		ShowCaller: res.Config.Log.ShowCaller,
	})
	if res.Path != "" {
		L_debug("config: using file", "path", res.Path)
	}
	return res, nil
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("wamcp %s\n", version)
	return nil
}

var bannerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("10")).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("8")).
	Padding(0, 2)

// banner prints the startup box when stdout is a terminal-friendly stream.
func banner(role, addr string) {
	fmt.Println(bannerStyle.Render(fmt.Sprintf("wamcp %s  %s\nlistening on %s", version, role, addr)))
}
