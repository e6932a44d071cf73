package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/roelfdiedericks/wamcp/internal/config"
	"github.com/roelfdiedericks/wamcp/internal/paths"
	"github.com/roelfdiedericks/wamcp/internal/whatsapp"
)

// WhatsAppCmd groups the device pairing commands.
type WhatsAppCmd struct {
	Link   WhatsAppLinkCmd   `cmd:"" help:"Pair a device by scanning a QR code"`
	Unlink WhatsAppUnlinkCmd `cmd:"" help:"Remove the paired device"`
	Status WhatsAppStatusCmd `cmd:"" help:"Show the pairing status"`
}

type WhatsAppLinkCmd struct{}

func (c *WhatsAppLinkCmd) Run(g *Globals) error {
	return withDevice(g, whatsapp.LinkDevice)
}

type WhatsAppUnlinkCmd struct{}

func (c *WhatsAppUnlinkCmd) Run(g *Globals) error {
	return withDevice(g, whatsapp.UnlinkDevice)
}

type WhatsAppStatusCmd struct{}

func (c *WhatsAppStatusCmd) Run(g *Globals) error {
	return withDevice(g, whatsapp.DeviceStatus)
}

func withDevice(g *Globals, fn func(ctx context.Context, dbPath string, w io.Writer) error) error {
	res, err := g.load(false)
	if err != nil {
		return err
	}
	dbPath, err := resolveDBPath(res.Config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, dbPath, os.Stdout)
}

// ConfigCmd groups the config file commands.
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write a default config file with a fresh MCP key"`
	Show ConfigShowCmd `cmd:"" help:"Print the effective configuration"`
}

type ConfigInitCmd struct {
	Path  string `arg:"" optional:"" help:"Where to write (default ~/.wamcp/wamcp.json)" type:"path"`
	Force bool   `help:"Overwrite an existing file"`
}

func (c *ConfigInitCmd) Run(g *Globals) error {
	path := c.Path
	if path == "" {
		p, err := paths.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg := config.Default()
	cfg.MCPKey = uuid.NewString()
	if err := config.WriteFile(path, cfg); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", path)
	fmt.Printf("MCP key: %s\n", cfg.MCPKey)
	fmt.Printf("Set the same key on the gateway and the session host (mcp_key or MCP_SECRET_KEY).\n")
	return nil
}

type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(g *Globals) error {
	res, err := g.load(false)
	if err != nil {
		return err
	}

	shown := *res.Config
	if shown.MCPKey != "" {
		shown.MCPKey = "********"
	}
	if shown.ClickUp.APIKey != "" {
		shown.ClickUp.APIKey = "********"
	}

	out := "wamcp.json"
	if res.Path != "" {
		fmt.Printf("# %s\n", res.Path)
		out = filepath.Base(res.Path)
	}
	data, err := config.Encode(out, &shown)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// resolveDBPath returns the device store path, defaulting to ~/.wamcp/whatsapp.db.
func resolveDBPath(cfg *config.Config) (string, error) {
	if cfg.WhatsApp.DBPath == "" {
		return paths.WhatsAppDBPath()
	}
	return paths.ExpandTilde(cfg.WhatsApp.DBPath)
}
