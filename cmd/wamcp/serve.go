package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sevlyar/go-daemon"

	"github.com/roelfdiedericks/wamcp/internal/bus"
	"github.com/roelfdiedericks/wamcp/internal/clickup"
	"github.com/roelfdiedericks/wamcp/internal/config"
	. "github.com/roelfdiedericks/wamcp/internal/logging"
	"github.com/roelfdiedericks/wamcp/internal/mcp"
	"github.com/roelfdiedericks/wamcp/internal/messenger"
	"github.com/roelfdiedericks/wamcp/internal/paths"
	"github.com/roelfdiedericks/wamcp/internal/proxy"
	"github.com/roelfdiedericks/wamcp/internal/session"
	"github.com/roelfdiedericks/wamcp/internal/tools"
	"github.com/roelfdiedericks/wamcp/internal/whatsapp"
)

const watchDebounce = 500 * time.Millisecond

// GatewayCmd runs the cloud-facing MCP server.
type GatewayCmd struct{}

func (c *GatewayCmd) Run(g *Globals) error {
	res, err := g.load(true)
	if err != nil {
		return err
	}
	cfg := res.Config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := clickup.NewClient(clickup.Config{
		APIKey:           cfg.ClickUp.APIKey,
		BaseURL:          cfg.ClickUp.BaseURL,
		DiscoveryTimeout: config.Duration(cfg.ClickUp.DiscoveryTimeout, 10*time.Second),
		CreateTimeout:    config.Duration(cfg.ClickUp.CreateTimeout, 15*time.Second),
	})
	host := proxy.New(proxy.Config{
		BaseURL:       cfg.Gateway.HostURL,
		Key:           cfg.MCPKey,
		Timeout:       config.Duration(cfg.Gateway.Timeout, proxy.DefaultTimeout),
		HealthTimeout: config.Duration(cfg.Gateway.HealthTimeout, proxy.DefaultHealthTimeout),
	})
	if !tracker.Configured() {
		L_warn("gateway: ClickUp API key not set, create_clickup_task will fail")
	}
	if !host.Configured() {
		L_warn("gateway: session host URL not set, send_whatsapp_message will fail")
	}

	reg := tools.NewRegistry()
	reg.Register(tools.NewCreateTaskTool(tracker))
	reg.Register(tools.NewSendMessageTool(host))
	reg.Register(tools.NewGatewayStatusTool(tracker.Configured(), host, cfg.Gateway.Deployment))

	addr := listenAddr(cfg, config.DefaultGatewayPort)
	srv := mcp.NewServer(mcp.ServerConfig{
		Role:        mcp.RoleGateway,
		Listen:      addr,
		Key:         cfg.MCPKey,
		CORSOrigins: cfg.Server.CORSOrigins,
		Deployment:  cfg.Gateway.Deployment,
		Version:     version,
		Registry:    reg,
	})

	stopWatch := watchConfig(g, res.Path, func(next *config.Config) {
		applyLogLevel(next)
	})
	defer stopWatch()

	banner("gateway", addr)
	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	SetShuttingDown()
	return srv.Stop()
}

// HostCmd runs the WhatsApp session host.
type HostCmd struct {
	Daemon bool `help:"Detach and run in the background (pid and log under ~/.wamcp)"`
}

func (c *HostCmd) Run(g *Globals) error {
	if c.Daemon {
		release, isParent, err := daemonize()
		if err != nil {
			return err
		}
		if isParent {
			return nil
		}
		defer release()
	}

	res, err := g.load(true)
	if err != nil {
		return err
	}
	cfg := res.Config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return err
	}

	var m *messenger.Messenger
	transport := whatsapp.NewHost(whatsapp.Config{
		DBPath: dbPath,
		ShowQR: cfg.WhatsApp.QR(),
		InitPolicy: session.RetryPolicy{
			Delay:       config.Duration(cfg.Session.InitRetryDelay, session.DefaultInitPolicy.Delay),
			MaxAttempts: cfg.Session.MaxAttempts,
		},
		ReconnectPolicy: session.RetryPolicy{
			Delay:       config.Duration(cfg.Session.ReconnectDelay, session.DefaultReconnectPolicy.Delay),
			MaxAttempts: cfg.Session.MaxAttempts,
		},
	}, whatsapp.NotifierFunc(func(ev session.Event) { m.Notify(ev) }))

	var format func(string) string
	if cfg.Session.Markdown() {
		format = whatsapp.FormatMessage
	}
	m = messenger.New(transport, messenger.Config{
		QueueOnNotReady: cfg.Session.Queue(),
		CountryCode:     cfg.Session.CountryCode,
		DrainRetryLimit: cfg.Session.DrainRetryLimit,
		SendTimeout:     config.Duration(cfg.Session.SendTimeout, messenger.DefaultSendTimeout),
		Format:          format,
	})

	drained := bus.SubscribeEvent(bus.TopicOutboxDrained, func(ev bus.Event) {
		if r, ok := ev.Data.(messenger.DrainReport); ok {
			L_info("host: outbox drained", "sent", r.Sent, "failed", r.Failed, "requeued", r.Requeued)
		}
	})
	defer bus.UnsubscribeEvent(drained)

	reg := tools.NewRegistry()
	reg.Register(tools.NewSendMessageTool(m))
	reg.Register(tools.NewHostStatusTool(m))
	reg.Register(tools.NewWhatsAppStatusTool(m))
	reg.Register(tools.NewWhatsAppQRTool(m))

	addr := listenAddr(cfg, config.DefaultHostPort)
	srv := mcp.NewServer(mcp.ServerConfig{
		Role:        mcp.RoleHost,
		Listen:      addr,
		Key:         cfg.MCPKey,
		CORSOrigins: cfg.Server.CORSOrigins,
		Deployment:  "local",
		Version:     version,
		Registry:    reg,
		Session:     m,
	})

	stopWatch := watchConfig(g, res.Path, func(next *config.Config) {
		applyLogLevel(next)
		m.SetQueueOnNotReady(next.Session.Queue())
	})
	defer stopWatch()

	go func() {
		if err := m.Run(ctx); err != nil && ctx.Err() == nil {
			L_error("host: messenger stopped", "error", err)
		}
	}()

	transportDone := make(chan struct{})
	go func() {
		defer close(transportDone)
		if err := transport.Run(ctx); err != nil {
			L_error("host: WhatsApp recovery gave up, session stays degraded", "error", err)
		}
	}()

	banner("session host", addr)
	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	SetShuttingDown()
	err = srv.Stop()
	<-transportDone
	return err
}

// daemonize re-executes the process in the background. In the parent it
// reports isParent; in the child it returns a release func for the pid file.
func daemonize() (release func(), isParent bool, err error) {
	pidFile, err := paths.PidFilePath()
	if err != nil {
		return nil, false, err
	}
	logFile, err := paths.LogFilePath()
	if err != nil {
		return nil, false, err
	}
	if err := paths.EnsureParentDir(pidFile); err != nil {
		return nil, false, err
	}

	dctx := &daemon.Context{
		PidFileName: pidFile,
		PidFilePerm: 0644,
		LogFileName: logFile,
		LogFilePerm: 0640,
		WorkDir:     ".",
		Umask:       027,
	}

	child, err := dctx.Reborn()
	if err != nil {
		return nil, false, fmt.Errorf("daemonize: %w", err)
	}
	if child != nil {
		fmt.Printf("wamcp host started in background (pid %d, log %s)\n", child.Pid, logFile)
		return nil, true, nil
	}

	return func() {
		if err := dctx.Release(); err != nil {
			L_warn("host: failed to release pid file", "error", err)
		}
	}, false, nil
}

// watchConfig reloads the config file on change. It is a no-op without a file.
func watchConfig(g *Globals, path string, apply func(*config.Config)) (stop func()) {
	if path == "" {
		return func() {}
	}

	w, err := config.NewWatcher(config.LoadOptions{Path: path, EnvFile: g.EnvFile}, watchDebounce, func(next *config.Config) {
		if g.LogLevel != "" {
			next.Log.Level = g.LogLevel
		}
		apply(next)
	})
	if err != nil {
		L_warn("config: watch disabled", "error", err)
		return func() {}
	}
	w.Start()

	return func() {
		if err := w.Stop(); err != nil {
			L_debug("config: watcher stop failed", "error", err)
		}
	}
}

func applyLogLevel(cfg *config.Config) {
	level, err := ParseLevel(cfg.Log.Level)
	if err != nil {
		L_warn("config: ignoring log level", "error", err)
		return
	}
	if level != CurrentLevel() {
		SetLevel(level)
		L_info("config: log level changed", "level", level)
	}
}

func listenAddr(cfg *config.Config, defaultPort int) string {
	return net.JoinHostPort(cfg.Server.Bind, strconv.Itoa(cfg.PortOr(defaultPort)))
}
