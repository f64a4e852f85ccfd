package sniffer

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

var _ Sniffer = (*GLiNetSniffer)(nil)

// GLiNetConfig configures the remote SSH capture backend.
type GLiNetConfig struct {
	Host             string
	Port             int
	Username         string
	Password         string
	Interface        string // physical wireless interface on the router
	MonitorInterface string // monitor vif to create, defaults to mon0
}

// GLiNetSniffer captures probe requests on a remote OpenWrt-based travel
// router over SSH: it creates a monitor-mode virtual interface next to the
// existing wireless interface, runs tcpdump there, and streams the pcap
// output home. The router keeps serving clients while we listen.
type GLiNetSniffer struct {
	emitter
	lifecycle

	cfg    GLiNetConfig
	logger *zap.Logger
}

// NewGLiNetSniffer creates the remote capture backend.
func NewGLiNetSniffer(cfg GLiNetConfig, logger *zap.Logger) *GLiNetSniffer {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Username == "" {
		cfg.Username = "root"
	}
	if cfg.MonitorInterface == "" {
		cfg.MonitorInterface = "mon0"
	}
	return &GLiNetSniffer{cfg: cfg, logger: logger}
}

func (g *GLiNetSniffer) Start(ctx context.Context) error {
	if err := validateInterface(g.cfg.Interface); err != nil {
		return err
	}
	if err := validateInterface(g.cfg.MonitorInterface); err != nil {
		return err
	}

	runCtx, ok := g.begin(ctx)
	if !ok {
		return nil
	}

	g.logger.Info("starting glinet sniffer",
		zap.String("host", g.cfg.Host),
		zap.String("interface", g.cfg.Interface),
	)

	g.wg.Add(1)
	go g.run(runCtx)
	return nil
}

func (g *GLiNetSniffer) Stop(_ context.Context) error {
	g.logger.Info("stopping glinet sniffer")
	g.end()
	return nil
}

func (g *GLiNetSniffer) run(ctx context.Context) {
	defer g.wg.Done()

	for {
		if err := g.captureOnce(ctx); err != nil && ctx.Err() == nil {
			g.logger.Warn("remote capture ended, reconnecting",
				zap.String("host", g.cfg.Host),
				zap.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
}

func (g *GLiNetSniffer) dial(ctx context.Context) (*ssh.Client, error) {
	addr := net.JoinHostPort(g.cfg.Host, fmt.Sprintf("%d", g.cfg.Port))
	config := &ssh.ClientConfig{
		User: g.cfg.Username,
		Auth: []ssh.AuthMethod{ssh.Password(g.cfg.Password)},
		// Travel routers regenerate host keys on factory reset; pinning
		// them would turn every reset into an outage.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	dialer := net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (g *GLiNetSniffer) captureOnce(ctx context.Context) error {
	client, err := g.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := g.ensureMonitorInterface(client); err != nil {
		return err
	}
	defer g.teardownMonitorInterface(client)

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("open capture session: %w", err)
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open capture pipe: %w", err)
	}

	cmd := fmt.Sprintf("tcpdump -i %s -U -w - '%s'",
		g.cfg.MonitorInterface, probeRequestFilter)
	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("start remote tcpdump: %w", err)
	}

	// Tear the session down when the context ends so the stream reader
	// unblocks instead of waiting on a dead router.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()

	if err := streamProbeRequests(ctx, stdout, SourceGLiNet, g.emit, g.logger); err != nil {
		return err
	}
	if err := session.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("remote tcpdump exited: %w", err)
	}
	return nil
}

// ensureMonitorInterface creates the monitor vif if it does not already
// exist. Both interface names were validated at Start, so interpolating
// them into the remote command is safe.
func (g *GLiNetSniffer) ensureMonitorInterface(client *ssh.Client) error {
	out, err := runRemote(client, "iw dev")
	if err != nil {
		return fmt.Errorf("list wireless interfaces: %w", err)
	}
	if strings.Contains(out, "Interface "+g.cfg.MonitorInterface) {
		return nil
	}

	setup := fmt.Sprintf("iw dev %s interface add %s type monitor && ip link set %s up",
		g.cfg.Interface, g.cfg.MonitorInterface, g.cfg.MonitorInterface)
	if _, err := runRemote(client, setup); err != nil {
		return fmt.Errorf("create monitor interface %s: %w", g.cfg.MonitorInterface, err)
	}
	g.logger.Info("created remote monitor interface",
		zap.String("interface", g.cfg.MonitorInterface))
	return nil
}

func (g *GLiNetSniffer) teardownMonitorInterface(client *ssh.Client) {
	if _, err := runRemote(client, "iw dev "+g.cfg.MonitorInterface+" del"); err != nil {
		g.logger.Debug("monitor interface teardown failed", zap.Error(err))
	}
}

func runRemote(client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	out, err := session.CombinedOutput(cmd)
	if err != nil {
		return string(out), fmt.Errorf("%q: %w", cmd, err)
	}
	return string(out), nil
}
