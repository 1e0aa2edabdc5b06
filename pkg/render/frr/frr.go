// Package frr renders the static-route and BGP subsystems into FRR
// configuration and reloads FRR.
package frr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/psaab/netcli/pkg/config"
	"github.com/psaab/netcli/pkg/render"
)

// DefaultConfPath is the main FRR config file.
const DefaultConfPath = "/etc/frr/frr.conf"

// Manager owns the netcli-managed sections of frr.conf. Every subsystem
// renders into its own marker-framed section, so static routes and BGP
// rewrite independently without clobbering each other or hand-edited
// configuration outside the markers.
type Manager struct {
	confPath string
}

// NewManager creates a manager writing to the default FRR config file.
func NewManager() *Manager {
	return &Manager{confPath: DefaultConfPath}
}

func (m *Manager) apply(ctx context.Context, section, body string) error {
	if err := m.writeSection(section, body); err != nil {
		return err
	}
	slog.Info("frr config written", "path", m.confPath, "section", section)
	if err := m.reload(ctx); err != nil {
		slog.Warn("frr reload failed", "section", section, "err", err)
		return err
	}
	return nil
}

// writeSection replaces one marker-framed section of frr.conf. An empty
// body removes the section entirely.
func (m *Manager) writeSection(section, body string) error {
	begin := fmt.Sprintf("! BEGIN NETCLI %s - do not edit this section", strings.ToUpper(section))
	end := fmt.Sprintf("! END NETCLI %s", strings.ToUpper(section))

	existing, err := os.ReadFile(m.confPath)
	if err != nil {
		if os.IsNotExist(err) {
			existing = []byte("log syslog informational\n")
		} else {
			return fmt.Errorf("read frr.conf: %w", err)
		}
	}

	content := string(existing)
	if start := strings.Index(content, begin); start >= 0 {
		if stop := strings.Index(content, end); stop >= 0 {
			stop += len(end)
			if stop < len(content) && content[stop] == '\n' {
				stop++
			}
			content = content[:start] + content[stop:]
		}
	}

	if body != "" {
		content = strings.TrimRight(content, "\n") + "\n"
		content += begin + "\n"
		content += body
		content += end + "\n"
	}

	if err := os.WriteFile(m.confPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write frr.conf: %w", err)
	}
	return nil
}

func (m *Manager) reload(ctx context.Context) error {
	// systemctl reload runs frr-reload.py, which diffs the running
	// daemon state against frr.conf.
	if err := exec.CommandContext(ctx, "systemctl", "reload", "frr").Run(); err == nil {
		slog.Info("frr reloaded via systemctl")
		return nil
	}

	cmd := exec.CommandContext(ctx, "vtysh", "-f", m.confPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("vtysh reload: %w: %s", err, string(output))
	}
	slog.Info("frr config loaded via vtysh")
	return nil
}

// Static renders the protocols static subtree.
type Static struct {
	m *Manager
}

func NewStatic(m *Manager) *Static { return &Static{m: m} }

func (s *Static) Ref() string { return "static" }

// Check rejects routes that have neither a next-hop nor blackhole.
func (s *Static) Check(in render.Input) error {
	if in.Subtree == nil {
		return nil
	}
	for _, route := range in.Subtree.FindChildren("route") {
		if route.FindChild("blackhole") == nil && len(route.FindChildren("next-hop")) == 0 {
			return fmt.Errorf("route %s: next-hop or blackhole required", route.Value())
		}
	}
	return nil
}

func (s *Static) Render(ctx context.Context, in render.Input) error {
	return s.m.apply(ctx, "static", generateStatic(in.Subtree))
}

// generateStatic produces FRR static route commands. One line per
// next-hop, so FRR builds ECMP sets itself.
func generateStatic(sub *config.Node) string {
	if sub == nil {
		return ""
	}
	var b strings.Builder
	for _, route := range sub.FindChildren("route") {
		prefix := route.Value()
		family := "ip"
		if strings.Contains(prefix, ":") {
			family = "ipv6"
		}
		if route.FindChild("blackhole") != nil {
			fmt.Fprintf(&b, "%s route %s Null0\n", family, prefix)
		}
		for _, nh := range route.FindChildren("next-hop") {
			fmt.Fprintf(&b, "%s route %s %s", family, prefix, nh.Value())
			if d := nh.FindChild("distance"); d != nil {
				fmt.Fprintf(&b, " %s", d.Value())
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// BGP renders the protocols bgp subtree.
type BGP struct {
	m *Manager
}

func NewBGP(m *Manager) *BGP { return &BGP{m: m} }

func (b *BGP) Ref() string { return "bgp" }

// Check enforces what FRR itself would reject: a BGP block needs a
// local AS, and every neighbor needs a remote AS.
func (b *BGP) Check(in render.Input) error {
	sub := in.Subtree
	if sub == nil {
		return nil
	}
	if sub.FindChild("system-as") == nil {
		return fmt.Errorf("system-as is required")
	}
	for _, n := range sub.FindChildren("neighbor") {
		if n.FindChild("remote-as") == nil {
			return fmt.Errorf("neighbor %s: remote-as is required", n.Value())
		}
	}
	return nil
}

func (b *BGP) Render(ctx context.Context, in render.Input) error {
	return b.m.apply(ctx, "bgp", generateBGP(in.Subtree))
}

func generateBGP(sub *config.Node) string {
	if sub == nil {
		return ""
	}
	as := sub.FindChild("system-as")
	if as == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "router bgp %s\n", as.Value())
	if rid := sub.FindChild("router-id"); rid != nil {
		fmt.Fprintf(&b, " bgp router-id %s\n", rid.Value())
	}
	for _, n := range sub.FindChildren("neighbor") {
		addr := n.Value()
		if ras := n.FindChild("remote-as"); ras != nil {
			fmt.Fprintf(&b, " neighbor %s remote-as %s\n", addr, ras.Value())
		}
		if desc := n.FindChild("description"); desc != nil {
			fmt.Fprintf(&b, " neighbor %s description %s\n", addr, desc.Value())
		}
		if mh := n.FindChild("multihop"); mh != nil {
			fmt.Fprintf(&b, " neighbor %s ebgp-multihop %s\n", addr, mh.Value())
		}
	}
	b.WriteString("exit\n!\n")
	return b.String()
}
