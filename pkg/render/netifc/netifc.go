// Package netifc renders the interfaces subsystem into systemd-networkd
// units, one .network file per configured interface.
package netifc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/psaab/netcli/pkg/config"
	"github.com/psaab/netcli/pkg/render"
)

const (
	// DefaultNetworkDir is the systemd-networkd configuration directory.
	DefaultNetworkDir = "/etc/systemd/network"
	// filePrefix distinguishes netcli-managed files from external ones.
	filePrefix = "20-netcli-"
)

// iface is one interface as extracted from the configuration subtree.
type iface struct {
	Name        string
	Description string
	VRF         string
	Duplex      string
	MTU         string
	Addresses   []string
	Disable     bool
}

// Renderer writes .network (and, for duplex, .link) files and reloads
// networkd when anything changed.
type Renderer struct {
	dir string
}

func New() *Renderer {
	return &Renderer{dir: DefaultNetworkDir}
}

func (r *Renderer) Ref() string { return "interfaces" }

func (r *Renderer) Render(ctx context.Context, in render.Input) error {
	changed, err := r.sync(collect(in.Subtree))
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	slog.Info("networkd config updated, reloading")
	if err := exec.CommandContext(ctx, "networkctl", "reload").Run(); err != nil {
		return fmt.Errorf("networkctl reload: %w", err)
	}
	return nil
}

// collect flattens the interfaces subtree into renderable entries.
func collect(sub *config.Node) []iface {
	if sub == nil {
		return nil
	}
	var out []iface
	for _, inst := range sub.FindChildren("ethernet") {
		ifc := iface{Name: inst.Value()}
		for _, a := range inst.FindChildren("address") {
			ifc.Addresses = append(ifc.Addresses, a.Value())
		}
		if d := inst.FindChild("description"); d != nil {
			ifc.Description = d.Value()
		}
		if v := inst.FindChild("vrf"); v != nil {
			ifc.VRF = v.Value()
		}
		if d := inst.FindChild("duplex"); d != nil && d.Value() != "auto" {
			ifc.Duplex = d.Value()
		}
		if m := inst.FindChild("mtu"); m != nil {
			ifc.MTU = m.Value()
		}
		ifc.Disable = inst.FindChild("disable") != nil
		out = append(out, ifc)
	}
	return out
}

// sync writes the expected unit files and removes stale netcli-managed
// ones. Returns whether anything on disk changed.
func (r *Renderer) sync(ifaces []iface) (bool, error) {
	expected := make(map[string]bool)
	for _, ifc := range ifaces {
		expected[filePrefix+ifc.Name+".network"] = true
		if ifc.Duplex != "" {
			expected[filePrefix+ifc.Name+".link"] = true
		}
	}

	changed := false
	matches, _ := filepath.Glob(filepath.Join(r.dir, filePrefix+"*"))
	for _, path := range matches {
		if expected[filepath.Base(path)] {
			continue
		}
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to remove stale networkd file", "path", path, "err", err)
		} else {
			slog.Info("removed stale networkd file", "path", path)
			changed = true
		}
	}

	for _, ifc := range ifaces {
		path := filepath.Join(r.dir, filePrefix+ifc.Name+".network")
		if writeIfChanged(path, generateNetwork(ifc)) {
			changed = true
		}
		if ifc.Duplex != "" {
			path := filepath.Join(r.dir, filePrefix+ifc.Name+".link")
			if writeIfChanged(path, generateLink(ifc)) {
				changed = true
			}
		}
	}
	return changed, nil
}

func generateNetwork(ifc iface) string {
	var b strings.Builder
	b.WriteString("# Managed by netclid - do not edit\n")
	b.WriteString("[Match]\n")
	fmt.Fprintf(&b, "Name=%s\n", ifc.Name)

	if ifc.Disable {
		b.WriteString("\n[Link]\n")
		b.WriteString("ActivationPolicy=always-down\n")
		b.WriteString("RequiredForOnline=no\n")
		b.WriteString("\n[Network]\n")
		b.WriteString("DHCP=no\n")
		b.WriteString("IPv6AcceptRA=no\n")
		b.WriteString("LinkLocalAddressing=no\n")
		return b.String()
	}

	if ifc.MTU != "" {
		b.WriteString("\n[Link]\n")
		fmt.Fprintf(&b, "MTUBytes=%s\n", ifc.MTU)
	}

	b.WriteString("\n[Network]\n")
	b.WriteString("IPv6AcceptRA=no\n")
	b.WriteString("LinkLocalAddressing=ipv6\n")
	if ifc.Description != "" {
		fmt.Fprintf(&b, "Description=%s\n", ifc.Description)
	}
	if ifc.VRF != "" {
		fmt.Fprintf(&b, "VRF=%s\n", ifc.VRF)
	}
	for _, addr := range ifc.Addresses {
		fmt.Fprintf(&b, "Address=%s\n", addr)
	}
	return b.String()
}

// generateLink emits a .link file for settings networkd only honors at
// link level. Matched by OriginalName, so no MAC address is needed.
func generateLink(ifc iface) string {
	var b strings.Builder
	b.WriteString("# Managed by netclid - do not edit\n")
	b.WriteString("[Match]\n")
	fmt.Fprintf(&b, "OriginalName=%s\n", ifc.Name)
	b.WriteString("\n[Link]\n")
	fmt.Fprintf(&b, "Duplex=%s\n", ifc.Duplex)
	return b.String()
}

// writeIfChanged writes content to path only when it differs from the
// existing file. Returns whether the file was written.
func writeIfChanged(path, content string) bool {
	existing, err := os.ReadFile(path)
	if err == nil && string(existing) == content {
		return false
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		slog.Warn("failed to write networkd file", "path", path, "err", err)
		return false
	}
	slog.Info("wrote networkd file", "path", path)
	return true
}
