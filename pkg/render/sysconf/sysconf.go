// Package sysconf renders the system subsystem: host name, DNS
// resolvers, login banner, and IP forwarding.
package sysconf

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/psaab/netcli/pkg/config"
	"github.com/psaab/netcli/pkg/render"
)

const (
	resolvBegin = "# BEGIN NETCLI MANAGED - do not edit this section"
	resolvEnd   = "# END NETCLI MANAGED"
)

// Renderer writes system settings under etcDir and procDir, normally
// /etc and /proc.
type Renderer struct {
	etcDir  string
	procDir string
}

func New() *Renderer {
	return &Renderer{etcDir: "/etc", procDir: "/proc"}
}

func (r *Renderer) Ref() string { return "system" }

func (r *Renderer) Render(ctx context.Context, in render.Input) error {
	sub := in.Subtree
	if err := r.applyHostname(sub); err != nil {
		return err
	}
	if err := r.applyResolvers(sub); err != nil {
		return err
	}
	if err := r.applyBanner(sub); err != nil {
		return err
	}
	return r.applyForwarding(sub)
}

// applyHostname sets the static and live host name. Removing host-name
// from the configuration keeps the current name; there is no sensible
// default to fall back to.
func (r *Renderer) applyHostname(sub *config.Node) error {
	if sub == nil {
		return nil
	}
	hn := sub.FindChild("host-name")
	if hn == nil {
		return nil
	}
	name := hn.Value()
	if err := os.WriteFile(filepath.Join(r.etcDir, "hostname"), []byte(name+"\n"), 0644); err != nil {
		return fmt.Errorf("write hostname: %w", err)
	}
	// The live name takes effect at next boot if this fails.
	if err := unix.Sethostname([]byte(name)); err != nil {
		slog.Warn("could not set live hostname", "name", name, "err", err)
	}
	return nil
}

func (r *Renderer) applyResolvers(sub *config.Node) error {
	var body strings.Builder
	if sub != nil {
		for _, ns := range sub.FindChildren("name-server") {
			fmt.Fprintf(&body, "nameserver %s\n", ns.Value())
		}
	}
	return writeManagedSection(filepath.Join(r.etcDir, "resolv.conf"), body.String())
}

func (r *Renderer) applyBanner(sub *config.Node) error {
	path := filepath.Join(r.etcDir, "issue.net")
	var banner *config.Node
	if sub != nil {
		banner = sub.FindChild("login-banner")
	}
	if banner == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove banner: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, []byte(banner.Value()+"\n"), 0644); err != nil {
		return fmt.Errorf("write banner: %w", err)
	}
	return nil
}

func (r *Renderer) applyForwarding(sub *config.Node) error {
	val := "0"
	if sub != nil && sub.FindChild("ip-forwarding") != nil {
		val = "1"
	}
	path := filepath.Join(r.procDir, "sys", "net", "ipv4", "ip_forward")
	if err := os.WriteFile(path, []byte(val+"\n"), 0644); err != nil {
		return fmt.Errorf("set ip_forward: %w", err)
	}
	return nil
}

// writeManagedSection replaces the marker-framed block of path, adding
// it at the end when absent and stripping it when body is empty.
func writeManagedSection(path, body string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	content := string(existing)
	if start := strings.Index(content, resolvBegin); start >= 0 {
		if stop := strings.Index(content, resolvEnd); stop >= 0 {
			stop += len(resolvEnd)
			if stop < len(content) && content[stop] == '\n' {
				stop++
			}
			content = content[:start] + content[stop:]
		}
	}

	if body != "" {
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += resolvBegin + "\n" + body + resolvEnd + "\n"
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
