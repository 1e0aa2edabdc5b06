// Package valid holds the validator and suggestor registries that schema
// tag nodes reference by ID.
//
// Validators check a single token. Suggestors produce completion values for
// a token position. Both are plain functions so the daemon can swap in
// system-backed versions (live interface lists, VRF existence) while tests
// run against the pure defaults.
package valid

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"sync"

	"github.com/psaab/netcli/pkg/netinfo"
	"github.com/psaab/netcli/pkg/schema"
)

// Registry maps IDs to validator and suggestor functions. It satisfies
// schema.Lookup.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]schema.ValidateFunc
	suggestors map[string]schema.SuggestFunc
}

func NewRegistry() *Registry {
	return &Registry{
		validators: make(map[string]schema.ValidateFunc),
		suggestors: make(map[string]schema.SuggestFunc),
	}
}

func (r *Registry) RegisterValidator(id string, fn schema.ValidateFunc) {
	r.mu.Lock()
	r.validators[id] = fn
	r.mu.Unlock()
}

func (r *Registry) RegisterSuggestor(id string, fn schema.SuggestFunc) {
	r.mu.Lock()
	r.suggestors[id] = fn
	r.mu.Unlock()
}

// Validator resolves an ID. Unregistered "num-LO-HI" IDs are synthesized
// from the name, so schemas can declare arbitrary numeric ranges without
// code changes.
func (r *Registry) Validator(id string) (schema.ValidateFunc, bool) {
	r.mu.RLock()
	fn, ok := r.validators[id]
	r.mu.RUnlock()
	if ok {
		return fn, true
	}
	if lo, hi, ok := parseRange(id); ok {
		return RangeValidator(lo, hi), true
	}
	return nil, false
}

func (r *Registry) Suggestor(id string) (schema.SuggestFunc, bool) {
	r.mu.RLock()
	fn, ok := r.suggestors[id]
	r.mu.RUnlock()
	return fn, ok
}

// Default returns a registry with all built-in validators and suggestors.
// The vrf-name validator only checks the name's shape; the daemon replaces
// it with LiveVRFName when running against a real kernel.
func Default() *Registry {
	r := NewRegistry()
	r.RegisterValidator("ip-address", IPAddress)
	r.RegisterValidator("ip-prefix", IPPrefix)
	r.RegisterValidator("ip-address-or-prefix", IPAddressOrPrefix)
	r.RegisterValidator("hostname", Hostname)
	r.RegisterValidator("interface-name", InterfaceName)
	r.RegisterValidator("vrf-name", VRFName)
	r.RegisterValidator("enum", Enum)
	r.RegisterValidator("num-1-255", RangeValidator(1, 255))
	r.RegisterValidator("num-1-65535", RangeValidator(1, 65535))
	r.RegisterSuggestor("list_interfaces", ListInterfaces)
	r.RegisterSuggestor("vrfs", VRFs)
	r.RegisterSuggestor("static-list", StaticList)
	return r
}

func parseRange(id string) (lo, hi int, ok bool) {
	rest, found := strings.CutPrefix(id, "num-")
	if !found {
		return 0, 0, false
	}
	parts := strings.SplitN(rest, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lo, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	hi, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// RangeValidator builds a validator accepting integers in [lo, hi].
func RangeValidator(lo, hi int) schema.ValidateFunc {
	return func(token string, _ []string) error {
		v, err := strconv.Atoi(token)
		if err != nil {
			return fmt.Errorf("not a number")
		}
		if v < lo || v > hi {
			return fmt.Errorf("out of range %d-%d", lo, hi)
		}
		return nil
	}
}

// IPAddress accepts an IPv4 or IPv6 address.
func IPAddress(token string, _ []string) error {
	if _, err := netip.ParseAddr(token); err != nil {
		return fmt.Errorf("not an IP address")
	}
	return nil
}

// IPPrefix accepts CIDR notation.
func IPPrefix(token string, _ []string) error {
	if _, err := netip.ParsePrefix(token); err != nil {
		return fmt.Errorf("not an IP prefix")
	}
	return nil
}

// IPAddressOrPrefix accepts either form.
func IPAddressOrPrefix(token string, args []string) error {
	if IPAddress(token, args) == nil || IPPrefix(token, args) == nil {
		return nil
	}
	return fmt.Errorf("not an IP address or prefix")
}

// Hostname accepts an RFC 1123 host name.
func Hostname(token string, _ []string) error {
	if len(token) == 0 || len(token) > 253 {
		return fmt.Errorf("bad length")
	}
	for _, label := range strings.Split(token, ".") {
		if len(label) == 0 || len(label) > 63 {
			return fmt.Errorf("bad label length")
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("label starts or ends with hyphen")
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if c == '-' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
				continue
			}
			return fmt.Errorf("invalid character %q", c)
		}
	}
	return nil
}

// InterfaceName accepts a Linux interface name: 1-15 characters, no
// whitespace or slash.
func InterfaceName(token string, _ []string) error {
	if len(token) == 0 || len(token) > 15 {
		return fmt.Errorf("bad length")
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if c == '/' || c == ' ' || c == '\t' {
			return fmt.Errorf("invalid character %q", c)
		}
	}
	return nil
}

// VRFName accepts the special name "all" or an interface-shaped name. It
// does not check existence; see LiveVRFName.
func VRFName(token string, args []string) error {
	if token == "all" {
		return nil
	}
	return InterfaceName(token, args)
}

// LiveVRFName accepts "all" or the name of an existing VRF device. When the
// kernel cannot be queried the name is allowed, matching the permissive
// behavior operators expect on boxes without VRF support.
func LiveVRFName(token string, args []string) error {
	if token == "all" {
		return nil
	}
	if err := InterfaceName(token, args); err != nil {
		return err
	}
	ok, err := netinfo.HasVRF(token)
	if err != nil {
		return nil
	}
	if !ok {
		return fmt.Errorf("no such VRF")
	}
	return nil
}

// Enum accepts tokens listed in the node's enum-values.
func Enum(token string, args []string) error {
	for _, a := range args {
		if a == token {
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", strings.Join(args, ", "))
}

// defaultInterfacePrefixes is the pool filter applied when a schema node
// does not narrow list_interfaces with suggestor_args.
var defaultInterfacePrefixes = []string{
	"eth", "bond", "br", "dum", "gnv", "ifb", "l2tpeth", "lo", "macsec",
	"peth", "pppoe", "sstpc", "tun", "veth", "vti", "vtun", "vxlan",
	"wlan", "wg", "wwan", "zt",
}

// ListInterfaces suggests kernel interface names. args narrows the pool to
// the given name prefixes; the typed prefix filters further. Errors produce
// no suggestions rather than failing completion.
func ListInterfaces(prefix string, args []string) []string {
	names, err := netinfo.InterfaceNames()
	if err != nil {
		return nil
	}
	pool := args
	if len(pool) == 0 {
		pool = defaultInterfacePrefixes
	}
	var out []string
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		for _, p := range pool {
			if strings.HasPrefix(name, p) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// VRFs suggests existing VRF device names.
func VRFs(prefix string, _ []string) []string {
	names, err := netinfo.VRFNames()
	if err != nil {
		return nil
	}
	var out []string
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out
}

// StaticList suggests the values given in suggestor_args.
func StaticList(prefix string, args []string) []string {
	var out []string
	for _, a := range args {
		if strings.HasPrefix(a, prefix) {
			out = append(out, a)
		}
	}
	return out
}
