package valid

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIPAddress(t *testing.T) {
	cases := []struct {
		token string
		ok    bool
	}{
		{"192.168.1.1", true},
		{"2001:db8::1", true},
		{"10.0.0.0/24", false},
		{"not-an-ip", false},
		{"300.1.1.1", false},
		{"", false},
	}
	for _, tc := range cases {
		err := IPAddress(tc.token, nil)
		if (err == nil) != tc.ok {
			t.Errorf("IPAddress(%q) = %v, want ok=%v", tc.token, err, tc.ok)
		}
	}
}

func TestIPPrefix(t *testing.T) {
	cases := []struct {
		token string
		ok    bool
	}{
		{"10.0.0.0/24", true},
		{"2001:db8::/32", true},
		{"192.168.1.1", false},
		{"10.0.0.0/99", false},
	}
	for _, tc := range cases {
		err := IPPrefix(tc.token, nil)
		if (err == nil) != tc.ok {
			t.Errorf("IPPrefix(%q) = %v, want ok=%v", tc.token, err, tc.ok)
		}
	}
}

func TestIPAddressOrPrefix(t *testing.T) {
	if err := IPAddressOrPrefix("192.168.1.1", nil); err != nil {
		t.Errorf("address form rejected: %v", err)
	}
	if err := IPAddressOrPrefix("10.0.0.0/8", nil); err != nil {
		t.Errorf("prefix form rejected: %v", err)
	}
	if err := IPAddressOrPrefix("bogus", nil); err == nil {
		t.Error("bogus token accepted")
	}
}

func TestRangeValidator(t *testing.T) {
	fn := RangeValidator(1, 255)
	if err := fn("1", nil); err != nil {
		t.Errorf("1 rejected: %v", err)
	}
	if err := fn("255", nil); err != nil {
		t.Errorf("255 rejected: %v", err)
	}
	if err := fn("0", nil); err == nil {
		t.Error("0 accepted")
	}
	if err := fn("300", nil); err == nil {
		t.Error("300 accepted")
	}
	if err := fn("abc", nil); err == nil {
		t.Error("non-number accepted")
	}
}

func TestSystemASRange(t *testing.T) {
	r := Default()
	fn, ok := r.Validator("num-1-65535")
	if !ok {
		t.Fatal("num-1-65535 not registered")
	}
	if err := fn("65535", nil); err != nil {
		t.Errorf("65535 rejected: %v", err)
	}
	if err := fn("99999", nil); err == nil {
		t.Error("99999 accepted, want rejection")
	}
}

func TestSynthesizedRange(t *testing.T) {
	r := NewRegistry()
	fn, ok := r.Validator("num-68-9216")
	if !ok {
		t.Fatal("range ID not synthesized")
	}
	if err := fn("1500", nil); err != nil {
		t.Errorf("1500 rejected: %v", err)
	}
	if err := fn("67", nil); err == nil {
		t.Error("67 accepted")
	}
	if _, ok := r.Validator("num-bogus"); ok {
		t.Error("malformed range ID resolved")
	}
	if _, ok := r.Validator("never-registered"); ok {
		t.Error("unknown ID resolved")
	}
}

func TestHostname(t *testing.T) {
	cases := []struct {
		token string
		ok    bool
	}{
		{"router1", true},
		{"edge-router.example.com", true},
		{"-bad", false},
		{"bad-", false},
		{"under_score", false},
		{"", false},
	}
	for _, tc := range cases {
		err := Hostname(tc.token, nil)
		if (err == nil) != tc.ok {
			t.Errorf("Hostname(%q) = %v, want ok=%v", tc.token, err, tc.ok)
		}
	}
}

func TestInterfaceName(t *testing.T) {
	if err := InterfaceName("eth0", nil); err != nil {
		t.Errorf("eth0 rejected: %v", err)
	}
	if err := InterfaceName("eth0.100", nil); err != nil {
		t.Errorf("vlan name rejected: %v", err)
	}
	if err := InterfaceName("way-too-long-interface-name", nil); err == nil {
		t.Error("overlong name accepted")
	}
	if err := InterfaceName("has space", nil); err == nil {
		t.Error("name with space accepted")
	}
}

func TestVRFName(t *testing.T) {
	if err := VRFName("all", nil); err != nil {
		t.Errorf("'all' rejected: %v", err)
	}
	if err := VRFName("mgmt", nil); err != nil {
		t.Errorf("mgmt rejected: %v", err)
	}
}

func TestEnum(t *testing.T) {
	allowed := []string{"auto", "full", "half"}
	if err := Enum("full", allowed); err != nil {
		t.Errorf("full rejected: %v", err)
	}
	if err := Enum("simplex", allowed); err == nil {
		t.Error("simplex accepted")
	}
}

func TestStaticList(t *testing.T) {
	got := StaticList("f", []string{"auto", "full", "fast", "half"})
	if diff := cmp.Diff([]string{"full", "fast"}, got); diff != "" {
		t.Errorf("StaticList (-want +got):\n%s", diff)
	}
}

func TestRegistryOverride(t *testing.T) {
	r := Default()
	r.RegisterSuggestor("list_interfaces", func(prefix string, _ []string) []string {
		return []string{"eth0", "eth1"}
	})
	fn, ok := r.Suggestor("list_interfaces")
	if !ok {
		t.Fatal("suggestor missing after override")
	}
	if got := fn("", nil); len(got) != 2 {
		t.Errorf("override not in effect: %v", got)
	}
}
