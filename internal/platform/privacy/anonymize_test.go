package privacy

import "testing"

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ipv4", "192.168.1.47", "192.168.1.0"},
		{"ipv4 last octet already zero", "10.0.0.0", "10.0.0.0"},
		{"ipv4 localhost", "127.0.0.1", "127.0.0.0"},
		{"ipv6 full", "2001:db8:85a3:0000:0000:8a2e:0370:7334", "2001:0db8:85a3::"},
		{"ipv6 compressed", "2001:db8:85a3::8a2e:370:7334", "2001:0db8:85a3::"},
		{"ipv6 loopback", "::1", "0000:0000:0000::"},
		{"empty", "", "unknown"},
		{"unknown", "unknown", "unknown"},
		{"garbage", "not-an-ip", "invalid"},
		{"host with port", "192.168.1.1:8080", "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AnonymizeIP(tt.input); got != tt.expected {
				t.Errorf("AnonymizeIP(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAnonymizeIP_SameSubnetCollapses(t *testing.T) {
	// Every host in a /24 maps to the same value.
	for _, ip := range []string{"192.168.1.1", "192.168.1.100", "192.168.1.255"} {
		if got := AnonymizeIP(ip); got != "192.168.1.0" {
			t.Errorf("AnonymizeIP(%q) = %q, want 192.168.1.0", ip, got)
		}
	}
	if AnonymizeIP("192.168.1.47") == AnonymizeIP("192.168.2.47") {
		t.Error("different /24 networks must not collapse to the same value")
	}
}
