package alert

import "testing"

func TestSignHMAC(t *testing.T) {
	got := SignHMAC("secret", "POST\n/hook\n1700000000\nnonce\nbodyhash")
	if len(got) != 64 { // hex-encoded sha256 length
		t.Fatalf("bad length: %s", got)
	}
	if got != SignHMAC("secret", "POST\n/hook\n1700000000\nnonce\nbodyhash") {
		t.Fatalf("signature not deterministic")
	}
	if got == SignHMAC("other", "POST\n/hook\n1700000000\nnonce\nbodyhash") {
		t.Fatalf("secret not mixed into signature")
	}
}
