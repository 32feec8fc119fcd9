package device

import "testing"

func TestFingerprintDeterministic(t *testing.T) {
	traits := Traits{
		DisplayWidth:     1080,
		DisplayHeight:    2400,
		Locale:           "fil_PH.UTF-8",
		UTCOffsetMinutes: 480,
		Hardware:         "linux/arm64",
		Agent:            "fieldtrust/kiosk-12",
	}
	first := Fingerprint(traits)
	second := Fingerprint(traits)
	if first != second {
		t.Fatalf("fingerprint not deterministic: %s vs %s", first, second)
	}
	if len(first) != 16 {
		t.Fatalf("expected 16 hex chars, got %d (%s)", len(first), first)
	}
}

func TestFingerprintSensitiveToTraits(t *testing.T) {
	base := Traits{DisplayWidth: 1080, DisplayHeight: 2400, Locale: "en_PH", UTCOffsetMinutes: 480, Hardware: "linux/arm64", Agent: "fieldtrust/kiosk-12"}
	variants := []Traits{
		{DisplayWidth: 1081, DisplayHeight: 2400, Locale: "en_PH", UTCOffsetMinutes: 480, Hardware: "linux/arm64", Agent: "fieldtrust/kiosk-12"},
		{DisplayWidth: 1080, DisplayHeight: 2400, Locale: "en_US", UTCOffsetMinutes: 480, Hardware: "linux/arm64", Agent: "fieldtrust/kiosk-12"},
		{DisplayWidth: 1080, DisplayHeight: 2400, Locale: "en_PH", UTCOffsetMinutes: 0, Hardware: "linux/arm64", Agent: "fieldtrust/kiosk-12"},
		{DisplayWidth: 1080, DisplayHeight: 2400, Locale: "en_PH", UTCOffsetMinutes: 480, Hardware: "linux/amd64", Agent: "fieldtrust/kiosk-12"},
		{DisplayWidth: 1080, DisplayHeight: 2400, Locale: "en_PH", UTCOffsetMinutes: 480, Hardware: "linux/arm64", Agent: "fieldtrust/kiosk-13"},
	}
	want := Fingerprint(base)
	for i, v := range variants {
		if Fingerprint(v) == want {
			t.Fatalf("variant %d produced the same fingerprint as base", i)
		}
	}
}

func TestFingerprintDelimiterSafety(t *testing.T) {
	// Length-delimited encoding keeps adjacent string traits from colliding.
	a := Traits{Hardware: "linux", Agent: "/arm64"}
	b := Traits{Hardware: "linux/", Agent: "arm64"}
	if Fingerprint(a) == Fingerprint(b) {
		t.Fatalf("trait boundaries collapsed in the digest")
	}
}

func TestCollectPopulatesHardware(t *testing.T) {
	traits := Collect()
	if traits.Hardware == "" {
		t.Fatalf("expected hardware hint to be populated")
	}
}
