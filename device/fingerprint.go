package device

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"os"
	"runtime"
	"strings"
	"time"

	"lukechampine.com/blake3"
)

// Traits are the locally observable characteristics a fingerprint is derived
// from. None of them is secret; the fingerprint binds a credential to "a
// device", not to a person, and never serves as an access-control input on
// its own.
type Traits struct {
	DisplayWidth     int
	DisplayHeight    int
	Locale           string
	UTCOffsetMinutes int
	Hardware         string
	Agent            string
}

// Collect gathers the current terminal's traits. Display geometry comes from
// the hosting shell when available and defaults to zero on headless builds.
func Collect() Traits {
	hostname, _ := os.Hostname()
	_, offsetSeconds := time.Now().Zone()
	return Traits{
		Locale:           strings.TrimSpace(os.Getenv("LANG")),
		UTCOffsetMinutes: offsetSeconds / 60,
		Hardware:         runtime.GOOS + "/" + runtime.GOARCH,
		Agent:            "fieldtrust/" + hostname,
	}
}

// Fingerprint derives a short, stable identifier from the supplied traits.
// The same traits always produce the same fingerprint; it is recomputed per
// use and never persisted as an identity.
func Fingerprint(traits Traits) string {
	buf := bytes.NewBuffer(nil)
	binary.Write(buf, binary.BigEndian, int64(traits.DisplayWidth))
	binary.Write(buf, binary.BigEndian, int64(traits.DisplayHeight))
	writeDelimited(buf, []byte(traits.Locale))
	binary.Write(buf, binary.BigEndian, int64(traits.UTCOffsetMinutes))
	writeDelimited(buf, []byte(traits.Hardware))
	writeDelimited(buf, []byte(traits.Agent))
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:8])
}

func writeDelimited(buf *bytes.Buffer, data []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}
