// Package hap ties transport, session, pairing and characteristic access
// together into a controller-side client and a simulated accessory for
// tests and tooling.
package hap

// Reserved instance IDs carrying the pairing handshakes. They sit far above
// the characteristic range so signature discovery never reaches them.
const (
	pairSetupIID  uint16 = 0xFFF0
	pairVerifyIID uint16 = 0xFFF1
)
