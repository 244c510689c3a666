package pairing

// TLV item tags used by the pairing protocols.
const (
	TagMethod        = 0x00
	TagIdentifier    = 0x01
	TagSalt          = 0x02
	TagPublicKey     = 0x03
	TagProof         = 0x04
	TagEncryptedData = 0x05
	TagState         = 0x06
	TagError         = 0x07
	TagRetryDelay    = 0x08
	TagCertificate   = 0x09
	TagSignature     = 0x0A
	TagPermissions   = 0x0B
	TagFragmentData  = 0x0C
	TagFragmentLast  = 0x0D
	TagSeparator     = 0xFF
)

// Method identifies the pairing operation requested in message M1.
type Method byte

const (
	MethodPairSetup     Method = 0x01
	MethodPairVerify    Method = 0x02
	MethodAddPairing    Method = 0x03
	MethodRemovePairing Method = 0x04
	MethodListPairings  Method = 0x05
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case MethodPairSetup:
		return "PairSetup"
	case MethodPairVerify:
		return "PairVerify"
	case MethodAddPairing:
		return "AddPairing"
	case MethodRemovePairing:
		return "RemovePairing"
	case MethodListPairings:
		return "ListPairings"
	default:
		return "Unknown"
	}
}

// ErrorCode is the protocol-level error carried in a TagError item.
type ErrorCode byte

const (
	ErrorUnknown        ErrorCode = 0x01
	ErrorAuthentication ErrorCode = 0x02
	ErrorBackoff        ErrorCode = 0x03
	ErrorMaxPeers       ErrorCode = 0x04
	ErrorMaxTries       ErrorCode = 0x05
	ErrorUnavailable    ErrorCode = 0x06
	ErrorBusy           ErrorCode = 0x07
)

// String returns the error code name.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "Unknown"
	case ErrorAuthentication:
		return "Authentication"
	case ErrorBackoff:
		return "Backoff"
	case ErrorMaxPeers:
		return "MaxPeers"
	case ErrorMaxTries:
		return "MaxTries"
	case ErrorUnavailable:
		return "Unavailable"
	case ErrorBusy:
		return "Busy"
	default:
		return "Unknown"
	}
}

// Handshake message sequence numbers carried in TagState.
const (
	StateM1 = 0x01
	StateM2 = 0x02
	StateM3 = 0x03
	StateM4 = 0x04
	StateM5 = 0x05
	StateM6 = 0x06
)

// Key derivation labels.
const (
	setupEncryptSalt = "Pair-Setup-Encrypt-Salt"
	setupEncryptInfo = "Pair-Setup-Encrypt-Info"

	setupControllerSignSalt = "Pair-Setup-Controller-Sign-Salt"
	setupControllerSignInfo = "Pair-Setup-Controller-Sign-Info"

	setupAccessorySignSalt = "Pair-Setup-Accessory-Sign-Salt"
	setupAccessorySignInfo = "Pair-Setup-Accessory-Sign-Info"

	verifyEncryptSalt = "Pair-Verify-Encrypt-Salt"
	verifyEncryptInfo = "Pair-Verify-Encrypt-Info"

	controlSalt      = "Control-Salt"
	controlReadInfo  = "Control-Read-Encryption-Key"
	controlWriteInfo = "Control-Write-Encryption-Key"
)

// AEAD nonce labels for the handshake payloads.
const (
	nonceSetupM5  = "PS-Msg05"
	nonceSetupM6  = "PS-Msg06"
	nonceVerifyM2 = "PV-Msg02"
	nonceVerifyM3 = "PV-Msg03"
)

// srpUsername is the fixed SRP identity for pair-setup.
const srpUsername = "Pair-Setup"
