package pdu

// OpCode identifies the operation a HAP PDU requests.
type OpCode byte

// HAP opcodes.
const (
	OpCharacteristicSignatureRead OpCode = 0x01
	OpCharacteristicWrite         OpCode = 0x02
	OpCharacteristicRead          OpCode = 0x03
	OpCharacteristicTimedWrite    OpCode = 0x04
	OpCharacteristicExecuteWrite  OpCode = 0x05
	OpServiceSignatureRead        OpCode = 0x06
)

// String returns the opcode name.
func (o OpCode) String() string {
	switch o {
	case OpCharacteristicSignatureRead:
		return "CharacteristicSignatureRead"
	case OpCharacteristicWrite:
		return "CharacteristicWrite"
	case OpCharacteristicRead:
		return "CharacteristicRead"
	case OpCharacteristicTimedWrite:
		return "CharacteristicTimedWrite"
	case OpCharacteristicExecuteWrite:
		return "CharacteristicExecuteWrite"
	case OpServiceSignatureRead:
		return "ServiceSignatureRead"
	default:
		return "Unknown"
	}
}

// Status is a HAP PDU response status code.
type Status byte

// HAP status codes.
const (
	StatusSuccess                    Status = 0x00
	StatusUnsupportedPDU             Status = 0x01
	StatusMaxProcedures              Status = 0x02
	StatusInsufficientAuthorization  Status = 0x03
	StatusInvalidInstanceID          Status = 0x04
	StatusInsufficientAuthentication Status = 0x05
	StatusInvalidRequest             Status = 0x06
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusUnsupportedPDU:
		return "UnsupportedPDU"
	case StatusMaxProcedures:
		return "MaxProcedures"
	case StatusInsufficientAuthorization:
		return "InsufficientAuthorization"
	case StatusInvalidInstanceID:
		return "InvalidInstanceID"
	case StatusInsufficientAuthentication:
		return "InsufficientAuthentication"
	case StatusInvalidRequest:
		return "InvalidRequest"
	default:
		return "Unknown"
	}
}

// Message returns the descriptive text for the status code.
func (s Status) Message() string {
	switch s {
	case StatusSuccess:
		return "the request was successful"
	case StatusUnsupportedPDU:
		return "the HAP PDU was not recognized or supported"
	case StatusMaxProcedures:
		return "the accessory reached its limit on simultaneous procedures"
	case StatusInsufficientAuthorization:
		return "characteristic requires additional authorization data"
	case StatusInvalidInstanceID:
		return "the request's instance ID did not match the addressed characteristic"
	case StatusInsufficientAuthentication:
		return "characteristic access requires a secure session"
	case StatusInvalidRequest:
		return "the accessory could not perform the requested operation"
	default:
		return "unknown status"
	}
}
