package pairing

import (
	"bytes"
	"errors"
	"testing"

	"github.com/hap-protocol/hap-go/pkg/tlv"
)

const testSetupCode = "123-45-678"

func newTestIdentity(t *testing.T, id string) *Identity {
	t.Helper()
	identity, err := NewIdentity(id)
	if err != nil {
		t.Fatal(err)
	}
	return identity
}

// runSetup drives a full pair-setup handshake between the two sides.
func runSetup(t *testing.T, controller *SetupController, accessory *SetupAccessory) (*Result, *Result) {
	t.Helper()
	m1, err := controller.Start()
	if err != nil {
		t.Fatal(err)
	}
	m2, err := accessory.HandleM1(m1)
	if err != nil {
		t.Fatal(err)
	}
	m3, err := controller.HandleM2(m2)
	if err != nil {
		t.Fatal(err)
	}
	m4, err := accessory.HandleM3(m3)
	if err != nil {
		t.Fatal(err)
	}
	m5, err := controller.HandleM4(m4)
	if err != nil {
		t.Fatal(err)
	}
	m6, err := accessory.HandleM5(m5)
	if err != nil {
		t.Fatal(err)
	}
	ctlResult, err := controller.HandleM6(m6)
	if err != nil {
		t.Fatal(err)
	}
	accResult, err := accessory.Result()
	if err != nil {
		t.Fatal(err)
	}
	return ctlResult, accResult
}

func TestSetup_Success(t *testing.T) {
	ctlIdentity := newTestIdentity(t, "controller-1")
	accIdentity := newTestIdentity(t, "accessory-1")

	controller, err := NewSetupController(ctlIdentity, testSetupCode)
	if err != nil {
		t.Fatal(err)
	}
	accessory, err := NewSetupAccessory(accIdentity, testSetupCode)
	if err != nil {
		t.Fatal(err)
	}

	ctlResult, accResult := runSetup(t, controller, accessory)

	if ctlResult.PeerID != "accessory-1" {
		t.Errorf("controller learned peer %q", ctlResult.PeerID)
	}
	if !bytes.Equal(ctlResult.PeerLTPK, accIdentity.Key.Public) {
		t.Errorf("controller learned wrong accessory key")
	}
	if accResult.PeerID != "controller-1" {
		t.Errorf("accessory learned peer %q", accResult.PeerID)
	}
	if !bytes.Equal(accResult.PeerLTPK, ctlIdentity.Key.Public) {
		t.Errorf("accessory learned wrong controller key")
	}
}

func TestSetup_WrongCodeRejected(t *testing.T) {
	controller, err := NewSetupController(newTestIdentity(t, "ctl"), "111-11-111")
	if err != nil {
		t.Fatal(err)
	}
	accessory, err := NewSetupAccessory(newTestIdentity(t, "acc"), testSetupCode)
	if err != nil {
		t.Fatal(err)
	}

	m1, _ := controller.Start()
	m2, err := accessory.HandleM1(m1)
	if err != nil {
		t.Fatal(err)
	}
	m3, err := controller.HandleM2(m2)
	if err != nil {
		t.Fatal(err)
	}

	m4, err := accessory.HandleM3(m3)
	if !errors.Is(err, ErrPairingRejected) {
		t.Fatalf("accessory err = %v, want ErrPairingRejected", err)
	}
	if m4 == nil {
		t.Fatal("accessory produced no error message")
	}

	// The error message propagates the rejection to the controller.
	if _, err := controller.HandleM4(m4); !errors.Is(err, ErrPairingRejected) {
		t.Errorf("controller err = %v, want ErrPairingRejected", err)
	}

	// Both sides are unusable afterwards.
	if _, err := accessory.HandleM3(m3); !errors.Is(err, ErrInvalidState) {
		t.Errorf("replayed M3: err = %v", err)
	}
	if _, err := accessory.Result(); !errors.Is(err, ErrNotComplete) {
		t.Errorf("result after failure: err = %v", err)
	}
}

func TestSetup_InvalidSetupCode(t *testing.T) {
	bad := []string{"", "12345678", "123-45-67", "1234-5-678", "abc-de-fgh", "123 45 678"}
	for _, code := range bad {
		if _, err := NewSetupController(newTestIdentity(t, "ctl"), code); !errors.Is(err, ErrInvalidSetupCode) {
			t.Errorf("code %q: err = %v, want ErrInvalidSetupCode", code, err)
		}
	}
	if err := ValidateSetupCode(testSetupCode); err != nil {
		t.Errorf("valid code rejected: %v", err)
	}
}

func TestSetup_OutOfOrderMessages(t *testing.T) {
	controller, _ := NewSetupController(newTestIdentity(t, "ctl"), testSetupCode)

	if _, err := controller.HandleM2(nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("HandleM2 before Start: err = %v", err)
	}
	if _, err := controller.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := controller.Start(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double Start: err = %v", err)
	}

	accessory, _ := NewSetupAccessory(newTestIdentity(t, "acc"), testSetupCode)
	if _, err := accessory.HandleM5(nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("HandleM5 before M1: err = %v", err)
	}
}

func TestSetup_UnexpectedMethod(t *testing.T) {
	accessory, _ := NewSetupAccessory(newTestIdentity(t, "acc"), testSetupCode)

	buf := tlv.AppendUint8(nil, TagState, StateM1)
	buf = tlv.AppendUint8(buf, TagMethod, uint8(MethodAddPairing))
	if _, err := accessory.HandleM1(buf); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("err = %v, want ErrInvalidMessage", err)
	}
}

// runVerify drives pair-setup then a full pair-verify.
func runVerifyAfterSetup(t *testing.T) (*VerifyController, *VerifyAccessory) {
	t.Helper()
	ctlIdentity := newTestIdentity(t, "ctl")
	accIdentity := newTestIdentity(t, "acc")

	sc, _ := NewSetupController(ctlIdentity, testSetupCode)
	sa, _ := NewSetupAccessory(accIdentity, testSetupCode)
	ctlResult, accResult := runSetup(t, sc, sa)

	controller, err := NewVerifyController(ctlIdentity, ctlResult.PeerID, ctlResult.PeerLTPK)
	if err != nil {
		t.Fatal(err)
	}
	accessory, err := NewVerifyAccessory(accIdentity, func(id string) ([]byte, bool) {
		if id == accResult.PeerID {
			return accResult.PeerLTPK, true
		}
		return nil, false
	})
	if err != nil {
		t.Fatal(err)
	}
	return controller, accessory
}

func TestVerify_Success(t *testing.T) {
	controller, accessory := runVerifyAfterSetup(t)

	m1, err := controller.Start()
	if err != nil {
		t.Fatal(err)
	}
	m2, err := accessory.HandleM1(m1)
	if err != nil {
		t.Fatal(err)
	}
	m3, err := controller.HandleM2(m2)
	if err != nil {
		t.Fatal(err)
	}
	m4, err := accessory.HandleM3(m3)
	if err != nil {
		t.Fatal(err)
	}
	if err := controller.HandleM4(m4); err != nil {
		t.Fatal(err)
	}

	peerID, err := accessory.PeerID()
	if err != nil {
		t.Fatal(err)
	}
	if peerID != "ctl" {
		t.Errorf("accessory verified peer %q", peerID)
	}

	// Channel keys mirror across the two sides.
	ctlEnc, ctlDec, err := controller.ChannelKeys()
	if err != nil {
		t.Fatal(err)
	}
	accEnc, accDec, err := accessory.ChannelKeys()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ctlEnc, accDec) || !bytes.Equal(ctlDec, accEnc) {
		t.Errorf("channel keys do not mirror")
	}
	if bytes.Equal(ctlEnc, ctlDec) {
		t.Errorf("directions share a key")
	}
}

func TestVerify_UnknownControllerRejected(t *testing.T) {
	controller, _ := runVerifyAfterSetup(t)
	// Accessory that has no pairing records at all.
	accessory, err := NewVerifyAccessory(newTestIdentity(t, "acc"), func(string) ([]byte, bool) {
		return nil, false
	})
	if err != nil {
		t.Fatal(err)
	}

	m1, _ := controller.Start()
	m2, err := accessory.HandleM1(m1)
	if err != nil {
		t.Fatal(err)
	}
	// The accessory's key differs from the one pair-setup recorded, so the
	// controller rejects its proof first.
	if _, err := controller.HandleM2(m2); !errors.Is(err, ErrVerificationFailed) {
		t.Errorf("controller err = %v, want ErrVerificationFailed", err)
	}
}

func TestVerify_ForgedControllerProof(t *testing.T) {
	controller, accessory := runVerifyAfterSetup(t)

	m1, _ := controller.Start()
	m2, err := accessory.HandleM1(m1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := controller.HandleM2(m2); err != nil {
		t.Fatal(err)
	}

	// A stranger replays M3 built under a different session: simulate by
	// feeding garbage encrypted data.
	forged := tlv.AppendUint8(nil, TagState, StateM3)
	forged = tlv.Append(forged, TagEncryptedData, bytes.Repeat([]byte{0xAB}, 50))

	m4, err := accessory.HandleM3(forged)
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("accessory err = %v, want ErrVerificationFailed", err)
	}

	// The controller sees the authentication error item.
	if err := controller.HandleM4(m4); !errors.Is(err, ErrVerificationFailed) {
		t.Errorf("controller err = %v, want ErrVerificationFailed", err)
	}
}

func TestVerify_ChannelKeysBeforeComplete(t *testing.T) {
	controller, _ := runVerifyAfterSetup(t)
	if _, _, err := controller.ChannelKeys(); !errors.Is(err, ErrNotComplete) {
		t.Errorf("err = %v, want ErrNotComplete", err)
	}
}

func TestProtocolError_Mapping(t *testing.T) {
	pe := &ProtocolError{Code: ErrorBackoff, RetryDelay: 30}
	if got := pe.Error(); got != "pairing: peer error Backoff (retry in 30s)" {
		t.Errorf("Error() = %q", got)
	}

	controller, _ := NewSetupController(newTestIdentity(t, "ctl"), testSetupCode)
	controller.Start()

	busy := tlv.AppendUint8(nil, TagState, StateM2)
	busy = tlv.AppendUint8(busy, TagError, uint8(ErrorBusy))
	_, err := controller.HandleM2(busy)
	var gotPE *ProtocolError
	if !errors.As(err, &gotPE) || gotPE.Code != ErrorBusy {
		t.Errorf("err = %v, want ProtocolError{Busy}", err)
	}
}
