package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func testKey() []byte {
	key := make([]byte, SessionKeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestSessionCipher_Roundtrip(t *testing.T) {
	c, err := NewSessionCipher(testKey())
	if err != nil {
		t.Fatal(err)
	}

	plaintext := []byte("target state: heat")
	aad := []byte{0x12, 0x00}

	ct := c.Seal(7, aad, plaintext)
	if len(ct) != len(plaintext)+SessionTagSize {
		t.Fatalf("ciphertext length = %d", len(ct))
	}

	pt, err := c.Open(7, aad, ct)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Errorf("roundtrip mismatch: %q", pt)
	}
}

func TestSessionCipher_WrongCounterFails(t *testing.T) {
	c, _ := NewSessionCipher(testKey())
	ct := c.Seal(1, nil, []byte("on"))

	if _, err := c.Open(2, nil, ct); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Open with wrong counter: err = %v", err)
	}
}

func TestSessionCipher_TamperedAADFails(t *testing.T) {
	c, _ := NewSessionCipher(testKey())
	ct := c.Seal(1, []byte{0x01}, []byte("on"))

	if _, err := c.Open(1, []byte{0x02}, ct); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Open with tampered AAD: err = %v", err)
	}
}

func TestSessionCipher_CounterNonceDistinct(t *testing.T) {
	c, _ := NewSessionCipher(testKey())
	a := c.Seal(1, nil, []byte("x"))
	b := c.Seal(2, nil, []byte("x"))
	if bytes.Equal(a, b) {
		t.Errorf("distinct counters produced identical ciphertexts")
	}
}

func TestSessionCipher_LabelNonce(t *testing.T) {
	c, _ := NewSessionCipher(testKey())
	ct := c.SealWithNonce("PS-Msg05", nil, []byte("identity"))
	pt, err := c.OpenWithNonce("PS-Msg05", nil, ct)
	if err != nil || !bytes.Equal(pt, []byte("identity")) {
		t.Fatalf("label nonce roundtrip: %q, %v", pt, err)
	}
	if _, err := c.OpenWithNonce("PS-Msg06", nil, ct); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Open with wrong label: err = %v", err)
	}
}

func TestNewSessionCipher_BadKey(t *testing.T) {
	if _, err := NewSessionCipher(make([]byte, 16)); !errors.Is(err, ErrInvalidKeySize) {
		t.Errorf("err = %v, want ErrInvalidKeySize", err)
	}
}

func TestHKDFSHA512_DeterministicAndDistinct(t *testing.T) {
	ikm := []byte("shared secret")

	a, err := HKDFSHA512(ikm, []byte("Control-Salt"), []byte("Control-Read-Encryption-Key"), 32)
	if err != nil {
		t.Fatal(err)
	}
	b, err := HKDFSHA512(ikm, []byte("Control-Salt"), []byte("Control-Read-Encryption-Key"), 32)
	if err != nil {
		t.Fatal(err)
	}
	c, err := HKDFSHA512(ikm, []byte("Control-Salt"), []byte("Control-Write-Encryption-Key"), 32)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(a, b) {
		t.Errorf("HKDF not deterministic")
	}
	if bytes.Equal(a, c) {
		t.Errorf("distinct infos produced identical keys")
	}
	if len(a) != 32 {
		t.Errorf("derived length = %d", len(a))
	}
}

func TestKeyPair_SharedSecretAgreement(t *testing.T) {
	alice, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	bob, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	s1, err := alice.SharedSecret(bob.Public[:])
	if err != nil {
		t.Fatal(err)
	}
	s2, err := bob.SharedSecret(alice.Public[:])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(s1, s2) {
		t.Errorf("shared secrets disagree")
	}

	if _, err := alice.SharedSecret([]byte{1, 2, 3}); !errors.Is(err, ErrInvalidPublicKey) {
		t.Errorf("short public key: err = %v", err)
	}
}

func TestLongTermKey_SeedRoundtripAndSign(t *testing.T) {
	ltk, err := GenerateLongTermKey()
	if err != nil {
		t.Fatal(err)
	}

	restored, err := LongTermKeyFromSeed(ltk.Seed())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(restored.Public, ltk.Public) {
		t.Errorf("seed roundtrip changed public key")
	}

	msg := []byte("controller-1")
	sig := ltk.Sign(msg)
	if !Verify(ltk.Public, msg, sig) {
		t.Errorf("signature did not verify")
	}
	if Verify(ltk.Public, []byte("controller-2"), sig) {
		t.Errorf("signature verified wrong message")
	}
}
