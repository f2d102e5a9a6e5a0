package ingress

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"
)

func sha256Sig(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func sha1Sig(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_AcceptsValidSha256(t *testing.T) {
	body := []byte(`{"job":"svc-api"}`)
	secret := "s3cr3t"
	if err := VerifySignature(sha256Sig(secret, body), body, secret); err != nil {
		t.Fatalf("VerifySignature(valid sha256) = %v, want nil", err)
	}
}

func TestVerifySignature_AcceptsValidSha1(t *testing.T) {
	body := []byte(`{"job":"svc-api"}`)
	secret := "s3cr3t"
	if err := VerifySignature(sha1Sig(secret, body), body, secret); err != nil {
		t.Fatalf("VerifySignature(valid sha1) = %v, want nil", err)
	}
}

func TestVerifySignature_RejectsMismatch(t *testing.T) {
	body := []byte(`{"job":"svc-api"}`)
	if err := VerifySignature("sha256=deadbeef", body, "s3cr3t"); err == nil {
		t.Fatal("VerifySignature(mismatch) = nil, want error")
	}
}

func TestVerifySignature_RejectsMissingHeader(t *testing.T) {
	if err := VerifySignature("", []byte("body"), "secret"); err == nil {
		t.Fatal("VerifySignature(missing header) = nil, want error")
	}
}

func TestVerifySignature_RejectsUnknownAlgorithm(t *testing.T) {
	if err := VerifySignature("md5=deadbeef", []byte("body"), "secret"); err == nil {
		t.Fatal("VerifySignature(unrecognized algo) = nil, want error")
	}
}

func TestVerifySignature_RejectsNonHexDigest(t *testing.T) {
	if err := VerifySignature("sha256=not-hex!!", []byte("body"), "secret"); err == nil {
		t.Fatal("VerifySignature(non-hex digest) = nil, want error")
	}
}

func TestVerifySignature_RejectsWrongSecret(t *testing.T) {
	body := []byte(`{"job":"svc-api"}`)
	sig := sha256Sig("correct-secret", body)
	if err := VerifySignature(sig, body, "wrong-secret"); err == nil {
		t.Fatal("VerifySignature(wrong secret) = nil, want error")
	}
}

func TestVerifyTimestamp_AcceptsWithinSkew(t *testing.T) {
	now := time.Now().Unix()
	header := formatUnix(now)
	if err := VerifyTimestamp(header, 300*time.Second); err != nil {
		t.Fatalf("VerifyTimestamp(now) = %v, want nil", err)
	}
}

func TestVerifyTimestamp_RejectsOutsideSkew(t *testing.T) {
	old := time.Now().Add(-10 * time.Minute).Unix()
	if err := VerifyTimestamp(formatUnix(old), 300*time.Second); err == nil {
		t.Fatal("VerifyTimestamp(10m old) = nil, want error")
	}
}

func TestVerifyTimestamp_RejectsFutureOutsideSkew(t *testing.T) {
	future := time.Now().Add(10 * time.Minute).Unix()
	if err := VerifyTimestamp(formatUnix(future), 300*time.Second); err == nil {
		t.Fatal("VerifyTimestamp(10m future) = nil, want error")
	}
}

func TestVerifyTimestamp_EmptyHeaderIsSkipped(t *testing.T) {
	if err := VerifyTimestamp("", 300*time.Second); err != nil {
		t.Fatalf("VerifyTimestamp(\"\") = %v, want nil (no timestamp header sent)", err)
	}
}

func TestVerifyTimestamp_RejectsMalformedHeader(t *testing.T) {
	if err := VerifyTimestamp("not-a-number", 300*time.Second); err == nil {
		t.Fatal("VerifyTimestamp(malformed) = nil, want error")
	}
}

func formatUnix(sec int64) string {
	return strconv.FormatInt(sec, 10)
}
