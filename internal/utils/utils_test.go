package utils

import "testing"

func TestJWTRoundTrip(t *testing.T) {
	token, err := SignJWT("secret", "user-123", "teacher", 60)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := ParseJWT("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Fatalf("expected uid user-123, got %q", claims.UserID)
	}
	if claims.Role != "teacher" {
		t.Fatalf("expected role teacher, got %q", claims.Role)
	}
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := SignJWT("secret", "user-123", "student", 60)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseJWT("other-secret", token); err == nil {
		t.Fatal("expected parse failure with wrong secret")
	}
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	token, err := SignJWT("secret", "user-123", "student", -1)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseJWT("secret", token); err == nil {
		t.Fatal("expected parse failure for expired token")
	}
}

func TestJWTRejectsGarbage(t *testing.T) {
	if _, err := ParseJWT("secret", "not.a.token"); err == nil {
		t.Fatal("expected parse failure for malformed token")
	}
}

func TestPasswordHashAndCheck(t *testing.T) {
	hashed, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hashed == "s3cret-pass" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !CheckPassword(hashed, "s3cret-pass") {
		t.Fatal("correct password should verify")
	}
	if CheckPassword(hashed, "wrong-pass") {
		t.Fatal("wrong password must not verify")
	}
}
