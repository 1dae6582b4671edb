package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

var errNoPEM = errors.New("no PEM block found")

// keyMaterial returns the PEM bytes named by ref: either a file path or,
// when ref itself starts with a PEM header, the inline key.
func keyMaterial(ref string) ([]byte, error) {
	if strings.HasPrefix(strings.TrimSpace(ref), "-----BEGIN") {
		return []byte(ref), nil
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return data, nil
}

// LoadPrivateKey reads an RSA private key from a PEM file path or an inline
// PEM string.
func LoadPrivateKey(ref string) (*rsa.PrivateKey, error) {
	data, err := keyMaterial(ref)
	if err != nil {
		return nil, err
	}
	return ParsePrivateKey(data)
}

// LoadPublicKey reads an RSA public key from a PEM file path or an inline
// PEM string.
func LoadPublicKey(ref string) (*rsa.PublicKey, error) {
	data, err := keyMaterial(ref)
	if err != nil {
		return nil, err
	}
	return ParsePublicKey(data)
}

// ParsePrivateKey decodes a PKCS#8 ("PRIVATE KEY") or PKCS#1
// ("RSA PRIVATE KEY") block.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errNoPEM
	}
	if block.Type == "RSA PRIVATE KEY" {
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#1 private key: %w", err)
		}
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKCS#8 private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want RSA", key)
	}
	return rsaKey, nil
}

// ParsePublicKey decodes a PKIX ("PUBLIC KEY") or PKCS#1
// ("RSA PUBLIC KEY") block.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errNoPEM
	}
	if block.Type == "RSA PUBLIC KEY" {
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#1 public key: %w", err)
		}
		return key, nil
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKIX public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA", key)
	}
	return rsaKey, nil
}
