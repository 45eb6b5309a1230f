// Package certificate resolves the TLS bundle for the deployment's domain.
//
// Sources are tried in order: the bucket, the local cache under the state
// directory, and finally a freshly generated self-signed certificate. The
// bucket copy is authoritative; local copies and the cluster secret are
// derived from it.
package certificate

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Source names where a bundle came from.
type Source string

const (
	SourceCache     Source = "cache"
	SourceLocal     Source = "local"
	SourceGenerated Source = "generated"
)

// Bundle is a certificate and its private key for one domain.
type Bundle struct {
	Domain         string
	CertificatePEM []byte
	PrivateKeyPEM  []byte
	Source         Source
	NotAfter       time.Time
}

// Validate checks that the bundle parses, that the key matches the
// certificate, that the certificate names domain and that it has not expired
// at now. On success NotAfter is set from the certificate.
//
// The domain must appear among the certificate's DNS names as is; a wildcard
// that would match it is not accepted.
func (b *Bundle) Validate(domain string, now time.Time) error {
	cert, err := parseCertificate(b.CertificatePEM)
	if err != nil {
		return err
	}
	key, err := parsePrivateKey(b.PrivateKeyPEM)
	if err != nil {
		return err
	}

	pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(cert.PublicKey) {
		return errors.New("private key does not match certificate")
	}
	exact := func(name string) bool { return strings.EqualFold(name, domain) }
	if !slices.ContainsFunc(cert.DNSNames, exact) {
		return fmt.Errorf("certificate does not cover %s: names %v", domain, cert.DNSNames)
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate expired at %s", cert.NotAfter.UTC().Format(time.RFC3339))
	}
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate not valid before %s", cert.NotBefore.UTC().Format(time.RFC3339))
	}

	b.NotAfter = cert.NotAfter
	return nil
}

func parseCertificate(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("no PEM certificate found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

func parsePrivateKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM private key found")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		switch k := key.(type) {
		case *rsa.PrivateKey:
			return k, nil
		case *ecdsa.PrivateKey:
			return k, nil
		case ed25519.PrivateKey:
			return k, nil
		default:
			return nil, fmt.Errorf("unsupported private key type %T", key)
		}
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}
