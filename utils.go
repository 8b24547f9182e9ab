package ersatz

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
	"net"
	"time"
)

// selfSignedCertificate issues a short-lived ECDSA certificate for the
// loopback interface and the given extra hosts (IPs or DNS names).
func selfSignedCertificate(hosts ...string) (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate serial: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost", Organization: []string{"ersatz"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if h != "" {
			template.DNSNames = append(template.DNSNames, h)
		}
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse certificate: %w", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv, Leaf: leaf}, nil
}

// buildTLSConfig builds the listener *tls.Config from TLSOptions.
func buildTLSConfig(opts *TLSOptions) (*tls.Config, error) {
	if opts == nil {
		opts = &TLSOptions{}
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if opts.MinVersion != 0 {
		cfg.MinVersion = opts.MinVersion
	}
	if len(opts.Certificates) > 0 {
		cfg.Certificates = opts.Certificates
	} else {
		cert, err := selfSignedCertificate()
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if opts.RequireClientCert {
		if opts.SkipClientVerify {
			cfg.ClientAuth = tls.RequireAnyClientCert
		} else {
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
			cfg.ClientCAs = opts.ClientCAs
		}
	}
	return cfg, nil
}

// splitChunks divides body into at most count nearly equal parts.
func splitChunks(body []byte, count int) [][]byte {
	if count <= 1 || len(body) <= 1 {
		return [][]byte{body}
	}
	count = min(count, len(body))
	size := (len(body) + count - 1) / count
	chunks := make([][]byte, 0, count)
	for start := 0; start < len(body); start += size {
		chunks = append(chunks, body[start:min(start+size, len(body))])
	}
	return chunks
}

// chunkDelay returns the pause before the next chunk.
func chunkDelay(c *Chunking) time.Duration {
	if c.DelayMax > c.Delay {
		return c.Delay + time.Duration(mrand.Int64N(int64(c.DelayMax-c.Delay)+1))
	}
	return c.Delay
}
