package directory

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
)

// Mode is the transport security applied to a directory connection.
type Mode string

const (
	ModePlain      Mode = "plain"
	ModeTLSStrict  Mode = "tls-strict"
	ModeTLSRelaxed Mode = "tls-relaxed"
)

// Policy is the operator's transport-security requirement.
type Policy string

const (
	PolicyRequired Policy = "required"
	PolicyDisabled Policy = "disabled"
)

// PolicyFor maps the boolean TLS switch from configuration to a Policy.
func PolicyFor(useTLS bool) Policy {
	if useTLS {
		return PolicyRequired
	}
	return PolicyDisabled
}

// TransportConfig is one concrete way to reach the directory. TrustAnchor is a
// CA bundle path; empty means system roots. Values are immutable once cached.
type TransportConfig struct {
	Host        string
	Port        int
	Mode        Mode
	TrustAnchor string
}

// Address returns host:port.
func (c TransportConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// URL returns the ldap:// or ldaps:// URL for the mode.
func (c TransportConfig) URL() string {
	if c.Mode == ModePlain {
		return "ldap://" + c.Address()
	}
	return "ldaps://" + c.Address()
}

// Secure reports whether the transport encrypts traffic.
func (c TransportConfig) Secure() bool {
	return c.Mode != ModePlain
}

// TLSConfig builds the client TLS settings for the mode. Plain returns nil.
func (c TransportConfig) TLSConfig() (*tls.Config, error) {
	switch c.Mode {
	case ModePlain:
		return nil, nil
	case ModeTLSRelaxed:
		return &tls.Config{
			ServerName:         c.Host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, //nolint:gosec // explicit degraded fallback
		}, nil
	case ModeTLSStrict:
		cfg := &tls.Config{ServerName: c.Host, MinVersion: tls.VersionTLS12}
		if c.TrustAnchor != "" {
			pool, err := loadTrustAnchor(c.TrustAnchor)
			if err != nil {
				return nil, err
			}
			cfg.RootCAs = pool
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("unknown transport mode %q", c.Mode)
	}
}

func (c TransportConfig) String() string {
	if c.TrustAnchor != "" {
		return fmt.Sprintf("%s (%s, ca=%s)", c.Address(), c.Mode, c.TrustAnchor)
	}
	return fmt.Sprintf("%s (%s)", c.Address(), c.Mode)
}

func loadTrustAnchor(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust anchor: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("trust anchor %s contains no certificates", path)
	}
	return pool, nil
}

// Identity is the directory's view of an authenticated principal. Optional
// attributes are nil when the directory returned no value.
type Identity struct {
	PrincipalName string
	Email         *string
	DisplayName   *string
	Department    *string
	Title         *string
	EmployeeID    *string
	Groups        []string
}

// Value returns the dereferenced attribute or "".
func Value(attr *string) string {
	if attr == nil {
		return ""
	}
	return *attr
}
