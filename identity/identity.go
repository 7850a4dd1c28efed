// Package identity defines the two small, immutable value types exchanged
// during connection handshake: the peer's declared role and the protocol
// version it speaks.
package identity

import (
	"fmt"
	"strings"
)

// Kind is the role a peer declares itself to be on connect.
type Kind byte

const (
	// KindClient identifies a peer that will push requests and wait for responses.
	KindClient Kind = iota
	// KindServer identifies a peer that accepts identification from clients and subscribers.
	KindServer
	// KindSubscriber identifies a peer that polls a named queue for work.
	KindSubscriber
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "MX-CLIENT"
	case KindServer:
		return "MX-SERVER"
	case KindSubscriber:
		return "MX-SUBSCRIBER"
	default:
		return "MX-UNKNOWN"
	}
}

// Remote is a parsed identification line. SubscriptionURI is only set
// (and only valid) when Kind is KindSubscriber.
type Remote struct {
	Kind            Kind
	SubscriptionURI string
}

// NewClient returns the identity a client presents.
func NewClient() Remote { return Remote{Kind: KindClient} }

// NewServer returns the identity a server presents.
func NewServer() Remote { return Remote{Kind: KindServer} }

// NewSubscriber returns the identity a subscriber presents for the given
// subscription URI. uri must be non-empty.
func NewSubscriber(uri string) Remote {
	return Remote{Kind: KindSubscriber, SubscriptionURI: uri}
}

// Version is the protocol version negotiated during identification.
// The zero value is not valid; use Current.
type Version struct {
	Major, Minor int
}

// Current is the protocol version implemented by this package.
var Current = Version{Major: 1, Minor: 0}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseVersion parses a "major.minor" token.
func ParseVersion(s string) (Version, error) {
	major, minor, ok := cut2(s, ".")
	if !ok {
		return Version{}, fmt.Errorf("identity: malformed version %q", s)
	}
	var v Version
	if _, err := fmt.Sscanf(major, "%d", &v.Major); err != nil {
		return Version{}, fmt.Errorf("identity: malformed version %q: %w", s, err)
	}
	if _, err := fmt.Sscanf(minor, "%d", &v.Minor); err != nil {
		return Version{}, fmt.Errorf("identity: malformed version %q: %w", s, err)
	}
	return v, nil
}

func cut2(s, sep string) (before, after string, found bool) {
	i := strings.Index(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// Line renders the identification line for this identity (without the
// trailing blank line the exchange stream appends for readability).
func (r Remote) Line(v Version) (string, error) {
	switch r.Kind {
	case KindClient:
		return fmt.Sprintf("%s %s", KindClient, v), nil
	case KindServer:
		return fmt.Sprintf("%s %s", KindServer, v), nil
	case KindSubscriber:
		if r.SubscriptionURI == "" {
			return "", fmt.Errorf("identity: subscriber identity missing subscription URI")
		}
		return fmt.Sprintf("%s %s %s", KindSubscriber, v, r.SubscriptionURI), nil
	default:
		return "", fmt.Errorf("identity: unknown kind %v", r.Kind)
	}
}

// Parse parses an identification line of the form "MX-CLIENT 1.0",
// "MX-SERVER 1.0", or "MX-SUBSCRIBER 1.0 <uri>". It splits on runs of
// whitespace and discards empty segments, per the wire grammar.
func Parse(line string) (Remote, Version, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Remote{}, Version{}, fmt.Errorf("identity: malformed identification line %q", line)
	}
	v, err := ParseVersion(fields[1])
	if err != nil {
		return Remote{}, Version{}, err
	}
	switch fields[0] {
	case KindClient.String():
		return Remote{Kind: KindClient}, v, nil
	case KindServer.String():
		return Remote{Kind: KindServer}, v, nil
	case KindSubscriber.String():
		if len(fields) < 3 || fields[2] == "" {
			return Remote{}, Version{}, fmt.Errorf("identity: %s line missing subscription URI", KindSubscriber)
		}
		return Remote{Kind: KindSubscriber, SubscriptionURI: fields[2]}, v, nil
	default:
		return Remote{}, Version{}, fmt.Errorf("identity: unrecognized identity token %q", fields[0])
	}
}
