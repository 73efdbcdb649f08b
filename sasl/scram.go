package sasl

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// SCRAM implements the SCRAM-SHA-* family (RFC 5802), parameterized by
// digest. The exchange, in RFC 5802 §3's terms:
//
//	SaltedPassword  := Hi(password, salt, i)
//	ClientKey       := HMAC(SaltedPassword, "Client Key")
//	StoredKey       := H(ClientKey)
//	AuthMessage     := client-first-message-bare + "," +
//	                   server-first-message + "," +
//	                   client-final-message-without-proof
//	ClientSignature := HMAC(StoredKey, AuthMessage)
//	ClientProof     := ClientKey XOR ClientSignature
//	ServerKey       := HMAC(SaltedPassword, "Server Key")
//	ServerSignature := HMAC(ServerKey, AuthMessage)
//
// The client proves knowledge of the password via ClientProof and then
// demands the same of the server: a server-final whose v= does not
// equal ServerSignature is an authentication failure even though the
// server said "success", since only a holder of the password's derived
// keys can compute it.
type SCRAM struct {
	creds    Credentials
	newHash  func() hash.Hash
	name     string
	plus     bool
	step     int
	gs2      string

	clientNonce string
	firstBare   string // client-first-message-bare, kept for AuthMessage
	authMsg     string
	saltedPwd   []byte
}

// NewSCRAMSHA1 creates a SCRAM-SHA-1 mechanism.
func NewSCRAMSHA1(creds Credentials) *SCRAM {
	return newSCRAM(creds, "SCRAM-SHA-1", sha1.New, false)
}

// NewSCRAMSHA1Plus creates a SCRAM-SHA-1-PLUS mechanism.
func NewSCRAMSHA1Plus(creds Credentials) *SCRAM {
	return newSCRAM(creds, "SCRAM-SHA-1-PLUS", sha1.New, true)
}

// NewSCRAMSHA256 creates a SCRAM-SHA-256 mechanism.
func NewSCRAMSHA256(creds Credentials) *SCRAM {
	return newSCRAM(creds, "SCRAM-SHA-256", sha256.New, false)
}

// NewSCRAMSHA256Plus creates a SCRAM-SHA-256-PLUS mechanism.
func NewSCRAMSHA256Plus(creds Credentials) *SCRAM {
	return newSCRAM(creds, "SCRAM-SHA-256-PLUS", sha256.New, true)
}

// NewSCRAMSHA512 creates a SCRAM-SHA-512 mechanism.
func NewSCRAMSHA512(creds Credentials) *SCRAM {
	return newSCRAM(creds, "SCRAM-SHA-512", sha512.New, false)
}

// NewSCRAMSHA512Plus creates a SCRAM-SHA-512-PLUS mechanism.
func NewSCRAMSHA512Plus(creds Credentials) *SCRAM {
	return newSCRAM(creds, "SCRAM-SHA-512-PLUS", sha512.New, true)
}

func newSCRAM(creds Credentials, name string, h func() hash.Hash, plus bool) *SCRAM {
	return &SCRAM{
		creds:   creds,
		newHash: h,
		name:    name,
		plus:    plus,
	}
}

// Name returns the mechanism name.
func (s *SCRAM) Name() string { return s.name }

// Completed returns true once the server's signature has verified.
func (s *SCRAM) Completed() bool { return s.step >= 3 }

// Start produces client-first-message: the GS2 header ("n,," when not
// channel-binding, "p=<type>,," when we are) followed by the escaped
// username and a fresh nonce.
func (s *SCRAM) Start() ([]byte, error) {
	if s.clientNonce == "" {
		s.clientNonce = newNonce()
	}

	if s.plus {
		if len(s.creds.ChannelBinding) == 0 {
			return nil, ErrChannelBinding
		}
		s.gs2 = fmt.Sprintf("p=%s,,", s.creds.CBType)
	} else {
		s.gs2 = "n,,"
	}

	s.firstBare = fmt.Sprintf("n=%s,r=%s", escapeAttr(s.creds.Username), s.clientNonce)
	s.step = 1
	return []byte(s.gs2 + s.firstBare), nil
}

// Next advances the exchange: first the server-first challenge, then
// the server-final payload delivered inside <success/>.
func (s *SCRAM) Next(challenge []byte) ([]byte, error) {
	switch s.step {
	case 1:
		return s.clientFinal(challenge)
	case 2:
		return nil, s.verifyServerFinal(challenge)
	default:
		return nil, errors.New("sasl: SCRAM exchange already finished")
	}
}

// serverFirst is the parsed r=/s=/i= triple from server-first-message.
type serverFirst struct {
	nonce      string
	salt       []byte
	iterations int
}

func parseServerFirst(data []byte) (serverFirst, error) {
	attrs := splitAttrs(string(data))

	var sf serverFirst
	var ok bool
	if sf.nonce, ok = attrs["r"]; !ok {
		return sf, fmt.Errorf("sasl: server-first missing nonce: %w", ErrInvalidResponse)
	}
	saltB64, ok := attrs["s"]
	if !ok {
		return sf, fmt.Errorf("sasl: server-first missing salt: %w", ErrInvalidResponse)
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return sf, fmt.Errorf("sasl: bad salt encoding: %w", err)
	}
	sf.salt = salt
	iter, ok := attrs["i"]
	if !ok {
		return sf, fmt.Errorf("sasl: server-first missing iteration count: %w", ErrInvalidResponse)
	}
	if sf.iterations, err = strconv.Atoi(iter); err != nil || sf.iterations <= 0 {
		return sf, fmt.Errorf("sasl: bad iteration count %q: %w", iter, ErrInvalidResponse)
	}
	return sf, nil
}

// clientFinal processes server-first-message and produces
// client-final-message.
func (s *SCRAM) clientFinal(data []byte) ([]byte, error) {
	sf, err := parseServerFirst(data)
	if err != nil {
		return nil, err
	}

	// The combined nonce must extend ours: a server echoing a
	// different r= could be splicing our proof into another exchange.
	if !strings.HasPrefix(sf.nonce, s.clientNonce) {
		return nil, fmt.Errorf("sasl: server nonce does not extend client nonce: %w", ErrInvalidResponse)
	}

	// c= carries the base64 GS2 header, plus the binding data itself
	// on the -PLUS variants.
	cb := []byte(s.gs2)
	if s.plus {
		cb = append(cb, s.creds.ChannelBinding...)
	}
	withoutProof := fmt.Sprintf("c=%s,r=%s", base64.StdEncoding.EncodeToString(cb), sf.nonce)

	s.saltedPwd = pbkdf2.Key([]byte(s.creds.Password), sf.salt, sf.iterations, s.newHash().Size(), s.newHash)
	clientKey := s.hmac(s.saltedPwd, "Client Key")
	storedKey := s.digest(clientKey)

	s.authMsg = s.firstBare + "," + string(data) + "," + withoutProof
	proof := xorBytes(clientKey, s.hmac(storedKey, s.authMsg))

	s.step = 2
	return []byte(withoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof)), nil
}

// verifyServerFinal checks the v= attribute of server-final-message
// against our own ServerSignature computation.
func (s *SCRAM) verifyServerFinal(data []byte) error {
	attrs := splitAttrs(string(data))

	if e, ok := attrs["e"]; ok {
		return fmt.Errorf("sasl: server rejected authentication: %s", e)
	}
	got, ok := attrs["v"]
	if !ok {
		return fmt.Errorf("sasl: server-final missing verifier: %w", ErrInvalidResponse)
	}

	serverKey := s.hmac(s.saltedPwd, "Server Key")
	want := base64.StdEncoding.EncodeToString(s.hmac(serverKey, s.authMsg))
	if !hmac.Equal([]byte(got), []byte(want)) {
		return ErrAuthFailed
	}

	s.step = 3
	return nil
}

func (s *SCRAM) hmac(key []byte, msg string) []byte {
	mac := hmac.New(s.newHash, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}

func (s *SCRAM) digest(data []byte) []byte {
	h := s.newHash()
	h.Write(data)
	return h.Sum(nil)
}

// splitAttrs parses SCRAM's "k=v,k=v" attribute syntax. Values may
// contain '=' themselves (base64), so only the first '=' splits.
func splitAttrs(msg string) map[string]string {
	attrs := make(map[string]string)
	for _, field := range strings.Split(msg, ",") {
		if k, v, ok := strings.Cut(field, "="); ok && k != "" {
			attrs[k] = v
		}
	}
	return attrs
}

// escapeAttr applies RFC 5802 §5.1's saslname escaping: '=' and ','
// would break the attribute syntax, so they travel as =3D and =2C.
func escapeAttr(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	return strings.ReplaceAll(s, ",", "=2C")
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// newNonce returns base64 text over fresh random bytes; RFC 5802 only
// requires printable uniqueness, not any particular length.
func newNonce() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return base64.StdEncoding.EncodeToString(b)
}
