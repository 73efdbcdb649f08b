package sasl

import (
	"strings"
	"testing"
)

func TestSCRAMConstructorNames(t *testing.T) {
	t.Parallel()
	creds := Credentials{Username: "user", Password: "pencil"}
	cases := []struct {
		make func(Credentials) *SCRAM
		want string
	}{
		{NewSCRAMSHA1, "SCRAM-SHA-1"},
		{NewSCRAMSHA1Plus, "SCRAM-SHA-1-PLUS"},
		{NewSCRAMSHA256, "SCRAM-SHA-256"},
		{NewSCRAMSHA256Plus, "SCRAM-SHA-256-PLUS"},
		{NewSCRAMSHA512, "SCRAM-SHA-512"},
		{NewSCRAMSHA512Plus, "SCRAM-SHA-512-PLUS"},
	}
	for _, c := range cases {
		if got := c.make(creds).Name(); got != c.want {
			t.Errorf("Name() = %q, want %q", got, c.want)
		}
	}
}

// TestSCRAMAgainstPublishedVectors replays the worked examples from
// RFC 5802 §5 (SHA-1) and RFC 7677 §3 (SHA-256) bit for bit. The
// client nonce is pinned to the RFC's value, so every derived message
// — client-first, client-final including the proof, and the server
// signature we accept — must match the published text exactly.
func TestSCRAMAgainstPublishedVectors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name        string
		make        func(Credentials) *SCRAM
		nonce       string
		clientFirst string
		serverFirst string
		clientFinal string
		serverFinal string
	}{
		{
			name:        "SHA-1/RFC5802",
			make:        NewSCRAMSHA1,
			nonce:       "fyko+d2lbbFgONRv9qkxdawL",
			clientFirst: "n,,n=user,r=fyko+d2lbbFgONRv9qkxdawL",
			serverFirst: "r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,s=QSXCR+Q6sek8bf92,i=4096",
			clientFinal: "c=biws,r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,p=v0X8v3Bz2T0CJGbJQyF0X+HI4Ts=",
			serverFinal: "v=rmF9pqV8S7suAoZWja4dJRkFsKQ=",
		},
		{
			name:        "SHA-256/RFC7677",
			make:        NewSCRAMSHA256,
			nonce:       "rOprNGfwEbeRWgbNEkqO",
			clientFirst: "n,,n=user,r=rOprNGfwEbeRWgbNEkqO",
			serverFirst: "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096",
			clientFinal: "c=biws,r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,p=dHzbZapWIk4jUhN+Ute9ytag9zjfMHgsqmmiz7AndVQ=",
			serverFinal: "v=6rriTRBi23WpRR/wtup+mMhUZUn/dB5nLTJRsjl95G4=",
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			s := c.make(Credentials{Username: "user", Password: "pencil"})
			s.clientNonce = c.nonce

			first, err := s.Start()
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			if string(first) != c.clientFirst {
				t.Fatalf("client-first = %q, want %q", first, c.clientFirst)
			}

			final, err := s.Next([]byte(c.serverFirst))
			if err != nil {
				t.Fatalf("Next (server-first): %v", err)
			}
			if string(final) != c.clientFinal {
				t.Fatalf("client-final = %q, want %q", final, c.clientFinal)
			}

			if _, err := s.Next([]byte(c.serverFinal)); err != nil {
				t.Fatalf("Next (server-final): %v", err)
			}
			if !s.Completed() {
				t.Error("exchange should be complete after a verified server-final")
			}
		})
	}
}

// TestSCRAMRejectsBadServerSignature uses the RFC 7677 vector but
// corrupts the server's v= — the mechanism must treat the "success" as
// a failure rather than trust an unverified server.
func TestSCRAMRejectsBadServerSignature(t *testing.T) {
	t.Parallel()
	s := NewSCRAMSHA256(Credentials{Username: "user", Password: "pencil"})
	s.clientNonce = "rOprNGfwEbeRWgbNEkqO"

	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := s.Next([]byte("r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096")); err != nil {
		t.Fatalf("Next (server-first): %v", err)
	}
	if _, err := s.Next([]byte("v=AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")); err != ErrAuthFailed {
		t.Errorf("corrupted verifier: err = %v, want ErrAuthFailed", err)
	}
}

func TestSCRAMRejectsForeignServerNonce(t *testing.T) {
	t.Parallel()
	s := NewSCRAMSHA256(Credentials{Username: "user", Password: "pencil"})
	s.clientNonce = "rOprNGfwEbeRWgbNEkqO"

	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// The combined nonce must begin with ours; a substituted one is a
	// spliced exchange.
	if _, err := s.Next([]byte("r=someoneElsesNonceEntirely,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096")); err == nil {
		t.Error("server nonce not extending ours should be rejected")
	}
}

func TestSCRAMRejectsServerError(t *testing.T) {
	t.Parallel()
	s := NewSCRAMSHA256(Credentials{Username: "user", Password: "pencil"})
	s.clientNonce = "rOprNGfwEbeRWgbNEkqO"
	s.Start()
	if _, err := s.Next([]byte("r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096")); err != nil {
		t.Fatalf("Next (server-first): %v", err)
	}
	if _, err := s.Next([]byte("e=invalid-proof")); err == nil {
		t.Error("an e= attribute in server-final must fail the exchange")
	}
}

func TestSCRAMEscapesUsername(t *testing.T) {
	t.Parallel()
	s := NewSCRAMSHA1(Credentials{Username: "who=what,where", Password: "pw"})
	s.clientNonce = "nonce"
	first, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if want := "n,,n=who=3Dwhat=2Cwhere,r=nonce"; string(first) != want {
		t.Errorf("client-first = %q, want %q (RFC 5802 §5.1 saslname escaping)", first, want)
	}
}

func TestSCRAMPlusNeedsChannelBinding(t *testing.T) {
	t.Parallel()
	s := NewSCRAMSHA256Plus(Credentials{Username: "user", Password: "pencil"})
	if _, err := s.Start(); err != ErrChannelBinding {
		t.Errorf("Start without binding data = %v, want ErrChannelBinding", err)
	}
}

func TestSCRAMPlusGS2Header(t *testing.T) {
	t.Parallel()
	s := NewSCRAMSHA256Plus(Credentials{
		Username:       "user",
		Password:       "pencil",
		ChannelBinding: []byte{0x01, 0x02},
		CBType:         "tls-exporter",
	})
	s.clientNonce = "nonce"
	first, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.HasPrefix(string(first), "p=tls-exporter,,") {
		t.Errorf("client-first = %q, want a p=tls-exporter GS2 header", first)
	}
}
