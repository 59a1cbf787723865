// Package certpool keeps a few DTLS certificates generated ahead of time
// so that a new peer connection doesn't pay for the key generation.
package certpool

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"sync"

	"github.com/giongto35/rtc-canary/pkg/logger"
	"github.com/pion/webrtc/v3"
)

// Generator makes a new certificate.
type Generator func() (*webrtc.Certificate, error)

// Pool is a bounded FIFO of pre-generated certificates.
type Pool struct {
	capacity int
	generate Generator
	log      *logger.Logger

	mu    sync.Mutex
	certs []*webrtc.Certificate

	// serializes generation so refills never overshoot the capacity
	genMu sync.Mutex
}

// GenerateECDSA makes a P-256 certificate the same way pion does by default.
func GenerateECDSA() (*webrtc.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return webrtc.GenerateCertificate(key)
}

func New(capacity int, gen Generator, log *logger.Logger) *Pool {
	if gen == nil {
		gen = GenerateECDSA
	}
	if capacity < 0 {
		capacity = 0
	}
	return &Pool{capacity: capacity, generate: gen, log: log, certs: make([]*webrtc.Certificate, 0, capacity)}
}

func (p *Pool) Cap() int { return p.capacity }

func (p *Pool) Len() int { p.mu.Lock(); defer p.mu.Unlock(); return len(p.certs) }

// TakeOne removes and returns the oldest certificate.
// The second result is false when the pool is empty.
func (p *Pool) TakeOne() (*webrtc.Certificate, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.certs) == 0 {
		return nil, false
	}
	cert := p.certs[0]
	p.certs[0] = nil
	p.certs = p.certs[1:]
	return cert, true
}

// TakeOrGenerate returns a pooled certificate or generates one inline.
func (p *Pool) TakeOrGenerate() (*webrtc.Certificate, error) {
	if cert, ok := p.TakeOne(); ok {
		return cert, nil
	}
	if p.log != nil && p.capacity > 0 {
		p.log.Debug().Msg("The certificate pool is empty, generating inline")
	}
	return p.generate()
}

// Refill adds one certificate if the pool is below its capacity.
// The key generation itself runs without holding the pool lock.
func (p *Pool) Refill() error {
	p.genMu.Lock()
	defer p.genMu.Unlock()
	if p.Len() >= p.capacity {
		return nil
	}
	cert, err := p.generate()
	if err != nil {
		return err
	}
	p.mu.Lock()
	if len(p.certs) < p.capacity {
		p.certs = append(p.certs, cert)
	}
	p.mu.Unlock()
	return nil
}
