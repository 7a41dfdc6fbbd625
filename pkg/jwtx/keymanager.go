package jwtx

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aussiebroadwan/portal/pkg/cryptox"
)

// KeyManager owns the signing keys of one portal instance together with
// the KeySet and Verifier built from them.
type KeyManager struct {
	mu       sync.RWMutex
	signers  []Signer
	keys     *KeySet
	verifier Verifier
}

// KeyManagerOptions configures key generation and verification.
type KeyManagerOptions struct {
	VerifyOptions

	// NumKeys is how many signing keys to keep. Defaults to 1, capped at 10.
	NumKeys int
}

func (o KeyManagerOptions) numKeys() int {
	switch {
	case o.NumKeys <= 0:
		return 1
	case o.NumKeys > 10:
		return 10
	default:
		return o.NumKeys
	}
}

// NewEphemeralKeyManager generates keys in memory. Every outstanding
// access token dies with the process, refresh tokens do not.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, errors.New("jwtx: Issuer is required")
	}

	km := newKeyManager(opts)
	for i := range opts.numKeys() {
		pemKey, err := cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, err
		}
		if err := km.addPEM(pemKey); err != nil {
			return nil, fmt.Errorf("jwtx: signer %d: %w", i+1, err)
		}
	}
	return km, nil
}

// NewFileKeyManager loads every *.pem file in dir, generating and writing
// new keys until NumKeys exist. The kid of each key is its file name
// without the extension, so a restart keeps tokens verifiable.
func NewFileKeyManager(dir string, opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, errors.New("jwtx: Issuer is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("jwtx: create key dir: %w", err)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.pem"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	km := newKeyManager(opts)
	for _, p := range paths {
		pemKey, err := os.ReadFile(p) // #nosec G304 - operator supplied key dir
		if err != nil {
			return nil, fmt.Errorf("jwtx: read %s: %w", p, err)
		}
		kid := strings.TrimSuffix(filepath.Base(p), ".pem")
		if err := km.add(kid, pemKey); err != nil {
			return nil, fmt.Errorf("jwtx: load %s: %w", p, err)
		}
	}

	for km.NumSigners() < opts.numKeys() {
		pemKey, err := cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, err
		}
		kid, err := newKeyID()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, kid+".pem"), pemKey, 0600); err != nil {
			return nil, fmt.Errorf("jwtx: write key: %w", err)
		}
		if err := km.add(kid, pemKey); err != nil {
			return nil, err
		}
	}

	return km, nil
}

func newKeyManager(opts KeyManagerOptions) *KeyManager {
	keys := NewKeySet()
	return &KeyManager{
		keys:     keys,
		verifier: NewVerifierEdDSA(keys, opts.VerifyOptions),
	}
}

func (km *KeyManager) addPEM(pemKey []byte) error {
	kid, err := newKeyID()
	if err != nil {
		return err
	}
	return km.add(kid, pemKey)
}

func (km *KeyManager) add(kid string, pemKey []byte) error {
	signer, err := NewSignerEdDSA(kid, pemKey)
	if err != nil {
		return err
	}
	if err := km.keys.AddSigner(signer); err != nil {
		return err
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	km.signers = append(km.signers, signer)
	return nil
}

// Signer returns one of the active signers, chosen at random.
func (km *KeyManager) Signer() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	default:
		return km.signers[rand.IntN(len(km.signers))]
	}
}

func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

func (km *KeyManager) Verifier() Verifier { return km.verifier }
func (km *KeyManager) KeySet() *KeySet    { return km.keys }
func (km *KeyManager) IsReady() bool      { return km.keys.IsReady() }

// newKeyID returns "portal-" followed by 128 random bits.
func newKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("jwtx: key id: %w", err)
	}
	return "portal-" + token, nil
}
