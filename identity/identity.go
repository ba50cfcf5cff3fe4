// Package identity manages ed25519 keypairs for kudo principals. A
// principal is the hex encoding of its public key; holding the private key
// is what lets a caller sign the proof GiveKudos requires.
//
// Keys are stored in PEM format with PKCS8 encoding and 0600 permissions.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/warp/kudobank/kudos"
)

// Identity is a principal together with its signing key.
type Identity struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	principal  kudos.Principal
}

// New creates an Identity from a private key.
func New(privKey ed25519.PrivateKey) *Identity {
	pubKey := privKey.Public().(ed25519.PublicKey)
	return &Identity{
		privateKey: privKey,
		publicKey:  pubKey,
		principal:  kudos.PrincipalFromKey(pubKey),
	}
}

// Generate creates a fresh in-memory identity.
func Generate() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// LoadOrCreate loads the key at keyPath, generating and saving a new one if
// the file is missing or empty.
func LoadOrCreate(keyPath string) (*Identity, error) {
	info, err := os.Stat(keyPath)
	if os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		id, err := Generate()
		if err != nil {
			return nil, err
		}
		if err := id.Save(keyPath); err != nil {
			return nil, err
		}
		return id, nil
	}
	if err != nil {
		return nil, err
	}
	return Load(keyPath)
}

// Load reads an existing PEM/PKCS8 ed25519 key.
func Load(keyPath string) (*Identity, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	pemBlock, _ := pem.Decode(keyData)
	if pemBlock == nil {
		return nil, errors.New("failed to decode PEM block from key file")
	}

	genericKey, err := x509.ParsePKCS8PrivateKey(pemBlock.Bytes)
	if err != nil {
		return nil, err
	}

	privKey, ok := genericKey.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("key is not an ed25519 private key")
	}
	return New(privKey), nil
}

// Save writes the private key to keyPath with 0600 permissions.
func (i *Identity) Save(keyPath string) error {
	x509Encoded, err := x509.MarshalPKCS8PrivateKey(i.privateKey)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := pem.Encode(file, &pem.Block{Type: "PRIVATE KEY", Bytes: x509Encoded}); err != nil {
		return fmt.Errorf("write key %s: %w", keyPath, err)
	}
	return nil
}

// Principal returns the canonical principal for this identity.
func (i *Identity) Principal() kudos.Principal {
	return i.principal
}

// PublicKey returns the raw public key
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.publicKey
}

// Sign signs the provided message with the identity's private key
func (i *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(i.privateKey, message)
}

// ProveGive builds a fresh proof that this identity wants to credit to.
func (i *Identity) ProveGive(to kudos.Principal) kudos.Proof {
	return i.ProveGiveAt(to, uuid.NewString(), time.Now())
}

// ProveGiveAt builds a proof with an explicit nonce and issue time.
func (i *Identity) ProveGiveAt(to kudos.Principal, nonce string, issuedAt time.Time) kudos.Proof {
	issuedAt = issuedAt.Truncate(time.Second)
	return kudos.Proof{
		Nonce:     nonce,
		IssuedAt:  issuedAt,
		Signature: i.Sign(kudos.GiveMessage(i.principal, to, nonce, issuedAt)),
	}
}

// SignatureHex is a convenience for wire formats carrying hex signatures.
func SignatureHex(p kudos.Proof) string {
	return hex.EncodeToString(p.Signature)
}
