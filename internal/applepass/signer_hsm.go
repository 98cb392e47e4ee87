//go:build hsmsign

package applepass

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"io"
	"time"

	"github.com/miekg/pkcs11"
	"go.mozilla.org/pkcs7"

	"github.com/stampably/walletpass/internal/walleterr"
)

// HSMSigner signs manifests with a private key held in a PKCS#11 token.
// Enabled via the hsmsign build tag so default builds do not link the
// pkcs11 module. The signer and authority certificates still come from
// PEM configuration; only the key lives in the token.
type HSMSigner struct {
	libPath  string
	slotID   uint
	pin      string
	keyLabel string

	SignerCert    *x509.Certificate
	AuthorityCert *x509.Certificate

	p11  *pkcs11.Ctx
	sess pkcs11.SessionHandle
	key  pkcs11.ObjectHandle
	now  func() time.Time
}

func NewHSMSigner(libPath string, slotID uint, pin, keyLabel string, signer, authority *x509.Certificate) *HSMSigner {
	return &HSMSigner{
		libPath:       libPath,
		slotID:        slotID,
		pin:           pin,
		keyLabel:      keyLabel,
		SignerCert:    signer,
		AuthorityCert: authority,
		now:           time.Now,
	}
}

func (s *HSMSigner) Open() error {
	s.p11 = pkcs11.New(s.libPath)
	if s.p11 == nil {
		return fmt.Errorf("load pkcs11 lib failed")
	}
	if err := s.p11.Initialize(); err != nil {
		return err
	}
	sess, err := s.p11.OpenSession(pkcs11.SlotID(s.slotID), pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		_ = s.p11.Finalize()
		return err
	}
	s.sess = sess
	if err := s.p11.Login(s.sess, pkcs11.CKU_USER, s.pin); err != nil {
		_ = s.p11.CloseSession(s.sess)
		_ = s.p11.Finalize()
		return err
	}

	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, s.keyLabel),
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
	}
	if err := s.p11.FindObjectsInit(s.sess, template); err != nil {
		return err
	}
	objs, _, err := s.p11.FindObjects(s.sess, 1)
	_ = s.p11.FindObjectsFinal(s.sess)
	if err != nil {
		return err
	}
	if len(objs) == 0 {
		return fmt.Errorf("signing key not found by label=%s", s.keyLabel)
	}
	s.key = objs[0]
	return nil
}

func (s *HSMSigner) Close() {
	if s.p11 != nil {
		if s.sess != 0 {
			_ = s.p11.Logout(s.sess)
			_ = s.p11.CloseSession(s.sess)
		}
		_ = s.p11.Finalize()
		s.p11.Destroy()
		s.p11 = nil
	}
}

func (s *HSMSigner) Sign(_ context.Context, manifest []byte) ([]byte, error) {
	cred := &Credential{SignerCert: s.SignerCert, AuthorityCert: s.AuthorityCert}
	if err := cred.CheckExpiry(s.now()); err != nil {
		return nil, err
	}

	sd, err := pkcs7.NewSignedData(manifest)
	if err != nil {
		return nil, &walleterr.SigningError{Strategy: "hsm", Err: err}
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	sd.AddCertificate(s.AuthorityCert)
	if err := sd.AddSigner(s.SignerCert, &tokenKey{signer: s}, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, &walleterr.SigningError{Strategy: "hsm", Err: err}
	}
	sd.Detach()

	sig, err := sd.Finish()
	if err != nil {
		return nil, &walleterr.SigningError{Strategy: "hsm", Err: err}
	}
	return sig, nil
}

// tokenKey adapts the PKCS#11 token to crypto.Signer for the pkcs7
// package.
type tokenKey struct {
	signer *HSMSigner
}

// sha256DigestInfoPrefix is the DER DigestInfo header for SHA-256; the
// token performs raw CKM_RSA_PKCS, so the prefix is supplied here.
var sha256DigestInfoPrefix = []byte{
	0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01,
	0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20,
}

func (k *tokenKey) Public() crypto.PublicKey {
	return k.signer.SignerCert.PublicKey.(*rsa.PublicKey)
}

func (k *tokenKey) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if opts.HashFunc() != crypto.SHA256 {
		return nil, fmt.Errorf("unsupported digest %v", opts.HashFunc())
	}
	s := k.signer
	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)}
	if err := s.p11.SignInit(s.sess, mech, s.key); err != nil {
		return nil, err
	}
	return s.p11.Sign(s.sess, append(append([]byte{}, sha256DigestInfoPrefix...), digest...))
}

var _ Signer = (*HSMSigner)(nil)
