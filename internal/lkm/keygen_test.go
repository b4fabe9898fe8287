// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package lkm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/gomega"
)

func TestNewKeyPair(t *testing.T) {
	t.Run("uses the given key ID", func(t *testing.T) {
		g := NewWithT(t)

		pub, priv, err := NewKeyPair("aegis-2025")
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(pub.KeyID).To(Equal("aegis-2025"))
		g.Expect(priv.KeyID).To(Equal("aegis-2025"))
		g.Expect(priv.Public().Key).To(Equal(pub.Key))
	})

	t.Run("generates a UUID v6 key ID", func(t *testing.T) {
		g := NewWithT(t)

		pub1, _, err := NewKeyPair("")
		g.Expect(err).ToNot(HaveOccurred())
		pub2, _, err := NewKeyPair("")
		g.Expect(err).ToNot(HaveOccurred())

		id, err := uuid.Parse(pub1.KeyID)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(id.Version()).To(Equal(uuid.Version(6)))
		g.Expect(pub1.KeyID).ToNot(Equal(pub2.KeyID))
		g.Expect(pub1.Key).ToNot(Equal(pub2.Key))
	})
}

func TestWriteKeyPair(t *testing.T) {
	t.Run("writes PEM files", func(t *testing.T) {
		g := NewWithT(t)
		dir := t.TempDir()

		pub, priv, err := NewKeyPair("kid-1")
		g.Expect(err).ToNot(HaveOccurred())

		privPath, pubPath, err := WriteKeyPair(dir, pub, priv)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(privPath).To(Equal(filepath.Join(dir, "kid-1.private.pem")))
		g.Expect(pubPath).To(Equal(filepath.Join(dir, "kid-1.public.pem")))

		info, err := os.Stat(privPath)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(info.Mode().Perm()).To(Equal(os.FileMode(0600)))

		loadedPriv, err := EdPrivateKeyFromFile(privPath, "kid-1")
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(loadedPriv.Key).To(Equal(priv.Key))

		loadedPub, err := EdPublicKeyFromFile(pubPath, "kid-1")
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(loadedPub.Key).To(Equal(pub.Key))
	})

	t.Run("refuses to overwrite a private key", func(t *testing.T) {
		g := NewWithT(t)
		dir := t.TempDir()

		pub, priv, err := NewKeyPair("kid-1")
		g.Expect(err).ToNot(HaveOccurred())
		_, _, err = WriteKeyPair(dir, pub, priv)
		g.Expect(err).ToNot(HaveOccurred())

		_, _, err = WriteKeyPair(dir, pub, priv)
		g.Expect(err).To(HaveOccurred())
		g.Expect(err.Error()).To(ContainSubstring("refusing to overwrite"))
	})

	t.Run("fails with nil keys", func(t *testing.T) {
		g := NewWithT(t)

		_, _, err := WriteKeyPair(t.TempDir(), nil, nil)
		g.Expect(err).To(HaveOccurred())
	})
}

func TestKeysFromPEM(t *testing.T) {
	g := NewWithT(t)

	pub, priv, err := NewKeyPair("kid-1")
	g.Expect(err).ToNot(HaveOccurred())
	privPEM, err := priv.MarshalPEM()
	g.Expect(err).ToNot(HaveOccurred())
	pubPEM, err := pub.MarshalPEM()
	g.Expect(err).ToNot(HaveOccurred())

	t.Run("requires a key ID for private keys", func(t *testing.T) {
		g := NewWithT(t)

		_, err := EdPrivateKeyFromPEM(privPEM, "")
		g.Expect(err).To(MatchError(ErrKeyLoadFailure))
	})

	t.Run("rejects swapped PEM blocks", func(t *testing.T) {
		g := NewWithT(t)

		_, err := EdPrivateKeyFromPEM(pubPEM, "kid-1")
		g.Expect(err).To(MatchError(ErrKeyLoadFailure))

		_, err = EdPublicKeyFromPEM(privPEM, "kid-1")
		g.Expect(err).To(MatchError(ErrKeyLoadFailure))
	})

	t.Run("rejects garbage", func(t *testing.T) {
		g := NewWithT(t)

		_, err := EdPublicKeyFromPEM([]byte("not a key"), "kid-1")
		g.Expect(err).To(MatchError(ErrKeyLoadFailure))
	})

	t.Run("rejects missing files", func(t *testing.T) {
		g := NewWithT(t)

		_, err := EdPrivateKeyFromFile(filepath.Join(t.TempDir(), "missing.pem"), "kid-1")
		g.Expect(err).To(MatchError(ErrKeyLoadFailure))
		g.Expect(ReasonOf(err)).To(Equal(ReasonKeyLoadFailure))
	})
}
