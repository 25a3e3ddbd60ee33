package cli

import (
	"crypto/aes"
	"crypto/cipher"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/pbkdf2"

	"github.com/lvenc/lvenc-node/internal/crypto"
)

const exportKDFIterations = 600_000

// exportedIdentity is the passphrase-wrapped form of an identity file
// produced by `identity --export` when LVENC_EXPORT_PASS is set.
type exportedIdentity struct {
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func newIdentityCmd() *cobra.Command {
	f := &commonFlags{}
	var export bool

	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Show (or export) the node identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			netID, err := f.netID()
			if err != nil {
				return err
			}
			id, err := crypto.LoadOrCreate(f.networkDir(), log.StandardLogger())
			if err != nil {
				return err
			}

			if export {
				return exportIdentity(cmd, f.networkDir())
			}

			fmt.Fprintln(cmd.OutOrStdout(), "address:       ", id.Address(netID))
			fmt.Fprintln(cmd.OutOrStdout(), "public key:    ", hex.EncodeToString(id.PublicKey()))
			if reward := id.RewardAddress(); reward != "" {
				fmt.Fprintln(cmd.OutOrStdout(), "reward address:", reward)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "reward address: (unbound)")
			}
			return nil
		},
	}

	f.register(cmd)
	cmd.Flags().BoolVar(&export, "export", false, "print the identity file; set LVENC_EXPORT_PASS to wrap it with a passphrase")
	return cmd
}

// exportIdentity prints the raw identity file, or a pbkdf2+AES-GCM wrapped
// form when a passphrase is provided via LVENC_EXPORT_PASS.
func exportIdentity(cmd *cobra.Command, dir string) error {
	raw, err := os.ReadFile(filepath.Join(dir, "identity.key"))
	if err != nil {
		return fmt.Errorf("read identity file: %w", err)
	}

	pass := os.Getenv("LVENC_EXPORT_PASS")
	if pass == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return nil
	}

	salt := make([]byte, 16)
	if _, err := crand.Read(salt); err != nil {
		return fmt.Errorf("export: salt: %w", err)
	}
	key := pbkdf2.Key([]byte(pass), salt, exportKDFIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("export: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("export: gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := crand.Read(nonce); err != nil {
		return fmt.Errorf("export: nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, raw, nil)

	out, err := json.MarshalIndent(exportedIdentity{
		KDF:        "pbkdf2-sha256",
		Iterations: exportKDFIterations,
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(sealed),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
