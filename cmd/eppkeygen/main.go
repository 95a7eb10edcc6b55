// Command eppkeygen generates an Ed25519 keypair for an EPP sender or
// inbox identity: spec §1 names key-generation tooling as an external
// collaborator, included here so the module is runnable end-to-end.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/elliptic1/external-prompt-protocol/pkg/eppkey"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("eppkeygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	privPath := fs.String("private-key", "epp_private_key.pem", "output path for the PEM private key")
	pubPath := fs.String("public-key", "epp_public_key.hex", "output path for the hex public key")
	passphrase := fs.String("passphrase", "", "optional passphrase to encrypt the private key (scrypt + secretbox)")
	force := fs.Bool("force", false, "overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if !*force {
		for _, p := range []string{*privPath, *pubPath} {
			if _, err := os.Stat(p); err == nil {
				fmt.Fprintf(stderr, "eppkeygen: %s already exists (use -force to overwrite)\n", p)
				return 1
			}
		}
	}

	pub, priv, err := eppkey.GenerateKeyPair()
	if err != nil {
		fmt.Fprintf(stderr, "eppkeygen: generate keypair: %v\n", err)
		return 1
	}

	pemBytes, err := priv.EncodePEM(*passphrase)
	if err != nil {
		fmt.Fprintf(stderr, "eppkeygen: encode private key: %v\n", err)
		return 1
	}
	if err := os.WriteFile(*privPath, pemBytes, 0600); err != nil {
		fmt.Fprintf(stderr, "eppkeygen: write %s: %v\n", *privPath, err)
		return 1
	}
	if err := os.WriteFile(*pubPath, []byte(pub.Hex()+"\n"), 0644); err != nil {
		fmt.Fprintf(stderr, "eppkeygen: write %s: %v\n", *pubPath, err)
		return 1
	}

	fmt.Fprintf(stdout, "wrote private key to %s\n", *privPath)
	fmt.Fprintf(stdout, "wrote public key to %s\n", *pubPath)
	fmt.Fprintf(stdout, "public key: %s\n", pub.Hex())
	return 0
}
