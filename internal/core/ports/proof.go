package ports

import "context"

// Proof is a signed-message proof of control over an external address.
type Proof struct {
	Address   string
	Message   string
	Signature string // base64, compact recoverable signature
}

type ProofVerifier interface {
	Verify(ctx context.Context, proof Proof) error
}
