package escrow

import "escrowchain/core/ledger"

// requireSigner fails with ErrUnauthorized unless the runtime verified a
// signature from the account's identity for this call.
func requireSigner(info *ledger.AccountInfo) error {
	if info == nil || !info.IsSigner {
		return ErrUnauthorized
	}
	return nil
}
