package transform

import (
	"fmt"

	indexermodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/indexer"
	"github.com/Aptos-Scan/aptos-indexer/pkg/rpc"
)

// signaturesFrom flattens an authenticator into signature rows, in
// authenticator order: sender first, then secondary signers, then the fee payer.
func signaturesFrom(sig *rpc.Signature, sender string, version uint64) ([]indexermodels.Signature, error) {
	switch sig.Type {
	case rpc.SigEd25519, rpc.SigMultiEd25519:
		return accountSignatures(sig, sender, version, 0, true)
	case rpc.SigSingleSender:
		return accountSignatures(singleSenderAccount(sig), sender, version, 0, true)
	case rpc.SigMultiAgent, rpc.SigFeePayer:
		if sig.Sender == nil {
			return nil, fmt.Errorf("%s without sender signature", sig.Type)
		}
		if len(sig.SecondarySignerAddresses) != len(sig.SecondarySigners) {
			return nil, fmt.Errorf("%s: %d secondary addresses for %d signers",
				sig.Type, len(sig.SecondarySignerAddresses), len(sig.SecondarySigners))
		}
		out, err := accountSignatures(sig.Sender, sender, version, 0, true)
		if err != nil {
			return nil, err
		}
		for i := range sig.SecondarySigners {
			rows, err := accountSignatures(&sig.SecondarySigners[i], sig.SecondarySignerAddresses[i], version, int64(i), false)
			if err != nil {
				return nil, err
			}
			out = append(out, rows...)
		}
		if sig.Type == rpc.SigFeePayer {
			if sig.FeePayerSigner == nil {
				return nil, fmt.Errorf("fee payer signature without fee payer signer")
			}
			rows, err := accountSignatures(sig.FeePayerSigner, sig.FeePayerAddress, version, int64(len(sig.SecondarySigners)), false)
			if err != nil {
				return nil, err
			}
			out = append(out, rows...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown signature type %q", sig.Type)
	}
}

// accountSignatures handles a single account's authenticator.
func accountSignatures(sig *rpc.Signature, signer string, version uint64, agentIndex int64, primary bool) ([]indexermodels.Signature, error) {
	switch sig.Type {
	case rpc.SigEd25519:
		return []indexermodels.Signature{{
			TransactionVersion: version,
			MultiAgentIndex:    agentIndex,
			MultiSigIndex:      0,
			IsSenderPrimary:    primary,
			Type:               sig.Type,
			Signer:             signer,
			PublicKey:          sig.PublicKey,
			Signature:          sig.Signature,
			Threshold:          1,
			PublicKeyIndices:   mustJSON([]int{}),
		}}, nil
	case rpc.SigMultiEd25519:
		indices, err := bitmapIndices(sig.Bitmap)
		if err != nil {
			return nil, err
		}
		if len(indices) != len(sig.Signatures) {
			return nil, fmt.Errorf("bitmap selects %d keys for %d signatures", len(indices), len(sig.Signatures))
		}
		rows := make([]indexermodels.Signature, 0, len(sig.Signatures))
		for i, s := range sig.Signatures {
			idx := indices[i]
			if idx >= len(sig.PublicKeys) {
				return nil, fmt.Errorf("bitmap index %d out of %d public keys", idx, len(sig.PublicKeys))
			}
			rows = append(rows, indexermodels.Signature{
				TransactionVersion: version,
				MultiAgentIndex:    agentIndex,
				MultiSigIndex:      int64(i),
				IsSenderPrimary:    primary,
				Type:               sig.Type,
				Signer:             signer,
				PublicKey:          sig.PublicKeys[idx],
				Signature:          s,
				Threshold:          int64(sig.Threshold),
				PublicKeyIndices:   mustJSON(indices),
			})
		}
		return rows, nil
	case rpc.SigSingleKey:
		return []indexermodels.Signature{{
			TransactionVersion: version,
			MultiAgentIndex:    agentIndex,
			MultiSigIndex:      0,
			IsSenderPrimary:    primary,
			Type:               sig.Type,
			Signer:             signer,
			PublicKey:          sig.PublicKey,
			Signature:          sig.Signature,
			Threshold:          1,
			PublicKeyIndices:   mustJSON([]int{}),
		}}, nil
	case rpc.SigMultiKey:
		if len(sig.SignatureIndices) != len(sig.Signatures) {
			return nil, fmt.Errorf("%d key indices for %d signatures", len(sig.SignatureIndices), len(sig.Signatures))
		}
		rows := make([]indexermodels.Signature, 0, len(sig.Signatures))
		for i, s := range sig.Signatures {
			idx := sig.SignatureIndices[i]
			if idx < 0 || idx >= len(sig.PublicKeys) {
				return nil, fmt.Errorf("key index %d out of %d public keys", idx, len(sig.PublicKeys))
			}
			rows = append(rows, indexermodels.Signature{
				TransactionVersion: version,
				MultiAgentIndex:    agentIndex,
				MultiSigIndex:      int64(i),
				IsSenderPrimary:    primary,
				Type:               sig.Type,
				Signer:             signer,
				PublicKey:          sig.PublicKeys[idx],
				Signature:          s,
				Threshold:          int64(sig.SignaturesRequired),
				PublicKeyIndices:   mustJSON(sig.SignatureIndices),
			})
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported account signature type %q", sig.Type)
	}
}

// singleSenderAccount returns the account authenticator a single_sender
// signature carries inline.
func singleSenderAccount(sig *rpc.Signature) *rpc.Signature {
	acct := *sig
	acct.Type = rpc.SigSingleKey
	if len(sig.PublicKeys) > 0 {
		acct.Type = rpc.SigMultiKey
	}
	return &acct
}

// bitmapIndices returns the positions of set bits, most significant bit first.
func bitmapIndices(bitmap string) ([]int, error) {
	b, err := HexToBytes(bitmap)
	if err != nil {
		return nil, fmt.Errorf("bitmap: %w", err)
	}
	var out []int
	for i, v := range b {
		for bit := 0; bit < 8; bit++ {
			if v&(0x80>>bit) != 0 {
				out = append(out, i*8+bit)
			}
		}
	}
	return out, nil
}
