package trust

// Key is a single ed25519 public key as it appears in role files.
// Every profile in this pack uses ed25519 exclusively; KeyType and
// Scheme are still carried (and validated) because the wire format
// names them explicitly and a future key type is exactly the kind of
// thing a downgrade attack would try to smuggle in.
type Key struct {
	KeyType string `json:"keytype"`
	Scheme  string `json:"scheme"`
	KeyVal  string `json:"keyval"`
}

// Validate enforces the only key shape this engine accepts.
func (k Key) Validate() error {
	if k.KeyType != "ed25519" || k.Scheme != "ed25519" {
		return newErr(CategoryRoleMeta, "", "unsupported key type/scheme "+k.KeyType+"/"+k.Scheme, nil)
	}
	raw, err := HexDecode(k.KeyVal)
	if err != nil {
		return err
	}
	if len(raw) != Ed25519PublicKeySize {
		return newErr(CategoryRoleMeta, "", "ed25519 public key has wrong length", nil)
	}
	return nil
}

// PublicKeyBytes returns the decoded raw public key.
func (k Key) PublicKeyBytes() ([]byte, error) {
	return HexDecode(k.KeyVal)
}

// RoleSignature is one signature entry, normalized from either the v1
// array-of-objects shape or the v0.6 keyid-to-object map shape.
type RoleSignature struct {
	KeyID      string
	Sig        string
	PGPTrailer string // hex, empty when absent
}

// RoleFullKeys is the set of keys authorized for a role plus the
// threshold of valid signatures required.
type RoleFullKeys struct {
	Keys      map[string]Key
	Threshold int
}

// Validate checks the basic well-formedness invariants a role
// declaration must satisfy regardless of profile: a positive
// threshold no larger than the key count, and every key individually
// valid.
func (rk RoleFullKeys) Validate() error {
	if len(rk.Keys) == 0 {
		return newErr(CategoryRoleMeta, "", "role declares no keys", nil)
	}
	if rk.Threshold < 1 {
		return newErr(CategoryRoleMeta, "", "role threshold must be at least 1", nil)
	}
	if rk.Threshold > len(rk.Keys) {
		return newErr(CategoryRoleMeta, "", "role threshold exceeds declared key count", nil)
	}
	for id, k := range rk.Keys {
		if err := k.Validate(); err != nil {
			return newErr(CategoryRoleMeta, id, "invalid key", err)
		}
	}
	return nil
}

// CheckSignatures runs the mamba threshold algorithm: unknown keyids
// and bad signatures are warnings, not failures, and the loop stops
// scanning as soon as the threshold is met. Only when the final tally
// falls short does this return a threshold error. signedBytes must
// already be the profile's canonical encoding of the "signed" object.
func CheckSignatures(log Logger, roleType string, signedBytes []byte, sigs []RoleSignature, keys RoleFullKeys) error {
	if log == nil {
		log = NopLogger{}
	}
	valid := 0
	seen := make(map[string]bool, len(sigs))
	var badKeyIDs []string
	for _, s := range sigs {
		if seen[s.KeyID] {
			continue
		}
		key, ok := keys.Keys[s.KeyID]
		if !ok {
			log.Warnw("unknown keyid in role signature", "role", roleType, "keyid", s.KeyID)
			continue
		}
		pub, err := key.PublicKeyBytes()
		if err != nil {
			log.Warnw("malformed public key", "role", roleType, "keyid", s.KeyID, "err", err)
			continue
		}
		sig, err := HexDecode(s.Sig)
		if err != nil {
			log.Warnw("malformed signature hex", "role", roleType, "keyid", s.KeyID, "err", err)
			continue
		}
		ok2 := false
		if s.PGPTrailer != "" {
			trailer, err := HexDecode(s.PGPTrailer)
			if err != nil {
				log.Warnw("malformed pgp trailer", "role", roleType, "keyid", s.KeyID, "err", err)
			} else {
				ok2 = VerifyGPG(signedBytes, trailer, pub, sig)
			}
		} else {
			ok2 = Verify(signedBytes, pub, sig)
		}
		seen[s.KeyID] = true
		if ok2 {
			valid++
		} else {
			log.Warnw("invalid signature", "role", roleType, "keyid", s.KeyID)
			badKeyIDs = append(badKeyIDs, s.KeyID)
		}
		if valid >= keys.Threshold {
			break
		}
	}
	if valid < keys.Threshold {
		return newThresholdErr(roleType, valid, keys.Threshold, badKeyIDs)
	}
	return nil
}
