package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes keep fingerprints of different document kinds apart.
const (
	DomainTransitions = "storebus/transitions/v1"
	DomainChangeUnits = "storebus/change-units/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TransitionsFingerprint hashes a transition map. Two scenarios with the
// same fingerprint schedule exactly the same changes for the same reasons.
func TransitionsFingerprint(ts map[ModuleID]Transition) (string, error) {
	list := make([]Transition, 0, len(ts))
	for _, t := range ts {
		list = append(list, t)
	}
	SortTransitions(list)

	arr := make(IRArray, len(list))
	for i, t := range list {
		arr[i] = t.Object()
	}
	canonical, err := MarshalCanonical(IRObject{"transitions": arr})
	if err != nil {
		return "", fmt.Errorf("TransitionsFingerprint: %w", err)
	}
	return hashWithDomain(DomainTransitions, canonical), nil
}

// ChangeUnitsFingerprint hashes an ordered list of change units.
func ChangeUnitsFingerprint(units []ChangeUnit) (string, error) {
	arr := make(IRArray, len(units))
	for i, u := range units {
		obj := IRObject{
			"id":     IRString(u.ID),
			"action": IRString(u.Action()),
		}
		if u.Version != "" {
			obj["version"] = IRString(u.Version)
		}
		if u.Inactive {
			obj["inactive"] = IRBool(true)
		}
		arr[i] = obj
	}
	canonical, err := MarshalCanonical(IRObject{"change_units": arr})
	if err != nil {
		return "", fmt.Errorf("ChangeUnitsFingerprint: %w", err)
	}
	return hashWithDomain(DomainChangeUnits, canonical), nil
}
