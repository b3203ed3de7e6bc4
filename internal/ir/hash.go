package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRuleBase = "ruleassert/rulebase/v1"
	DomainRuleSet  = "ruleassert/ruleset/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RuleBaseKey identifies a rule source configuration.
// Order matters: rules compile in resource order, which is also the
// declaration order the agenda uses to break salience ties.
func RuleBaseKey(resources []string) (string, error) {
	canonical, err := MarshalCanonical(IRObject{
		"ir_version": IRString(IRVersion),
		"resources":  stringsToArray(resources),
	})
	if err != nil {
		return "", fmt.Errorf("RuleBaseKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRuleBase, canonical), nil
}

// RuleSetHash fingerprints a compiled rule set by rule name, source and
// declaration order. Two loads of unchanged sources produce the same hash.
func RuleSetHash(rules []Rule) (string, error) {
	arr := make(IRArray, len(rules))
	for i, r := range rules {
		arr[i] = IRObject{
			"name":   IRString(r.Name),
			"source": IRString(r.Source),
		}
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("RuleSetHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRuleSet, canonical), nil
}

func stringsToArray(ss []string) IRArray {
	arr := make(IRArray, len(ss))
	for i, s := range ss {
		arr[i] = IRString(s)
	}
	return arr
}
